package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/gwlsn/mediagrade/internal/logger"
)

// DBFileName is the database file created in the config directory.
const DBFileName = "mediagrade.db"

// historyExport is the file layout written by ExportHistory.
type historyExport struct {
	ExportedAt time.Time `json:"exported_at"`
	Records    []*Record `json:"records"`
}

// GetDBPath returns the database path for a config directory.
func GetDBPath(configDir string) string {
	return filepath.Join(configDir, DBFileName)
}

// CleanupDBFiles removes SQLite database files (main, WAL, and SHM).
func CleanupDBFiles(dbPath string) {
	os.Remove(dbPath)
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
}

// InitStore opens the store in configDir and resets jobs left running by
// a previous process. This is the main entry point for store initialization.
func InitStore(configDir string) (*SQLiteStore, error) {
	dbPath := GetDBPath(configDir)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Crash recovery
	count, err := store.ResetRunningJobs()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("reset running jobs: %w", err)
	}
	if count > 0 {
		logger.Info("Reset interrupted jobs to pending", "count", count)
	}

	return store, nil
}

// ExportHistory writes every history record as JSON and returns how many
// were written.
func ExportHistory(hs HistoryStore, w io.Writer) (int, error) {
	records, err := hs.ListRecords(0)
	if err != nil {
		return 0, fmt.Errorf("list history: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(historyExport{ExportedAt: time.Now().UTC(), Records: records}); err != nil {
		return 0, fmt.Errorf("encode history: %w", err)
	}
	return len(records), nil
}

// ImportHistory reads a file written by ExportHistory and inserts its
// records in one transaction. Record IDs are reassigned.
func (s *SQLiteStore) ImportHistory(r io.Reader) (int, error) {
	var data historyExport
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return 0, fmt.Errorf("parse history export: %w", err)
	}
	if len(data.Records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO history (media_type, media_path, file_size_kb, resolution, quality, grade, fallback, username, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	imported := 0
	for _, rec := range data.Records {
		if rec == nil || rec.MediaPath == "" {
			continue
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = data.ExportedAt
		}
		if _, err := stmt.Exec(string(rec.MediaType), rec.MediaPath, rec.FileSizeKB, rec.Resolution,
			rec.Quality, rec.Grade, boolToInt(rec.Fallback), rec.Username, formatTime(createdAt)); err != nil {
			return 0, fmt.Errorf("import record %s: %w", rec.MediaPath, err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}
