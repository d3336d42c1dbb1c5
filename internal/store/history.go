package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/media"
)

const recordColumns = `id, media_type, media_path, file_size_kb, resolution, quality, grade, fallback, username, created_at`

// InsertRecord stores a history record and sets its ID. A zero CreatedAt
// is set to now.
func (s *SQLiteStore) InsertRecord(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	result, err := s.db.Exec(`
		INSERT INTO history (media_type, media_path, file_size_kb, resolution, quality, grade, fallback, username, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(rec.MediaType), rec.MediaPath, rec.FileSizeKB, rec.Resolution,
		rec.Quality, rec.Grade, boolToInt(rec.Fallback), rec.Username, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("read history record id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetRecord returns the record with the given ID.
func (s *SQLiteStore) GetRecord(id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM history WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec, err
}

// ListRecords returns records newest first.
func (s *SQLiteStore) ListRecords(limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(`SELECT `+recordColumns+` FROM history ORDER BY created_at DESC, id DESC LIMIT ?`, sqlLimit(limit))
}

// ListRecordsByType returns records of one media type, newest first.
func (s *SQLiteStore) ListRecordsByType(mediaType media.Type, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(`SELECT `+recordColumns+` FROM history WHERE media_type = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		string(mediaType), sqlLimit(limit))
}

// DeleteRecord removes one record.
func (s *SQLiteStore) DeleteRecord(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM history WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// DeleteRecordsOlderThan removes records created strictly before cutoff.
func (s *SQLiteStore) DeleteRecordsOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM history WHERE created_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// DeleteAllRecords empties the history.
func (s *SQLiteStore) DeleteAllRecords() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM history")
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// TotalSizeKB sums the recorded file sizes.
func (s *SQLiteStore) TotalSizeKB() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	err := s.db.QueryRow("SELECT COALESCE(SUM(file_size_kb), 0) FROM history").Scan(&total)
	return total, err
}

// HistoryStats aggregates counts, mean quality and the grade distribution.
func (s *SQLiteStore) HistoryStats() (HistoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := HistoryStats{ByGrade: make(map[string]int)}

	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN media_type = 'image' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN media_type = 'video' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(fallback), 0),
			COALESCE(AVG(quality), 0),
			COALESCE(SUM(file_size_kb), 0)
		FROM history
	`)
	if err := row.Scan(&stats.Total, &stats.Images, &stats.Videos, &stats.Fallbacks,
		&stats.AverageQuality, &stats.TotalSizeKB); err != nil {
		return stats, fmt.Errorf("aggregate history: %w", err)
	}

	rows, err := s.db.Query("SELECT grade, COUNT(*) FROM history GROUP BY grade")
	if err != nil {
		return stats, fmt.Errorf("group history by grade: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var grade string
		var count int
		if err := rows.Scan(&grade, &count); err != nil {
			return stats, err
		}
		stats.ByGrade[grade] = count
	}

	return stats, rows.Err()
}

func (s *SQLiteStore) queryRecords(query string, args ...interface{}) ([]*Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var mediaType, createdAt string
	var fallback int

	err := row.Scan(&rec.ID, &mediaType, &rec.MediaPath, &rec.FileSizeKB, &rec.Resolution,
		&rec.Quality, &rec.Grade, &fallback, &rec.Username, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.MediaType = media.Type(mediaType)
	rec.Fallback = fallback != 0
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// HistoryRecorder adapts a HistoryStore to the worker pool's recorder.
type HistoryRecorder struct {
	store HistoryStore

	mu       sync.RWMutex
	username string
}

// NewHistoryRecorder stamps every record it stores with username.
func NewHistoryRecorder(hs HistoryStore, username string) *HistoryRecorder {
	return &HistoryRecorder{store: hs, username: username}
}

// SetUsername changes the name stamped on subsequent records.
func (r *HistoryRecorder) SetUsername(username string) {
	r.mu.Lock()
	r.username = username
	r.mu.Unlock()
}

// Record converts an analysis result into a history record and stores it.
func (r *HistoryRecorder) Record(result *analysis.Result) error {
	if result == nil {
		return nil
	}
	r.mu.RLock()
	username := r.username
	r.mu.RUnlock()
	return r.store.InsertRecord(RecordFromResult(result, username))
}

// RecordFromResult builds a history record from an analysis result.
func RecordFromResult(result *analysis.Result, username string) *Record {
	createdAt := result.AnalyzedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Record{
		MediaType:  result.MediaType,
		MediaPath:  result.Path,
		FileSizeKB: result.FileSizeKB,
		Resolution: result.Resolution,
		Quality:    result.Percentage,
		Grade:      result.Grade,
		Fallback:   result.Fallback,
		Username:   username,
		CreatedAt:  createdAt,
	}
}
