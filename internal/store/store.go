package store

import (
	"errors"
	"time"

	"github.com/gwlsn/mediagrade/internal/jobs"
	"github.com/gwlsn/mediagrade/internal/media"
)

// ErrNotFound is returned when a history record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence interface for jobs and analysis history.
// Implementations must be safe for concurrent use.
type Store interface {
	jobs.Store
	HistoryStore
}

// HistoryStore persists one record per completed analysis.
type HistoryStore interface {
	// InsertRecord stores a record and sets its ID.
	InsertRecord(rec *Record) error

	// GetRecord returns the record with the given ID, or ErrNotFound.
	GetRecord(id int64) (*Record, error)

	// ListRecords returns records newest first. limit <= 0 returns all.
	ListRecords(limit int) ([]*Record, error)

	// ListRecordsByType returns records of one media type, newest first.
	ListRecordsByType(mediaType media.Type, limit int) ([]*Record, error)

	// DeleteRecord removes one record. Deleting a missing record returns ErrNotFound.
	DeleteRecord(id int64) error

	// DeleteRecordsOlderThan removes records created before cutoff and
	// returns how many were removed.
	DeleteRecordsOlderThan(cutoff time.Time) (int, error)

	// DeleteAllRecords removes every record and returns how many were removed.
	DeleteAllRecords() (int, error)

	// TotalSizeKB sums the file size of all recorded media.
	TotalSizeKB() (int64, error)

	// HistoryStats aggregates the history table.
	HistoryStats() (HistoryStats, error)
}

// Record is one analysed media file in the history.
type Record struct {
	ID         int64      `json:"id"`
	MediaType  media.Type `json:"media_type"`
	MediaPath  string     `json:"media_path"`
	FileSizeKB int64      `json:"file_size_kb"`
	Resolution string     `json:"resolution"`
	Quality    int        `json:"quality"` // Percentage 0-100
	Grade      string     `json:"grade"`
	Fallback   bool       `json:"fallback"`
	Username   string     `json:"username"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HistoryStats holds aggregate history figures.
type HistoryStats struct {
	Total          int            `json:"total"`
	Images         int            `json:"images"`
	Videos         int            `json:"videos"`
	Fallbacks      int            `json:"fallbacks"`
	AverageQuality float64        `json:"average_quality"`
	TotalSizeKB    int64          `json:"total_size_kb"`
	ByGrade        map[string]int `json:"by_grade"`
}
