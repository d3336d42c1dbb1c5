package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/jobs"
	"github.com/gwlsn/mediagrade/internal/media"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestJob(id string) *jobs.Job {
	return &jobs.Job{
		ID:        id,
		Path:      "/media/photo_" + id + ".jpg",
		MediaType: media.TypeImage,
		Status:    jobs.StatusPending,
		FileSize:  1000000,
		CreatedAt: time.Now(),
	}
}

func TestSQLiteStore_SaveJob_CreatesNew(t *testing.T) {
	store := newTestStore(t)
	job := createTestJob("test-1")

	if err := store.SaveJob(job); err != nil {
		t.Fatalf("failed to save job: %v", err)
	}

	got, err := store.GetJob("test-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if got == nil {
		t.Fatal("expected job, got nil")
	}
	if got.Path != job.Path || got.Status != job.Status || got.MediaType != media.TypeImage {
		t.Errorf("unexpected job: %+v", got)
	}
}

func TestSQLiteStore_SaveJob_UpdatesExisting(t *testing.T) {
	store := newTestStore(t)
	job := createTestJob("test-1")
	_ = store.SaveJob(job)

	job.Status = jobs.StatusFailed
	job.Error = "decode failed"
	job.StartedAt = time.Now()
	job.CompletedAt = time.Now()
	if err := store.SaveJob(job); err != nil {
		t.Fatalf("failed to update job: %v", err)
	}

	got, _ := store.GetJob("test-1")
	if got.Status != jobs.StatusFailed || got.Error != "decode failed" {
		t.Errorf("update not applied: %+v", got)
	}
	if got.StartedAt.IsZero() || got.CompletedAt.IsZero() {
		t.Error("expected timestamps to round-trip")
	}
}

func TestSQLiteStore_GetJob_ReturnsNilForMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetJob("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing job")
	}
}

func TestSQLiteStore_ResultRoundTrip(t *testing.T) {
	store := newTestStore(t)

	analyzedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := createTestJob("scored")
	job.Status = jobs.StatusComplete
	job.Result = &analysis.Result{
		ID:         "6f1c",
		Path:       job.Path,
		MediaType:  media.TypeImage,
		RawScore:   72,
		MaxScore:   100,
		Percentage: 72,
		Grade:      "Good",
		Advice:     "Good quality, suitable for most uses",
		Indicator:  "fair",
		Resolution: "4000×3000",
		FileSizeKB: 976,
		Breakdown:  map[string]int{"resolution": 20, "contrast": 12},
		ElapsedMs:  41,
		AnalyzedAt: analyzedAt,
	}

	if err := store.SaveJob(job); err != nil {
		t.Fatalf("failed to save job: %v", err)
	}
	got, err := store.GetJob("scored")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if diff := cmp.Diff(job.Result, got.Result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_DeleteJob_RemovesJobAndOrder(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		_ = store.SaveJob(createTestJob(id))
		_ = store.AppendToOrder(id)
	}

	if err := store.DeleteJob("b"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	// Deleting again is not an error
	if err := store.DeleteJob("b"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}

	_, order, err := store.GetAllJobs()
	if err != nil {
		t.Fatalf("failed to get jobs: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_SetOrder(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		_ = store.SaveJob(createTestJob(id))
		_ = store.AppendToOrder(id)
	}
	if err := store.SetOrder([]string{"c", "a", "b"}); err != nil {
		t.Fatalf("failed to set order: %v", err)
	}

	_, order, _ := store.GetAllJobs()
	if diff := cmp.Diff([]string{"c", "a", "b"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_ResetRunningJobs(t *testing.T) {
	store := newTestStore(t)

	running := createTestJob("running")
	running.Status = jobs.StatusRunning
	running.StartedAt = time.Now()
	done := createTestJob("done")
	done.Status = jobs.StatusComplete

	_ = store.SaveJobs([]*jobs.Job{running, done})

	count, err := store.ResetRunningJobs()
	if err != nil {
		t.Fatalf("failed to reset: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 job reset, got %d", count)
	}

	got, _ := store.GetJob("running")
	if got.Status != jobs.StatusPending || !got.StartedAt.IsZero() {
		t.Errorf("running job not reset: %+v", got)
	}
	got, _ = store.GetJob("done")
	if got.Status != jobs.StatusComplete {
		t.Errorf("complete job should be untouched, got %s", got.Status)
	}
}

func TestSQLiteStore_SaveJobs_BatchPersistence(t *testing.T) {
	store := newTestStore(t)

	batch := make([]*jobs.Job, 0, 50)
	for i := 0; i < 50; i++ {
		batch = append(batch, createTestJob(fmt.Sprintf("batch-%d", i)))
	}
	if err := store.SaveJobs(batch); err != nil {
		t.Fatalf("failed to save batch: %v", err)
	}

	all, _, err := store.GetAllJobs()
	if err != nil {
		t.Fatalf("failed to get jobs: %v", err)
	}
	if len(all) != len(batch) {
		t.Errorf("expected %d jobs, got %d", len(batch), len(all))
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	job := createTestJob("persist-test")
	_ = store1.SaveJob(job)
	_ = store1.AppendToOrder(job.ID)
	_ = store1.InsertRecord(&Record{MediaType: media.TypeImage, MediaPath: job.Path, Quality: 70, Grade: "Good"})
	store1.Close()

	store2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store2.Close()

	got, _ := store2.GetJob("persist-test")
	if got == nil || got.Path != job.Path {
		t.Fatalf("job not persisted: %+v", got)
	}
	_, order, _ := store2.GetAllJobs()
	if len(order) != 1 || order[0] != "persist-test" {
		t.Errorf("order not persisted: %v", order)
	}
	records, _ := store2.ListRecords(0)
	if len(records) != 1 {
		t.Errorf("history not persisted: %d records", len(records))
	}
}

func TestSQLiteStore_RejectsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if _, err := store1.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion+1); err != nil {
		t.Fatalf("failed to bump version: %v", err)
	}
	store1.Close()

	if _, err := NewSQLiteStore(dbPath); err == nil {
		t.Error("expected an error opening a database from a newer version")
	}
}

func TestSQLiteStore_WALMode(t *testing.T) {
	store := newTestStore(t)

	var mode string
	if err := store.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected WAL mode, got %s", mode)
	}
}
