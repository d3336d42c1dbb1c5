package store

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gwlsn/mediagrade/internal/jobs"
	"github.com/gwlsn/mediagrade/internal/media"
)

func TestInitStore_ResetsRunningJobs(t *testing.T) {
	dir := t.TempDir()

	store1, err := InitStore(dir)
	if err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	job := createTestJob("interrupted")
	job.Status = jobs.StatusRunning
	_ = store1.SaveJob(job)
	store1.Close()

	if _, err := os.Stat(GetDBPath(dir)); err != nil {
		t.Fatalf("expected database file at %s: %v", GetDBPath(dir), err)
	}

	store2, err := InitStore(dir)
	if err != nil {
		t.Fatalf("failed to reinit store: %v", err)
	}
	defer store2.Close()

	got, _ := store2.GetJob("interrupted")
	if got == nil || got.Status != jobs.StatusPending {
		t.Errorf("expected interrupted job reset to pending, got %+v", got)
	}
}

func TestCleanupDBFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := InitStore(dir)
	if err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	store.Close()

	CleanupDBFiles(GetDBPath(dir))
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if _, err := os.Stat(GetDBPath(dir) + suffix); !os.IsNotExist(err) {
			t.Errorf("expected %s%s to be removed", DBFileName, suffix)
		}
	}
}

func TestExportImportHistory(t *testing.T) {
	src := newTestStore(t)
	createdAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	insertRecords(t, src,
		&Record{MediaType: media.TypeImage, MediaPath: "/media/a.jpg", FileSizeKB: 10, Quality: 80, Grade: "Good", CreatedAt: createdAt},
		&Record{MediaType: media.TypeVideo, MediaPath: "/media/b.mp4", FileSizeKB: 20, Quality: 50, Grade: "Fair", Fallback: true, CreatedAt: createdAt.Add(time.Minute)},
	)

	var buf bytes.Buffer
	n, err := ExportHistory(src, &buf)
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 exported records, got %d", n)
	}

	dst := newTestStore(t)
	imported, err := dst.ImportHistory(&buf)
	if err != nil {
		t.Fatalf("failed to import: %v", err)
	}
	if imported != 2 {
		t.Errorf("expected 2 imported records, got %d", imported)
	}

	records, _ := dst.ListRecords(0)
	if len(records) != 2 || records[0].MediaPath != "/media/b.mp4" || !records[0].Fallback {
		t.Errorf("unexpected imported records: %+v", records)
	}
	if !records[1].CreatedAt.Equal(createdAt) {
		t.Errorf("created_at not preserved: %v", records[1].CreatedAt)
	}
}

func TestImportHistory_InvalidJSON(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.ImportHistory(strings.NewReader("{not json")); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}
