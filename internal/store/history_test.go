package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/media"
)

func insertRecords(t *testing.T, store *SQLiteStore, recs ...*Record) {
	t.Helper()
	for _, rec := range recs {
		if err := store.InsertRecord(rec); err != nil {
			t.Fatalf("failed to insert %s: %v", rec.MediaPath, err)
		}
	}
}

func TestHistory_InsertAndGet(t *testing.T) {
	store := newTestStore(t)

	createdAt := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	rec := &Record{
		MediaType:  media.TypeVideo,
		MediaPath:  "/media/clip.mp4",
		FileSizeKB: 20480,
		Resolution: "1920×1080",
		Quality:    67,
		Grade:      "Fair",
		Username:   "local",
		CreatedAt:  createdAt,
	}
	insertRecords(t, store, rec)
	if rec.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}

	got, err := store.GetRecord(rec.ID)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	if _, err := store.GetRecord(rec.ID + 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistory_InsertSetsCreatedAt(t *testing.T) {
	store := newTestStore(t)

	rec := &Record{MediaType: media.TypeImage, MediaPath: "/media/a.jpg", Quality: 40, Grade: "Poor"}
	insertRecords(t, store, rec)
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to default to now")
	}
}

func TestHistory_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	insertRecords(t, store,
		&Record{MediaType: media.TypeImage, MediaPath: "/media/old.jpg", Quality: 30, Grade: "Very Poor", CreatedAt: base},
		&Record{MediaType: media.TypeVideo, MediaPath: "/media/mid.mp4", Quality: 60, Grade: "Fair", CreatedAt: base.Add(time.Hour)},
		&Record{MediaType: media.TypeImage, MediaPath: "/media/new.jpg", Quality: 90, Grade: "Excellent", CreatedAt: base.Add(2 * time.Hour)},
	)

	all, err := store.ListRecords(0)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	var paths []string
	for _, r := range all {
		paths = append(paths, r.MediaPath)
	}
	if diff := cmp.Diff([]string{"/media/new.jpg", "/media/mid.mp4", "/media/old.jpg"}, paths); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	limited, _ := store.ListRecords(2)
	if len(limited) != 2 {
		t.Errorf("expected 2 records with limit, got %d", len(limited))
	}

	images, _ := store.ListRecordsByType(media.TypeImage, 0)
	if len(images) != 2 || images[0].MediaPath != "/media/new.jpg" {
		t.Errorf("unexpected image records: %+v", images)
	}
}

func TestHistory_ListEmpty(t *testing.T) {
	store := newTestStore(t)

	records, err := store.ListRecords(10)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", records)
	}
}

func TestHistory_DeleteRecord(t *testing.T) {
	store := newTestStore(t)
	rec := &Record{MediaType: media.TypeImage, MediaPath: "/media/a.jpg", Quality: 50, Grade: "Fair"}
	insertRecords(t, store, rec)

	if err := store.DeleteRecord(rec.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if err := store.DeleteRecord(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestHistory_DeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	insertRecords(t, store,
		&Record{MediaType: media.TypeImage, MediaPath: "/media/40d.jpg", Quality: 50, Grade: "Fair", CreatedAt: now.AddDate(0, 0, -40)},
		&Record{MediaType: media.TypeImage, MediaPath: "/media/31d.jpg", Quality: 50, Grade: "Fair", CreatedAt: now.AddDate(0, 0, -31)},
		&Record{MediaType: media.TypeImage, MediaPath: "/media/1d.jpg", Quality: 50, Grade: "Fair", CreatedAt: now.AddDate(0, 0, -1)},
	)

	n, err := store.DeleteRecordsOlderThan(now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 records removed, got %d", n)
	}

	remaining, _ := store.ListRecords(0)
	if len(remaining) != 1 || remaining[0].MediaPath != "/media/1d.jpg" {
		t.Errorf("unexpected remaining records: %+v", remaining)
	}
}

func TestHistory_DeleteAllAndTotalSize(t *testing.T) {
	store := newTestStore(t)

	insertRecords(t, store,
		&Record{MediaType: media.TypeImage, MediaPath: "/media/a.jpg", FileSizeKB: 100, Quality: 50, Grade: "Fair"},
		&Record{MediaType: media.TypeVideo, MediaPath: "/media/b.mp4", FileSizeKB: 250, Quality: 70, Grade: "Good"},
	)

	total, err := store.TotalSizeKB()
	if err != nil {
		t.Fatalf("failed to sum: %v", err)
	}
	if total != 350 {
		t.Errorf("expected 350 KB total, got %d", total)
	}

	n, err := store.DeleteAllRecords()
	if err != nil || n != 2 {
		t.Errorf("DeleteAllRecords = %d, %v; want 2, nil", n, err)
	}

	total, _ = store.TotalSizeKB()
	if total != 0 {
		t.Errorf("expected 0 KB after purge, got %d", total)
	}
}

func TestHistory_Stats(t *testing.T) {
	store := newTestStore(t)

	empty, err := store.HistoryStats()
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if empty.Total != 0 || empty.AverageQuality != 0 || len(empty.ByGrade) != 0 {
		t.Errorf("unexpected empty stats: %+v", empty)
	}

	insertRecords(t, store,
		&Record{MediaType: media.TypeImage, MediaPath: "/media/a.jpg", FileSizeKB: 10, Quality: 90, Grade: "Excellent"},
		&Record{MediaType: media.TypeImage, MediaPath: "/media/b.jpg", FileSizeKB: 20, Quality: 50, Grade: "Fair", Fallback: true},
		&Record{MediaType: media.TypeVideo, MediaPath: "/media/c.mp4", FileSizeKB: 30, Quality: 55, Grade: "Fair"},
	)

	stats, err := store.HistoryStats()
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	want := HistoryStats{
		Total:          3,
		Images:         2,
		Videos:         1,
		Fallbacks:      1,
		AverageQuality: 65,
		TotalSizeKB:    60,
		ByGrade:        map[string]int{"Excellent": 1, "Fair": 2},
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryRecorder(t *testing.T) {
	store := newTestStore(t)
	recorder := NewHistoryRecorder(store, "alice")

	result := &analysis.Result{
		Path:       "/media/clip.mkv",
		MediaType:  media.TypeVideo,
		Percentage: 50,
		Grade:      "Fair",
		Resolution: "1280×720",
		FileSizeKB: 512,
		Fallback:   true,
		AnalyzedAt: time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC),
	}
	if err := recorder.Record(result); err != nil {
		t.Fatalf("failed to record: %v", err)
	}
	if err := recorder.Record(nil); err != nil {
		t.Errorf("nil result should be ignored, got %v", err)
	}

	records, _ := store.ListRecords(0)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	want := &Record{
		ID:         got.ID,
		MediaType:  media.TypeVideo,
		MediaPath:  "/media/clip.mkv",
		FileSizeKB: 512,
		Resolution: "1280×720",
		Quality:    50,
		Grade:      "Fair",
		Fallback:   true,
		Username:   "alice",
		CreatedAt:  result.AnalyzedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryRecorderSetUsername(t *testing.T) {
	store := newTestStore(t)
	recorder := NewHistoryRecorder(store, "alice")
	recorder.SetUsername("bob")

	if err := recorder.Record(&analysis.Result{Path: "/media/a.jpg", MediaType: media.TypeImage}); err != nil {
		t.Fatalf("failed to record: %v", err)
	}

	records, _ := store.ListRecords(1)
	if len(records) != 1 || records[0].Username != "bob" {
		t.Errorf("expected record stamped with bob, got %+v", records)
	}
}
