package api

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/browse"
	"github.com/gwlsn/mediagrade/internal/config"
	"github.com/gwlsn/mediagrade/internal/ffmpeg"
	"github.com/gwlsn/mediagrade/internal/jobs"
	"github.com/gwlsn/mediagrade/internal/media"
	"github.com/gwlsn/mediagrade/internal/store"
)

type fakeProber struct{}

func (fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	return &ffmpeg.ProbeResult{Path: path, VideoCodec: "h264", Width: 1280, Height: 720}, nil
}

// fakeAnalyzer scores every file 72 and counts calls.
type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, path string) (*analysis.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r := &analysis.Result{
		ID:         "result-1",
		Path:       path,
		MediaType:  media.Classify(path),
		RawScore:   72,
		MaxScore:   100,
		FileSizeKB: 4,
		Resolution: "4×4",
		AnalyzedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	advice := analysis.AdviceFor(72)
	r.Percentage, r.Grade, r.Advice, r.Indicator = advice.Percentage, advice.Grade, advice.Advice, advice.Indicator
	return r, nil
}

type testEnv struct {
	handler  *Handler
	mux      *http.ServeMux
	root     string
	queue    *jobs.Queue
	pool     *jobs.WorkerPool
	store    *store.SQLiteStore
	analyzer *fakeAnalyzer
	cfgPath  string
}

func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	albumDir := filepath.Join(root, "Photos", "2025")
	if err := os.MkdirAll(albumDir, 0755); err != nil {
		t.Fatalf("failed to create test dirs: %v", err)
	}
	for _, name := range []string{"a.png", "b.png"} {
		writePNG(t, filepath.Join(albumDir, name))
	}
	if err := os.WriteFile(filepath.Join(root, "clip.mp4"), []byte("fake video"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not media"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.MediaPath = root
	cfg.Workers = 1
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	analyzer := &fakeAnalyzer{}
	recorder := store.NewHistoryRecorder(st, "tester")
	queue := jobs.NewQueue()
	pool := jobs.NewWorkerPool(queue, analyzer, recorder, cfg.Workers)
	pool.PollInterval = 10 * time.Millisecond
	t.Cleanup(pool.Stop)

	h := NewHandler(Deps{
		Browser:  browse.NewBrowser(fakeProber{}, root),
		Queue:    queue,
		Pool:     pool,
		Analyzer: analyzer,
		Recorder: recorder,
		History:  st,
		Config:   cfg,
		CfgPath:  cfgPath,
	})

	return &testEnv{
		handler:  h,
		mux:      NewRouter(h),
		root:     root,
		queue:    queue,
		pool:     pool,
		store:    st,
		analyzer: analyzer,
		cfgPath:  cfgPath,
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
}

func TestBrowseEndpoint(t *testing.T) {
	env := setupTestHandler(t)

	w := env.do(t, "GET", "/api/browse", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var result browse.BrowseResult
	decode(t, w, &result)
	if result.Path != env.root {
		t.Errorf("expected path %s, got %s", env.root, result.Path)
	}

	var names []string
	for _, e := range result.Entries {
		names = append(names, e.Name)
	}
	want := []string{"Photos", "clip.mp4", "notes.txt"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestBrowseSubdirectory(t *testing.T) {
	env := setupTestHandler(t)
	dir := filepath.Join(env.root, "Photos", "2025")

	w := env.do(t, "GET", "/api/browse?path="+url.QueryEscape(dir), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var result browse.BrowseResult
	decode(t, w, &result)
	if result.ImageCount != 2 {
		t.Errorf("expected 2 images, got %d", result.ImageCount)
	}
	for _, e := range result.Entries {
		if e.Info == nil || e.Info.Resolution != "4×4" {
			t.Errorf("expected 4×4 info for %s, got %+v", e.Name, e.Info)
		}
	}
}

func TestCreateJobsQueuesMediaFiles(t *testing.T) {
	env := setupTestHandler(t)

	w := env.do(t, "POST", "/api/jobs", CreateJobsRequest{Paths: []string{env.root}})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(env.queue.GetAll()) < 3 {
		time.Sleep(10 * time.Millisecond)
	}

	all := env.queue.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs (two images, one video), got %d", len(all))
	}
	for _, job := range all {
		if job.Status != jobs.StatusPending {
			t.Errorf("job %s: expected pending, got %s", job.Path, job.Status)
		}
		if strings.HasSuffix(job.Path, ".txt") {
			t.Errorf("non-media file queued: %s", job.Path)
		}
	}
}

func TestCreateJobsValidation(t *testing.T) {
	env := setupTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"no paths", `{"paths":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			env.mux.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestJobEndpoints(t *testing.T) {
	env := setupTestHandler(t)
	job := env.queue.Add(jobs.Candidate{Path: filepath.Join(env.root, "clip.mp4"), MediaType: media.TypeVideo, Size: 10})

	w := env.do(t, "GET", "/api/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var list struct {
		Jobs  []*jobs.Job `json:"jobs"`
		Stats jobs.Stats  `json:"stats"`
	}
	decode(t, w, &list)
	if len(list.Jobs) != 1 || list.Stats.Pending != 1 {
		t.Errorf("expected one pending job, got %d jobs and stats %+v", len(list.Jobs), list.Stats)
	}

	w = env.do(t, "GET", "/api/jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var got jobs.Job
	decode(t, w, &got)
	if got.ID != job.ID || got.Path != job.Path {
		t.Errorf("unexpected job %+v", got)
	}

	if w := env.do(t, "GET", "/api/jobs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for missing job, got %d", w.Code)
	}
}

func TestCancelAndRetryJob(t *testing.T) {
	env := setupTestHandler(t)
	job := env.queue.Add(jobs.Candidate{Path: filepath.Join(env.root, "clip.mp4"), MediaType: media.TypeVideo})

	if w := env.do(t, "DELETE", "/api/jobs/"+job.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := env.queue.Get(job.ID); got.Status != jobs.StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}

	// A second cancel conflicts with the terminal state
	if w := env.do(t, "DELETE", "/api/jobs/"+job.ID, nil); w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}

	w := env.do(t, "POST", "/api/jobs/"+job.ID+"/retry", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var retried jobs.Job
	decode(t, w, &retried)
	if retried.Status != jobs.StatusPending || retried.Path != job.Path {
		t.Errorf("unexpected retried job %+v", retried)
	}

	if w := env.do(t, "POST", "/api/jobs/missing/retry", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/jobs/"+retried.ID+"/retry", nil); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 retrying a pending job, got %d", w.Code)
	}
}

func TestClearQueue(t *testing.T) {
	env := setupTestHandler(t)
	a := env.queue.Add(jobs.Candidate{Path: "/a.jpg", MediaType: media.TypeImage})
	env.queue.Add(jobs.Candidate{Path: "/b.jpg", MediaType: media.TypeImage})
	if err := env.queue.CancelJob(a.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	w := env.do(t, "POST", "/api/jobs/clear?status=cancelled", nil)
	var resp struct {
		Cleared int `json:"cleared"`
	}
	decode(t, w, &resp)
	if resp.Cleared != 1 || len(env.queue.GetAll()) != 1 {
		t.Errorf("expected one cleared and one left, got cleared=%d left=%d", resp.Cleared, len(env.queue.GetAll()))
	}

	if w := env.do(t, "POST", "/api/jobs/clear?status=running", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 clearing running jobs, got %d", w.Code)
	}
}

func TestPauseResume(t *testing.T) {
	env := setupTestHandler(t)

	if w := env.do(t, "POST", "/api/queue/pause", nil); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !env.pool.IsPaused() {
		t.Error("expected pool to be paused")
	}

	if w := env.do(t, "POST", "/api/queue/resume", nil); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if env.pool.IsPaused() {
		t.Error("expected pool to be resumed")
	}
}

func TestAnalyzeRecordsHistory(t *testing.T) {
	env := setupTestHandler(t)
	path := filepath.Join(env.root, "Photos", "2025", "a.png")

	w := env.do(t, "POST", "/api/analyze", AnalyzeRequest{Path: path})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result analysis.Result
	decode(t, w, &result)
	if result.Percentage != 72 || result.Grade != "Good" {
		t.Errorf("unexpected result %+v", result)
	}

	records, err := env.store.ListRecords(0)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(records) != 1 || records[0].MediaPath != path || records[0].Username != "tester" {
		t.Errorf("expected one history record for %s, got %+v", path, records)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	env := setupTestHandler(t)

	if w := env.do(t, "POST", "/api/analyze", AnalyzeRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing path, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/analyze", AnalyzeRequest{Path: "/etc/passwd"}); w.Code != http.StatusForbidden {
		t.Errorf("expected status 403 outside media root, got %d", w.Code)
	}

	tests := []struct {
		err  error
		want int
	}{
		{os.ErrNotExist, http.StatusNotFound},
		{analysis.ErrUnsupportedMedia, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		env.analyzer.err = tt.err
		w := env.do(t, "POST", "/api/analyze", AnalyzeRequest{Path: filepath.Join(env.root, "clip.mp4")})
		if w.Code != tt.want {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.want, w.Code)
		}
	}
}

func TestAdviceEndpoint(t *testing.T) {
	env := setupTestHandler(t)

	w := env.do(t, "GET", "/api/advice?percentage=90", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var got analysis.Advice
	decode(t, w, &got)
	if diff := cmp.Diff(analysis.AdviceFor(90), got); diff != "" {
		t.Errorf("advice mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"lots", "-1", "101"} {
		if w := env.do(t, "GET", "/api/advice?percentage="+bad, nil); w.Code != http.StatusBadRequest {
			t.Errorf("percentage=%s: expected status 400, got %d", bad, w.Code)
		}
	}
}

func TestConfigEndpoints(t *testing.T) {
	env := setupTestHandler(t)

	w := env.do(t, "PUT", "/api/config", map[string]interface{}{"workers": 3, "log_level": "debug", "username": "carol"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.pool.WorkerCount() != 3 {
		t.Errorf("expected 3 workers, got %d", env.pool.WorkerCount())
	}

	saved, err := config.Load(env.cfgPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if saved.Workers != 3 || saved.LogLevel != "debug" || saved.Username != "carol" {
		t.Errorf("config not persisted: %+v", saved)
	}

	w = env.do(t, "GET", "/api/config", nil)
	var got map[string]interface{}
	decode(t, w, &got)
	if got["workers"] != float64(3) || got["username"] != "carol" {
		t.Errorf("unexpected config %+v", got)
	}

	tests := []map[string]interface{}{
		{"workers": 0},
		{"workers": jobs.MaxWorkers + 1},
		{"log_level": "verbose"},
		{"history_retention_days": -1},
	}
	for _, body := range tests {
		if w := env.do(t, "PUT", "/api/config", body); w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected status 400, got %d", body, w.Code)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := setupTestHandler(t)
	env.queue.Add(jobs.Candidate{Path: "/a.jpg", MediaType: media.TypeImage})

	w := env.do(t, "GET", "/api/stats", nil)
	var got struct {
		Queue   jobs.Stats `json:"queue"`
		Workers int        `json:"workers"`
		Paused  bool       `json:"paused"`
	}
	decode(t, w, &got)
	if got.Queue.Pending != 1 || got.Workers != 1 || got.Paused {
		t.Errorf("unexpected stats %+v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestHandler(t)

	w := env.do(t, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "mediagrade_jobs_running") {
		t.Error("expected mediagrade_jobs_running in metrics output")
	}
}

func TestJobStreamSendsInit(t *testing.T) {
	env := setupTestHandler(t)
	env.queue.Add(jobs.Candidate{Path: "/a.jpg", MediaType: media.TypeImage})

	body, header := streamFor(t, env, "/api/jobs/stream", func() {
		env.queue.Add(jobs.Candidate{Path: "/b.jpg", MediaType: media.TypeImage})
	})

	if !strings.HasPrefix(body, "event: init\ndata: ") || !strings.Contains(body, `"type":"init"`) {
		t.Errorf("expected init event, got %q", body)
	}
	if !strings.Contains(body, "event: added\ndata: ") || !strings.Contains(body, "/b.jpg") {
		t.Errorf("expected added event for /b.jpg, got %q", body)
	}
	if ct := header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}
}

func TestJobStreamFiltersByJob(t *testing.T) {
	env := setupTestHandler(t)
	watched := env.queue.Add(jobs.Candidate{Path: "/a.jpg", MediaType: media.TypeImage})
	other := env.queue.Add(jobs.Candidate{Path: "/b.jpg", MediaType: media.TypeImage})

	body, _ := streamFor(t, env, "/api/jobs/stream?job="+watched.ID, func() {
		if err := env.queue.CancelJob(other.ID); err != nil {
			t.Errorf("cancel other: %v", err)
		}
		if err := env.queue.CancelJob(watched.ID); err != nil {
			t.Errorf("cancel watched: %v", err)
		}
	})

	if strings.Contains(body, "/b.jpg") {
		t.Errorf("stream leaked events for another job: %q", body)
	}
	if !strings.Contains(body, "event: cancelled\ndata: ") {
		t.Errorf("expected cancelled event for watched job, got %q", body)
	}

	if w := env.do(t, "GET", "/api/jobs/stream?job=missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown job, got %d", w.Code)
	}
}

// streamFor opens target, runs during once the handler is subscribed, then
// closes the stream and returns what was written.
func streamFor(t *testing.T, env *testEnv, target string, during func()) (string, http.Header) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", target, nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.handler.JobStream(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	during()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	return w.Body.String(), w.Header()
}
