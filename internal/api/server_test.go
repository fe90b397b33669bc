package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/pipeline"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

type fakeRunner struct {
	mu      sync.Mutex
	scopes  []pipeline.Scope
	release chan struct{}
	last    *pipeline.Report
	store   *storage.MemoryStore
}

func (f *fakeRunner) Run(ctx context.Context, scope pipeline.Scope) (*pipeline.Report, error) {
	f.mu.Lock()
	f.scopes = append(f.scopes, scope)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	report := &pipeline.Report{RunID: "run-1"}
	f.mu.Lock()
	f.last = report
	f.mu.Unlock()
	return report, nil
}

func (f *fakeRunner) LastReport() *pipeline.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeRunner) Requeue(ctx context.Context, itemID string) (*model.ProcessingRecord, error) {
	rec, err := f.store.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if rec.Status == model.StatusComplete {
		return rec, pipeline.ErrNothingToRequeue
	}
	rec.AttemptCount = 0
	return rec, f.store.Put(ctx, rec)
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scopes)
}

func seed(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	recs := []*model.ProcessingRecord{
		{ItemID: "c1/material/a1", CourseID: "c1", Status: model.StatusComplete, RequiredKinds: []model.ArtifactKind{model.ArtifactSummary},
			ArtifactRefs: map[model.ArtifactKind]string{model.ArtifactSummary: "ref"}, PostedAt: time.Unix(10, 0)},
		{ItemID: "c1/material/a2", CourseID: "c1", Status: model.StatusFailed, AttemptCount: 3, RequiredKinds: []model.ArtifactKind{model.ArtifactSummary},
			ArtifactRefs: map[model.ArtifactKind]string{}, PostedAt: time.Unix(20, 0)},
		{ItemID: "c2/material/b1", CourseID: "c2", Status: model.StatusPartial, ArtifactRefs: map[model.ArtifactKind]string{}, PostedAt: time.Unix(30, 0)},
	}
	for _, rec := range recs {
		require.NoError(t, store.Put(ctx, rec))
	}
	return store
}

func newTestServer(t *testing.T) (*Server, *fakeRunner) {
	store := seed(t)
	runner := &fakeRunner{store: store}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("classbuddy_runs_total 1\n"))
	})
	return New(":0", store, runner, pipeline.Scope{CourseIDs: []string{"c1"}}, WithMetrics(metrics)), runner
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListRecordsFilters(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/records?course=c1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []model.ProcessingRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	rec = do(t, h, http.MethodGet, "/records?status=failed,partial")
	require.Equal(t, http.StatusOK, rec.Code)
	got = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	rec = do(t, h, http.MethodGet, "/records?status=done")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/records?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/records?course=nope")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetRecord(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/records/c1/material/a2")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "c1/material/a2", got["itemId"])
	assert.Equal(t, []any{"summary"}, got["missing"])

	rec = do(t, h, http.MethodGet, "/records/zzz")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequeue(t *testing.T) {
	srv, runner := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/requeue/c1/material/a2")
	require.Equal(t, http.StatusAccepted, rec.Code)
	stored, err := runner.store.Get(context.Background(), "c1/material/a2")
	require.NoError(t, err)
	assert.Zero(t, stored.AttemptCount)

	rec = do(t, h, http.MethodPost, "/requeue/c1/material/a1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, h, http.MethodPost, "/requeue/zzz")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRunIsSingleFlight(t *testing.T) {
	srv, runner := newTestServer(t)
	runner.release = make(chan struct{})
	h := srv.Handler()

	first := make(chan *httptest.ResponseRecorder)
	go func() { first <- do(t, h, http.MethodPost, "/runs") }()
	require.Eventually(t, func() bool { return runner.runCount() == 1 }, time.Second, 5*time.Millisecond)

	rec := do(t, h, http.MethodPost, "/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(runner.release)
	rec = <-first
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"runId":"run-1"`)
	assert.Equal(t, 1, runner.runCount())
	assert.Equal(t, []string{"c1"}, runner.scopes[0].CourseIDs)

	rec = do(t, h, http.MethodGet, "/runs/last")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"runId":"run-1"`)
}

func TestLastRunMissing(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/runs/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsAndCORS(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "classbuddy_runs_total")

	rec = do(t, h, http.MethodOptions, "/records")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
