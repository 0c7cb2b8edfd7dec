package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/truthscan/feedd/internal/ingest"
	"github.com/truthscan/feedd/internal/metrics"
	storememory "github.com/truthscan/feedd/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type testEnv struct {
	registry *storememory.SourceStore
	jobs     *storememory.JobStore
	items    *storememory.ItemStore
	dispatch *fakeDispatch
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		registry: storememory.NewSourceStore(),
		jobs:     storememory.NewJobStore(),
		items:    storememory.NewItemStore(),
		dispatch: &fakeDispatch{},
	}
	srv := NewServer(env.registry, env.jobs, env.items, env.dispatch, fixedClock{}, zap.NewNop())
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetSource(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.registry.UpsertSource(ingest.Source{ID: "s1", URL: "https://example.com/feed", IsActive: true, ConsecutiveFailures: 2})

	resp, err := http.Get(env.server.URL + "/v1/sources/s1/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var src ingest.Source
	decodeBody(t, resp, &src)
	require.Equal(t, "s1", src.ID)
	require.Equal(t, 2, src.ConsecutiveFailures)
}

func TestGetSourceNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/v1/sources/ghost/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerFetch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.registry.UpsertSource(ingest.Source{ID: "s1", URL: "https://example.com/feed", IsActive: true})

	resp, err := http.Post(env.server.URL+"/v1/sources/s1/fetch", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, "queued", body["status"])
	require.Equal(t, []string{"s1"}, env.dispatch.sourceIDs())
}

func TestTriggerFetchInactiveSource(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.registry.UpsertSource(ingest.Source{ID: "s1", URL: "https://example.com/feed", IsActive: false})

	resp, err := http.Post(env.server.URL+"/v1/sources/s1/fetch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Empty(t, env.dispatch.sourceIDs())
}

func TestTriggerFetchUnknownSource(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Post(env.server.URL+"/v1/sources/ghost/fetch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.NoError(t, env.items.CreateItem(context.Background(), ingest.Item{
		ID:           "i1",
		SourceID:     "s1",
		CanonicalURL: "https://example.com/stories/1",
		ContentHash:  "h1",
	}))

	resp, err := http.Get(env.server.URL + "/v1/items/i1/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var item ingest.Item
	decodeBody(t, resp, &item)
	require.Equal(t, "i1", item.ID)
	require.Equal(t, "h1", item.ContentHash)
}

func TestGetVerification(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.NoError(t, env.jobs.CreateJob(context.Background(), ingest.VerificationJob{
		ItemID:  "i1",
		State:   ingest.JobStateCompleted,
		Verdict: "credible",
		Score:   0.9,
	}))

	resp, err := http.Get(env.server.URL + "/v1/items/i1/verification")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job ingest.VerificationJob
	decodeBody(t, resp, &job)
	require.Equal(t, ingest.JobStateCompleted, job.State)
	require.Equal(t, "credible", job.Verdict)
}

func TestGetVerificationNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/v1/items/ghost/verification")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

type fakeDispatch struct {
	mu    sync.Mutex
	tasks []ingest.Task
}

func (d *fakeDispatch) Enqueue(_ context.Context, task ingest.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *fakeDispatch) sourceIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.tasks))
	for _, task := range d.tasks {
		ids = append(ids, task.SourceID)
	}
	return ids
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Unix(1700000000, 0).UTC()
}
