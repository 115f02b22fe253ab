package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbtest "github.com/teranos/pegabatch/internal/testing"
	"github.com/teranos/pegabatch/pegabot"
	"github.com/teranos/pegabatch/pipeline"
	"github.com/teranos/pegabatch/pulse/cache"
	"github.com/teranos/pegabatch/pulse/checkpoint"
	"github.com/teranos/pegabatch/tracker"
)

type fixture struct {
	srv     *Server
	tracker *tracker.Tracker
	store   *checkpoint.Store
	cache   *cache.Cache
}

func newFixture(t *testing.T, lastPass func() (pipeline.Summary, time.Time)) *fixture {
	t.Helper()
	db := dbtest.CreateMigratedTestDB(t)
	f := &fixture{
		tracker: tracker.New(db),
		store:   checkpoint.NewStore(db),
		cache:   cache.New(db, 0),
	}
	f.srv = New(Options{
		Jobs:      f.tracker,
		Cooldowns: f.store,
		Cache:     f.cache,
		LastPass:  lastPass,
	})
	return f
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.get(t, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, func() (pipeline.Summary, time.Time) {
		return pipeline.Summary{Completed: 2, Suspended: 1}, at
	})

	require.NoError(t, f.tracker.Create(ctx, &tracker.Request{ID: "1", InputFile: "1_a.csv"}))
	require.NoError(t, f.tracker.Create(ctx, &tracker.Request{ID: "2", InputFile: "2_b.csv"}))
	require.NoError(t, f.tracker.SetStatus(ctx, "2", tracker.StatusAnalysing))
	require.NoError(t, f.cache.Set(ctx, "alice", &pegabot.Payload{}))

	until := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, f.store.SetCooldown(ctx, until))

	rec := f.get(t, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.CooldownActive)
	require.NotNil(t, body.CooldownUntil)
	assert.True(t, until.Equal(*body.CooldownUntil))
	assert.Equal(t, 1, body.Jobs["waiting"])
	assert.Equal(t, 1, body.Jobs["analysing"])
	assert.Equal(t, 0, body.Jobs["complete"])
	require.NotNil(t, body.CacheEntries)
	assert.Equal(t, 1, *body.CacheEntries)
	require.NotNil(t, body.LastPass)
	assert.Equal(t, 2, body.LastPass.Summary.Completed)
	assert.True(t, at.Equal(body.LastPass.At))
}

func TestStatusExpiredCooldownIsInactive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func() (pipeline.Summary, time.Time) { return pipeline.Summary{}, time.Time{} })
	require.NoError(t, f.store.SetCooldown(ctx, time.Now().Add(-time.Minute)))

	rec := f.get(t, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.CooldownActive)
	assert.Nil(t, body.CooldownUntil)
	assert.Nil(t, body.LastPass)
}

func TestJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.tracker.Create(ctx, &tracker.Request{ID: "42", Email: "ana@example.org", InputFile: "42_a.csv"}))
	require.NoError(t, f.tracker.SetProgress(ctx, "42", 60))

	t.Run("found", func(t *testing.T) {
		rec := f.get(t, "/jobs/42")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "ana@example.org")

		var body JobResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "42", body.ID)
		assert.Equal(t, "waiting", body.Status)
		assert.Equal(t, 60, body.Progress)
	})

	t.Run("missing", func(t *testing.T) {
		rec := f.get(t, "/jobs/7")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var body errorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
	})
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestStartAndShutdown(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.opts.Addr = "127.0.0.1:0"
	assert.Empty(t, f.srv.Addr())

	require.NoError(t, f.srv.Start())
	addr := f.srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.srv.Shutdown(context.Background()))
	require.NoError(t, f.srv.Shutdown(context.Background()))
}
