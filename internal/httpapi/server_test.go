package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectline/prospector/internal/adapter"
	"github.com/prospectline/prospector/internal/model"
	"github.com/prospectline/prospector/internal/scraping"
	"github.com/prospectline/prospector/internal/store"
)

// fakeRunner relabels through the store and scripts Launch outcomes.
type fakeRunner struct {
	store     store.Store
	launchErr error
	launched  []string
}

func (f *fakeRunner) Launch(_ context.Context, jobID string) error {
	if f.launchErr != nil {
		return f.launchErr
	}
	f.launched = append(f.launched, jobID)
	return f.store.SetJobStatus(context.Background(), jobID, model.JobStatusInProgress)
}

func (f *fakeRunner) Pause(ctx context.Context, jobID string) error {
	return f.store.SetJobStatus(ctx, jobID, model.JobStatusPaused)
}

func (f *fakeRunner) Resume(ctx context.Context, jobID string) error {
	return f.store.SetJobStatus(ctx, jobID, model.JobStatusInProgress)
}

func newTestServer(t *testing.T) (*Server, store.Store, *fakeRunner) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	runner := &fakeRunner{store: s}
	return NewServer(s, runner, []string{"*"}), s, runner
}

func doJSON(t *testing.T, srv *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func seedJob(t *testing.T, s store.Store, owner string) *model.ScrapingJob {
	t.Helper()
	job := &model.ScrapingJob{
		Name:        "Bakeries",
		Owner:       owner,
		Source:      model.SourceGoogleMaps,
		SearchTerms: []string{"boulangerie"},
		Locations:   []string{"Paris"},
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestCreateJob(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/scraping", "user-1", map[string]any{
		"name":         "Bakeries",
		"source":       "google_maps",
		"search_terms": []string{"boulangerie"},
		"locations":    []string{"Paris"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	job := decode[model.ScrapingJob](t, rec)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "user-1", job.Owner)
	assert.Equal(t, model.JobStatusPending, job.Status)
}

func TestCreateJob_RequiresUser(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/scraping", "", map[string]any{
		"name": "Bakeries", "source": "google_maps", "locations": []string{"Paris"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateJob_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/scraping", "user-1", map[string]any{
		"source": "google_maps", "locations": []string{"Paris"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/scraping", "user-1", map[string]any{
		"name": "Bakeries", "source": "google_maps",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "location")
}

func TestListJobs_ScopedToOwner(t *testing.T) {
	srv, s, _ := newTestServer(t)
	seedJob(t, s, "alice")
	seedJob(t, s, "bob")

	rec := doJSON(t, srv, http.MethodGet, "/api/scraping", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[[]model.ScrapingJob](t, rec)
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice", jobs[0].Owner)
}

func TestGetJob(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, "user-1")

	rec := doJSON(t, srv, http.MethodGet, "/api/scraping/"+job.ID, "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, job.ID, decode[model.ScrapingJob](t, rec).ID)
}

func TestGetJob_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/scraping/nonexistent", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob_WrongOwner(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, "alice")

	rec := doJSON(t, srv, http.MethodGet, "/api/scraping/"+job.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateJob_WritableFieldsOnly(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, "user-1")

	rec := doJSON(t, srv, http.MethodPut, "/api/scraping/"+job.ID, "user-1", map[string]any{
		"name":      "Bakeries v2",
		"locations": []string{"Paris", "Lyon"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bakeries v2", got.Name)
	assert.Equal(t, []string{"Paris", "Lyon"}, got.Locations)
	// Engine-owned fields are untouched.
	assert.Equal(t, model.JobStatusPending, got.Status)
}

func TestDeleteJob(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, "user-1")

	rec := doJSON(t, srv, http.MethodDelete, "/api/scraping/"+job.ID, "user-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := s.GetJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestRunJob_Accepted(t *testing.T) {
	srv, s, runner := newTestServer(t)
	job := seedJob(t, s, "user-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/scraping/"+job.ID+"/run", "user-1", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{job.ID}, runner.launched)

	body := decode[map[string]string](t, rec)
	assert.Equal(t, "in_progress", body["status"])
}

func TestRunJob_Conflict(t *testing.T) {
	srv, s, runner := newTestServer(t)
	job := seedJob(t, s, "user-1")
	runner.launchErr = eris.Wrap(scraping.ErrAlreadyRunning, "engine: job")

	rec := doJSON(t, srv, http.MethodPost, "/api/scraping/"+job.ID+"/run", "user-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunJob_UnsupportedSource(t *testing.T) {
	srv, s, runner := newTestServer(t)
	job := seedJob(t, s, "user-1")
	runner.launchErr = eris.Wrap(adapter.ErrUnsupportedSource, "engine: job")

	rec := doJSON(t, srv, http.MethodPost, "/api/scraping/"+job.ID+"/run", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported source")
}

func TestPauseAndResumeJob(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, "user-1")
	require.NoError(t, s.SetJobStatus(context.Background(), job.ID, model.JobStatusInProgress))

	rec := doJSON(t, srv, http.MethodPost, "/api/scraping/"+job.ID+"/pause", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.JobStatusPaused, decode[model.ScrapingJob](t, rec).Status)

	rec = doJSON(t, srv, http.MethodPost, "/api/scraping/"+job.ID+"/resume", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.JobStatusInProgress, decode[model.ScrapingJob](t, rec).Status)
}

func TestJobLogsAndResults(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, "user-1")

	rec := doJSON(t, srv, http.MethodGet, "/api/scraping/"+job.ID+"/logs", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	job.AppendLog(model.LogLevelInfo, "Started scraping job: %s", job.Name)
	job.Results = []model.Record{{Name: "Boulangerie Martin"}}
	require.NoError(t, s.SaveJob(context.Background(), job))

	rec = doJSON(t, srv, http.MethodGet, "/api/scraping/"+job.ID+"/logs", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]model.JobLog](t, rec)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Message, "Started scraping job")

	rec = doJSON(t, srv, http.MethodGet, "/api/scraping/"+job.ID+"/results", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]json.RawMessage](t, rec)
	var results []model.Record
	require.NoError(t, json.Unmarshal(body["results"], &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Boulangerie Martin", results[0].Name)
}

func TestListBusinesses(t *testing.T) {
	srv, s, _ := newTestServer(t)
	require.NoError(t, s.InsertBusiness(context.Background(), &model.Business{
		Name:     "Boulangerie Martin",
		Address:  model.Address{City: "Paris"},
		Scraping: model.Provenance{Source: model.SourceGoogleMaps},
		Active:   true,
	}))

	rec := doJSON(t, srv, http.MethodGet, "/api/businesses?city=Paris", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	businesses := decode[[]model.Business](t, rec)
	require.Len(t, businesses, 1)
	assert.Equal(t, "Boulangerie Martin", businesses[0].Name)

	rec = doJSON(t, srv, http.MethodGet, "/api/businesses?city=Lyon", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestBusinessStats(t *testing.T) {
	srv, s, _ := newTestServer(t)
	require.NoError(t, s.InsertBusiness(context.Background(), &model.Business{
		Name:     "Boulangerie Martin",
		Scraping: model.Provenance{Source: model.SourceGoogleMaps},
		Active:   true,
	}))

	rec := doJSON(t, srv, http.MethodGet, "/api/businesses/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]int](t, rec)
	assert.Equal(t, 1, stats["google_maps"])
}
