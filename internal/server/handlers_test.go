package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/pipeline"
)

type fakeServerStore struct {
	jobs       []db.JobRecord
	job        *db.JobRecord
	detections []db.Detection
	counts     db.JobCounts
	skills     []db.SkillCount
	snapshot   *db.StatsSnapshot
	markers    []db.RunMarker

	listErr error

	gotFilters db.JobFilters
}

func (f *fakeServerStore) ListJobs(_ context.Context, filters db.JobFilters) ([]db.JobRecord, error) {
	f.gotFilters = filters
	return f.jobs, f.listErr
}

func (f *fakeServerStore) GetJobBySourceID(context.Context, string, string) (*db.JobRecord, error) {
	return f.job, nil
}

func (f *fakeServerStore) ListDetectionsByJob(context.Context, string) ([]db.Detection, error) {
	return f.detections, nil
}

func (f *fakeServerStore) CountJobs(context.Context, string) (*db.JobCounts, error) {
	return &f.counts, nil
}

func (f *fakeServerStore) SkillCounts(context.Context, string, int) ([]db.SkillCount, error) {
	return f.skills, nil
}

func (f *fakeServerStore) LatestStatsSnapshot(context.Context, string) (*db.StatsSnapshot, error) {
	return f.snapshot, nil
}

func (f *fakeServerStore) ListRunMarkers(context.Context, string) ([]db.RunMarker, error) {
	return f.markers, nil
}

type fakeRunner struct {
	report  *pipeline.Report
	err     error
	gotOpts pipeline.Options
}

func (f *fakeRunner) Run(_ context.Context, opts pipeline.Options) (*pipeline.Report, error) {
	f.gotOpts = opts
	return f.report, f.err
}

func testServer(t *testing.T, store Store, runner PipelineRunner) *Server {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-key")

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	t.Setenv("ADMIN_PASSWORD_HASH", string(hash))
	t.Setenv("BCRYPT_COST", "10")

	s, err := New(Config{Source: "francetravail", Runner: runner}, store, nil)
	require.NoError(t, err)
	return s
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	body := bytes.NewBufferString(`{"username": "admin", "password": "correct horse"}`)
	rec := do(s, httptest.NewRequest(http.MethodPost, "/auth/login", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, &fakeServerStore{}, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleListJobs(t *testing.T) {
	store := &fakeServerStore{jobs: []db.JobRecord{
		{SourceID: "a1", Title: "Développeur Go", Active: true},
	}}
	s := testServer(t, store, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/jobs?tag=Go&active=true&limit=10", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Développeur Go")
	assert.Equal(t, "francetravail", store.gotFilters.Source)
	assert.Equal(t, "Go", store.gotFilters.Tag)
	assert.True(t, store.gotFilters.ActiveOnly)
	assert.Equal(t, 10, store.gotFilters.Limit)
}

func TestHandleListJobs_InvalidLimit(t *testing.T) {
	s := testServer(t, &fakeServerStore{}, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/jobs?limit=abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListJobs_StoreError(t *testing.T) {
	s := testServer(t, &fakeServerStore{listErr: errors.New("store down")}, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleGetJob(t *testing.T) {
	store := &fakeServerStore{job: &db.JobRecord{SourceID: "a1", Title: "Data Engineer"}}
	s := testServer(t, store, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/jobs/a1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Data Engineer")
}

func TestHandleGetJob_NotFound(t *testing.T) {
	s := testServer(t, &fakeServerStore{}, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListJobDetections(t *testing.T) {
	store := &fakeServerStore{detections: []db.Detection{
		{JobID: "a1", Skill: "Python", Method: db.MethodPatternMatch},
	}}
	s := testServer(t, store, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/jobs/a1/detections", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Python")
}

func TestHandleStatsSkills(t *testing.T) {
	store := &fakeServerStore{skills: []db.SkillCount{{Skill: "Python", Count: 42}}}
	s := testServer(t, store, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/stats/skills", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), "Python")
}

func TestHandleStatsLatest(t *testing.T) {
	store := &fakeServerStore{snapshot: &db.StatsSnapshot{
		Source:      "francetravail",
		Period:      "2026-08",
		Payload:     []byte(`{"period": "2026-08", "top_skills": []}`),
		GeneratedAt: time.Now(),
	}}
	s := testServer(t, store, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/stats/latest", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"period": "2026-08", "top_skills": []}`, rec.Body.String())
}

func TestHandleStatsLatest_NoSnapshot(t *testing.T) {
	s := testServer(t, &fakeServerStore{}, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/stats/latest", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListMarkers(t *testing.T) {
	store := &fakeServerStore{markers: []db.RunMarker{
		{Stage: db.StageCollect, Source: "francetravail", LastRunAt: time.Now()},
	}}
	s := testServer(t, store, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/pipeline/markers", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), db.StageCollect)
}

func TestHandleRunPipeline_RequiresAuth(t *testing.T) {
	s := testServer(t, &fakeServerStore{}, &fakeRunner{})

	rec := do(s, httptest.NewRequest(http.MethodPost, "/pipeline/run", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRunPipeline(t *testing.T) {
	runner := &fakeRunner{report: &pipeline.Report{
		Source: "francetravail",
		Stages: []*pipeline.StageReport{{Stage: db.StageCollect, Status: pipeline.StatusRan}},
	}}
	s := testServer(t, &fakeServerStore{}, runner)
	token := login(t, s)

	body := bytes.NewBufferString(`{"force_collect": true, "max_records": 100}`)
	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := do(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ran"`)
	assert.True(t, runner.gotOpts.ForceCollect)
	assert.Equal(t, 100, runner.gotOpts.MaxRecords)
}

func TestHandleRunPipeline_FailedStageIsMultiStatus(t *testing.T) {
	runner := &fakeRunner{report: &pipeline.Report{
		Stages: []*pipeline.StageReport{{Stage: db.StageCollect, Status: pipeline.StatusFailed, Err: errors.New("upstream down")}},
	}}
	s := testServer(t, &fakeServerStore{}, runner)
	token := login(t, s)

	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := do(s, req)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream down")
}

func TestHandleRunPipeline_NoRunner(t *testing.T) {
	s := testServer(t, &fakeServerStore{}, nil)
	token := login(t, s)

	req := httptest.NewRequest(http.MethodPost, "/pipeline/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := do(s, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	s := testServer(t, &fakeServerStore{}, nil)

	body := bytes.NewBufferString(`{"username": "admin", "password": "wrong"}`)
	rec := do(s, httptest.NewRequest(http.MethodPost, "/auth/login", body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLogin_MissingFields(t *testing.T) {
	s := testServer(t, &fakeServerStore{}, nil)

	body := bytes.NewBufferString(`{"username": "admin"}`)
	rec := do(s, httptest.NewRequest(http.MethodPost, "/auth/login", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
