package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introweave/matchpipe/internal/adapter/httpserver"
	"github.com/introweave/matchpipe/internal/config"
	"github.com/introweave/matchpipe/internal/domain"
	"github.com/introweave/matchpipe/internal/usecase"
)

type fakeJobRepo struct {
	jobs      map[string]domain.MatchJob
	created   []domain.MatchJob
	createErr error
}

func (f *fakeJobRepo) Create(_ domain.Context, j domain.MatchJob) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	if j.ID == "" {
		j.ID = "job-1"
	}
	f.created = append(f.created, j)
	return j.ID, nil
}

func (f *fakeJobRepo) Get(_ domain.Context, id string) (domain.MatchJob, error) {
	j, ok := f.jobs[id]
	if !ok {
		return domain.MatchJob{}, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobRepo) ListByOwner(_ domain.Context, ownerID string) ([]domain.MatchJob, error) {
	var out []domain.MatchJob
	for _, j := range f.jobs {
		if j.OwnerID == ownerID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) Advance(_ domain.Context, _ string, _ domain.JobStatus, _ int, _ string) error {
	return nil
}
func (f *fakeJobRepo) AttachProfile(_ domain.Context, _ string, _ domain.ExtractedProfile) error {
	return nil
}
func (f *fakeJobRepo) Complete(_ domain.Context, _ string, _ []domain.MatchResult) error { return nil }
func (f *fakeJobRepo) Fail(_ domain.Context, _ string, _ string) error                   { return nil }
func (f *fakeJobRepo) ListStale(_ domain.Context, _ time.Time, _ int) ([]domain.MatchJob, error) {
	return nil, nil
}

type noopLauncher struct{ launched int }

func (l *noopLauncher) Launch(_ domain.MatchJob, _ []domain.SupplementaryDoc) { l.launched++ }

func newTestServer(repo *fakeJobRepo) (*httpserver.Server, *noopLauncher) {
	launcher := &noopLauncher{}
	cfg := config.Config{MaxDeckBytes: 1 << 20}
	srv := httpserver.NewServer(cfg,
		usecase.NewSubmitService(repo, launcher),
		usecase.NewJobQueryService(repo),
		nil, nil, nil)
	return srv, launcher
}

func TestSubmitHandler_Accepted(t *testing.T) {
	repo := &fakeJobRepo{}
	srv, launcher := newTestServer(repo)

	body := `{"deck_text":"We are a fintech startup raising a Seed round"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/match-jobs", strings.NewReader(body))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["id"])
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, 1, launcher.launched)
}

func TestSubmitHandler_MissingUser(t *testing.T) {
	srv, _ := newTestServer(&fakeJobRepo{})

	req := httptest.NewRequest(http.MethodPost, "/v1/match-jobs", strings.NewReader(`{"deck_text":"x"}`))
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
}

func TestSubmitHandler_NeitherDeckNorStartupRejected(t *testing.T) {
	srv, launcher := newTestServer(&fakeJobRepo{})

	req := httptest.NewRequest(http.MethodPost, "/v1/match-jobs", strings.NewReader(`{}`))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, launcher.launched)
}

func TestSubmitHandler_BadJSON(t *testing.T) {
	srv, _ := newTestServer(&fakeJobRepo{})

	req := httptest.NewRequest(http.MethodPost, "/v1/match-jobs", strings.NewReader(`{not json`))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitHandler_DocValidation(t *testing.T) {
	srv, _ := newTestServer(&fakeJobRepo{})

	body := `{"deck_text":"deck","docs":[{"type":"","name":"n","text":"t"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/match-jobs", strings.NewReader(body))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	srv.SubmitHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")
}

func getWithURLParam(t *testing.T, h http.HandlerFunc, id, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/match-jobs/"+id, nil)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestGetJobHandler_ReturnsJob(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeJobRepo{jobs: map[string]domain.MatchJob{
		"job-1": {
			ID: "job-1", OwnerID: "user-1", Status: domain.JobComplete, Progress: 100,
			Results:   []domain.MatchResult{{Name: "Jane", Score: 80}},
			CreatedAt: now, UpdatedAt: now,
		},
	}}
	srv, _ := newTestServer(repo)

	rec := getWithURLParam(t, srv.GetJobHandler(), "job-1", "user-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status   string               `json:"status"`
		Progress int                  `json:"progress"`
		Results  []domain.MatchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "complete", resp.Status)
	assert.Equal(t, 100, resp.Progress)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Jane", resp.Results[0].Name)
}

func TestGetJobHandler_OtherOwnerIs404(t *testing.T) {
	repo := &fakeJobRepo{jobs: map[string]domain.MatchJob{
		"job-1": {ID: "job-1", OwnerID: "user-1"},
	}}
	srv, _ := newTestServer(repo)

	rec := getWithURLParam(t, srv.GetJobHandler(), "job-1", "user-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsHandler(t *testing.T) {
	repo := &fakeJobRepo{jobs: map[string]domain.MatchJob{
		"job-1": {ID: "job-1", OwnerID: "user-1", Status: domain.JobPending},
		"job-2": {ID: "job-2", OwnerID: "user-2", Status: domain.JobPending},
	}}
	srv, _ := newTestServer(repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/match-jobs", nil)
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	srv.ListJobsHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs []struct {
			ID string `json:"id"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "job-1", resp.Jobs[0].ID)
}

func TestListJobsHandler_MissingOwner(t *testing.T) {
	srv, _ := newTestServer(&fakeJobRepo{})

	req := httptest.NewRequest(http.MethodGet, "/v1/match-jobs", nil)
	rec := httptest.NewRecorder()
	srv.ListJobsHandler()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadyzHandler(t *testing.T) {
	srv, _ := newTestServer(&fakeJobRepo{})
	srv.DBCheck = func(context.Context) error { return nil }
	srv.RedisCheck = func(context.Context) error { return assert.AnError }

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db"`)
	assert.Contains(t, rec.Body.String(), `"redis"`)
}

func TestReadyzHandler_AllOK(t *testing.T) {
	srv, _ := newTestServer(&fakeJobRepo{})
	srv.DBCheck = func(context.Context) error { return nil }

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
