package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introweave/matchpipe/internal/adapter/httpserver"
	"github.com/introweave/matchpipe/internal/app"
	"github.com/introweave/matchpipe/internal/config"
	"github.com/introweave/matchpipe/internal/domain"
	"github.com/introweave/matchpipe/internal/usecase"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"*"}, app.ParseOrigins(""))
	assert.Equal(t, []string{"*"}, app.ParseOrigins("*"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		app.ParseOrigins(" https://a.example , https://b.example "))
	assert.Equal(t, []string{"*"}, app.ParseOrigins(" , "))
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.MatchJob
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{jobs: map[string]domain.MatchJob{}} }

func (m *memJobRepo) Create(_ domain.Context, j domain.MatchJob) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = "job-1"
	}
	m.jobs[j.ID] = j
	return j.ID, nil
}

func (m *memJobRepo) Get(_ domain.Context, id string) (domain.MatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.MatchJob{}, domain.ErrNotFound
	}
	return j, nil
}

func (m *memJobRepo) ListByOwner(_ domain.Context, ownerID string) ([]domain.MatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MatchJob
	for _, j := range m.jobs {
		if j.OwnerID == ownerID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memJobRepo) Advance(_ domain.Context, id string, status domain.JobStatus, progress int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status, j.Progress, j.Step = status, progress, step
	m.jobs[id] = j
	return nil
}

func (m *memJobRepo) AttachProfile(_ domain.Context, id string, p domain.ExtractedProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Profile = &p
	m.jobs[id] = j
	return nil
}

func (m *memJobRepo) Complete(_ domain.Context, id string, results []domain.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status, j.Progress, j.Results = domain.JobComplete, 100, results
	m.jobs[id] = j
	return nil
}

func (m *memJobRepo) Fail(_ domain.Context, id string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status, j.Error = domain.JobFailed, msg
	m.jobs[id] = j
	return nil
}

func (m *memJobRepo) ListStale(_ domain.Context, cutoff time.Time, limit int) ([]domain.MatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MatchJob
	for _, j := range m.jobs {
		if !j.Status.Terminal() && j.UpdatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, j)
		}
	}
	return out, nil
}

type noopLauncher struct{}

func (noopLauncher) Launch(_ domain.MatchJob, _ []domain.SupplementaryDoc) {}

type captureNotifier struct {
	mu  sync.Mutex
	evs []domain.JobEvent
}

func (n *captureNotifier) Publish(_ domain.Context, ev domain.JobEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evs = append(n.evs, ev)
}

func buildTestRouter(repo *memJobRepo) http.Handler {
	cfg := config.Config{
		AppEnv:           "test",
		CORSAllowOrigins: "*",
		RateLimitPerMin:  100,
		MaxDeckBytes:     1 << 20,
	}
	srv := httpserver.NewServer(cfg,
		usecase.NewSubmitService(repo, noopLauncher{}),
		usecase.NewJobQueryService(repo),
		nil,
		func(context.Context) error { return nil },
		nil)
	return app.BuildRouter(cfg, srv)
}

func TestRouter_Healthz(t *testing.T) {
	router := buildTestRouter(newMemJobRepo())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	// Security headers applied at the outermost layer.
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_SubmitRoute(t *testing.T) {
	repo := newMemJobRepo()
	router := buildTestRouter(repo)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/match-jobs",
		strings.NewReader(`{"deck_text":"We are a construction-tech company raising a Series A in Austin, Texas"}`))
	req.Header.Set("X-User-Id", "user-1")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/match-jobs/job-1", nil)
	req.Header.Set("X-User-Id", "user-1")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MetricsExposed(t *testing.T) {
	router := buildTestRouter(newMemJobRepo())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildReadinessChecks(t *testing.T) {
	dbCheck, redisCheck := app.BuildReadinessChecks(nil, nil)
	require.NotNil(t, dbCheck)
	assert.Nil(t, redisCheck)
	assert.Error(t, dbCheck(context.Background()))
}

func TestStaleJobSweeper_FailsOldJobs(t *testing.T) {
	repo := newMemJobRepo()
	old := time.Now().Add(-time.Hour)
	repo.jobs["job-old"] = domain.MatchJob{
		ID: "job-old", OwnerID: "user-1", Status: domain.JobMatchingFirms, UpdatedAt: old,
	}
	repo.jobs["job-done"] = domain.MatchJob{
		ID: "job-done", OwnerID: "user-1", Status: domain.JobComplete, UpdatedAt: old,
	}
	notifier := &captureNotifier{}
	sweeper := app.NewStaleJobSweeper(repo, notifier, 5*time.Minute, time.Minute)

	sweeper.SweepOnce(context.Background())

	j, err := repo.Get(context.Background(), "job-old")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, j.Status)
	assert.NotEmpty(t, j.Error)

	done, err := repo.Get(context.Background(), "job-done")
	require.NoError(t, err)
	assert.Equal(t, domain.JobComplete, done.Status)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.evs, 1)
	assert.Equal(t, "job-old", notifier.evs[0].JobID)
	assert.Equal(t, string(domain.JobFailed), notifier.evs[0].Status)
}

func TestNewStaleJobSweeper_NilRepo(t *testing.T) {
	assert.Nil(t, app.NewStaleJobSweeper(nil, nil, time.Minute, time.Minute))
}
