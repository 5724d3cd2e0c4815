package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/introweave/matchpipe/internal/config"
	"github.com/introweave/matchpipe/internal/domain"
	"github.com/introweave/matchpipe/internal/usecase"
)

// Server wires the usecases and readiness checks into HTTP handlers.
type Server struct {
	Cfg        config.Config
	Submit     usecase.SubmitService
	Jobs       usecase.JobQueryService
	WS         http.Handler
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs a Server.
func NewServer(cfg config.Config, submit usecase.SubmitService, jobs usecase.JobQueryService, ws http.Handler, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Submit: submit, Jobs: jobs, WS: ws, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// ownerID resolves the acting user from the X-User-Id header.
func ownerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

type submitRequest struct {
	DeckText  string      `json:"deck_text" validate:"omitempty,max=1048576"`
	StartupID string      `json:"startup_id" validate:"omitempty,max=100"`
	Docs      []submitDoc `json:"docs" validate:"omitempty,max=10,dive"`
}

type submitDoc struct {
	Type string `json:"type" validate:"required,max=50"`
	Name string `json:"name" validate:"required,max=200"`
	Text string `json:"text" validate:"required"`
}

// SubmitHandler accepts a deck and starts a matching run asynchronously.
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerID(r)
		if owner == "" {
			writeError(w, r, fmt.Errorf("%w: X-User-Id header required", domain.ErrInvalidArgument), nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.MaxDeckBytes*2)
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}

		docs := make([]domain.SupplementaryDoc, 0, len(req.Docs))
		for _, d := range req.Docs {
			docs = append(docs, domain.SupplementaryDoc{Type: d.Type, Name: d.Name, Text: d.Text})
		}
		job, err := s.Submit.Submit(r.Context(), usecase.SubmitInput{
			OwnerID:   owner,
			DeckText:  req.DeckText,
			StartupID: req.StartupID,
			Docs:      docs,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("match job accepted", "job_id", job.ID)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"id":     job.ID,
			"status": job.Status,
		})
	}
}

type jobResponse struct {
	ID          string                   `json:"id"`
	Status      domain.JobStatus         `json:"status"`
	Progress    int                      `json:"progress"`
	Step        string                   `json:"step,omitempty"`
	StartupID   string                   `json:"startup_id,omitempty"`
	Profile     *domain.ExtractedProfile `json:"profile,omitempty"`
	Results     []domain.MatchResult     `json:"results,omitempty"`
	Error       string                   `json:"error,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

func toJobResponse(j domain.MatchJob) jobResponse {
	return jobResponse{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Step:        j.Step,
		StartupID:   j.StartupID,
		Profile:     j.Profile,
		Results:     j.Results,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
}

// GetJobHandler returns the current state of one job.
func (s *Server) GetJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id required", domain.ErrInvalidArgument), nil)
			return
		}
		job, err := s.Jobs.Get(r.Context(), id, ownerID(r))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toJobResponse(job))
	}
}

// ListJobsHandler returns the caller's jobs, newest first.
func (s *Server) ListJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerID(r)
		jobs, err := s.Jobs.ListByOwner(r.Context(), owner)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]jobResponse, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, toJobResponse(j))
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
	}
}

// WSHandler upgrades a connection into the live event channel.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.WS == nil {
			writeError(w, r, fmt.Errorf("%w: websocket unavailable", domain.ErrInternal), nil)
			return
		}
		s.WS.ServeHTTP(w, r)
	}
}

// ReadyzHandler reports dependency health.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ok": ok, "checks": checks})
	}
}
