// Package usecase contains the application services between transport and
// domain.
package usecase

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/introweave/matchpipe/internal/domain"
)

// Launcher starts the matching pipeline for a freshly created job.
type Launcher interface {
	Launch(job domain.MatchJob, docs []domain.SupplementaryDoc)
}

// SubmitService accepts new match jobs. Validation failures reject the
// request synchronously; everything after job creation is asynchronous.
type SubmitService struct {
	jobs     domain.MatchJobRepository
	launcher Launcher
}

// NewSubmitService constructs a SubmitService.
func NewSubmitService(jobs domain.MatchJobRepository, launcher Launcher) SubmitService {
	return SubmitService{jobs: jobs, launcher: launcher}
}

// SubmitInput is a request to start a matching run. At least one of
// DeckText or StartupID must be present.
type SubmitInput struct {
	OwnerID   string
	DeckText  string
	StartupID string
	Docs      []domain.SupplementaryDoc
}

// Submit creates a pending job and launches the pipeline. Returns the
// persisted job so the caller can hand back the id immediately.
func (s SubmitService) Submit(ctx domain.Context, in SubmitInput) (domain.MatchJob, error) {
	tracer := otel.Tracer("usecase.submit")
	ctx, span := tracer.Start(ctx, "submit.Submit")
	defer span.End()

	if in.OwnerID == "" {
		return domain.MatchJob{}, fmt.Errorf("%w: owner id required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.DeckText) == "" && in.StartupID == "" {
		return domain.MatchJob{}, fmt.Errorf("%w: deck_text or startup_id required", domain.ErrInvalidArgument)
	}

	job := domain.MatchJob{
		OwnerID:   in.OwnerID,
		StartupID: in.StartupID,
		SourceDoc: in.DeckText,
		Status:    domain.JobPending,
	}
	id, err := s.jobs.Create(ctx, job)
	if err != nil {
		return domain.MatchJob{}, fmt.Errorf("op=submit.create: %w", err)
	}
	job.ID = id
	span.SetAttributes(attribute.String("job.id", id))

	s.launcher.Launch(job, in.Docs)
	return job, nil
}
