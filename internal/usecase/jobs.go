package usecase

import (
	"fmt"

	"github.com/introweave/matchpipe/internal/domain"
)

// JobQueryService reads job state for the HTTP API. Jobs are visible only
// to their owner.
type JobQueryService struct {
	jobs domain.MatchJobRepository
}

// NewJobQueryService constructs a JobQueryService.
func NewJobQueryService(jobs domain.MatchJobRepository) JobQueryService {
	return JobQueryService{jobs: jobs}
}

// Get returns the job if it belongs to ownerID. Other users' jobs are
// indistinguishable from missing ones.
func (s JobQueryService) Get(ctx domain.Context, id, ownerID string) (domain.MatchJob, error) {
	j, err := s.jobs.Get(ctx, id)
	if err != nil {
		return domain.MatchJob{}, err
	}
	if ownerID != "" && j.OwnerID != ownerID {
		return domain.MatchJob{}, fmt.Errorf("op=jobs.get: %w", domain.ErrNotFound)
	}
	return j, nil
}

// ListByOwner returns the owner's jobs, newest first.
func (s JobQueryService) ListByOwner(ctx domain.Context, ownerID string) ([]domain.MatchJob, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id required", domain.ErrInvalidArgument)
	}
	return s.jobs.ListByOwner(ctx, ownerID)
}
