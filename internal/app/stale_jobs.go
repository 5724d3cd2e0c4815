package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/introweave/matchpipe/internal/domain"
)

// StaleJobSweeper fails jobs whose pipeline died without reaching a
// terminal state, e.g. after a process crash mid-run.
type StaleJobSweeper struct {
	jobs     domain.MatchJobRepository
	notifier domain.Notifier
	maxAge   time.Duration
	interval time.Duration
}

// NewStaleJobSweeper constructs a sweeper; zero durations fall back to defaults.
func NewStaleJobSweeper(jobs domain.MatchJobRepository, notifier domain.Notifier, maxAge, interval time.Duration) *StaleJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StaleJobSweeper{jobs: jobs, notifier: notifier, maxAge: maxAge, interval: interval}
}

// Run sweeps on the configured interval until ctx is done.
func (s *StaleJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stale job sweeper stopping")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce fails every job stuck past the maximum age.
func (s *StaleJobSweeper) SweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StaleJobSweeper.SweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxAge)
	const pageSize = 100
	span.SetAttributes(attribute.Float64("jobs.max_age_seconds", s.maxAge.Seconds()))

	jobs, err := s.jobs.ListStale(ctx, cutoff, pageSize)
	if err != nil {
		span.RecordError(err)
		slog.Error("stale job sweep failed to list jobs", slog.Any("error", err))
		return
	}
	marked := 0
	msg := fmt.Sprintf("matching exceeded maximum age %v; marked failed by sweeper", s.maxAge)
	for _, j := range jobs {
		if err := s.jobs.Fail(ctx, j.ID, msg); err != nil {
			slog.Error("stale job sweep failed to fail job", slog.String("job_id", j.ID), slog.Any("error", err))
			continue
		}
		marked++
		if s.notifier != nil {
			s.notifier.Publish(ctx, domain.JobEvent{
				Type:    domain.EventDealUpdate,
				UserID:  j.OwnerID,
				JobID:   j.ID,
				Status:  string(domain.JobFailed),
				Message: msg,
			})
		}
	}
	span.SetAttributes(
		attribute.Int("jobs.total_checked", len(jobs)),
		attribute.Int("jobs.total_marked_failed", marked),
	)
	if marked > 0 {
		slog.Warn("stale jobs failed by sweeper", slog.Int("count", marked))
	}
}
