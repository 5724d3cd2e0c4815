// Package pipeline runs the accelerated matching pipeline: deck extraction,
// firm matching, then investor matching, with checkpointed progress and
// live event fan-out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/introweave/matchpipe/internal/adapter/observability"
	"github.com/introweave/matchpipe/internal/domain"
)

// Extractor produces a structured profile from deck text. Implementations
// degrade to an empty profile instead of failing the pipeline.
type Extractor interface {
	ExtractDeck(ctx domain.Context, deckText string, docs []domain.SupplementaryDoc) domain.ExtractedProfile
}

// Matcher runs the two matching phases.
type Matcher interface {
	MatchFirms(ctx domain.Context, p domain.ExtractedProfile) ([]domain.MatchResult, error)
	MatchInvestors(ctx domain.Context, p domain.ExtractedProfile, matchedFirms []domain.MatchResult) ([]domain.MatchResult, error)
}

// Orchestrator owns the job state machine. It is the only writer of job
// transitions; each checkpoint persists first and notifies second, so the
// stored row is always at least as advanced as the latest event.
type Orchestrator struct {
	jobs      domain.MatchJobRepository
	startups  domain.StartupRepository
	extractor Extractor
	matcher   Matcher
	notifier  domain.Notifier
	timeout   time.Duration
}

// New constructs an orchestrator. timeout bounds a full pipeline run.
func New(jobs domain.MatchJobRepository, startups domain.StartupRepository, extractor Extractor, matcher Matcher, notifier domain.Notifier, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Orchestrator{jobs: jobs, startups: startups, extractor: extractor, matcher: matcher, notifier: notifier, timeout: timeout}
}

// Launch starts the pipeline for the job in the background and returns
// immediately. Submission never blocks on matching.
func (o *Orchestrator) Launch(job domain.MatchJob, docs []domain.SupplementaryDoc) {
	go o.Run(context.Background(), job, docs)
}

// Run executes the pipeline synchronously. Any panic from a collaborator is
// contained here and recorded as a failed job.
func (o *Orchestrator) Run(ctx context.Context, job domain.MatchJob, docs []domain.SupplementaryDoc) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	tracer := otel.Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	span.SetAttributes(attribute.String("job.id", job.ID))
	defer span.End()

	observability.StartJob()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic", slog.String("job_id", job.ID), slog.Any("panic", r))
			o.fail(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := o.run(ctx, job, docs); err != nil {
		slog.Error("pipeline failed", slog.String("job_id", job.ID), slog.Any("error", err))
		o.fail(ctx, job, err.Error())
	}
}

func (o *Orchestrator) run(ctx context.Context, job domain.MatchJob, docs []domain.SupplementaryDoc) error {
	// Phase: deck analysis.
	if err := o.checkpoint(ctx, job, domain.JobAnalyzingDeck, 10, "Analyzing pitch deck"); err != nil {
		return err
	}

	phaseStart := time.Now()
	profile := o.extractor.ExtractDeck(ctx, job.SourceDoc, docs)
	if profile.IsEmpty() {
		slog.Warn("deck extraction produced no signal", slog.String("job_id", job.ID))
	}
	if job.StartupID != "" {
		stored, err := o.startups.GetProfile(ctx, job.StartupID)
		if err != nil {
			slog.Warn("stored profile unavailable; matching on extraction only",
				slog.String("job_id", job.ID), slog.Any("error", err))
		} else {
			profile = profile.Merge(stored)
		}
	}
	if err := o.jobs.AttachProfile(ctx, job.ID, profile); err != nil {
		return err
	}
	observability.ObservePhase("analyzing_deck", time.Since(phaseStart))
	if err := o.checkpoint(ctx, job, domain.JobAnalyzingDeck, 25, "Deck analysis complete"); err != nil {
		return err
	}

	// Phase: firm matching.
	if err := o.checkpoint(ctx, job, domain.JobMatchingFirms, 35, "Matching investment firms"); err != nil {
		return err
	}
	phaseStart = time.Now()
	firms, err := o.matcher.MatchFirms(ctx, profile)
	if err != nil {
		return err
	}
	observability.ObservePhase("matching_firms", time.Since(phaseStart))
	if err := o.checkpoint(ctx, job, domain.JobMatchingFirms, 55, fmt.Sprintf("Found %d matching firms", len(firms))); err != nil {
		return err
	}

	// Phase: investor matching.
	if err := o.checkpoint(ctx, job, domain.JobMatchingInvestors, 65, "Matching individual investors"); err != nil {
		return err
	}
	phaseStart = time.Now()
	investors, err := o.matcher.MatchInvestors(ctx, profile, firms)
	if err != nil {
		return err
	}
	observability.ObservePhase("matching_investors", time.Since(phaseStart))

	// Investors lead the final list; firm matches follow.
	results := make([]domain.MatchResult, 0, len(investors)+len(firms))
	results = append(results, investors...)
	results = append(results, firms...)
	scores := make([]int, 0, len(results))
	for _, r := range results {
		scores = append(scores, r.Score)
	}

	if err := o.jobs.Complete(ctx, job.ID, results); err != nil {
		return err
	}
	observability.ObserveScores(scores)
	observability.CompleteJob()
	o.notify(ctx, job, domain.JobComplete, 100, fmt.Sprintf("Found %d matches", len(results)))
	return nil
}

// checkpoint persists a transition and then emits the matching event.
func (o *Orchestrator) checkpoint(ctx context.Context, job domain.MatchJob, status domain.JobStatus, progress int, step string) error {
	if err := o.jobs.Advance(ctx, job.ID, status, progress, step); err != nil {
		return err
	}
	o.notify(ctx, job, status, progress, step)
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, job domain.MatchJob, status domain.JobStatus, progress int, step string) {
	o.notifier.Publish(ctx, domain.JobEvent{
		Type:     domain.EventDealUpdate,
		UserID:   job.OwnerID,
		JobID:    job.ID,
		Status:   string(status),
		Progress: progress,
		Step:     step,
	})
}

func (o *Orchestrator) fail(ctx context.Context, job domain.MatchJob, msg string) {
	// The run context may already be cancelled or expired; failing the row
	// must still go through.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := o.jobs.Fail(ctx, job.ID, msg); err != nil {
		slog.Error("recording job failure", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	observability.FailJob()
	o.notifier.Publish(ctx, domain.JobEvent{
		Type:    domain.EventDealUpdate,
		UserID:  job.OwnerID,
		JobID:   job.ID,
		Status:  string(domain.JobFailed),
		Message: msg,
	})
}
