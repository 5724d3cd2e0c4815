package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/introweave/matchpipe/internal/domain"
)

// MatchJobRepo persists and loads match jobs using a minimal pgx pool.
// Status, progress and step always move in one statement so readers never
// observe a half-applied transition. Terminal rows are never updated again;
// the WHERE guard makes Advance a no-op once a job completes or fails.
type MatchJobRepo struct{ Pool PgxPool }

// NewMatchJobRepo constructs a MatchJobRepo with the given pool.
func NewMatchJobRepo(p PgxPool) *MatchJobRepo { return &MatchJobRepo{Pool: p} }

const jobColumns = `id, owner_id, startup_id, source_doc, status, progress, step, profile, results, COALESCE(error,''), created_at, updated_at, completed_at`

// Create inserts a new pending job and returns its id.
func (r *MatchJobRepo) Create(ctx domain.Context, j domain.MatchJob) (string, error) {
	tracer := otel.Tracer("repo.match_jobs")
	ctx, span := tracer.Start(ctx, "match_jobs.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "match_jobs"),
	)
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := j.Status
	if status == "" {
		status = domain.JobPending
	}
	now := time.Now().UTC()
	q := `INSERT INTO match_jobs (id, owner_id, startup_id, source_doc, status, progress, step, error, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,'',$8,$8)`
	_, err := r.Pool.Exec(ctx, q, id, j.OwnerID, j.StartupID, j.SourceDoc, status, j.Progress, j.Step, now)
	if err != nil {
		return "", fmt.Errorf("op=match_job.create: %w", err)
	}
	return id, nil
}

// Get loads a job by id.
func (r *MatchJobRepo) Get(ctx domain.Context, id string) (domain.MatchJob, error) {
	tracer := otel.Tracer("repo.match_jobs")
	ctx, span := tracer.Start(ctx, "match_jobs.Get")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM match_jobs WHERE id=$1`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MatchJob{}, fmt.Errorf("op=match_job.get: %w", domain.ErrNotFound)
		}
		return domain.MatchJob{}, fmt.Errorf("op=match_job.get: %w", err)
	}
	return j, nil
}

// ListByOwner returns the owner's jobs, newest first.
func (r *MatchJobRepo) ListByOwner(ctx domain.Context, ownerID string) ([]domain.MatchJob, error) {
	tracer := otel.Tracer("repo.match_jobs")
	ctx, span := tracer.Start(ctx, "match_jobs.ListByOwner")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM match_jobs WHERE owner_id=$1 ORDER BY created_at DESC LIMIT 100`
	rows, err := r.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("op=match_job.list_by_owner: %w", err)
	}
	defer rows.Close()
	var out []domain.MatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=match_job.list_scan: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=match_job.list_rows: %w", err)
	}
	return out, nil
}

// Advance moves a non-terminal job to the given status/progress/step.
// Progress never decreases; terminal rows are left untouched.
func (r *MatchJobRepo) Advance(ctx domain.Context, id string, status domain.JobStatus, progress int, step string) error {
	tracer := otel.Tracer("repo.match_jobs")
	ctx, span := tracer.Start(ctx, "match_jobs.Advance")
	defer span.End()
	span.SetAttributes(attribute.String("job.status", string(status)))
	q := `UPDATE match_jobs SET status=$2, progress=GREATEST(progress,$3), step=$4, updated_at=$5
	      WHERE id=$1 AND status NOT IN ('complete','failed')`
	tag, err := r.Pool.Exec(ctx, q, id, status, progress, step, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=match_job.advance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=match_job.advance: %w", domain.ErrConflict)
	}
	return nil
}

// AttachProfile stores the extracted profile on the job.
func (r *MatchJobRepo) AttachProfile(ctx domain.Context, id string, p domain.ExtractedProfile) error {
	tracer := otel.Tracer("repo.match_jobs")
	ctx, span := tracer.Start(ctx, "match_jobs.AttachProfile")
	defer span.End()
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("op=match_job.attach_profile: %w", err)
	}
	q := `UPDATE match_jobs SET profile=$2, updated_at=$3 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=match_job.attach_profile: %w", err)
	}
	return nil
}

// Complete marks the job complete with its final results and full progress.
func (r *MatchJobRepo) Complete(ctx domain.Context, id string, results []domain.MatchResult) error {
	tracer := otel.Tracer("repo.match_jobs")
	ctx, span := tracer.Start(ctx, "match_jobs.Complete")
	defer span.End()
	if results == nil {
		results = []domain.MatchResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("op=match_job.complete: %w", err)
	}
	now := time.Now().UTC()
	q := `UPDATE match_jobs SET status='complete', progress=100, step=$2, results=$3, updated_at=$4, completed_at=$4
	      WHERE id=$1 AND status NOT IN ('complete','failed')`
	tag, err := r.Pool.Exec(ctx, q, id, "Matching complete", raw, now)
	if err != nil {
		return fmt.Errorf("op=match_job.complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=match_job.complete: %w", domain.ErrConflict)
	}
	return nil
}

// Fail marks the job failed with a non-empty error message. Progress is
// frozen where it was.
func (r *MatchJobRepo) Fail(ctx domain.Context, id string, errMsg string) error {
	tracer := otel.Tracer("repo.match_jobs")
	ctx, span := tracer.Start(ctx, "match_jobs.Fail")
	defer span.End()
	if errMsg == "" {
		errMsg = "unknown error"
	}
	q := `UPDATE match_jobs SET status='failed', error=$2, updated_at=$3
	      WHERE id=$1 AND status NOT IN ('complete','failed')`
	if _, err := r.Pool.Exec(ctx, q, id, errMsg, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=match_job.fail: %w", err)
	}
	return nil
}

// ListStale returns non-terminal jobs not updated since cutoff.
func (r *MatchJobRepo) ListStale(ctx domain.Context, cutoff time.Time, limit int) ([]domain.MatchJob, error) {
	tracer := otel.Tracer("repo.match_jobs")
	ctx, span := tracer.Start(ctx, "match_jobs.ListStale")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM match_jobs
	      WHERE status NOT IN ('complete','failed') AND updated_at < $1
	      ORDER BY updated_at ASC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("op=match_job.list_stale: %w", err)
	}
	defer rows.Close()
	var out []domain.MatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=match_job.list_stale_scan: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=match_job.list_stale_rows: %w", err)
	}
	return out, nil
}

// scanJob decodes one row of jobColumns into a MatchJob. Profile and results
// columns are nullable JSONB.
func scanJob(row pgx.Row) (domain.MatchJob, error) {
	var j domain.MatchJob
	var profileRaw, resultsRaw []byte
	if err := row.Scan(&j.ID, &j.OwnerID, &j.StartupID, &j.SourceDoc, &j.Status, &j.Progress, &j.Step,
		&profileRaw, &resultsRaw, &j.Error, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
		return domain.MatchJob{}, err
	}
	if len(profileRaw) > 0 {
		var p domain.ExtractedProfile
		if err := json.Unmarshal(profileRaw, &p); err != nil {
			return domain.MatchJob{}, fmt.Errorf("decode profile: %w", err)
		}
		j.Profile = &p
	}
	if len(resultsRaw) > 0 {
		if err := json.Unmarshal(resultsRaw, &j.Results); err != nil {
			return domain.MatchJob{}, fmt.Errorf("decode results: %w", err)
		}
	}
	return j, nil
}
