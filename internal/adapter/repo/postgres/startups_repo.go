package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/introweave/matchpipe/internal/domain"
)

// StartupRepo reads stored startup profiles used to fill extraction gaps.
type StartupRepo struct{ Pool PgxPool }

// NewStartupRepo constructs a StartupRepo with the given pool.
func NewStartupRepo(p PgxPool) *StartupRepo { return &StartupRepo{Pool: p} }

// GetProfile loads the stored profile for a startup by id.
func (r *StartupRepo) GetProfile(ctx domain.Context, id string) (domain.ExtractedProfile, error) {
	tracer := otel.Tracer("repo.startups")
	ctx, span := tracer.Start(ctx, "startups.GetProfile")
	defer span.End()
	q := `SELECT profile FROM startups WHERE id=$1`
	var raw []byte
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExtractedProfile{}, fmt.Errorf("op=startup.get_profile: %w", domain.ErrNotFound)
		}
		return domain.ExtractedProfile{}, fmt.Errorf("op=startup.get_profile: %w", err)
	}
	var p domain.ExtractedProfile
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.ExtractedProfile{}, fmt.Errorf("op=startup.get_profile_decode: %w", err)
		}
	}
	return p, nil
}
