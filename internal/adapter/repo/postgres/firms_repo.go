package postgres

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/introweave/matchpipe/internal/domain"
)

// FirmRepo reads firm snapshots.
type FirmRepo struct{ Pool PgxPool }

// NewFirmRepo constructs a FirmRepo with the given pool.
func NewFirmRepo(p PgxPool) *FirmRepo { return &FirmRepo{Pool: p} }

// ListRecent returns up to limit firms, newest first.
func (r *FirmRepo) ListRecent(ctx domain.Context, limit int) ([]domain.FirmProfile, error) {
	tracer := otel.Tracer("repo.firms")
	ctx, span := tracer.Start(ctx, "firms.ListRecent")
	defer span.End()
	q := `SELECT id, name, COALESCE(firm_type,''), stages, sectors, COALESCE(location,''), COALESCE(check_size,''), custom
	      FROM firms ORDER BY created_at DESC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=firm.list_recent: %w", err)
	}
	defer rows.Close()
	var out []domain.FirmProfile
	for rows.Next() {
		var f domain.FirmProfile
		var customRaw []byte
		if err := rows.Scan(&f.ID, &f.Name, &f.FirmType, &f.Stages, &f.Sectors, &f.Location, &f.CheckSize, &customRaw); err != nil {
			return nil, fmt.Errorf("op=firm.list_recent_scan: %w", err)
		}
		if len(customRaw) > 0 {
			if err := json.Unmarshal(customRaw, &f.Custom); err != nil {
				return nil, fmt.Errorf("op=firm.list_recent_custom: %w", err)
			}
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=firm.list_recent_rows: %w", err)
	}
	return out, nil
}
