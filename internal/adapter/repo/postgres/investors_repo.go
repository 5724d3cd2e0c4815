package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/introweave/matchpipe/internal/domain"
)

// InvestorRepo reads investor snapshots from the CRM-sourced pool.
type InvestorRepo struct{ Pool PgxPool }

// NewInvestorRepo constructs an InvestorRepo with the given pool.
func NewInvestorRepo(p PgxPool) *InvestorRepo { return &InvestorRepo{Pool: p} }

const investorColumns = `id, name, COALESCE(email,''), active, COALESCE(investor_type,''), stages, sectors, COALESCE(location,''), COALESCE(firm_id,''), COALESCE(firm_name,''), custom`

// ListByFirmIDs returns active investors affiliated with any of the given firms.
func (r *InvestorRepo) ListByFirmIDs(ctx domain.Context, firmIDs []string) ([]domain.InvestorProfile, error) {
	tracer := otel.Tracer("repo.investors")
	ctx, span := tracer.Start(ctx, "investors.ListByFirmIDs")
	defer span.End()
	if len(firmIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + investorColumns + ` FROM investors WHERE active AND firm_id = ANY($1)`
	rows, err := r.Pool.Query(ctx, q, firmIDs)
	if err != nil {
		return nil, fmt.Errorf("op=investor.list_by_firms: %w", err)
	}
	return collectInvestors(rows, "op=investor.list_by_firms")
}

// ListActive returns up to limit active investors outside the exclude set,
// newest first.
func (r *InvestorRepo) ListActive(ctx domain.Context, excludeIDs []string, limit int) ([]domain.InvestorProfile, error) {
	tracer := otel.Tracer("repo.investors")
	ctx, span := tracer.Start(ctx, "investors.ListActive")
	defer span.End()
	if excludeIDs == nil {
		excludeIDs = []string{}
	}
	q := `SELECT ` + investorColumns + ` FROM investors
	      WHERE active AND NOT (id = ANY($1))
	      ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, excludeIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("op=investor.list_active: %w", err)
	}
	return collectInvestors(rows, "op=investor.list_active")
}

func collectInvestors(rows pgx.Rows, op string) ([]domain.InvestorProfile, error) {
	defer rows.Close()
	var out []domain.InvestorProfile
	for rows.Next() {
		var inv domain.InvestorProfile
		var customRaw []byte
		if err := rows.Scan(&inv.ID, &inv.Name, &inv.Email, &inv.Active, &inv.InvestorType,
			&inv.Stages, &inv.Sectors, &inv.Location, &inv.FirmID, &inv.FirmName, &customRaw); err != nil {
			return nil, fmt.Errorf("%s_scan: %w", op, err)
		}
		if len(customRaw) > 0 {
			if err := json.Unmarshal(customRaw, &inv.Custom); err != nil {
				return nil, fmt.Errorf("%s_custom: %w", op, err)
			}
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s_rows: %w", op, err)
	}
	return out, nil
}
