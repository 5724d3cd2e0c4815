package match

import (
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/introweave/matchpipe/internal/domain"
)

// Config bounds the pool snapshots and result sizes of a matching run.
type Config struct {
	FirmPoolSize     int
	FirmTopK         int
	InvestorPoolSize int
	InvestorLimit    int
}

// DefaultConfig returns the standard matching bounds.
func DefaultConfig() Config {
	return Config{FirmPoolSize: 500, FirmTopK: 50, InvestorPoolSize: 500, InvestorLimit: 20}
}

// Matcher orchestrates scoring across the firm and investor pools. Phase A
// matches firms; phase B matches investors, biased towards investors
// affiliated with phase-A firms. The pools are read-only snapshots.
type Matcher struct {
	scorer    *Scorer
	firms     domain.FirmRepository
	investors domain.InvestorRepository
	cfg       Config
}

// NewMatcher constructs a matcher over the given pools. Unset or
// non-positive bounds fall back to the defaults field by field.
func NewMatcher(scorer *Scorer, firms domain.FirmRepository, investors domain.InvestorRepository, cfg Config) *Matcher {
	def := DefaultConfig()
	if cfg.FirmPoolSize <= 0 {
		cfg.FirmPoolSize = def.FirmPoolSize
	}
	if cfg.FirmTopK <= 0 {
		cfg.FirmTopK = def.FirmTopK
	}
	if cfg.InvestorPoolSize <= 0 {
		cfg.InvestorPoolSize = def.InvestorPoolSize
	}
	if cfg.InvestorLimit <= 0 {
		cfg.InvestorLimit = def.InvestorLimit
	}
	return &Matcher{scorer: scorer, firms: firms, investors: investors, cfg: cfg}
}

// sortResults orders by score descending with name ascending as the
// deterministic tie-break.
func sortResults(rs []domain.MatchResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return rs[i].Name < rs[j].Name
	})
}

// MatchFirms scores the firm pool against the profile and returns the top-K
// firms at or above the firm threshold, highest score first.
func (m *Matcher) MatchFirms(ctx domain.Context, p domain.ExtractedProfile) ([]domain.MatchResult, error) {
	tracer := otel.Tracer("match.firms")
	ctx, span := tracer.Start(ctx, "Matcher.MatchFirms")
	defer span.End()

	firms, err := m.firms.ListRecent(ctx, m.cfg.FirmPoolSize)
	if err != nil {
		return nil, fmt.Errorf("op=match.firm_pool: %w", err)
	}
	span.SetAttributes(attribute.Int("pool.firms", len(firms)))

	results := make([]domain.MatchResult, 0, len(firms))
	for _, f := range firms {
		sc := m.scorer.ScoreFirm(p, f)
		if sc.Total < FirmThreshold {
			continue
		}
		results = append(results, domain.MatchResult{
			FirmID:      f.ID,
			Name:        f.Name,
			FirmName:    f.Name,
			Score:       sc.Total,
			Reasons:     sc.Reasons,
			IsFirmMatch: true,
			Snapshot: domain.ProfileSnapshot{
				FirmType:  f.FirmType,
				Stages:    f.StagePreference(),
				Sectors:   f.SectorFocus(),
				Location:  f.Region(),
				CheckSize: f.CheckSize,
			},
		})
	}
	sortResults(results)
	if len(results) > m.cfg.FirmTopK {
		results = results[:m.cfg.FirmTopK]
	}
	span.SetAttributes(attribute.Int("matched.firms", len(results)))
	return results, nil
}

// MatchInvestors runs phase B. Investors affiliated with a matched firm are
// scored first with a flat boost and a relaxed inclusion threshold; the
// general pool fills any remaining room at the standard threshold. Results
// are deduplicated (affiliated entries win), sorted and truncated, and the
// displayed firm name is rewritten to the matched firm's canonical name.
func (m *Matcher) MatchInvestors(ctx domain.Context, p domain.ExtractedProfile, matchedFirms []domain.MatchResult) ([]domain.MatchResult, error) {
	tracer := otel.Tracer("match.investors")
	ctx, span := tracer.Start(ctx, "Matcher.MatchInvestors")
	defer span.End()

	firmNames := make(map[string]string, len(matchedFirms))
	firmIDs := make([]string, 0, len(matchedFirms))
	for _, f := range matchedFirms {
		firmIDs = append(firmIDs, f.FirmID)
		firmNames[f.FirmID] = f.Name
	}

	seen := make(map[string]struct{})
	var results []domain.MatchResult

	if len(firmIDs) > 0 {
		affiliated, err := m.investors.ListByFirmIDs(ctx, firmIDs)
		if err != nil {
			return nil, fmt.Errorf("op=match.affiliated_pool: %w", err)
		}
		for _, inv := range affiliated {
			if !inv.Active {
				continue
			}
			sc := m.scorer.ScoreInvestor(p, inv)
			boosted := capTotal(sc.Total + AffiliatedBoost)
			if boosted < AffiliatedThreshold {
				continue
			}
			reasons := append([]string{ReasonMatchedFirm}, sc.Reasons...)
			results = append(results, investorResult(inv, boosted, reasons))
			seen[inv.ID] = struct{}{}
		}
	}

	if len(results) < m.cfg.InvestorLimit {
		exclude := make([]string, 0, len(seen))
		for id := range seen {
			exclude = append(exclude, id)
		}
		sort.Strings(exclude)
		general, err := m.investors.ListActive(ctx, exclude, m.cfg.InvestorPoolSize)
		if err != nil {
			return nil, fmt.Errorf("op=match.investor_pool: %w", err)
		}
		for _, inv := range general {
			if !inv.Active {
				continue
			}
			if _, dup := seen[inv.ID]; dup {
				continue
			}
			sc := m.scorer.ScoreInvestor(p, inv)
			if sc.Total < InvestorThreshold {
				continue
			}
			results = append(results, investorResult(inv, sc.Total, sc.Reasons))
			seen[inv.ID] = struct{}{}
		}
	}

	sortResults(results)
	if len(results) > m.cfg.InvestorLimit {
		results = results[:m.cfg.InvestorLimit]
	}

	// Canonicalise displayed firm names against the matched firm records.
	for i := range results {
		if name, ok := firmNames[results[i].FirmID]; ok {
			results[i].FirmName = name
		}
	}
	span.SetAttributes(attribute.Int("matched.investors", len(results)))
	return results, nil
}

func investorResult(inv domain.InvestorProfile, score int, reasons []string) domain.MatchResult {
	return domain.MatchResult{
		InvestorID: inv.ID,
		FirmID:     inv.FirmID,
		Name:       inv.Name,
		Email:      inv.Email,
		FirmName:   inv.FirmName,
		Score:      score,
		Reasons:    reasons,
		Snapshot: domain.ProfileSnapshot{
			InvestorType: inv.InvestorType,
			Stages:       inv.StagePreference(),
			Sectors:      inv.SectorFocus(),
			Location:     inv.Region(),
		},
	}
}
