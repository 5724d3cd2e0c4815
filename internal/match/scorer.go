package match

import (
	"fmt"
	"strings"

	"github.com/introweave/matchpipe/internal/domain"
)

// Component weights and inclusion thresholds. Firm scoring grants fallback
// credit for undeclared attributes: sparse CRM-sourced data is the normal
// case, and a strict AND-of-matches policy would starve the pipeline.
const (
	investorIndustryWeight = 35
	investorStageWeight    = 25
	investorGeoWeight      = 20
	investorTypeWeight     = 10
	investorEmailWeight    = 10

	firmIndustryWeight   = 40
	firmGeneralistCredit = 15
	firmStageWeight      = 30
	firmStageCredit      = 10
	firmGeoWeight        = 20
	firmGeoCredit        = 10
	firmTypeWeight       = 10

	// InvestorThreshold is the minimum score for the general investor pool.
	InvestorThreshold = 30
	// FirmThreshold is the minimum score for firm inclusion.
	FirmThreshold = 25
	// AffiliatedBoost is added to investors working at an already-matched firm.
	AffiliatedBoost = 20
	// AffiliatedThreshold is the relaxed inclusion bar for boosted investors.
	AffiliatedThreshold = 20

	maxScore = 100
)

// ReasonMatchedFirm is prepended to firm-affiliated investor results.
const ReasonMatchedFirm = "Works at matched firm"

// Score is a capped total plus ordered human-readable reasons, one per
// contributing component.
type Score struct {
	Total   int
	Reasons []string
}

// Scorer computes match scores between an extracted startup profile and
// investor or firm records. Pure; safe for concurrent use.
type Scorer struct {
	tax *Taxonomy
}

// NewScorer returns a scorer backed by the given taxonomy.
func NewScorer(tax *Taxonomy) *Scorer {
	if tax == nil {
		tax = NewTaxonomy(nil)
	}
	return &Scorer{tax: tax}
}

// industryMatch holds one startup industry that hit an investor/firm focus
// tag, with the taxonomy category when the hit was indirect.
type industryMatch struct {
	label    string
	category string
}

// matchIndustries returns the startup industries that match any focus tag,
// directly or via taxonomy expansion, preserving startup-side ordering.
func (s *Scorer) matchIndustries(industries, focus []string) []industryMatch {
	var out []industryMatch
	for _, ind := range industries {
		if normalize(ind) == "" {
			continue
		}
		matched := false
		category := ""
		for _, f := range focus {
			if termMatches(normalize(ind), normalize(f)) {
				matched = true
				category = ""
				break
			}
			if cat, ok := s.tax.Related(ind, f); ok {
				matched = true
				if category == "" {
					category = cat
				}
			}
		}
		if matched {
			out = append(out, industryMatch{label: ind, category: category})
		}
	}
	return out
}

func industryReason(matches []industryMatch) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.category != "" {
			parts = append(parts, fmt.Sprintf("%s (via %s)", m.label, m.category))
		} else {
			parts = append(parts, m.label)
		}
	}
	return "Industry fit: " + strings.Join(parts, ", ")
}

// matchStage returns the preferred-stage string that matches the startup's
// stage via case-insensitive substring in either direction.
func matchStage(stage string, prefs []string) (string, bool) {
	st := normalize(stage)
	if st == "" {
		return "", false
	}
	for _, p := range prefs {
		if termMatches(st, normalize(p)) {
			return p, true
		}
	}
	return "", false
}

// matchGeo applies the geography test: mutual containment between the two
// location strings, or an investor/firm location that covers everything
// ("global", "united states").
func matchGeo(startupLoc, loc string) bool {
	l := normalize(loc)
	if l == "" {
		return false
	}
	if strings.Contains(l, "global") || strings.Contains(l, "united states") {
		return true
	}
	sl := normalize(startupLoc)
	if sl == "" {
		return false
	}
	return strings.Contains(l, sl) || strings.Contains(sl, l)
}

func capTotal(n int) int {
	if n > maxScore {
		return maxScore
	}
	return n
}

// ScoreInvestor scores a startup profile against one investor. Components
// are all non-negative; the total is capped at 100. One reason is emitted
// per contributing component, in component order.
func (s *Scorer) ScoreInvestor(p domain.ExtractedProfile, inv domain.InvestorProfile) Score {
	var sc Score

	if matches := s.matchIndustries(p.Industries, inv.SectorFocus()); len(matches) > 0 {
		sc.Total += investorIndustryWeight
		sc.Reasons = append(sc.Reasons, industryReason(matches))
	}
	if stage, ok := matchStage(p.Stage, inv.StagePreference()); ok {
		sc.Total += investorStageWeight
		sc.Reasons = append(sc.Reasons, "Stage match: "+stage)
	}
	if loc := inv.Region(); matchGeo(p.Location, loc) {
		sc.Total += investorGeoWeight
		sc.Reasons = append(sc.Reasons, "Location match: "+loc)
	}
	if inv.InvestorType != "" {
		sc.Total += investorTypeWeight
		sc.Reasons = append(sc.Reasons, "Investor type: "+inv.InvestorType)
	}
	if inv.Email != "" {
		sc.Total += investorEmailWeight
		sc.Reasons = append(sc.Reasons, "Direct contact available")
	}

	sc.Total = capTotal(sc.Total)
	return sc
}

// ScoreFirm scores a startup profile against one firm. Firms with no
// declared focus, stages or location receive reduced fallback credit
// instead of zero: absence of stated focus is weak positive signal.
func (s *Scorer) ScoreFirm(p domain.ExtractedProfile, f domain.FirmProfile) Score {
	var sc Score

	focus := f.SectorFocus()
	if matches := s.matchIndustries(p.Industries, focus); len(matches) > 0 {
		sc.Total += firmIndustryWeight
		sc.Reasons = append(sc.Reasons, industryReason(matches))
	} else if len(focus) == 0 {
		sc.Total += firmGeneralistCredit
		sc.Reasons = append(sc.Reasons, "Generalist firm")
	}

	prefs := f.StagePreference()
	if stage, ok := matchStage(p.Stage, prefs); ok {
		sc.Total += firmStageWeight
		sc.Reasons = append(sc.Reasons, "Stage match: "+stage)
	} else if len(prefs) == 0 {
		sc.Total += firmStageCredit
		sc.Reasons = append(sc.Reasons, "Open to all stages")
	}

	loc := f.Region()
	if matchGeo(p.Location, loc) {
		sc.Total += firmGeoWeight
		sc.Reasons = append(sc.Reasons, "Location match: "+loc)
	} else if normalize(loc) == "" {
		sc.Total += firmGeoCredit
		sc.Reasons = append(sc.Reasons, "No location restriction")
	}

	if f.FirmType != "" {
		sc.Total += firmTypeWeight
		sc.Reasons = append(sc.Reasons, "Firm type: "+f.FirmType)
	}

	sc.Total = capTotal(sc.Total)
	return sc
}
