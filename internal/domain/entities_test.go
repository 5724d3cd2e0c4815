package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/introweave/matchpipe/internal/domain"
)

func TestJobStatus_Terminal(t *testing.T) {
	t.Parallel()
	assert.True(t, domain.JobComplete.Terminal())
	assert.True(t, domain.JobFailed.Terminal())
	assert.False(t, domain.JobPending.Terminal())
	assert.False(t, domain.JobAnalyzingDeck.Terminal())
	assert.False(t, domain.JobMatchingFirms.Terminal())
	assert.False(t, domain.JobMatchingInvestors.Terminal())
}

func TestExtractedProfile_Merge_ExtractedWins(t *testing.T) {
	t.Parallel()
	ask := 2_000_000.0
	extracted := domain.ExtractedProfile{
		CompanyName: "Acme Robotics",
		Stage:       "Seed",
	}
	stored := domain.ExtractedProfile{
		CompanyName: "Acme (old name)",
		Stage:       "Pre-Seed",
		Location:    "Denver, CO",
		Industries:  []string{"robotics"},
		AskAmount:   &ask,
	}
	merged := extracted.Merge(stored)
	assert.Equal(t, "Acme Robotics", merged.CompanyName)
	assert.Equal(t, "Seed", merged.Stage)
	assert.Equal(t, "Denver, CO", merged.Location)
	assert.Equal(t, []string{"robotics"}, merged.Industries)
	assert.Equal(t, &ask, merged.AskAmount)
}

func TestExtractedProfile_IsEmpty(t *testing.T) {
	t.Parallel()
	assert.True(t, domain.ExtractedProfile{}.IsEmpty())
	assert.False(t, domain.ExtractedProfile{Stage: "Series A"}.IsEmpty())
	assert.False(t, domain.ExtractedProfile{Industries: []string{"fintech"}}.IsEmpty())
}

func TestInvestorProfile_CustomOverrides(t *testing.T) {
	t.Parallel()
	inv := domain.InvestorProfile{
		Sectors:  []string{"fintech"},
		Stages:   []string{"Seed"},
		Location: "Boston",
		Custom: map[string]string{
			"sectors":  "climate, deep tech",
			"location": "San Francisco",
		},
	}
	assert.Equal(t, []string{"climate", "deep tech"}, inv.SectorFocus())
	assert.Equal(t, []string{"Seed"}, inv.StagePreference())
	assert.Equal(t, "San Francisco", inv.Region())
}

func TestFirmProfile_OverrideIgnoresBlank(t *testing.T) {
	t.Parallel()
	firm := domain.FirmProfile{
		Sectors:  []string{"healthcare"},
		Location: "New York",
		Custom:   map[string]string{"sectors": "  ", "location": ""},
	}
	assert.Equal(t, []string{"healthcare"}, firm.SectorFocus())
	assert.Equal(t, "New York", firm.Region())
}
