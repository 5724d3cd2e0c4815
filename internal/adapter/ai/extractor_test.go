package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introweave/matchpipe/internal/adapter/ai"
	"github.com/introweave/matchpipe/internal/domain"
)

type fakeCompleter struct {
	out string
	err error
}

func (f *fakeCompleter) Complete(_ domain.Context, _ string) (string, error) {
	return f.out, f.err
}

func TestParseProfile_ProseWrappedJSON(t *testing.T) {
	t.Parallel()
	raw := `Sure! Here is the analysis you asked for:
{"company_name":"Acme","industries":["fintech"],"stage":"Seed","location":"Austin, TX"}
Let me know if you need anything else.`
	p := ai.ParseProfile(raw)
	assert.Equal(t, "Acme", p.CompanyName)
	assert.Equal(t, []string{"fintech"}, p.Industries)
	assert.Equal(t, "Seed", p.Stage)
	assert.Equal(t, "Austin, TX", p.Location)
}

func TestParseProfile_MarkdownFence(t *testing.T) {
	t.Parallel()
	raw := "```json\n{\"company_name\":\"Beta\",\"team\":[\"a\",\"b\"],\"ask_amount\":1500000}\n```"
	p := ai.ParseProfile(raw)
	assert.Equal(t, "Beta", p.CompanyName)
	assert.Equal(t, []string{"a", "b"}, p.Team)
	require.NotNil(t, p.AskAmount)
	assert.InDelta(t, 1500000, *p.AskAmount, 0.001)
}

func TestParseProfile_NestedAndEscapedBraces(t *testing.T) {
	t.Parallel()
	raw := `{"company_name":"Cur{ly} \"Inc\"","problem":"deep {nesting}"}`
	p := ai.ParseProfile(raw)
	assert.Equal(t, `Cur{ly} "Inc"`, p.CompanyName)
	assert.Equal(t, "deep {nesting}", p.Problem)
}

func TestParseProfile_TruncatedJSON(t *testing.T) {
	t.Parallel()
	p := ai.ParseProfile(`{"company_name":"Gamma","industries":["ai"`)
	assert.True(t, p.IsEmpty())
}

func TestParseProfile_NoJSON(t *testing.T) {
	t.Parallel()
	p := ai.ParseProfile("I could not find anything useful in this deck.")
	assert.True(t, p.IsEmpty())
}

func TestExtract_ClientErrorDegradesToEmptyProfile(t *testing.T) {
	t.Parallel()
	ex := ai.NewExtractor(&fakeCompleter{err: errors.New("provider down")})
	p := ex.Extract(context.Background(), "deck text")
	assert.True(t, p.IsEmpty())
}

func TestExtract_Success(t *testing.T) {
	t.Parallel()
	ex := ai.NewExtractor(&fakeCompleter{out: `{"company_name":"Delta","stage":"Series A"}`})
	p := ex.Extract(context.Background(), "deck text")
	assert.Equal(t, "Delta", p.CompanyName)
	assert.Equal(t, "Series A", p.Stage)
}

func TestBuildInput_LabelsSupplementaryDocs(t *testing.T) {
	t.Parallel()
	in := ai.BuildInput("main deck", []domain.SupplementaryDoc{
		{Type: "financials", Name: "model.xlsx", Text: "ARR 1.2M"},
		{Type: "memo", Name: "notes.txt", Text: "   "},
	})
	assert.Contains(t, in, "main deck")
	assert.Contains(t, in, "--- financials: model.xlsx ---")
	assert.Contains(t, in, "ARR 1.2M")
	assert.NotContains(t, in, "notes.txt")
}
