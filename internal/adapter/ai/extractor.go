package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/introweave/matchpipe/internal/domain"
	"github.com/introweave/matchpipe/pkg/textx"
)

// maxPromptBytes bounds how much deck text is sent per completion call.
const maxPromptBytes = 48 * 1024

// Extractor turns raw deck text into a structured profile via one
// completion call. Extraction is best effort: any transport or parse
// failure degrades to an empty profile and never aborts the pipeline.
type Extractor struct {
	client domain.CompletionClient
}

// NewExtractor constructs an extractor over the given completion client.
func NewExtractor(client domain.CompletionClient) *Extractor {
	return &Extractor{client: client}
}

const extractionPrompt = `You are analyzing a startup pitch deck. Extract the following fields and respond with a single JSON object, no prose, using exactly these keys:
{
  "company_name": string,
  "problem": string,
  "solution": string,
  "market": string,
  "business_model": string,
  "traction": string,
  "team": [string],
  "competitors": [string],
  "ask_amount": number,
  "use_of_funds": string,
  "website": string,
  "industries": [string],
  "stage": string,
  "location": string
}
Omit any field you cannot determine. Text to analyze:

`

// BuildInput concatenates the deck text with phase-labeled supplementary
// documents, sanitized and bounded.
func BuildInput(deckText string, docs []domain.SupplementaryDoc) string {
	var b strings.Builder
	b.WriteString(textx.SanitizeText(deckText))
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("\n\n--- %s: %s ---\n", d.Type, d.Name))
		b.WriteString(textx.SanitizeText(d.Text))
	}
	return textx.Truncate(b.String(), maxPromptBytes)
}

// ExtractDeck extracts a profile from the deck plus its supplementary docs.
func (e *Extractor) ExtractDeck(ctx domain.Context, deckText string, docs []domain.SupplementaryDoc) domain.ExtractedProfile {
	return e.Extract(ctx, BuildInput(deckText, docs))
}

// Extract runs the completion call and parses the first balanced JSON
// object out of the response. Returns an empty profile on any failure.
func (e *Extractor) Extract(ctx domain.Context, input string) domain.ExtractedProfile {
	raw, err := e.client.Complete(ctx, extractionPrompt+input)
	if err != nil {
		slog.Warn("deck extraction call failed; continuing with empty profile", slog.Any("error", err))
		return domain.ExtractedProfile{}
	}
	return ParseProfile(raw)
}

// ParseProfile extracts the first {...} object from free text and decodes
// it into a profile. Surrounding prose, markdown fences and truncation all
// degrade to an empty profile.
func ParseProfile(raw string) domain.ExtractedProfile {
	obj, ok := firstJSONObject(raw)
	if !ok {
		slog.Warn("no JSON object found in completion response")
		return domain.ExtractedProfile{}
	}
	var p domain.ExtractedProfile
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		slog.Warn("completion JSON did not decode", slog.Any("error", err))
		return domain.ExtractedProfile{}
	}
	return p
}

// firstJSONObject scans for the first balanced {...} substring. Returns
// false when no complete object exists.
func firstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
