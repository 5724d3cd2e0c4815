// Package stub provides a deterministic completion client for local
// development and tests, so the full pipeline runs without an API key.
package stub

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/introweave/matchpipe/internal/domain"
)

// Client fabricates an extraction response by keyword-scanning the prompt
// text. Output is a fenced JSON object, exercising the same parsing path
// real provider responses go through.
type Client struct{}

// New returns a stub completion client.
func New() *Client { return &Client{} }

var (
	stageRe    = regexp.MustCompile(`(?i)\b(pre-seed|seed|series [a-e]|growth|bridge)\b`)
	locationRe = regexp.MustCompile(`(?i)\b(?:in|based in|from|headquartered in)\s+([A-Z][A-Za-z]+(?:[ ,]+[A-Z][A-Za-z]+)*)`)
	askRe      = regexp.MustCompile(`(?i)raising\s+\$?([0-9]+(?:\.[0-9]+)?)\s*(m|million|k)?`)
)

var industryKeywords = map[string]string{
	"construction": "construction",
	"proptech":     "real estate",
	"real estate":  "real estate",
	"fintech":      "fintech",
	"payments":     "fintech",
	"healthcare":   "healthcare",
	"biotech":      "healthcare",
	"film":         "entertainment",
	"media":        "entertainment",
	"ai":           "ai",
	"machine learning": "ai",
	"climate":   "climate",
	"logistics": "logistics",
	"security":  "cybersecurity",
	"education": "edtech",
}

// Complete scans the prompt and returns a plausible extraction payload.
func (c *Client) Complete(_ domain.Context, prompt string) (string, error) {
	lower := strings.ToLower(prompt)

	out := map[string]any{}

	var industries []string
	seen := map[string]bool{}
	for kw, label := range industryKeywords {
		if containsWord(lower, kw) && !seen[label] {
			seen[label] = true
			industries = append(industries, label)
		}
	}
	if len(industries) > 0 {
		out["industries"] = industries
	}

	if m := stageRe.FindString(prompt); m != "" {
		out["stage"] = canonicalStage(m)
	}
	if m := locationRe.FindStringSubmatch(prompt); m != nil {
		out["location"] = strings.TrimSpace(m[1])
	}
	if m := askRe.FindStringSubmatch(prompt); m != nil {
		out["ask_amount"] = parseAmount(m[1], m[2])
	}

	body, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return "```json\n" + string(body) + "\n```", nil
}

// containsWord reports whether kw occurs in s delimited by non-letter
// characters, so "ai" does not fire inside "raising".
func containsWord(s, kw string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(kw)
		leftOK := start == 0 || !isLetter(s[start-1])
		rightOK := end == len(s) || !isLetter(s[end])
		if leftOK && rightOK {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func canonicalStage(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "series "):
		return "Series " + strings.ToUpper(s[len("series "):])
	case s == "pre-seed":
		return "Pre-Seed"
	case s == "":
		return s
	default:
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

func parseAmount(num, unit string) float64 {
	v, _ := strconv.ParseFloat(num, 64)
	switch strings.ToLower(unit) {
	case "m", "million":
		v *= 1_000_000
	case "k":
		v *= 1_000
	}
	return v
}
