// Package domain holds the core entities and ports of the matching pipeline.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrInternal        = errors.New("internal error")
)

// JobStatus is the lifecycle state of a match job.
// The wire representation is exactly these lowercase snake_case strings.
type JobStatus string

const (
	JobPending           JobStatus = "pending"
	JobAnalyzingDeck     JobStatus = "analyzing_deck"
	JobMatchingFirms     JobStatus = "matching_firms"
	JobMatchingInvestors JobStatus = "matching_investors"
	JobComplete          JobStatus = "complete"
	JobFailed            JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool { return s == JobComplete || s == JobFailed }

// ExtractedProfile is the structured view of a pitch deck produced by the
// deck extractor. Every field is optional; a zero value means "no signal"
// and must never be treated as a mismatch by the scorer.
type ExtractedProfile struct {
	CompanyName   string   `json:"company_name,omitempty"`
	Industries    []string `json:"industries,omitempty"`
	Stage         string   `json:"stage,omitempty"`
	Location      string   `json:"location,omitempty"`
	Problem       string   `json:"problem,omitempty"`
	Solution      string   `json:"solution,omitempty"`
	Market        string   `json:"market,omitempty"`
	BusinessModel string   `json:"business_model,omitempty"`
	Traction      string   `json:"traction,omitempty"`
	Team          []string `json:"team,omitempty"`
	Competitors   []string `json:"competitors,omitempty"`
	AskAmount     *float64 `json:"ask_amount,omitempty"`
	UseOfFunds    string   `json:"use_of_funds,omitempty"`
	Website       string   `json:"website,omitempty"`
}

// IsEmpty reports whether extraction produced no usable signal at all.
func (p ExtractedProfile) IsEmpty() bool {
	return p.CompanyName == "" && len(p.Industries) == 0 && p.Stage == "" &&
		p.Location == "" && p.Problem == "" && p.Solution == "" && p.Market == ""
}

// Merge backfills empty fields from other. Fields already present on p win;
// only gaps are filled ("extracted wins, startup fills gaps").
func (p ExtractedProfile) Merge(other ExtractedProfile) ExtractedProfile {
	if p.CompanyName == "" {
		p.CompanyName = other.CompanyName
	}
	if len(p.Industries) == 0 {
		p.Industries = other.Industries
	}
	if p.Stage == "" {
		p.Stage = other.Stage
	}
	if p.Location == "" {
		p.Location = other.Location
	}
	if p.Problem == "" {
		p.Problem = other.Problem
	}
	if p.Solution == "" {
		p.Solution = other.Solution
	}
	if p.Market == "" {
		p.Market = other.Market
	}
	if p.BusinessModel == "" {
		p.BusinessModel = other.BusinessModel
	}
	if p.Traction == "" {
		p.Traction = other.Traction
	}
	if len(p.Team) == 0 {
		p.Team = other.Team
	}
	if len(p.Competitors) == 0 {
		p.Competitors = other.Competitors
	}
	if p.AskAmount == nil {
		p.AskAmount = other.AskAmount
	}
	if p.UseOfFunds == "" {
		p.UseOfFunds = other.UseOfFunds
	}
	if p.Website == "" {
		p.Website = other.Website
	}
	return p
}

// InvestorProfile is a read-only snapshot of an individual investor from the
// CRM-sourced pool. Custom may carry richer sector/stage/geography data that
// overrides the primary fields when present.
type InvestorProfile struct {
	ID           string
	Name         string
	Email        string
	Active       bool
	InvestorType string
	Stages       []string
	Sectors      []string
	Location     string
	FirmID       string
	FirmName     string
	Custom       map[string]string
}

// SectorFocus resolves the sector tags, preferring custom-field overrides.
func (i InvestorProfile) SectorFocus() []string {
	return overrideList(i.Custom, "sectors", i.Sectors)
}

// StagePreference resolves the preferred stages, preferring overrides.
func (i InvestorProfile) StagePreference() []string {
	return overrideList(i.Custom, "stages", i.Stages)
}

// Region resolves the location, preferring custom-field overrides.
func (i InvestorProfile) Region() string {
	return overrideString(i.Custom, "location", i.Location)
}

// FirmProfile is a read-only snapshot of an investment firm.
type FirmProfile struct {
	ID        string
	Name      string
	FirmType  string
	Stages    []string
	Sectors   []string
	Location  string
	CheckSize string
	Custom    map[string]string
}

// SectorFocus resolves the sector tags, preferring custom-field overrides.
func (f FirmProfile) SectorFocus() []string {
	return overrideList(f.Custom, "sectors", f.Sectors)
}

// StagePreference resolves the preferred stages, preferring overrides.
func (f FirmProfile) StagePreference() []string {
	return overrideList(f.Custom, "stages", f.Stages)
}

// Region resolves the location, preferring custom-field overrides.
func (f FirmProfile) Region() string {
	return overrideString(f.Custom, "location", f.Location)
}

func overrideString(custom map[string]string, key, primary string) string {
	if v, ok := custom[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return primary
}

func overrideList(custom map[string]string, key string, primary []string) []string {
	if v, ok := custom[key]; ok && strings.TrimSpace(v) != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return primary
}

// ProfileSnapshot is the denormalized public view of the matched record
// embedded in a MatchResult.
type ProfileSnapshot struct {
	InvestorType string   `json:"investor_type,omitempty"`
	FirmType     string   `json:"firm_type,omitempty"`
	Stages       []string `json:"stages,omitempty"`
	Sectors      []string `json:"sectors,omitempty"`
	Location     string   `json:"location,omitempty"`
	CheckSize    string   `json:"check_size,omitempty"`
}

// MatchResult is one ranked recommendation. Immutable once produced.
type MatchResult struct {
	InvestorID  string          `json:"investor_id,omitempty"`
	FirmID      string          `json:"firm_id,omitempty"`
	Name        string          `json:"name"`
	Email       string          `json:"email,omitempty"`
	FirmName    string          `json:"firm_name,omitempty"`
	Score       int             `json:"score"`
	Reasons     []string        `json:"reasons"`
	Snapshot    ProfileSnapshot `json:"snapshot"`
	IsFirmMatch bool            `json:"is_firm_match"`
}

// SupplementaryDoc is an extra text document submitted alongside the deck.
type SupplementaryDoc struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// MatchJob is the persisted record of one pipeline run.
// Invariants: status=complete implies Results present and Progress=100;
// status=failed implies Error non-empty; Progress is monotonically
// non-decreasing while the job is not failed.
type MatchJob struct {
	ID          string
	OwnerID     string
	StartupID   string
	SourceDoc   string
	Status      JobStatus
	Progress    int
	Step        string
	Profile     *ExtractedProfile
	Results     []MatchResult
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// JobEvent is the payload pushed over the live channel at each checkpoint.
type JobEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"-"`
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Step     string `json:"step,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Event types delivered to live connections.
const (
	EventNotification = "notification"
	EventDealUpdate   = "deal_update"
)

// Repositories (ports)

// MatchJobRepository persists match jobs. The orchestrator is the single
// writer; every transition write is atomic (status, progress, step and
// updated_at in one statement).
type MatchJobRepository interface {
	Create(ctx Context, j MatchJob) (string, error)
	Get(ctx Context, id string) (MatchJob, error)
	ListByOwner(ctx Context, ownerID string) ([]MatchJob, error)
	Advance(ctx Context, id string, status JobStatus, progress int, step string) error
	AttachProfile(ctx Context, id string, p ExtractedProfile) error
	Complete(ctx Context, id string, results []MatchResult) error
	Fail(ctx Context, id string, errMsg string) error
	ListStale(ctx Context, cutoff time.Time, limit int) ([]MatchJob, error)
}

// InvestorRepository reads bounded snapshots of the investor pool.
// Only active investors are returned.
type InvestorRepository interface {
	ListByFirmIDs(ctx Context, firmIDs []string) ([]InvestorProfile, error)
	ListActive(ctx Context, excludeIDs []string, limit int) ([]InvestorProfile, error)
}

// FirmRepository reads a bounded snapshot of the firm pool, newest first.
type FirmRepository interface {
	ListRecent(ctx Context, limit int) ([]FirmProfile, error)
}

// StartupRepository reads stored startup profiles for gap-filling.
type StartupRepository interface {
	GetProfile(ctx Context, id string) (ExtractedProfile, error)
}

// CompletionClient is the black-box text-completion collaborator. One prompt
// in, free text out; callers extract what they need from the response.
type CompletionClient interface {
	Complete(ctx Context, prompt string) (string, error)
}

// Notifier delivers job events to the owning user's live connections.
// Delivery is best effort; a user with no open connections is a no-op.
type Notifier interface {
	Publish(ctx Context, ev JobEvent)
}

// Context aliases context.Context so ports stay terse.
type Context = context.Context
