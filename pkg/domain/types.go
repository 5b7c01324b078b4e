package domain

import (
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a summary job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorPrefix tags failed content in the legacy single-field rendering.
const ErrorPrefix = "Error:"

type Format string

const (
	FormatParagraph   Format = "paragraph"
	FormatBullets     Format = "bullets"
	FormatTimestamped Format = "timestamped"
)

// ParseFormat accepts an empty value as paragraph.
func ParseFormat(raw string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatParagraph:
		return FormatParagraph, true
	case FormatBullets:
		return FormatBullets, true
	case FormatTimestamped:
		return FormatTimestamped, true
	default:
		return "", false
	}
}

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
	LanguageFrench  Language = "fr"
)

// ParseLanguage accepts an empty value as English.
func ParseLanguage(raw string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(raw))) {
	case "", LanguageEnglish:
		return LanguageEnglish, true
	case LanguageSpanish:
		return LanguageSpanish, true
	case LanguageFrench:
		return LanguageFrench, true
	default:
		return "", false
	}
}

// SummaryJob is one request to summarize a single video.
// Status is stored explicitly; Text is set only when completed and
// ErrorMessage only when failed.
type SummaryJob struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"ownerId"`
	SourceReference string            `json:"sourceReference"`
	VideoID         string            `json:"videoId,omitempty"`
	Format          Format            `json:"format"`
	Language        Language          `json:"language"`
	Status          JobStatus         `json:"status"`
	Text            string            `json:"content,omitempty"`
	ErrorMessage    string            `json:"error,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ExportKey       string            `json:"-"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Content renders the job in the legacy single-field form:
// the status marker while in flight, the text when completed and
// "Error: <msg>" when failed.
func (j SummaryJob) Content() string {
	switch j.Status {
	case StatusPending, StatusProcessing:
		return string(j.Status)
	case StatusFailed:
		return ErrorPrefix + " " + j.ErrorMessage
	default:
		return j.Text
	}
}

// ClassifyContent derives status and error from a legacy single-field value.
// Text that equals a marker or starts with the error prefix is misclassified;
// only rows imported without a status go through this path.
func ClassifyContent(content string) (JobStatus, string) {
	switch {
	case content == string(StatusPending):
		return StatusPending, ""
	case content == string(StatusProcessing):
		return StatusProcessing, ""
	case strings.HasPrefix(content, ErrorPrefix):
		return StatusFailed, strings.TrimSpace(content[len(ErrorPrefix):])
	default:
		return StatusCompleted, ""
	}
}

// StatusView is what pollers observe.
type StatusView struct {
	SummaryID   string     `json:"summaryId"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewStatusView builds the poller payload. Completion time is reported as
// the creation time; it is not tracked independently.
func NewStatusView(job SummaryJob) StatusView {
	view := StatusView{
		SummaryID: job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}
	switch job.Status {
	case StatusFailed:
		view.Error = job.ErrorMessage
	case StatusCompleted:
		completed := job.CreatedAt
		view.CompletedAt = &completed
	}
	return view
}

type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

type Plan struct {
	ID             PlanID   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	SummariesLimit int      `json:"summariesLimit"`
	Features       []string `json:"features"`
}

// Plans is the catalogue offered to users.
var Plans = []Plan{
	{
		ID:             PlanFree,
		Name:           "Free",
		Description:    "Perfect for trying out the service",
		Price:          0,
		SummariesLimit: 3,
		Features:       []string{"3 video summaries per month", "Basic summary quality", "Email support"},
	},
	{
		ID:             PlanPro,
		Name:           "Pro",
		Description:    "Best for content creators",
		Price:          9.99,
		SummariesLimit: 20,
		Features:       []string{"20 video summaries per month", "Enhanced summary quality", "Priority support", "Custom summary formats"},
	},
	{
		ID:             PlanEnterprise,
		Name:           "Enterprise",
		Description:    "For teams and businesses",
		Price:          29.99,
		SummariesLimit: 50,
		Features:       []string{"50 video summaries per month", "Premium summary quality", "24/7 priority support", "Custom summary formats", "API access", "Team management"},
	},
}

// PlanLimit returns the summary allowance of a plan, 0 when unknown.
func PlanLimit(id PlanID) int {
	for _, p := range Plans {
		if p.ID == id {
			return p.SummariesLimit
		}
	}
	return 0
}

// FreeMaxDurationSeconds caps video length for free plans.
const FreeMaxDurationSeconds = 900

type SubscriptionStatus string

const SubscriptionActive SubscriptionStatus = "active"

// Credits tracks an owner's plan and remaining allowance.
type Credits struct {
	OwnerID            string             `json:"-"`
	Plan               PlanID             `json:"plan"`
	SummariesLeft      int                `json:"summariesLeft"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	CustomerID         string             `json:"stripeCustomerId,omitempty"`
	SubscriptionID     string             `json:"subscriptionId,omitempty"`
	CreatedAt          time.Time          `json:"-"`
	UpdatedAt          time.Time          `json:"-"`
}

// DefaultCredits is the record created for an owner on first use.
func DefaultCredits(ownerID string, now time.Time) Credits {
	return Credits{
		OwnerID:            ownerID,
		Plan:               PlanFree,
		SummariesLeft:      PlanLimit(PlanFree),
		SubscriptionStatus: SubscriptionActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
