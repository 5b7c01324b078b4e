package store

import (
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

// Store defines persistence operations for summary jobs and credits.
//
// Job transitions are conditional: ClaimJob only moves a pending job to
// processing, CompleteJob and FailJob only finish a processing job. Each
// reports false when no row matched, which happens when the job was
// deleted or already moved on.
type Store interface {
	// jobs
	CreateJob(domain.SummaryJob) error
	GetJob(id string) (domain.SummaryJob, bool, error)
	ListJobsByOwner(ownerID string, limit int) ([]domain.SummaryJob, error)
	DeleteJob(ownerID, id string) (bool, error)
	ClaimJob(id string) (bool, error)
	CompleteJob(id, text string, metadata map[string]string) (bool, error)
	FailJob(id, errMsg string) (bool, error)
	SetExportKey(id, key string) error
	ListStuckJobs(status domain.JobStatus, updatedBefore time.Time, limit int) ([]domain.SummaryJob, error)

	// credits
	GetOrCreateCredits(ownerID string) (domain.Credits, error)
	ConsumeCredit(ownerID string) (bool, error)
	RefundCredit(ownerID string) error
	SaveCredits(domain.Credits) error
	GetCreditsByCustomer(customerID string) (domain.Credits, bool, error)
}
