package store

import (
	"sort"
	"sync"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

// MemoryStore keeps jobs and credits in-process. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]domain.SummaryJob
	credits map[string]domain.Credits // key: owner ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]domain.SummaryJob),
		credits: make(map[string]domain.Credits),
	}
}

func (m *MemoryStore) CreateJob(job domain.SummaryJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *MemoryStore) GetJob(id string) (domain.SummaryJob, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return copyJob(job), ok, nil
}

// ListJobsByOwner returns jobs newest first.
func (m *MemoryStore) ListJobsByOwner(ownerID string, limit int) ([]domain.SummaryJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.SummaryJob, 0)
	for _, job := range m.jobs {
		if job.OwnerID == ownerID {
			res = append(res, copyJob(job))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) DeleteJob(ownerID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return false, nil
	}
	delete(m.jobs, id)
	return true, nil
}

func (m *MemoryStore) ClaimJob(id string) (bool, error) {
	return m.transition(id, domain.StatusPending, func(job *domain.SummaryJob) {
		job.Status = domain.StatusProcessing
	}), nil
}

func (m *MemoryStore) CompleteJob(id, text string, metadata map[string]string) (bool, error) {
	return m.transition(id, domain.StatusProcessing, func(job *domain.SummaryJob) {
		job.Status = domain.StatusCompleted
		job.Text = text
		if len(metadata) > 0 {
			job.Metadata = copyMap(metadata)
		}
	}), nil
}

func (m *MemoryStore) FailJob(id, errMsg string) (bool, error) {
	return m.transition(id, domain.StatusProcessing, func(job *domain.SummaryJob) {
		job.Status = domain.StatusFailed
		job.ErrorMessage = errMsg
	}), nil
}

func (m *MemoryStore) transition(id string, from domain.JobStatus, apply func(*domain.SummaryJob)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != from {
		return false
	}
	apply(&job)
	job.UpdatedAt = time.Now().UTC()
	m.jobs[id] = job
	return true
}

func (m *MemoryStore) SetExportKey(id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.ExportKey = key
		m.jobs[id] = job
	}
	return nil
}

func (m *MemoryStore) ListStuckJobs(status domain.JobStatus, updatedBefore time.Time, limit int) ([]domain.SummaryJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.SummaryJob, 0)
	for _, job := range m.jobs {
		if job.Status == status && job.UpdatedAt.Before(updatedBefore) {
			res = append(res, copyJob(job))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].UpdatedAt.Before(res[j].UpdatedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) GetOrCreateCredits(ownerID string) (domain.Credits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[ownerID]
	if !ok {
		c = domain.DefaultCredits(ownerID, time.Now().UTC())
		m.credits[ownerID] = c
	}
	return c, nil
}

func (m *MemoryStore) ConsumeCredit(ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credits[ownerID]
	if !ok || c.SummariesLeft <= 0 {
		return false, nil
	}
	c.SummariesLeft--
	c.UpdatedAt = time.Now().UTC()
	m.credits[ownerID] = c
	return true, nil
}

func (m *MemoryStore) RefundCredit(ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.credits[ownerID]; ok {
		c.SummariesLeft++
		c.UpdatedAt = time.Now().UTC()
		m.credits[ownerID] = c
	}
	return nil
}

func (m *MemoryStore) SaveCredits(c domain.Credits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.credits[c.OwnerID]; ok && c.CreatedAt.IsZero() {
		c.CreatedAt = existing.CreatedAt
	}
	m.credits[c.OwnerID] = c
	return nil
}

func (m *MemoryStore) GetCreditsByCustomer(customerID string) (domain.Credits, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.credits {
		if customerID != "" && c.CustomerID == customerID {
			return c, true, nil
		}
	}
	return domain.Credits{}, false, nil
}

func copyJob(job domain.SummaryJob) domain.SummaryJob {
	job.Metadata = copyMap(job.Metadata)
	return job
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
