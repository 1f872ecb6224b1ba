package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Karthik-guddanti/digantara/internal/job"
)

// Memory is a mutex-guarded in-process Store. It backs tests and the
// "memory" driver; semantics match the sqlite driver field for field.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]job.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]job.Job)}
}

func (m *Memory) Create(_ context.Context, in CreateJob) (job.Job, error) {
	now := time.Now().UTC()
	j := job.Job{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		CronSchedule: in.CronSchedule,
		Type:         in.Type.Normalize(),
		Data:         in.Data,
		Status:       job.StatusActive,
		NextRun:      in.NextRun,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	m.mu.Lock()
	m.jobs[j.ID] = j
	m.mu.Unlock()
	return j, nil
}

func (m *Memory) FindByID(_ context.Context, id string) (job.Job, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return job.Job{}, ErrNotFound
	}
	return j, nil
}

func (m *Memory) FindAll(_ context.Context) ([]job.Job, error) {
	m.mu.RLock()
	out := make([]job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (m *Memory) FindActive(ctx context.Context) ([]job.Job, error) {
	all, err := m.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, j := range all {
		if j.Status == job.StatusActive {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *Memory) MarkCompleted(_ context.Context, id string, lastRun time.Time) error {
	return m.update(id, func(j *job.Job) {
		j.Status = job.StatusActive
		lr := lastRun
		j.LastRun = &lr
	})
}

func (m *Memory) MarkFailed(_ context.Context, id string, lastRun time.Time) error {
	return m.update(id, func(j *job.Job) {
		j.Status = job.StatusFailed
		lr := lastRun
		j.LastRun = &lr
	})
}

func (m *Memory) UpdateNextRun(_ context.Context, id string, next time.Time) error {
	return m.update(id, func(j *job.Job) {
		n := next
		j.NextRun = &n
	})
}

func (m *Memory) UpdateStatus(_ context.Context, id string, status job.Status) error {
	return m.update(id, func(j *job.Job) {
		j.Status = status
	})
}

func (m *Memory) Close() error { return nil }

func (m *Memory) update(id string, mutate func(*job.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	mutate(&j)
	j.UpdatedAt = time.Now().UTC()
	m.jobs[id] = j
	return nil
}
