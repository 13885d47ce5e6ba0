package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/metrics"
	"github.com/oklog/ulid/v2"
)

// JobState is the lifecycle position of a background job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobKindRepo identifies repository ingestion jobs.
const JobKindRepo = "repo"

// Job is a background ingestion task.
type Job struct {
	ID         string        `json:"id"`
	Kind       string        `json:"kind"`
	Scope      core.Scope    `json:"scope"`
	Target     string        `json:"target"`
	State      JobState      `json:"state"`
	Error      string        `json:"error,omitempty"`
	Report     *IngestReport `json:"report,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	StartedAt  *time.Time    `json:"startedAt,omitempty"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j.State == JobSucceeded || j.State == JobFailed
}

// JobStore persists job state.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	// GetJob returns an error wrapping core.ErrJobNotFound for unknown ids.
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)
}

// JobFunc is the work a job performs.
type JobFunc func(ctx context.Context) (*IngestReport, error)

// Jobs runs ingestion work on background goroutines and tracks its state.
// A failing or panicking job is recorded as failed; it never takes the process down.
type Jobs struct {
	store   JobStore
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewJobs creates a runner persisting to store.
func NewJobs(store JobStore, m *metrics.Metrics) *Jobs {
	return &Jobs{store: store, metrics: m}
}

// Start records a pending job and runs fn in the background.
func (j *Jobs) Start(ctx context.Context, scope core.Scope, kind, target string, fn JobFunc) (*Job, error) {
	job := &Job{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Scope:     scope,
		Target:    target,
		State:     JobPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := j.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	snapshot := *job

	j.wg.Add(1)
	go j.run(context.WithoutCancel(ctx), job, fn)

	return &snapshot, nil
}

func (j *Jobs) run(ctx context.Context, job *Job, fn JobFunc) {
	defer j.wg.Done()

	started := time.Now().UTC()
	job.State = JobRunning
	job.StartedAt = &started
	j.update(ctx, job)

	report, err := j.call(ctx, fn)

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	job.Report = report
	if err != nil {
		job.State = JobFailed
		job.Error = jobError(err)
		log.Printf("[JOBS] Job %s (%s %s) failed: %v", job.ID, job.Kind, job.Target, err)
	} else {
		job.State = JobSucceeded
		log.Printf("[JOBS] Job %s (%s %s) succeeded in %s", job.ID, job.Kind, job.Target, finished.Sub(started).Round(time.Millisecond))
	}
	j.metrics.JobFinished(string(job.State))
	j.update(ctx, job)
}

// call runs fn, converting a panic into an error.
func (j *Jobs) call(ctx context.Context, fn JobFunc) (report *IngestReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (j *Jobs) update(ctx context.Context, job *Job) {
	if err := j.store.UpdateJob(ctx, job); err != nil {
		log.Printf("[JOBS] Failed to record state %s for job %s: %v", job.State, job.ID, err)
	}
}

// jobError keeps provider details out of job records; other causes such as
// clone failures are reported verbatim.
func jobError(err error) string {
	var perr *core.ProviderError
	if errors.As(err, &perr) {
		return core.PublicMessage(err)
	}
	return err.Error()
}

// Get returns the current state of a job.
func (j *Jobs) Get(ctx context.Context, id string) (*Job, error) {
	return j.store.GetJob(ctx, id)
}

// Wait blocks until every started job has finished.
func (j *Jobs) Wait() {
	j.wg.Wait()
}

// MemoryJobStore keeps jobs in process memory.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Job)}
}

func (s *MemoryJobStore) CreateJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryJobStore) UpdateJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.ID)
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	return &job, nil
}

func (s *MemoryJobStore) ListJobs(_ context.Context, limit int) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	// ULIDs sort by creation time.
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID > jobs[k].ID })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
