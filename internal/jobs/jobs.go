// Package jobs owns the lifecycle of asynchronous ingestion jobs: a
// process-singleton manager with a state machine, a global concurrency cap,
// a per-tenant cooldown, and a sweeper for finished jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/ingest"
	"github.com/wedosoft/project-a/internal/logging"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Defaults for the manager invariants.
const (
	DefaultMaxConcurrent = 2
	DefaultCooldown      = 5 * time.Minute
	DefaultRetention     = 24 * time.Hour
	gcInterval           = time.Hour
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when an operation does not apply to the
// job's current state.
var ErrInvalidTransition = errors.New("invalid job state transition")

// ErrCooldown is returned when a tenant completed a job too recently.
var ErrCooldown = errors.New("tenant completed a job within the cooldown window")

// Job is one asynchronous ingestion run.
type Job struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Platform     string         `json:"platform"`
	Status       Status         `json:"status"`
	ForceRebuild bool           `json:"force_rebuild"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Error        string         `json:"error,omitempty"`
	Report       *ingest.Report `json:"report,omitempty"`

	opts ingest.Options
	ctrl *ingest.ChannelControl
}

// Runner executes one ingestion; the engine implements it.
type Runner interface {
	Run(ctx context.Context, opts ingest.Options, ctrl ingest.Control) (*ingest.Report, error)
}

// Manager is the process-singleton job owner.
type Manager struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	lastSuccess map[string]time.Time // tenant:platform -> completion time

	runner        Runner
	sem           *semaphore.Weighted
	cooldown      time.Duration
	retention     time.Duration
	maxConcurrent int

	wg  sync.WaitGroup
	log zerolog.Logger
	now func() time.Time
}

// NewManager creates a manager running jobs on runner.
func NewManager(runner Runner, maxConcurrent int, cooldown time.Duration) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Manager{
		jobs:          make(map[string]*Job),
		lastSuccess:   make(map[string]time.Time),
		runner:        runner,
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		cooldown:      cooldown,
		retention:     DefaultRetention,
		maxConcurrent: maxConcurrent,
		log:           logging.WithComponent("jobs"),
		now:           time.Now,
	}
}

func tenantKey(tenantID, platform string) string { return tenantID + ":" + platform }

// CreateJob registers a pending job.
func (m *Manager) CreateJob(opts ingest.Options, forceRebuild bool) (*Job, error) {
	if opts.TenantID == "" || opts.Platform == "" {
		return nil, apperr.New(apperr.KindValidation, "jobs", "tenant id and platform required")
	}

	job := &Job{
		ID:           uuid.NewString(),
		TenantID:     opts.TenantID,
		Platform:     opts.Platform,
		Status:       StatusPending,
		ForceRebuild: forceRebuild,
		CreatedAt:    m.now(),
		opts:         opts,
		ctrl:         ingest.NewChannelControl(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return job, nil
}

// StartJob transitions a pending job to running and launches its worker.
// The cooldown invariant is enforced here: a tenant that completed a job
// successfully within the window may only start again with force_rebuild.
func (m *Manager) StartJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindNotFound, "jobs", jobID, ErrJobNotFound)
	}
	if job.Status != StatusPending {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindValidation, "jobs",
			fmt.Sprintf("cannot start job in state %s", job.Status), ErrInvalidTransition)
	}
	if !job.ForceRebuild {
		if last, ok := m.lastSuccess[tenantKey(job.TenantID, job.Platform)]; ok &&
			m.now().Sub(last) < m.cooldown {
			m.mu.Unlock()
			return apperr.Wrap(apperr.KindRateLimit, "jobs",
				fmt.Sprintf("tenant %s completed a job %s ago", job.TenantID, m.now().Sub(last).Round(time.Second)),
				ErrCooldown)
		}
	}
	job.Status = StatusRunning
	started := m.now()
	job.StartedAt = &started
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runJob(ctx, job)
	return nil
}

func (m *Manager) runJob(ctx context.Context, job *Job) {
	defer m.wg.Done()
	log := logging.WithJob(logging.WithTenant(m.log, job.TenantID, job.Platform), job.ID)

	// The concurrency cap applies to actual execution; a job queued behind
	// the semaphore stays RUNNING from the caller's perspective.
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finishJob(job, nil, err)
		return
	}
	defer m.sem.Release(1)

	log.Info().Msg("job started")
	report, err := m.runner.Run(ctx, job.opts, job.ctrl)
	m.finishJob(job, report, err)

	switch {
	case err == nil:
		log.Info().Int("tickets", report.TicketsIngested).Msg("job completed")
	case errors.Is(err, ingest.ErrCancelled):
		log.Info().Msg("job cancelled")
	default:
		log.Error().Err(err).Msg("job failed")
	}
}

func (m *Manager) finishJob(job *Job, report *ingest.Report, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	finished := m.now()
	job.FinishedAt = &finished
	job.Report = report

	switch {
	case err == nil:
		job.Status = StatusCompleted
		m.lastSuccess[tenantKey(job.TenantID, job.Platform)] = finished
	case errors.Is(err, ingest.ErrCancelled):
		job.Status = StatusCancelled
	default:
		job.Status = StatusFailed
		job.Error = err.Error()
	}
}

// PauseJob asks a running job to pause at its next checkpoint.
func (m *Manager) PauseJob(jobID string) error {
	return m.signal(jobID, StatusRunning, StatusPaused, func(j *Job) { j.ctrl.Pause() })
}

// ResumeJob releases a paused job.
func (m *Manager) ResumeJob(jobID string) error {
	return m.signal(jobID, StatusPaused, StatusRunning, func(j *Job) { j.ctrl.Resume() })
}

func (m *Manager) signal(jobID string, from, to Status, fire func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return apperr.Wrap(apperr.KindNotFound, "jobs", jobID, ErrJobNotFound)
	}
	if job.Status != from {
		return apperr.Wrap(apperr.KindValidation, "jobs",
			fmt.Sprintf("cannot move job from %s to %s", job.Status, to), ErrInvalidTransition)
	}
	fire(job)
	job.Status = to
	return nil
}

// CancelJob cancels a pending, running, or paused job.
func (m *Manager) CancelJob(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return apperr.Wrap(apperr.KindNotFound, "jobs", jobID, ErrJobNotFound)
	}
	switch job.Status {
	case StatusPending:
		// Never started; terminal immediately.
		job.Status = StatusCancelled
		finished := m.now()
		job.FinishedAt = &finished
		return nil
	case StatusRunning, StatusPaused:
		// The worker observes the signal at its next checkpoint and
		// transitions the job when it unwinds.
		job.ctrl.Cancel()
		return nil
	default:
		return apperr.Wrap(apperr.KindValidation, "jobs",
			fmt.Sprintf("cannot cancel job in state %s", job.Status), ErrInvalidTransition)
	}
}

// GetJob returns a copy of the job.
func (m *Manager) GetJob(jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, apperr.Wrap(apperr.KindNotFound, "jobs", jobID, ErrJobNotFound)
	}
	c := *job
	return &c, nil
}

// ListJobs returns jobs filtered by tenant and status, newest first.
func (m *Manager) ListJobs(tenantID string, status Status, limit, offset int) []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Job
	for _, job := range m.jobs {
		if tenantID != "" && job.TenantID != tenantID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		c := *job
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Metrics summarizes job counts and ingestion totals.
type Metrics struct {
	ByStatus        map[Status]int `json:"by_status"`
	Total           int            `json:"total"`
	TicketsIngested int            `json:"tickets_ingested"`
	MaxConcurrent   int            `json:"max_concurrent"`
}

// GetMetrics aggregates over all jobs, or one tenant's when tenantID is set.
func (m *Manager) GetMetrics(tenantID string) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := Metrics{ByStatus: make(map[Status]int), MaxConcurrent: m.maxConcurrent}
	for _, job := range m.jobs {
		if tenantID != "" && job.TenantID != tenantID {
			continue
		}
		metrics.ByStatus[job.Status]++
		metrics.Total++
		if job.Report != nil {
			metrics.TicketsIngested += job.Report.TicketsIngested
		}
	}
	return metrics
}

// StartSweeper launches the background GC that drops terminal jobs older
// than the retention window. It returns immediately; the loop stops when
// ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.retention)
	for id, job := range m.jobs {
		if job.Status.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

// Wait blocks until all running workers return. Used on shutdown.
func (m *Manager) Wait() { m.wg.Wait() }
