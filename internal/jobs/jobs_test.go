package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wedosoft/project-a/internal/apperr"
	"github.com/wedosoft/project-a/internal/ingest"
)

// fakeRunner scripts the engine side of a job.
type fakeRunner struct {
	run func(ctx context.Context, opts ingest.Options, ctrl ingest.Control) (*ingest.Report, error)
}

func (f *fakeRunner) Run(ctx context.Context, opts ingest.Options, ctrl ingest.Control) (*ingest.Report, error) {
	return f.run(ctx, opts, ctrl)
}

func instantRunner(report *ingest.Report, err error) *fakeRunner {
	return &fakeRunner{run: func(context.Context, ingest.Options, ingest.Control) (*ingest.Report, error) {
		return report, err
	}}
}

func waitForStatus(t *testing.T, m *Manager, jobID string, want Status) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.GetJob(jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := m.GetJob(jobID)
	t.Fatalf("job %s stuck in %s, want %s", jobID, job.Status, want)
	return nil
}

func testOptions() ingest.Options {
	return ingest.Options{TenantID: "acme", Platform: "freshdesk"}
}

func TestJobLifecycleCompletes(t *testing.T) {
	m := NewManager(instantRunner(&ingest.Report{TicketsIngested: 7}, nil), 2, time.Minute)
	ctx := context.Background()

	job, err := m.CreateJob(testOptions(), false)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusPending {
		t.Fatalf("new job status = %s", job.Status)
	}

	if err := m.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	done := waitForStatus(t, m, job.ID, StatusCompleted)
	if done.Report == nil || done.Report.TicketsIngested != 7 {
		t.Errorf("report = %+v", done.Report)
	}
	if done.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestCooldownBlocksRestart(t *testing.T) {
	m := NewManager(instantRunner(&ingest.Report{}, nil), 2, time.Minute)
	ctx := context.Background()

	first, _ := m.CreateJob(testOptions(), false)
	if err := m.StartJob(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, first.ID, StatusCompleted)

	second, _ := m.CreateJob(testOptions(), false)
	err := m.StartJob(ctx, second.ID)
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("err = %v, want ErrCooldown", err)
	}
	if !apperr.IsKind(err, apperr.KindRateLimit) {
		t.Errorf("kind = %v, want KindRateLimit", apperr.KindOf(err))
	}

	// force_rebuild bypasses the cooldown.
	forced, _ := m.CreateJob(testOptions(), true)
	if err := m.StartJob(ctx, forced.ID); err != nil {
		t.Fatalf("forced start: %v", err)
	}
	waitForStatus(t, m, forced.ID, StatusCompleted)

	// A different tenant is unaffected.
	other, _ := m.CreateJob(ingest.Options{TenantID: "beta", Platform: "freshdesk"}, false)
	if err := m.StartJob(ctx, other.ID); err != nil {
		t.Errorf("other tenant blocked: %v", err)
	}
	waitForStatus(t, m, other.ID, StatusCompleted)
}

func TestFailedJobRecordsError(t *testing.T) {
	m := NewManager(instantRunner(nil, errors.New("upstream exploded")), 2, time.Minute)
	job, _ := m.CreateJob(testOptions(), false)
	if err := m.StartJob(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	failed := waitForStatus(t, m, job.ID, StatusFailed)
	if failed.Error == "" {
		t.Error("error message not recorded")
	}

	// FAILED leaves no cooldown behind.
	retry, _ := m.CreateJob(testOptions(), false)
	if err := m.StartJob(context.Background(), retry.ID); err != nil {
		t.Errorf("restart after failure blocked: %v", err)
	}
	waitForStatus(t, m, retry.ID, StatusFailed)
}

func TestPauseResumeCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, opts ingest.Options, ctrl ingest.Control) (*ingest.Report, error) {
		close(started)
		for {
			if err := ctrl.Checkpoint(ctx); err != nil {
				return &ingest.Report{Cancelled: true}, err
			}
			time.Sleep(time.Millisecond)
		}
	}}
	m := NewManager(runner, 2, time.Minute)
	ctx := context.Background()

	job, _ := m.CreateJob(testOptions(), false)
	if err := m.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := m.PauseJob(job.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := m.PauseJob(job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double pause err = %v, want ErrInvalidTransition", err)
	}
	if err := m.ResumeJob(job.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if err := m.CancelJob(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	cancelled := waitForStatus(t, m, job.ID, StatusCancelled)
	if cancelled.Report == nil || !cancelled.Report.Cancelled {
		t.Errorf("report = %+v, want cancelled report", cancelled.Report)
	}
}

func TestCancelPendingJob(t *testing.T) {
	m := NewManager(instantRunner(&ingest.Report{}, nil), 2, time.Minute)
	job, _ := m.CreateJob(testOptions(), false)

	if err := m.CancelJob(job.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := m.GetJob(job.ID)
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}

	if err := m.StartJob(context.Background(), job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("start after cancel err = %v, want ErrInvalidTransition", err)
	}
	if err := m.CancelJob(job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestConcurrencyCap(t *testing.T) {
	var executing, peak int32
	release := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, opts ingest.Options, ctrl ingest.Control) (*ingest.Report, error) {
		cur := atomic.AddInt32(&executing, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		<-release
		atomic.AddInt32(&executing, -1)
		return &ingest.Report{}, nil
	}}
	m := NewManager(runner, 2, time.Minute)
	ctx := context.Background()

	var ids []string
	for _, tenant := range []string{"t1", "t2", "t3"} {
		job, _ := m.CreateJob(ingest.Options{TenantID: tenant, Platform: "freshdesk"}, false)
		if err := m.StartJob(ctx, job.ID); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, job.ID)
	}

	time.Sleep(50 * time.Millisecond)
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("peak concurrent executions = %d, want <= 2", p)
	}
	close(release)
	for _, id := range ids {
		waitForStatus(t, m, id, StatusCompleted)
	}
}

func TestListJobsFiltersAndPaginates(t *testing.T) {
	m := NewManager(instantRunner(&ingest.Report{}, nil), 2, time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	for i := 0; i < 3; i++ {
		if _, err := m.CreateJob(ingest.Options{TenantID: "acme", Platform: "freshdesk"}, false); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := m.CreateJob(ingest.Options{TenantID: "beta", Platform: "freshdesk"}, false); err != nil {
		t.Fatal(err)
	}

	acme := m.ListJobs("acme", "", 0, 0)
	if len(acme) != 3 {
		t.Fatalf("acme jobs = %d, want 3", len(acme))
	}
	if !acme[0].CreatedAt.After(acme[1].CreatedAt) {
		t.Error("jobs not sorted newest first")
	}

	page := m.ListJobs("acme", StatusPending, 2, 1)
	if len(page) != 2 {
		t.Errorf("paged jobs = %d, want 2", len(page))
	}
	if none := m.ListJobs("acme", StatusCompleted, 0, 0); len(none) != 0 {
		t.Errorf("completed filter returned %d", len(none))
	}

	metrics := m.GetMetrics("")
	if metrics.Total != 4 || metrics.ByStatus[StatusPending] != 4 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestSweepDropsOldTerminalJobs(t *testing.T) {
	m := NewManager(instantRunner(&ingest.Report{}, nil), 2, time.Minute)
	ctx := context.Background()

	job, _ := m.CreateJob(testOptions(), false)
	if err := m.StartJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, job.ID, StatusCompleted)

	pending, _ := m.CreateJob(ingest.Options{TenantID: "beta", Platform: "freshdesk"}, false)

	// Move the clock a day forward; only the terminal job is swept.
	m.now = func() time.Time { return time.Now().Add(DefaultRetention + time.Hour) }
	m.sweep()

	if _, err := m.GetJob(job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("terminal job survived sweep: %v", err)
	}
	if _, err := m.GetJob(pending.ID); err != nil {
		t.Errorf("pending job swept: %v", err)
	}
}

func TestStartSweeperReturnsImmediately(t *testing.T) {
	m := NewManager(instantRunner(&ingest.Report{}, nil), 2, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.StartSweeper(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartSweeper blocked the caller with a live context")
	}
}
