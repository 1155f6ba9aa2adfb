// Package worker runs the scheduler loop: poll for due tasks, claim each via
// the atomic lease, dispatch, record the execution, and advance or retire the
// task. Any number of workers may share one store; the lease compare-and-set
// is the only coordination between them.
package worker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/temporal-agent/temporal-agent-mcp/internal/dispatch"
	"github.com/temporal-agent/temporal-agent-mcp/internal/schedule"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

var tracer = otel.Tracer("temporal-agent-mcp/worker")

const (
	DefaultPollInterval = 10 * time.Second
	DefaultBatchSize    = 50
	DefaultLockTimeout  = 60 * time.Second

	reapInterval = 5 * time.Minute
)

// Options tunes a Worker. Zero values take the defaults above.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	LockTimeout  time.Duration
}

// Worker is one scheduler process. Polls are serialized per worker; a slow
// batch delays the next tick rather than stacking concurrent polls.
type Worker struct {
	id     string
	repo   store.Repository
	router *dispatch.Router
	eval   *schedule.Evaluator
	opts   Options

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// New creates a worker with a fresh random identity.
func New(repo store.Repository, router *dispatch.Router, eval *schedule.Evaluator, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	return &Worker{
		id:     newWorkerID(),
		repo:   repo,
		router: router,
		eval:   eval,
		opts:   opts,
		now:    time.Now,
	}
}

func newWorkerID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("worker-%d", time.Now().UnixNano())
	}
	return "worker-" + hex.EncodeToString(b)
}

// ID returns the worker's lease identity.
func (w *Worker) ID() string { return w.id }

// Start launches the poll and reap loops. Idempotent.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})

	slog.Info("worker starting", "worker_id", w.id,
		"poll_interval", w.opts.PollInterval, "batch_size", w.opts.BatchSize,
		"lock_timeout", w.opts.LockTimeout)

	w.wg.Add(2)
	go w.pollLoop(ctx, w.stopChan)
	go w.reapLoop(ctx, w.stopChan)
}

// Stop halts the loops and waits for any in-flight poll to finish. Idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	slog.Info("worker stopped", "worker_id", w.id)
}

func (w *Worker) pollLoop(ctx context.Context, stop chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.PollOnce(ctx) // fire anything already due before the first tick
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PollOnce(ctx)
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context, stop chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reapOnce(ctx)
		}
	}
}

func (w *Worker) reapOnce(ctx context.Context) {
	now := w.now()
	freed, err := w.repo.ReapStaleLeases(ctx, now.Add(-w.opts.LockTimeout), now)
	if err != nil {
		slog.Error("reap stale leases", "worker_id", w.id, "error", err)
		return
	}
	if freed > 0 {
		slog.Warn("reaped stale leases", "worker_id", w.id, "count", freed)
	}
}

// PollOnce runs a single poll step: list due tasks and fire every one whose
// lease this worker wins. Exported for tests.
func (w *Worker) PollOnce(ctx context.Context) {
	now := w.now()
	due, err := w.repo.DueTasks(ctx, now, w.opts.BatchSize)
	if err != nil {
		slog.Error("list due tasks", "worker_id", w.id, "error", err)
		return
	}

	for i := range due {
		task := &due[i]
		err := w.repo.AcquireLease(ctx, task.ID, w.id, w.now())
		if errors.Is(err, store.ErrAlreadyLocked) {
			continue // another worker claimed it first
		}
		if err != nil {
			slog.Error("acquire lease", "worker_id", w.id, "task_id", task.ID, "error", err)
			continue
		}
		w.fire(ctx, task)
	}
}

// fire dispatches one claimed task and settles its row. A panic inside a
// dispatcher is converted to a failed attempt so one bad callback cannot take
// the loop down.
func (w *Worker) fire(ctx context.Context, task *store.Task) {
	ctx, span := tracer.Start(ctx, "worker.fire")
	span.SetAttributes(
		attribute.String("task.id", task.ID.String()),
		attribute.String("task.kind", string(task.Kind)),
		attribute.String("task.callback_kind", string(task.CallbackKind)),
	)
	defer span.End()

	firedAt := w.now().UTC()
	firing := dispatch.Firing{
		ScheduledFor: task.DueAt().UTC(),
		FiredAt:      firedAt,
		Index:        task.FireCount,
	}

	exec := &store.Execution{
		TaskID:         task.ID,
		StartedAt:      firedAt,
		Status:         store.ExecRunning,
		RetryNumber:    task.CurrentRetryCount,
		RequestURL:     task.CallbackConfig["url"],
		RequestPayload: task.Payload,
	}
	if err := w.repo.CreateExecution(ctx, exec); err != nil {
		slog.Error("create execution", "worker_id", w.id, "task_id", task.ID, "error", err)
		if err := w.repo.ReleaseLease(ctx, task.ID, w.now()); err != nil {
			slog.Error("release lease", "worker_id", w.id, "task_id", task.ID, "error", err)
		}
		return
	}

	result := w.dispatchSafely(ctx, task, firing)
	finishedAt := w.now().UTC()

	fin := store.ExecutionFinish{
		Status:       store.ExecSuccess,
		ResponseCode: result.StatusCode,
		ResponseBody: result.Body,
		DurationMS:   finishedAt.Sub(firedAt).Milliseconds(),
		FinishedAt:   finishedAt,
	}
	if !result.Success {
		fin.Status = store.ExecFailed
		if errors.Is(result.Err, context.DeadlineExceeded) {
			fin.Status = store.ExecTimeout
		}
		if result.Err != nil {
			fin.ErrorMessage = result.Err.Error()
		}
	}

	// For recurring tasks the next occurrence is computed before the
	// execution record is closed, so an advancement failure lands on it.
	var nextFireAt time.Time
	var advErr error
	if result.Success && task.Kind == store.KindRecurring {
		nextFireAt, advErr = w.eval.NextAfter(task.Cron, task.Timezone, firedAt)
		if advErr != nil {
			fin.ErrorMessage = "advance failed: " + advErr.Error()
		}
	}

	if err := w.repo.FinishExecution(ctx, exec.ID, fin); err != nil {
		slog.Error("finish execution", "worker_id", w.id, "task_id", task.ID, "error", err)
	}

	switch {
	case result.Success && task.Kind == store.KindOneShot:
		if err := w.repo.CompleteOneShot(ctx, task.ID, firedAt); err != nil {
			slog.Error("complete one-shot", "worker_id", w.id, "task_id", task.ID, "error", err)
		}
		slog.Info("task fired", "worker_id", w.id, "task_id", task.ID, "kind", task.Kind)

	case result.Success && advErr != nil:
		// Fired but cannot schedule the next occurrence; retire the task
		// rather than let it sit due forever.
		slog.Error("recurring task cannot advance", "worker_id", w.id, "task_id", task.ID, "error", advErr)
		if err := w.repo.MarkFailed(ctx, task.ID, w.now()); err != nil {
			slog.Error("mark failed", "worker_id", w.id, "task_id", task.ID, "error", err)
		}

	case result.Success:
		if err := w.repo.AdvanceRecurring(ctx, task.ID, firedAt, nextFireAt); err != nil {
			slog.Error("advance recurring", "worker_id", w.id, "task_id", task.ID, "error", err)
		}
		slog.Info("task fired", "worker_id", w.id, "task_id", task.ID, "kind", task.Kind,
			"next_fire_at", nextFireAt)

	default:
		w.settleFailure(ctx, task)
	}
}

// settleFailure applies retry policy after a failed attempt: defer the next
// attempt by retry_delay_seconds until the retry budget runs out, then mark
// the task failed.
func (w *Worker) settleFailure(ctx context.Context, task *store.Task) {
	now := w.now()
	count, err := w.repo.IncrementRetry(ctx, task.ID, now)
	if err != nil {
		slog.Error("increment retry", "worker_id", w.id, "task_id", task.ID, "error", err)
		if err := w.repo.ReleaseLease(ctx, task.ID, now); err != nil {
			slog.Error("release lease", "worker_id", w.id, "task_id", task.ID, "error", err)
		}
		return
	}

	if count > task.MaxRetries {
		slog.Warn("task exhausted retries", "worker_id", w.id, "task_id", task.ID,
			"attempts", count, "max_retries", task.MaxRetries)
		if err := w.repo.MarkFailed(ctx, task.ID, now); err != nil {
			slog.Error("mark failed", "worker_id", w.id, "task_id", task.ID, "error", err)
		}
		return
	}

	delay := time.Duration(task.RetryDelaySeconds) * time.Second
	until := now.Add(delay)
	slog.Warn("task attempt failed, retrying", "worker_id", w.id, "task_id", task.ID,
		"attempt", count, "retry_at", until.UTC())
	if err := w.repo.DeferRetry(ctx, task.ID, task.Kind, until, now); err != nil {
		slog.Error("defer retry", "worker_id", w.id, "task_id", task.ID, "error", err)
	}
}

func (w *Worker) dispatchSafely(ctx context.Context, task *store.Task, f dispatch.Firing) (result dispatch.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher panic", "worker_id", w.id, "task_id", task.ID,
				"panic", r, "stack", string(debug.Stack()))
			result = dispatch.Result{Success: false, Err: fmt.Errorf("dispatcher panic: %v", r)}
		}
	}()
	return w.router.Dispatch(ctx, task, f)
}
