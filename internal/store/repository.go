package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskFilter narrows ListTasks. Zero values mean "no filter" except Status,
// which callers default to active. Limit and Offset are always bound as
// query parameters, never interpolated.
type TaskFilter struct {
	SessionID string
	Status    TaskStatus
	Kind      TaskKind
	Tags      []string
	Limit     int
	Offset    int
}

// Repository is the typed durable store for tasks, executions and stored
// notifications. Implementations must make AcquireLease an atomic
// compare-and-set so that N workers sharing one queue never double-fire.
type Repository interface {
	// --- Tasks ---

	CreateTask(ctx context.Context, t *Task) error

	// GetTask returns the task if it exists and is owned by sessionID.
	GetTask(ctx context.Context, id uuid.UUID, sessionID string) (*Task, error)

	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)

	// CountActive counts active+paused tasks owned by sessionID, for the
	// per-session cap.
	CountActive(ctx context.Context, sessionID string) (int, error)

	// CancelTask transitions active|paused → cancelled.
	CancelTask(ctx context.Context, id uuid.UUID, sessionID string, now time.Time) error

	// PauseTask transitions active → paused.
	PauseTask(ctx context.Context, id uuid.UUID, sessionID string, now time.Time) error

	// ResumeTask transitions paused → active, stamping nextFireAt (non-nil
	// for recurring tasks) and clearing any lease. It does not bump
	// fire_count.
	ResumeTask(ctx context.Context, id uuid.UUID, sessionID string, nextFireAt *time.Time, now time.Time) error

	// --- Lease protocol ---

	// DueTasks returns up to limit tasks satisfying
	//   status = active AND locked_at IS NULL AND
	//   ((kind = one_shot AND fire_at <= now) OR (kind = recurring AND next_fire_at <= now))
	// ordered ascending by coalesce(next_fire_at, fire_at).
	DueTasks(ctx context.Context, now time.Time, limit int) ([]Task, error)

	// AcquireLease sets (locked_at, locked_by) iff the row still has
	// locked_at IS NULL and status = active. Returns ErrAlreadyLocked when
	// another worker won the race.
	AcquireLease(ctx context.Context, taskID uuid.UUID, workerID string, now time.Time) error

	// ReleaseLease clears the lease fields without touching anything else.
	ReleaseLease(ctx context.Context, taskID uuid.UUID, now time.Time) error

	// ReapStaleLeases clears leases older than cutoff and returns how many
	// rows were freed. The cutoff is a bound parameter.
	ReapStaleLeases(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)

	// --- Advancement ---

	// CompleteOneShot marks a one-shot task completed: status, last_fired_at,
	// fire_count+1, lease cleared. Atomic single update.
	CompleteOneShot(ctx context.Context, taskID uuid.UUID, firedAt time.Time) error

	// AdvanceRecurring stamps next_fire_at and last_fired_at, bumps
	// fire_count, resets the retry counter and clears the lease.
	AdvanceRecurring(ctx context.Context, taskID uuid.UUID, firedAt, nextFireAt time.Time) error

	// IncrementRetry bumps current_retry_count and returns the new value.
	IncrementRetry(ctx context.Context, taskID uuid.UUID, now time.Time) (int, error)

	// DeferRetry pushes the task's due time to until (fire_at for one-shot,
	// next_fire_at for recurring) and clears the lease, so the next attempt
	// honors the retry delay across process restarts.
	DeferRetry(ctx context.Context, taskID uuid.UUID, kind TaskKind, until, now time.Time) error

	// MarkFailed sets status = failed and clears the lease.
	MarkFailed(ctx context.Context, taskID uuid.UUID, now time.Time) error

	// --- Executions ---

	CreateExecution(ctx context.Context, e *Execution) error
	FinishExecution(ctx context.Context, id uuid.UUID, fin ExecutionFinish) error
	ListExecutions(ctx context.Context, taskID uuid.UUID, limit int) ([]Execution, error)

	// --- Stored notifications ---

	InsertNotification(ctx context.Context, n *StoredNotification) error

	// PullNotifications returns unread notifications for the session and
	// marks them read.
	PullNotifications(ctx context.Context, sessionID string, limit int) ([]StoredNotification, error)

	Close() error
}
