package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

const taskCols = `id, name, description, kind, fire_at, cron, timezone, next_fire_at,
	callback_kind, callback_config, payload, status,
	max_retries, retry_delay_seconds, current_retry_count,
	last_fired_at, fire_count, created_by, tags,
	locked_at, locked_by, created_at, updated_at`

func (r *Repo) CreateTask(ctx context.Context, t *store.Task) error {
	if err := store.ValidateSessionID(t.CreatedBy); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = store.GenNewID()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = store.StatusActive
	}
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}

	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO tasks (`+taskCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		t.ID, t.Name, t.Description, t.Kind, t.FireAt, t.Cron, t.Timezone, t.NextFireAt,
		t.CallbackKind, t.CallbackConfig, t.Payload, t.Status,
		t.MaxRetries, t.RetryDelaySeconds, t.CurrentRetryCount,
		t.LastFiredAt, t.FireCount, t.CreatedBy, t.Tags,
		t.LockedAt, t.LockedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *Repo) GetTask(ctx context.Context, id uuid.UUID, sessionID string) (*store.Task, error) {
	var t store.Task
	err := r.db.GetContext(ctx, &t, r.rebind(
		`SELECT `+taskCols+` FROM tasks WHERE id = ? AND created_by = ?`), id, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func (r *Repo) ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error) {
	where := []string{"created_by = ?"}
	args := []any{f.SessionID}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	for _, tag := range f.Tags {
		// Tags live in a JSON array column; match the quoted element.
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+strings.ReplaceAll(tag, `%`, ``)+`"%`)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	q := r.rebind(`SELECT ` + taskCols + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`)

	var tasks []store.Task
	if err := r.db.SelectContext(ctx, &tasks, q, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *Repo) CountActive(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.rebind(
		`SELECT COUNT(*) FROM tasks WHERE created_by = ? AND status IN (?, ?)`),
		sessionID, store.StatusActive, store.StatusPaused)
	if err != nil {
		return 0, fmt.Errorf("count active tasks: %w", err)
	}
	return n, nil
}

// transition runs a guarded status update and maps a zero-row result to
// not-found vs illegal-transition by re-reading the row.
func (r *Repo) transition(ctx context.Context, id uuid.UUID, sessionID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("task transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetTask(ctx, id, sessionID); err != nil {
			return err // ErrNotFound
		}
		return store.ErrIllegalTransition
	}
	return nil
}

func (r *Repo) CancelTask(ctx context.Context, id uuid.UUID, sessionID string, now time.Time) error {
	return r.transition(ctx, id, sessionID,
		`UPDATE tasks SET status = ?, locked_at = NULL, locked_by = NULL, updated_at = ?
		 WHERE id = ? AND created_by = ? AND status IN (?, ?)`,
		store.StatusCancelled, now.UTC(), id, sessionID, store.StatusActive, store.StatusPaused)
}

func (r *Repo) PauseTask(ctx context.Context, id uuid.UUID, sessionID string, now time.Time) error {
	return r.transition(ctx, id, sessionID,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND created_by = ? AND status = ?`,
		store.StatusPaused, now.UTC(), id, sessionID, store.StatusActive)
}

func (r *Repo) ResumeTask(ctx context.Context, id uuid.UUID, sessionID string, nextFireAt *time.Time, now time.Time) error {
	// fire_count is untouched here: resuming is not a fire.
	if nextFireAt != nil {
		return r.transition(ctx, id, sessionID,
			`UPDATE tasks SET status = ?, next_fire_at = ?, locked_at = NULL, locked_by = NULL, updated_at = ?
			 WHERE id = ? AND created_by = ? AND status = ?`,
			store.StatusActive, nextFireAt.UTC(), now.UTC(), id, sessionID, store.StatusPaused)
	}
	return r.transition(ctx, id, sessionID,
		`UPDATE tasks SET status = ?, locked_at = NULL, locked_by = NULL, updated_at = ?
		 WHERE id = ? AND created_by = ? AND status = ?`,
		store.StatusActive, now.UTC(), id, sessionID, store.StatusPaused)
}

// --- Lease protocol ---

func (r *Repo) DueTasks(ctx context.Context, now time.Time, limit int) ([]store.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	var tasks []store.Task
	err := r.db.SelectContext(ctx, &tasks, r.rebind(`SELECT `+taskCols+` FROM tasks
		WHERE status = ? AND locked_at IS NULL
		  AND ((kind = ? AND fire_at <= ?) OR (kind = ? AND next_fire_at <= ?))
		ORDER BY COALESCE(next_fire_at, fire_at) ASC
		LIMIT ?`),
		store.StatusActive, store.KindOneShot, now.UTC(), store.KindRecurring, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", err)
	}
	return tasks, nil
}

func (r *Repo) AcquireLease(ctx context.Context, taskID uuid.UUID, workerID string, now time.Time) error {
	// The only write path for lease fields besides release/reap. The guard
	// makes this a compare-and-set: zero rows means another worker won.
	res, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE tasks SET locked_at = ?, locked_by = ?, updated_at = ?
		 WHERE id = ? AND locked_at IS NULL AND status = ?`),
		now.UTC(), workerID, now.UTC(), taskID, store.StatusActive)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyLocked
	}
	return nil
}

func (r *Repo) ReleaseLease(ctx context.Context, taskID uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE tasks SET locked_at = NULL, locked_by = NULL, updated_at = ? WHERE id = ?`),
		now.UTC(), taskID)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (r *Repo) ReapStaleLeases(ctx context.Context, cutoff, now time.Time) (int64, error) {
	// cutoff is a bound parameter, never interpolated.
	res, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE tasks SET locked_at = NULL, locked_by = NULL, updated_at = ?
		 WHERE locked_at IS NOT NULL AND locked_at < ?`),
		now.UTC(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("reap stale leases: %w", err)
	}
	return res.RowsAffected()
}

// --- Advancement ---

func (r *Repo) CompleteOneShot(ctx context.Context, taskID uuid.UUID, firedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE tasks SET status = ?, last_fired_at = ?, fire_count = fire_count + 1,
			locked_at = NULL, locked_by = NULL, updated_at = ?
		 WHERE id = ?`),
		store.StatusCompleted, firedAt.UTC(), firedAt.UTC(), taskID)
	if err != nil {
		return fmt.Errorf("complete one-shot: %w", err)
	}
	return nil
}

func (r *Repo) AdvanceRecurring(ctx context.Context, taskID uuid.UUID, firedAt, nextFireAt time.Time) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE tasks SET next_fire_at = ?, last_fired_at = ?, fire_count = fire_count + 1,
			current_retry_count = 0, locked_at = NULL, locked_by = NULL, updated_at = ?
		 WHERE id = ?`),
		nextFireAt.UTC(), firedAt.UTC(), firedAt.UTC(), taskID)
	if err != nil {
		return fmt.Errorf("advance recurring: %w", err)
	}
	return nil
}

func (r *Repo) IncrementRetry(ctx context.Context, taskID uuid.UUID, now time.Time) (int, error) {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE tasks SET current_retry_count = current_retry_count + 1, updated_at = ? WHERE id = ?`),
		now.UTC(), taskID)
	if err != nil {
		return 0, fmt.Errorf("increment retry: %w", err)
	}
	var n int
	if err := r.db.GetContext(ctx, &n, r.rebind(
		`SELECT current_retry_count FROM tasks WHERE id = ?`), taskID); err != nil {
		return 0, fmt.Errorf("read retry count: %w", err)
	}
	return n, nil
}

func (r *Repo) DeferRetry(ctx context.Context, taskID uuid.UUID, kind store.TaskKind, until, now time.Time) error {
	col := "next_fire_at"
	if kind == store.KindOneShot {
		col = "fire_at"
	}
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE tasks SET `+col+` = ?, locked_at = NULL, locked_by = NULL, updated_at = ? WHERE id = ?`),
		until.UTC(), now.UTC(), taskID)
	if err != nil {
		return fmt.Errorf("defer retry: %w", err)
	}
	return nil
}

func (r *Repo) MarkFailed(ctx context.Context, taskID uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE tasks SET status = ?, locked_at = NULL, locked_by = NULL, updated_at = ? WHERE id = ?`),
		store.StatusFailed, now.UTC(), taskID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
