package sqldb

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

const executionCols = `id, task_id, started_at, finished_at, status, response_code,
	response_body, error_message, duration_ms, retry_number, request_url, request_payload`

func (r *Repo) CreateExecution(ctx context.Context, e *store.Execution) error {
	if e.ID == uuid.Nil {
		e.ID = store.GenNewID()
	}
	if e.Status == "" {
		e.Status = store.ExecRunning
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO executions (`+executionCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`),
		e.ID, e.TaskID, e.StartedAt.UTC(), e.FinishedAt, e.Status, e.ResponseCode,
		e.ResponseBody, e.ErrorMessage, e.DurationMS, e.RetryNumber, e.RequestURL, e.RequestPayload,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// FinishExecution moves a running execution to its terminal state. The status
// guard makes the record write-once: a second finish is a no-op.
func (r *Repo) FinishExecution(ctx context.Context, id uuid.UUID, fin store.ExecutionFinish) error {
	res, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE executions SET finished_at = ?, status = ?, response_code = ?,
			response_body = ?, error_message = ?, duration_ms = ?
		 WHERE id = ? AND status = ?`),
		fin.FinishedAt.UTC(), fin.Status, fin.ResponseCode,
		fin.ResponseBody, fin.ErrorMessage, fin.DurationMS, id, store.ExecRunning)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repo) ListExecutions(ctx context.Context, taskID uuid.UUID, limit int) ([]store.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	var execs []store.Execution
	err := r.db.SelectContext(ctx, &execs, r.rebind(
		`SELECT `+executionCols+` FROM executions WHERE task_id = ? ORDER BY started_at DESC LIMIT ?`),
		taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return execs, nil
}
