package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

// StoreDispatcher persists the firing as a notification awaiting pull by the
// owning session. Delivery never leaves the process.
type StoreDispatcher struct {
	repo store.Repository
}

func NewStoreDispatcher(repo store.Repository) *StoreDispatcher {
	return &StoreDispatcher{repo: repo}
}

func (d *StoreDispatcher) Dispatch(ctx context.Context, task *store.Task, f Firing) Result {
	payload := store.JSONMap{
		"task_id":   task.ID.String(),
		"task_name": task.Name,
		"fired_at":  f.FiredAt.UTC().Format(time.RFC3339),
		"payload":   map[string]any(task.Payload),
	}
	n := &store.StoredNotification{
		TaskID:    task.ID,
		Payload:   payload,
		CreatedAt: f.FiredAt.UTC(),
		SessionID: task.CreatedBy,
	}
	if err := d.repo.InsertNotification(ctx, n); err != nil {
		return Result{Success: false, Err: fmt.Errorf("store notification: %w", err)}
	}
	return Result{Success: true}
}
