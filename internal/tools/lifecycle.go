package tools

import (
	"context"
	"errors"

	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

func taskIDParams() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id": map[string]any{"type": "string", "description": "Task UUID"},
		},
		"required": []string{"task_id"},
	}
}

func mapTransitionErr(err error, verb string) *Result {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrorResult("task not found")
	case errors.Is(err, store.ErrIllegalTransition):
		return ErrorResult("task cannot be " + verb + " in its current state").WithError(err)
	default:
		return ErrorResult("failed to " + verb + " task").WithError(err)
	}
}

// --- cancel_task ---

// CancelTaskTool cancels an active or paused task. Terminal.
type CancelTaskTool struct {
	deps *Deps
}

func (t *CancelTaskTool) Name() string { return "cancel_task" }

func (t *CancelTaskTool) Description() string {
	return "Cancel a scheduled task permanently. Only active or paused tasks can be cancelled."
}

func (t *CancelTaskTool) Parameters() map[string]any { return taskIDParams() }

func (t *CancelTaskTool) Execute(ctx context.Context, args map[string]any) *Result {
	id, err := argUUID(args, "task_id")
	if err != nil {
		return ErrorResult(err.Error())
	}
	sessionID := store.SessionIDFromContext(ctx)
	if err := t.deps.Repo.CancelTask(ctx, id, sessionID, t.deps.now()); err != nil {
		return mapTransitionErr(err, "cancelled")
	}
	return MessageResult("task cancelled")
}

// --- pause_task ---

// PauseTaskTool pauses an active task; the worker skips paused tasks.
type PauseTaskTool struct {
	deps *Deps
}

func (t *PauseTaskTool) Name() string { return "pause_task" }

func (t *PauseTaskTool) Description() string {
	return "Pause an active task. A paused task keeps its schedule but does not fire until resumed."
}

func (t *PauseTaskTool) Parameters() map[string]any { return taskIDParams() }

func (t *PauseTaskTool) Execute(ctx context.Context, args map[string]any) *Result {
	id, err := argUUID(args, "task_id")
	if err != nil {
		return ErrorResult(err.Error())
	}
	sessionID := store.SessionIDFromContext(ctx)
	if err := t.deps.Repo.PauseTask(ctx, id, sessionID, t.deps.now()); err != nil {
		return mapTransitionErr(err, "paused")
	}
	return MessageResult("task paused")
}

// --- resume_task ---

// ResumeTaskTool resumes a paused task. Recurring tasks get a freshly
// computed next_fire_at so occurrences missed while paused are skipped, not
// replayed; fire_count is untouched.
type ResumeTaskTool struct {
	deps *Deps
}

func (t *ResumeTaskTool) Name() string { return "resume_task" }

func (t *ResumeTaskTool) Description() string {
	return "Resume a paused task. Recurring tasks continue from the next upcoming occurrence; missed occurrences are not replayed."
}

func (t *ResumeTaskTool) Parameters() map[string]any { return taskIDParams() }

func (t *ResumeTaskTool) Execute(ctx context.Context, args map[string]any) *Result {
	id, err := argUUID(args, "task_id")
	if err != nil {
		return ErrorResult(err.Error())
	}
	sessionID := store.SessionIDFromContext(ctx)

	task, err := t.deps.Repo.GetTask(ctx, id, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrorResult("task not found")
	}
	if err != nil {
		return ErrorResult("failed to load task").WithError(err)
	}

	if task.Kind == store.KindRecurring {
		at, err := t.deps.Eval.NextAfter(task.Cron, task.Timezone, t.deps.now())
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		if err := t.deps.Repo.ResumeTask(ctx, id, sessionID, &at, t.deps.now()); err != nil {
			return mapTransitionErr(err, "resumed")
		}
	} else {
		if err := t.deps.Repo.ResumeTask(ctx, id, sessionID, nil, t.deps.now()); err != nil {
			return mapTransitionErr(err, "resumed")
		}
	}
	return MessageResult("task resumed")
}
