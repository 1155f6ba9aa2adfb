package tools

import (
	"context"
	"errors"

	"github.com/temporal-agent/temporal-agent-mcp/internal/schedule"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

const (
	maxListLimit          = 200
	recentExecutionCount  = 5
	historyExecutionCount = 10
	upcomingCount         = 3
)

// TaskView is the JSON shape returned by the query and scheduling tools.
// Lease internals stay off the wire.
type TaskView struct {
	Task             *store.Task       `json:"task"`
	ScheduleText     string            `json:"schedule_text,omitempty"`
	Upcoming         []string          `json:"upcoming,omitempty"`
	RecentExecutions []store.Execution `json:"recent_executions,omitempty"`
}

func taskView(t *store.Task, execs []store.Execution) TaskView {
	v := TaskView{Task: t, RecentExecutions: execs}
	if t.Kind == store.KindRecurring {
		v.ScheduleText = schedule.Describe(t.Cron)
	}
	return v
}

// --- list_tasks ---

// ListTasksTool lists the calling session's tasks with optional filters.
type ListTasksTool struct {
	deps *Deps
}

func (t *ListTasksTool) Name() string { return "list_tasks" }

func (t *ListTasksTool) Description() string {
	return "List your scheduled tasks, optionally filtered by status, kind or tags. Defaults to active tasks."
}

func (t *ListTasksTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{"type": "string",
				"enum": []string{"active", "paused", "completed", "failed", "cancelled", "all"}},
			"kind":   map[string]any{"type": "string", "enum": []string{"one_shot", "recurring"}},
			"tags":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"limit":  map[string]any{"type": "integer", "minimum": 1, "maximum": maxListLimit},
			"offset": map[string]any{"type": "integer", "minimum": 0},
		},
	}
}

func (t *ListTasksTool) Execute(ctx context.Context, args map[string]any) *Result {
	f := store.TaskFilter{
		SessionID: store.SessionIDFromContext(ctx),
		Kind:      store.TaskKind(argString(args, "kind")),
		Tags:      argStrings(args, "tags"),
		Limit:     argInt(args, "limit", 50),
		Offset:    argInt(args, "offset", 0),
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch status := argString(args, "status"); status {
	case "", "active":
		f.Status = store.StatusActive
	case "all":
		f.Status = ""
	default:
		f.Status = store.TaskStatus(status)
	}

	tasks, err := t.deps.Repo.ListTasks(ctx, f)
	if err != nil {
		return ErrorResult("failed to list tasks").WithError(err)
	}
	return NewResult(map[string]any{"tasks": tasks, "count": len(tasks)})
}

// --- get_task ---

// GetTaskTool returns one task with its recent executions and, for recurring
// tasks, the next few occurrences.
type GetTaskTool struct {
	deps *Deps
}

func (t *GetTaskTool) Name() string { return "get_task" }

func (t *GetTaskTool) Description() string {
	return "Get a scheduled task by id, including recent execution history and upcoming fire times."
}

func (t *GetTaskTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id":         map[string]any{"type": "string", "description": "Task UUID"},
			"include_history": map[string]any{"type": "boolean", "description": "Return the last 10 executions instead of the last 5"},
		},
		"required": []string{"task_id"},
	}
}

func (t *GetTaskTool) Execute(ctx context.Context, args map[string]any) *Result {
	id, err := argUUID(args, "task_id")
	if err != nil {
		return ErrorResult(err.Error())
	}

	task, err := t.deps.Repo.GetTask(ctx, id, store.SessionIDFromContext(ctx))
	if errors.Is(err, store.ErrNotFound) {
		return ErrorResult("task not found")
	}
	if err != nil {
		return ErrorResult("failed to load task").WithError(err)
	}

	execLimit := recentExecutionCount
	if v, ok := args["include_history"].(bool); ok && v {
		execLimit = historyExecutionCount
	}
	execs, err := t.deps.Repo.ListExecutions(ctx, id, execLimit)
	if err != nil {
		return ErrorResult("failed to load executions").WithError(err)
	}

	view := taskView(task, execs)
	if task.Kind == store.KindRecurring && task.Status == store.StatusActive {
		if times, err := t.deps.Eval.Upcoming(task.Cron, task.Timezone, upcomingCount); err == nil {
			for _, at := range times {
				view.Upcoming = append(view.Upcoming, at.Format("2006-01-02T15:04:05Z07:00"))
			}
		}
	}
	return NewResult(view)
}
