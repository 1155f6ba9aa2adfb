// Package dispatch delivers fired tasks to their callback target. The
// callback kinds form a closed set; selection is a switch over the tagged
// kind rather than anything pluggable, so an unknown kind is a recorded
// failure, never a crash.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

const (
	// envelopeSource and envelopeVersion identify the sender in every
	// delivered payload.
	envelopeSource  = "temporal-agent-mcp"
	envelopeVersion = "1.0"

	// maxStoredBody caps the response body persisted on the execution record.
	maxStoredBody = 1000
)

// Firing describes one occurrence of a task coming due.
type Firing struct {
	ScheduledFor time.Time // the instant the task was due
	FiredAt      time.Time // when the worker actually dispatched
	Index        int64     // fire_count before this firing
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Success    bool
	StatusCode *int
	Body       string // truncated to maxStoredBody
	Err        error
}

// Dispatcher delivers one firing of a task.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *store.Task, f Firing) Result
}

// Envelope is the JSON document delivered for webhook and chat callbacks.
type Envelope struct {
	TaskID       string         `json:"task_id"`
	TaskName     string         `json:"task_name"`
	TaskKind     store.TaskKind `json:"task_kind"`
	ScheduledFor string         `json:"scheduled_for"`
	FiredAt      string         `json:"fired_at"`
	FireIndex    int64          `json:"fire_index"`
	Payload      store.JSONMap  `json:"payload"`
	Source       string         `json:"source"`
	Version      string         `json:"version"`
}

func buildEnvelope(task *store.Task, f Firing) Envelope {
	return Envelope{
		TaskID:       task.ID.String(),
		TaskName:     task.Name,
		TaskKind:     task.Kind,
		ScheduledFor: f.ScheduledFor.UTC().Format(time.RFC3339),
		FiredAt:      f.FiredAt.UTC().Format(time.RFC3339),
		FireIndex:    f.Index,
		Payload:      task.Payload,
		Source:       envelopeSource,
		Version:      envelopeVersion,
	}
}

func marshalEnvelope(task *store.Task, f Firing) ([]byte, error) {
	return json.Marshal(buildEnvelope(task, f))
}

func truncateBody(b []byte) string {
	if len(b) > maxStoredBody {
		return string(b[:maxStoredBody])
	}
	return string(b)
}

// Router selects the dispatcher for a task's callback kind.
type Router struct {
	webhook Dispatcher
	chat    Dispatcher
	email   Dispatcher
	store   Dispatcher
}

func NewRouter(webhook, chat, email, storeDisp Dispatcher) *Router {
	return &Router{webhook: webhook, chat: chat, email: email, store: storeDisp}
}

// Dispatch routes by callback kind. Unknown or unconfigured kinds produce a
// failed Result so the worker records the attempt and applies retry policy.
func (r *Router) Dispatch(ctx context.Context, task *store.Task, f Firing) Result {
	var d Dispatcher
	switch task.CallbackKind {
	case store.CallbackWebhook:
		d = r.webhook
	case store.CallbackChat:
		d = r.chat
	case store.CallbackEmail:
		d = r.email
	case store.CallbackStore:
		d = r.store
	}
	if d == nil {
		return Result{Success: false, Err: &UnknownKindError{Kind: task.CallbackKind}}
	}
	return d.Dispatch(ctx, task, f)
}

// UnknownKindError marks a callback kind with no configured dispatcher.
type UnknownKindError struct {
	Kind store.CallbackKind
}

func (e *UnknownKindError) Error() string {
	return "unknown callback kind: " + string(e.Kind)
}
