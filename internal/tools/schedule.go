package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/temporal-agent/temporal-agent-mcp/internal/safety"
	"github.com/temporal-agent/temporal-agent-mcp/internal/schedule"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

const maxTaskNameLength = 255

// callbackArgs reads the callback target. The canonical form is a single
// callback object whose "type" selects the kind and whose remaining keys form
// the config; the flat callback_kind + callback_config pair is accepted as an
// alias.
func callbackArgs(args map[string]any) (store.CallbackKind, map[string]string, error) {
	if cb := argMap(args, "callback"); cb != nil {
		kind := store.CallbackKind(argString(cb, "type"))
		cfg := make(map[string]string, len(cb))
		for k, v := range cb {
			if k == "type" {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return "", nil, fmt.Errorf("callback.%s must be a string", k)
			}
			cfg[k] = s
		}
		return kind, cfg, nil
	}

	cfg, err := argConfig(args, "callback_config")
	if err != nil {
		return "", nil, err
	}
	return store.CallbackKind(argString(args, "callback_kind")), cfg, nil
}

func callbackParam() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": "Callback target: type plus kind-specific string keys (e.g. url for webhook)",
		"properties": map[string]any{
			"type": map[string]any{"type": "string", "enum": []string{"webhook", "chat", "email", "store"}},
		},
		"required": []string{"type"},
	}
}

// buildTask carries the validation shared by both scheduling tools: name,
// callback kind and config, payload sanitization, tags, retry policy, and
// the per-session cap.
func buildTask(ctx context.Context, deps *Deps, args map[string]any) (*store.Task, *Result) {
	sessionID := store.SessionIDFromContext(ctx)
	if err := store.ValidateSessionID(sessionID); err != nil {
		return nil, ErrorResult(err.Error()).WithError(err)
	}

	name := strings.TrimSpace(argString(args, "name"))
	if name == "" {
		return nil, ErrorResult("name is required")
	}
	if len(name) > maxTaskNameLength {
		return nil, ErrorResult(fmt.Sprintf("name exceeds %d characters", maxTaskNameLength))
	}

	kind, cfg, err := callbackArgs(args)
	if err != nil {
		return nil, ErrorResult(err.Error())
	}
	if !store.ValidCallbackKind(kind) {
		return nil, ErrorResult(fmt.Sprintf("callback type must be one of webhook, chat, email, store (got %q)", kind))
	}
	if cfg == nil {
		cfg = map[string]string{}
	}
	if res := validateCallbackConfig(ctx, deps, kind, cfg); res != nil {
		return nil, res
	}

	payload, err := safety.SanitizePayload(argMap(args, "payload"), deps.MaxPayloadBytes)
	if err != nil {
		return nil, ErrorResult(err.Error()).WithError(err)
	}

	count, err := deps.Repo.CountActive(ctx, sessionID)
	if err != nil {
		return nil, ErrorResult("failed to check task quota").WithError(err)
	}
	if count >= deps.maxActive() {
		return nil, ErrorResult(fmt.Sprintf("task limit reached: %d tasks active (max %d)", count, deps.maxActive()))
	}

	maxRetries := argInt(args, "max_retries", 3)
	if maxRetries < 0 || maxRetries > 10 {
		return nil, ErrorResult("max_retries must be between 0 and 10")
	}
	retryDelay := argInt(args, "retry_delay_seconds", 60)
	if retryDelay < 1 || retryDelay > 3600 {
		return nil, ErrorResult("retry_delay_seconds must be between 1 and 3600")
	}

	return &store.Task{
		Name:              name,
		Description:       argString(args, "description"),
		CallbackKind:      kind,
		CallbackConfig:    cfg,
		Payload:           payload,
		Status:            store.StatusActive,
		MaxRetries:        maxRetries,
		RetryDelaySeconds: retryDelay,
		CreatedBy:         sessionID,
		Tags:              argStrings(args, "tags"),
	}, nil
}

// validateCallbackConfig checks the kind-specific required keys. Outbound
// URLs pass the SSRF validator at registration; they are re-validated again
// at send time.
func validateCallbackConfig(ctx context.Context, deps *Deps, kind store.CallbackKind, cfg map[string]string) *Result {
	switch kind {
	case store.CallbackWebhook:
		url := cfg["url"]
		if url == "" {
			return ErrorResult("callback_config.url is required for webhook callbacks")
		}
		if err := deps.Validator.Validate(ctx, url); err != nil {
			return ErrorResult("webhook url rejected: " + err.Error()).WithError(err)
		}
	case store.CallbackChat:
		url := cfg["webhook_url"]
		if url == "" {
			return ErrorResult("callback_config.webhook_url is required for chat callbacks")
		}
		if err := deps.Validator.Validate(ctx, url); err != nil {
			return ErrorResult("chat webhook url rejected: " + err.Error()).WithError(err)
		}
	case store.CallbackEmail:
		to := cfg["to"]
		if to == "" {
			return ErrorResult("callback_config.to is required for email callbacks")
		}
		if !strings.Contains(to, "@") {
			return ErrorResult("callback_config.to is not a valid email address")
		}
	case store.CallbackStore:
		// nothing to configure
	}
	return nil
}

// --- schedule_one_shot ---

// ScheduleOneShotTool registers a task that fires exactly once.
type ScheduleOneShotTool struct {
	deps *Deps
}

func (t *ScheduleOneShotTool) Name() string { return "schedule_one_shot" }

func (t *ScheduleOneShotTool) Description() string {
	return "Schedule a task that fires exactly once, at an absolute RFC 3339 time (at) or after a relative delay (in, e.g. \"30m\")."
}

func (t *ScheduleOneShotTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":                map[string]any{"type": "string", "description": "Human-readable task name"},
			"description":         map[string]any{"type": "string"},
			"at":                  map[string]any{"type": "string", "description": "Absolute fire time, RFC 3339"},
			"in":                  map[string]any{"type": "string", "description": "Relative delay, <integer><ms|s|m|h|d|w>"},
			"callback":            callbackParam(),
			"callback_kind":       map[string]any{"type": "string", "enum": []string{"webhook", "chat", "email", "store"}},
			"callback_config":     map[string]any{"type": "object"},
			"payload":             map[string]any{"type": "object"},
			"tags":                map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"max_retries":         map[string]any{"type": "integer", "minimum": 0, "maximum": 10},
			"retry_delay_seconds": map[string]any{"type": "integer", "minimum": 1, "maximum": 3600},
		},
		"required": []string{"name", "callback"},
	}
}

func (t *ScheduleOneShotTool) Execute(ctx context.Context, args map[string]any) *Result {
	task, res := buildTask(ctx, t.deps, args)
	if res != nil {
		return res
	}

	fireAt, err := schedule.ParseFireAt(argString(args, "at"), argString(args, "in"), t.deps.now())
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	task.Kind = store.KindOneShot
	task.FireAt = &fireAt
	if err := t.deps.Repo.CreateTask(ctx, task); err != nil {
		return ErrorResult("failed to create task").WithError(err)
	}
	return NewResult(taskView(task, nil))
}

// --- schedule_recurring ---

// ScheduleRecurringTool registers a task that fires on a cron schedule.
type ScheduleRecurringTool struct {
	deps *Deps
}

func (t *ScheduleRecurringTool) Name() string { return "schedule_recurring" }

func (t *ScheduleRecurringTool) Description() string {
	return "Schedule a task that fires repeatedly on a 5-field cron expression, evaluated in an IANA timezone (default UTC)."
}

func (t *ScheduleRecurringTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":                map[string]any{"type": "string", "description": "Human-readable task name"},
			"description":         map[string]any{"type": "string"},
			"cron":                map[string]any{"type": "string", "description": "5-field cron expression"},
			"timezone":            map[string]any{"type": "string", "description": "IANA timezone name, default UTC"},
			"enabled":             map[string]any{"type": "boolean", "description": "When false the task is inserted paused", "default": true},
			"callback":            callbackParam(),
			"callback_kind":       map[string]any{"type": "string", "enum": []string{"webhook", "chat", "email", "store"}},
			"callback_config":     map[string]any{"type": "object"},
			"payload":             map[string]any{"type": "object"},
			"tags":                map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"max_retries":         map[string]any{"type": "integer", "minimum": 0, "maximum": 10},
			"retry_delay_seconds": map[string]any{"type": "integer", "minimum": 1, "maximum": 3600},
		},
		"required": []string{"name", "cron", "callback"},
	}
}

func (t *ScheduleRecurringTool) Execute(ctx context.Context, args map[string]any) *Result {
	task, res := buildTask(ctx, t.deps, args)
	if res != nil {
		return res
	}

	cron := strings.TrimSpace(argString(args, "cron"))
	if cron == "" {
		return ErrorResult("cron is required")
	}
	// Whitelist before parse: shape and frequency limits first, syntax second.
	if err := safety.ValidateCron(cron); err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if err := t.deps.Eval.Validate(cron); err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	tz := argString(args, "timezone")
	next, err := t.deps.Eval.NextAfter(cron, tz, t.deps.now())
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	task.Kind = store.KindRecurring
	task.Cron = cron
	if tz != "" {
		task.Timezone = tz
	}
	task.NextFireAt = &next
	if enabled, ok := args["enabled"].(bool); ok && !enabled {
		// Inserted paused: the schedule is kept but the worker skips it
		// until resume_task.
		task.Status = store.StatusPaused
	}
	if err := t.deps.Repo.CreateTask(ctx, task); err != nil {
		return ErrorResult("failed to create task").WithError(err)
	}
	return NewResult(taskView(task, nil))
}
