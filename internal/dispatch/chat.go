package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/temporal-agent/temporal-agent-mcp/internal/safety"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

// ChatDispatcher posts a message to a Slack incoming webhook configured in
// callback_config["webhook_url"]. The URL goes through the same SSRF
// validation as ordinary webhooks before the Slack client touches it.
type ChatDispatcher struct {
	validator *safety.URLValidator
}

func NewChatDispatcher(validator *safety.URLValidator) *ChatDispatcher {
	return &ChatDispatcher{validator: validator}
}

func (d *ChatDispatcher) Dispatch(ctx context.Context, task *store.Task, f Firing) Result {
	url := task.CallbackConfig["webhook_url"]
	if url == "" {
		return Result{Success: false, Err: errors.New("chat callback missing webhook_url")}
	}
	if err := d.validator.Validate(ctx, url); err != nil {
		return Result{Success: false, Err: err}
	}

	text := task.CallbackConfig["message"]
	if text == "" {
		text = fmt.Sprintf("Task %q fired at %s", task.Name, f.FiredAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	msg := &slack.WebhookMessage{
		Username: envelopeSource,
		Text:     text,
		Attachments: []slack.Attachment{{
			Fallback: task.Name,
			Title:    task.Name,
			Text:     task.Description,
			Footer:   fmt.Sprintf("task %s · firing #%d", task.ID, f.Index+1),
		}},
	}

	if err := slack.PostWebhookContext(ctx, url, msg); err != nil {
		slog.Warn("chat delivery failed", "task_id", task.ID, "error", err)
		return Result{Success: false, Err: fmt.Errorf("post chat message: %w", err)}
	}
	return Result{Success: true}
}
