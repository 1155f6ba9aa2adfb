package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/temporal-agent/temporal-agent-mcp/internal/safety"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

// envelopeSender is the outbound HTTP contract the dispatcher needs.
// *safety.Sender satisfies it; tests substitute an unguarded sender.
type envelopeSender interface {
	Send(ctx context.Context, method, url string, headers map[string]string, body []byte) (*safety.Response, error)
}

// WebhookDispatcher POSTs the signed envelope to callback_config["url"]. The
// URL is re-validated inside the sender at send time, so a target that became
// unsafe after registration is refused.
type WebhookDispatcher struct {
	sender envelopeSender
	signer *safety.Signer
}

func NewWebhookDispatcher(sender envelopeSender, signer *safety.Signer) *WebhookDispatcher {
	return &WebhookDispatcher{sender: sender, signer: signer}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, task *store.Task, f Firing) Result {
	url := task.CallbackConfig["url"]
	if url == "" {
		return Result{Success: false, Err: errors.New("webhook callback missing url")}
	}

	body, err := marshalEnvelope(task, f)
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("marshal envelope: %w", err)}
	}

	// fired_at doubles as the signature timestamp so receivers verify the
	// exact string they were given.
	ts := f.FiredAt.UTC().Format(time.RFC3339)
	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Task-Id":    task.ID.String(),
		"X-Timestamp":  ts,
		"X-Signature":  d.signer.Sign(body, ts),
	}

	resp, err := d.sender.Send(ctx, http.MethodPost, url, headers, body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Success: false, Err: fmt.Errorf("webhook timeout: %w", err)}
		}
		return Result{Success: false, Err: err}
	}

	code := resp.StatusCode
	res := Result{
		StatusCode: &code,
		Body:       truncateBody(resp.Body),
		Success:    code >= 200 && code < 300,
	}
	if !res.Success {
		res.Err = fmt.Errorf("webhook returned status %d", code)
		slog.Warn("webhook delivery failed", "task_id", task.ID, "status", code)
	}
	return res
}
