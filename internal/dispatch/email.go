package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"

	gomail "gopkg.in/gomail.v2"

	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

// SMTPConfig holds the outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailDispatcher sends the firing notice to callback_config["to"] over SMTP.
type EmailDispatcher struct {
	cfg  SMTPConfig
	send func(m *gomail.Message) error // swapped in tests
}

func NewEmailDispatcher(cfg SMTPConfig) *EmailDispatcher {
	d := &EmailDispatcher{cfg: cfg}
	d.send = func(m *gomail.Message) error {
		dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		return dialer.DialAndSend(m)
	}
	return d
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, task *store.Task, f Firing) Result {
	if d.cfg.Host == "" {
		return Result{Success: false, Err: errors.New("smtp is not configured")}
	}
	to := task.CallbackConfig["to"]
	if to == "" {
		return Result{Success: false, Err: errors.New("email callback missing to")}
	}

	subject := task.CallbackConfig["subject"]
	if subject == "" {
		subject = fmt.Sprintf("Scheduled task fired: %s", task.Name)
	}

	payload, _ := json.MarshalIndent(task.Payload, "", "  ")
	when := f.FiredAt.UTC().Format("2006-01-02 15:04:05 UTC")

	m := gomail.NewMessage()
	m.SetHeader("From", d.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", fmt.Sprintf("Task %q fired at %s.\n\nPayload:\n%s\n", task.Name, when, payload))
	m.AddAlternative("text/html", fmt.Sprintf(
		"<h3>%s</h3><p>Fired at %s.</p><pre>%s</pre>",
		html.EscapeString(task.Name), when, html.EscapeString(string(payload))))

	if err := d.send(m); err != nil {
		slog.Warn("email delivery failed", "task_id", task.ID, "error", err)
		return Result{Success: false, Err: fmt.Errorf("send email: %w", err)}
	}
	return Result{Success: true}
}
