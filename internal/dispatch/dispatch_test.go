package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gomail "gopkg.in/gomail.v2"

	"github.com/temporal-agent/temporal-agent-mcp/internal/safety"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store/sqldb"
)

func testTask(kind store.CallbackKind, cfg store.ConfigMap) *store.Task {
	return &store.Task{
		ID:             store.GenNewID(),
		Name:           "nightly report",
		Kind:           store.KindRecurring,
		CallbackKind:   kind,
		CallbackConfig: cfg,
		Payload:        store.JSONMap{"report": "sales"},
		CreatedBy:      "alice",
	}
}

func testFiring() Firing {
	at := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	return Firing{ScheduledFor: at, FiredAt: at.Add(2 * time.Second), Index: 4}
}

func TestEnvelopeShape(t *testing.T) {
	task := testTask(store.CallbackWebhook, store.ConfigMap{"url": "https://example.com/h"})
	body, err := marshalEnvelope(task, testFiring())
	if err != nil {
		t.Fatal(err)
	}

	var env map[string]any
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatal(err)
	}
	if env["task_id"] != task.ID.String() {
		t.Errorf("task_id = %v", env["task_id"])
	}
	if env["task_name"] != "nightly report" || env["task_kind"] != "recurring" {
		t.Errorf("identity fields wrong: %v", env)
	}
	if env["scheduled_for"] != "2026-08-24T09:00:00Z" || env["fired_at"] != "2026-08-24T09:00:02Z" {
		t.Errorf("time fields wrong: %v / %v", env["scheduled_for"], env["fired_at"])
	}
	if env["fire_index"] != float64(4) {
		t.Errorf("fire_index = %v", env["fire_index"])
	}
	if env["source"] != "temporal-agent-mcp" || env["version"] != "1.0" {
		t.Errorf("envelope identity wrong: %v / %v", env["source"], env["version"])
	}
	if env["payload"].(map[string]any)["report"] != "sales" {
		t.Errorf("payload missing: %v", env["payload"])
	}
}

func TestRouterUnknownKind(t *testing.T) {
	r := NewRouter(nil, nil, nil, nil)
	task := testTask("carrier_pigeon", store.ConfigMap{})
	task.CallbackKind = "carrier_pigeon"

	res := r.Dispatch(context.Background(), task, testFiring())
	if res.Success {
		t.Fatal("unknown kind reported success")
	}
	var uk *UnknownKindError
	if !errors.As(res.Err, &uk) {
		t.Fatalf("err = %v, want UnknownKindError", res.Err)
	}
}

// plainSender performs the request without the SSRF perimeter so webhook
// tests can target a loopback httptest receiver.
type plainSender struct{}

func (plainSender) Send(ctx context.Context, method, url string, headers map[string]string, body []byte) (*safety.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &safety.Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}

func TestWebhookDelivery(t *testing.T) {
	signer := safety.NewSigner("hook-secret")

	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("delivered"))
	}))
	defer srv.Close()

	task := testTask(store.CallbackWebhook, store.ConfigMap{"url": srv.URL})
	now := time.Now().UTC()
	f := Firing{ScheduledFor: now, FiredAt: now, Index: 0}

	d := NewWebhookDispatcher(plainSender{}, signer)
	res := d.Dispatch(context.Background(), task, f)
	if !res.Success {
		t.Fatalf("dispatch failed: %v", res.Err)
	}
	if res.StatusCode == nil || *res.StatusCode != http.StatusOK {
		t.Errorf("status = %v", res.StatusCode)
	}
	if res.Body != "delivered" {
		t.Errorf("body = %q", res.Body)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := gotHeaders.Get("X-Task-Id"); got != task.ID.String() {
		t.Errorf("X-Task-Id = %q", got)
	}
	ts := gotHeaders.Get("X-Timestamp")
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("X-Timestamp = %q: %v", ts, err)
	}

	// The receiver verifies over exactly the bytes and timestamp it was
	// handed, no re-serialization.
	if err := signer.Verify(gotBody, gotHeaders.Get("X-Signature"), ts, 0); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}

	var env map[string]any
	if err := json.Unmarshal(gotBody, &env); err != nil {
		t.Fatal(err)
	}
	if env["task_id"] != task.ID.String() || env["fired_at"] != ts {
		t.Errorf("envelope identity wrong: %v / %v", env["task_id"], env["fired_at"])
	}
}

func TestWebhookNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(plainSender{}, safety.NewSigner("hook-secret"))
	task := testTask(store.CallbackWebhook, store.ConfigMap{"url": srv.URL})
	res := d.Dispatch(context.Background(), task, Firing{FiredAt: time.Now().UTC()})
	if res.Success {
		t.Fatal("5xx reported success")
	}
	if res.StatusCode == nil || *res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %v", res.StatusCode)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "500") {
		t.Errorf("err = %v", res.Err)
	}
}

func TestWebhookMissingURL(t *testing.T) {
	d := NewWebhookDispatcher(nil, nil)
	res := d.Dispatch(context.Background(), testTask(store.CallbackWebhook, store.ConfigMap{}), testFiring())
	if res.Success || res.Err == nil {
		t.Fatal("missing url must fail")
	}
}

func TestChatMissingWebhookURL(t *testing.T) {
	d := NewChatDispatcher(nil)
	res := d.Dispatch(context.Background(), testTask(store.CallbackChat, store.ConfigMap{}), testFiring())
	if res.Success || res.Err == nil {
		t.Fatal("missing webhook_url must fail")
	}
}

func TestEmailDispatcher(t *testing.T) {
	d := NewEmailDispatcher(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})

	var sent *gomail.Message
	d.send = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	task := testTask(store.CallbackEmail, store.ConfigMap{"to": "alice@example.com"})
	res := d.Dispatch(context.Background(), task, testFiring())
	if !res.Success {
		t.Fatalf("dispatch failed: %v", res.Err)
	}
	if sent == nil {
		t.Fatal("no message sent")
	}
	if got := sent.GetHeader("To"); len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("To = %v", got)
	}
	if got := sent.GetHeader("Subject"); len(got) != 1 || !strings.Contains(got[0], "nightly report") {
		t.Errorf("Subject = %v", got)
	}
}

func TestEmailMissingConfig(t *testing.T) {
	d := NewEmailDispatcher(SMTPConfig{})
	res := d.Dispatch(context.Background(), testTask(store.CallbackEmail, store.ConfigMap{"to": "x@example.com"}), testFiring())
	if res.Success {
		t.Fatal("unconfigured smtp must fail")
	}

	d = NewEmailDispatcher(SMTPConfig{Host: "smtp.example.com"})
	res = d.Dispatch(context.Background(), testTask(store.CallbackEmail, store.ConfigMap{}), testFiring())
	if res.Success {
		t.Fatal("missing recipient must fail")
	}
}

func TestStoreDispatcher(t *testing.T) {
	repo, err := sqldb.Open(":memory:", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	if err := repo.EnsureSchema(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	task := testTask(store.CallbackStore, store.ConfigMap{})
	task.Kind = store.KindOneShot
	fireAt := time.Now().UTC()
	task.FireAt = &fireAt
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	d := NewStoreDispatcher(repo)
	res := d.Dispatch(ctx, task, testFiring())
	if !res.Success {
		t.Fatalf("dispatch failed: %v", res.Err)
	}

	notes, err := repo.PullNotifications(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes))
	}
	if notes[0].Payload["task_name"] != "nightly report" {
		t.Errorf("notification payload = %v", notes[0].Payload)
	}
	if notes[0].TaskID != task.ID {
		t.Errorf("task id = %s, want %s", notes[0].TaskID, task.ID)
	}
}

func TestTruncateBody(t *testing.T) {
	long := strings.Repeat("a", 2000)
	if got := truncateBody([]byte(long)); len(got) != maxStoredBody {
		t.Errorf("truncated length = %d, want %d", len(got), maxStoredBody)
	}
	if got := truncateBody([]byte("short")); got != "short" {
		t.Errorf("short body mangled: %q", got)
	}
}
