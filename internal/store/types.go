// Package store defines the durable task model and the typed repository
// contract shared by the tool surface and the scheduler worker.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind distinguishes one-shot from recurring tasks.
type TaskKind string

const (
	KindOneShot   TaskKind = "one_shot"
	KindRecurring TaskKind = "recurring"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusActive    TaskStatus = "active"
	StatusPaused    TaskStatus = "paused"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// CallbackKind selects the dispatcher used when a task fires.
// The set is closed; dispatch is by tagged variant, not open inheritance.
type CallbackKind string

const (
	CallbackWebhook CallbackKind = "webhook"
	CallbackChat    CallbackKind = "chat"
	CallbackEmail   CallbackKind = "email"
	CallbackStore   CallbackKind = "store"
)

// ValidCallbackKind reports whether k is one of the four known kinds.
func ValidCallbackKind(k CallbackKind) bool {
	switch k {
	case CallbackWebhook, CallbackChat, CallbackEmail, CallbackStore:
		return true
	}
	return false
}

// ExecutionStatus is the state of one dispatch attempt.
type ExecutionStatus string

const (
	ExecRunning ExecutionStatus = "running"
	ExecSuccess ExecutionStatus = "success"
	ExecFailed  ExecutionStatus = "failed"
	ExecTimeout ExecutionStatus = "timeout"
	ExecSkipped ExecutionStatus = "skipped"
)

// Task is a durable scheduled unit. One-shot tasks carry FireAt; recurring
// tasks carry Cron, Timezone and NextFireAt. The (LockedAt, LockedBy) pair is
// the cross-process lease manipulated only through the repository's atomic
// compare-and-set update.
type Task struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	Kind        TaskKind  `db:"kind" json:"kind"`

	FireAt     *time.Time `db:"fire_at" json:"fire_at,omitempty"`
	Cron       string     `db:"cron" json:"cron,omitempty"`
	Timezone   string     `db:"timezone" json:"timezone,omitempty"`
	NextFireAt *time.Time `db:"next_fire_at" json:"next_fire_at,omitempty"`

	CallbackKind   CallbackKind `db:"callback_kind" json:"callback_kind"`
	CallbackConfig ConfigMap    `db:"callback_config" json:"callback_config"`
	Payload        JSONMap      `db:"payload" json:"payload"`

	Status TaskStatus `db:"status" json:"status"`

	MaxRetries        int `db:"max_retries" json:"max_retries"`
	RetryDelaySeconds int `db:"retry_delay_seconds" json:"retry_delay_seconds"`
	CurrentRetryCount int `db:"current_retry_count" json:"current_retry_count"`

	LastFiredAt *time.Time `db:"last_fired_at" json:"last_fired_at,omitempty"`
	FireCount   int64      `db:"fire_count" json:"fire_count"`

	CreatedBy string     `db:"created_by" json:"created_by"`
	Tags      StringList `db:"tags" json:"tags,omitempty"`

	LockedAt *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	LockedBy *string    `db:"locked_by" json:"locked_by,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DueAt returns the instant the task is (or was) due: FireAt for one-shot,
// NextFireAt for recurring. Zero time if neither is set.
func (t *Task) DueAt() time.Time {
	if t.Kind == KindOneShot && t.FireAt != nil {
		return *t.FireAt
	}
	if t.NextFireAt != nil {
		return *t.NextFireAt
	}
	return time.Time{}
}

// Execution is an immutable record of one dispatch attempt. It is created in
// "running" when dispatch begins and transitioned exactly once to a terminal
// state; it is never mutated thereafter.
type Execution struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	TaskID         uuid.UUID       `db:"task_id" json:"task_id"`
	StartedAt      time.Time       `db:"started_at" json:"started_at"`
	FinishedAt     *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	Status         ExecutionStatus `db:"status" json:"status"`
	ResponseCode   *int            `db:"response_code" json:"response_code,omitempty"`
	ResponseBody   string          `db:"response_body" json:"response_body,omitempty"`
	ErrorMessage   string          `db:"error_message" json:"error_message,omitempty"`
	DurationMS     int64           `db:"duration_ms" json:"duration_ms"`
	RetryNumber    int             `db:"retry_number" json:"retry_number"`
	RequestURL     string          `db:"request_url" json:"request_url,omitempty"`
	RequestPayload JSONMap         `db:"request_payload" json:"request_payload,omitempty"`
}

// ExecutionFinish carries the terminal fields written when an execution ends.
type ExecutionFinish struct {
	Status       ExecutionStatus
	ResponseCode *int
	ResponseBody string
	ErrorMessage string
	DurationMS   int64
	FinishedAt   time.Time
}

// StoredNotification is the payload delivered when callback_kind = store,
// awaiting pull by the owning session.
type StoredNotification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	TaskID    uuid.UUID  `db:"task_id" json:"task_id"`
	Payload   JSONMap    `db:"payload" json:"payload"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	SessionID string     `db:"session_id" json:"session_id"`
}

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// --- JSON column types ---

// JSONMap is an arbitrary JSON object stored as a text column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	return scanJSON(src, m)
}

// ConfigMap is a string-to-string mapping stored as a JSON text column.
type ConfigMap map[string]string

func (m ConfigMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *ConfigMap) Scan(src any) error {
	return scanJSON(src, m)
}

// StringList is a string set stored as a JSON array text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

func scanJSON(src, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
