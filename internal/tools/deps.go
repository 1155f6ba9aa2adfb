package tools

import (
	"time"

	"github.com/temporal-agent/temporal-agent-mcp/internal/safety"
	"github.com/temporal-agent/temporal-agent-mcp/internal/schedule"
	"github.com/temporal-agent/temporal-agent-mcp/internal/store"
)

// DefaultMaxActiveTasks caps active+paused tasks per session.
const DefaultMaxActiveTasks = 100

// Deps is the shared dependency set injected into every scheduler tool.
type Deps struct {
	Repo            store.Repository
	Eval            *schedule.Evaluator
	Validator       *safety.URLValidator
	MaxActiveTasks  int
	MaxPayloadBytes int

	Now func() time.Time // injectable clock for tests
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) maxActive() int {
	if d.MaxActiveTasks > 0 {
		return d.MaxActiveTasks
	}
	return DefaultMaxActiveTasks
}

// RegisterAll registers the full scheduler tool set on reg.
func RegisterAll(reg *Registry, deps *Deps) {
	reg.Register(&ScheduleOneShotTool{deps: deps})
	reg.Register(&ScheduleRecurringTool{deps: deps})
	reg.Register(&ListTasksTool{deps: deps})
	reg.Register(&GetTaskTool{deps: deps})
	reg.Register(&CancelTaskTool{deps: deps})
	reg.Register(&PauseTaskTool{deps: deps})
	reg.Register(&ResumeTaskTool{deps: deps})
}
