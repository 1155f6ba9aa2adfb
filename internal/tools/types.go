// Package tools exposes the scheduler's operations as named, self-describing
// tools. Every tool validates its own arguments; the registry only routes,
// times and logs.
package tools

import (
	"context"
)

// Tool is one callable operation.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

// Definition is the JSON-facing description of a tool, served by tools/list.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Define builds the Definition for a tool.
func Define(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Parameters(),
	}
}
