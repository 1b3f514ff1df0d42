// Package agentinvoker defines the boundary between this engine and the
// actual LLM-backed agents that plan and execute tasks. The engine only
// ever talks to the Invoker interface; what's behind it (an HTTP call to
// a model gateway, a local subprocess, a test double) is deliberately
// out of this module's scope per spec.md's Non-goals.
package agentinvoker

import (
	"context"

	"github.com/flowkit/agentctl/internal/task"
)

// Invoker is the opaque collaborator the Orchestrator and Scheduler call
// into. Implementations are expected to wrap outbound calls with
// internal/resilience's Retry/CircuitBreaker the same way any other
// external call in this codebase is wrapped.
type Invoker interface {
	// Plan turns a free-form instruction into an initial task set.
	Plan(ctx context.Context, sessionID task.SessionId, instruction string) ([]task.Task, error)

	// Execute runs one task and returns its outcome. It must respect
	// ctx cancellation and return promptly once ctx is done.
	Execute(ctx context.Context, t task.Task, execCtx map[string]any) (task.WorkerOutcome, error)

	// Judge reviews a session's aggregate task outcomes and returns a
	// final pass/fail verdict plus a short rationale.
	Judge(ctx context.Context, sessionID task.SessionId, outcomes []task.WorkerOutcome) (bool, string, error)
}
