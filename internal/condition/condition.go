// Package condition evaluates a task's optional CEL condition expression
// against the shared execution context. This is the real implementation
// of the conditional task-skip feature the orchestrator lineage left as
// a TODO stub that unconditionally returned true.
package condition

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// Evaluator compiles and caches CEL programs for task conditions.
type Evaluator struct {
	env *cel.Env

	mu    sync.Mutex
	cache map[string]cel.Program
}

// New constructs an Evaluator whose expressions see a single variable,
// ctx, holding the shared execution context map[string]any keyed by
// task id.
func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("condition: build cel env: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// Eval evaluates expr against execCtx. Per SPEC_FULL.md §4.11, a compile
// or evaluation error fails closed (returns false, non-nil error) rather
// than panicking or defaulting to true.
func (e *Evaluator) Eval(expr string, execCtx map[string]any) (bool, error) {
	prog, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prog.Eval(map[string]any{"ctx": execCtx})
	if err != nil {
		slog.Warn("condition evaluation failed, treating as unmet", "expr", expr, "error", err)
		return false, fmt.Errorf("condition: eval %q: %w", expr, err)
	}

	b, ok := asBool(out)
	if !ok {
		return false, fmt.Errorf("condition: %q did not evaluate to a bool", expr)
	}
	return b, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.cache[expr]; ok {
		return p, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition: compile %q: %w", expr, issues.Err())
	}
	prog, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition: program %q: %w", expr, err)
	}
	e.cache[expr] = prog
	return prog, nil
}

func asBool(v ref.Val) (bool, bool) {
	b, ok := v.Value().(bool)
	return b, ok
}
