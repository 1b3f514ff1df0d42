// Package orchestrator implements the Orchestrator (C7): the session
// lifecycle that ties the Journal, DependencyGraph, Scheduler,
// AntipatternReviewer, TaskStore, and AgentInvoker together, per
// spec.md §4.6. It is the module's entry point — everything else is a
// component it wires up for one session's plan/schedule/collect/
// review/report pass.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowkit/agentctl/internal/agentinvoker"
	"github.com/flowkit/agentctl/internal/condition"
	"github.com/flowkit/agentctl/internal/config"
	"github.com/flowkit/agentctl/internal/graph"
	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/report"
	"github.com/flowkit/agentctl/internal/reviewer"
	"github.com/flowkit/agentctl/internal/scheduler"
	"github.com/flowkit/agentctl/internal/store"
	"github.com/flowkit/agentctl/internal/task"
)

// Outcome is the Orchestrator's final account of one session, used by
// the CLI to choose an exit code per spec.md §6.1.
type Outcome struct {
	SessionID    task.SessionId
	Completed    []task.TaskId
	Failed       []task.TaskId
	Blocked      []task.TaskId
	Aborted      bool
	JudgePassed  bool
	JudgeComment string
}

// Orchestrator runs sessions against a fixed base directory, config,
// and AgentInvoker.
type Orchestrator struct {
	BaseDir string
	Cfg     config.Config
	Invoker agentinvoker.Invoker
	Metrics scheduler.Metrics
	Tracer  trace.Tracer
}

// New constructs an Orchestrator. invoker, and tracer may be supplied by
// the CLI wiring layer; metrics may be the zero value if telemetry is
// disabled.
func New(baseDir string, cfg config.Config, invoker agentinvoker.Invoker, metrics scheduler.Metrics, tracer trace.Tracer) *Orchestrator {
	return &Orchestrator{BaseDir: baseDir, Cfg: cfg, Invoker: invoker, Metrics: metrics, Tracer: tracer}
}

// Plan runs a brand new session end to end: generate a sessionId,
// invoke the Planner, build the graph, schedule, judge, and finalize —
// the full sequence of spec.md §4.6 steps 1-6.
func (o *Orchestrator) Plan(ctx context.Context, instruction string) (Outcome, error) {
	sessionID := task.SessionId(uuid.NewString())
	return o.run(ctx, sessionID, instruction, nil)
}

// Resume continues a previously aborted session from step 3 onward, per
// spec.md §4.6's resume note: completed tasks stay DONE, everything
// else reverts to NEW and is replanned against the rebuilt TaskStore.
func (o *Orchestrator) Resume(ctx context.Context, sessionID task.SessionId) (Outcome, error) {
	rc, err := journal.ExtractResume(o.BaseDir, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: resume %s: %w", sessionID, err)
	}
	if !rc.CanResume {
		return Outcome{}, fmt.Errorf("orchestrator: session %s did not abort, nothing to resume", sessionID)
	}
	return o.run(ctx, sessionID, rc.OriginalTask, &rc)
}

// RunSession (re)executes an already-planned session's tasks against the
// current TaskStore, without requiring an aborted journal: it backs the
// `agent run --session` CLI verb, which lets an operator plan once and
// dispatch separately. Like Resume, non-DONE tasks revert to NEW before
// scheduling. The session's journal must already exist (a missing file is
// an error); the instruction is taken from its session_start record and is
// empty when there is none.
func (o *Orchestrator) RunSession(ctx context.Context, sessionID task.SessionId) (Outcome, error) {
	rc, err := journal.ExtractResume(o.BaseDir, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: run %s: %w", sessionID, err)
	}
	return o.run(ctx, sessionID, rc.OriginalTask, &rc)
}

func (o *Orchestrator) run(ctx context.Context, sessionID task.SessionId, instruction string, resume *journal.ResumeContext) (Outcome, error) {
	if o.Tracer != nil {
		var span trace.Span
		ctx, span = o.Tracer.Start(ctx, "orchestrator.run")
		defer span.End()
	}

	jour, err := journal.Open(o.BaseDir, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: open journal: %w", err)
	}
	defer jour.Close()

	st := store.New(o.BaseDir)

	if resume == nil {
		if err := jour.Append(journal.SessionStart(sessionID, instruction, time.Now())); err != nil {
			return Outcome{}, fmt.Errorf("orchestrator: journal session_start: %w", err)
		}
		if err := journal.SetPointer(o.BaseDir, sessionID, jour.Path()); err != nil {
			slog.Warn("orchestrator: set pointer failed", "session", sessionID, "error", err)
		}
	}

	tasks, err := o.planOrRebuild(ctx, sessionID, instruction, resume, jour, st)
	if err != nil {
		o.abort(jour, sessionID, err.Error())
		return Outcome{Aborted: true}, err
	}

	g, err := graph.Build(tasks)
	if err != nil {
		o.abort(jour, sessionID, err.Error())
		return Outcome{Aborted: true}, fmt.Errorf("orchestrator: build graph: %w", err)
	}

	cyclic := g.Cycles()
	if len(cyclic) > 0 {
		ids := make([]task.TaskId, 0, len(cyclic))
		for id := range cyclic {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		slog.Warn("orchestrator: cyclic dependencies detected, blocking participants", "session", sessionID, "cyclicIds", ids)
		if err := jour.Append(journal.Record{
			"type":      "cycle_detected",
			"sessionId": sessionID,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"cyclicIds": ids,
		}); err != nil {
			slog.Warn("orchestrator: journal cycle detail failed", "error", err)
		}
	}

	cond, err := condition.New()
	if err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: build condition evaluator: %w", err)
	}
	rev := reviewer.New(reviewer.Config{
		RejectThreshold:     o.Cfg.Reviewer.RejectThreshold,
		ScopeCreepTolerance: o.Cfg.Reviewer.ScopeCreepTolerance,
	})
	overridePath := filepath.Join(o.BaseDir, "reviewer-overrides.json")
	pw, err := reviewer.NewPatternWatcher(overridePath)
	if err != nil {
		slog.Warn("orchestrator: pattern watcher init failed, using fixed table only", "path", overridePath, "error", err)
	} else {
		rev = rev.WithPatternWatcher(pw)
		defer pw.Close()
	}
	sched := scheduler.New(st, jour, rev, cond, o.Metrics, o.Tracer)

	workerFn := adaptInvoker(o.Invoker, tasks)

	res, err := sched.Run(ctx, sessionID, g, tasks, scheduler.Config{
		MaxWorkers:         o.Cfg.MaxWorkers,
		PerTaskMaxAttempts: o.Cfg.Retry.MaxAttempts,
		BaseDelay:          o.Cfg.Retry.BaseDelay,
		MaxDelay:           o.Cfg.Retry.MaxDelay,
		WorkerFn:           workerFn,
	})
	if err != nil {
		o.abort(jour, sessionID, err.Error())
		return Outcome{Aborted: true}, fmt.Errorf("orchestrator: scheduler run: %w", err)
	}

	outcome := Outcome{
		SessionID: sessionID,
		Completed: res.Completed,
		Failed:    res.Failed,
		Blocked:   res.Blocked,
		Aborted:   res.Aborted,
	}

	if res.Aborted {
		o.abort(jour, sessionID, "cancelled")
		return outcome, nil
	}

	if o.Invoker != nil {
		outcomes := collectOutcomes(tasks, st)
		passed, comment, err := o.Invoker.Judge(ctx, sessionID, outcomes)
		if err != nil {
			slog.Warn("orchestrator: judge invocation failed", "session", sessionID, "error", err)
		} else {
			outcome.JudgePassed = passed
			outcome.JudgeComment = comment
		}
	}

	summary := fmt.Sprintf("completed=%d failed=%d blocked=%d", len(res.Completed), len(res.Failed), len(res.Blocked))
	metrics := map[string]any{
		"completed": len(res.Completed),
		"failed":    len(res.Failed),
		"blocked":   len(res.Blocked),
	}
	if err := jour.Append(journal.SessionComplete(sessionID, summary, metrics, time.Now())); err != nil {
		slog.Warn("orchestrator: journal session_complete failed", "error", err)
	}
	if err := journal.SetPointer(o.BaseDir, sessionID, jour.Path()); err != nil {
		slog.Warn("orchestrator: finalize pointer failed", "error", err)
	}

	if err := report.Write(o.BaseDir, report.SessionSummary{
		SessionID:    sessionID,
		Instruction:  instruction,
		Tasks:        tasks,
		Completed:    res.Completed,
		Failed:       res.Failed,
		Blocked:      res.Blocked,
		JudgePassed:  outcome.JudgePassed,
		JudgeComment: outcome.JudgeComment,
	}); err != nil {
		slog.Warn("orchestrator: report write failed", "error", err)
	}

	return outcome, nil
}

// planOrRebuild invokes the Planner for a brand new session, or rebuilds
// the task set from the TaskStore for a resumed one: per spec.md §4.6,
// completed tasks stay DONE and the rest revert to NEW.
func (o *Orchestrator) planOrRebuild(ctx context.Context, sessionID task.SessionId, instruction string, resume *journal.ResumeContext, jour *journal.Journal, st *store.TaskStore) ([]task.Task, error) {
	if resume != nil {
		existing, err := st.ListTasks()
		if err != nil {
			return nil, fmt.Errorf("list tasks for resume: %w", err)
		}
		done := make(map[task.TaskId]bool, len(resume.CompletedTasks))
		for _, id := range resume.CompletedTasks {
			done[id] = true
		}
		for i := range existing {
			if !done[existing[i].ID] {
				existing[i].State = task.StateNew
				existing[i].Attempts = 0
			}
		}
		return existing, nil
	}

	if o.Invoker == nil {
		return nil, fmt.Errorf("no AgentInvoker configured to plan session %s", sessionID)
	}
	planned, err := o.Invoker.Plan(ctx, sessionID, instruction)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	for i := range planned {
		planned[i].State = task.StateNew
		if err := jour.Append(journal.TaskCreated(sessionID, planned[i], time.Now())); err != nil {
			slog.Warn("orchestrator: journal task_created failed", "task", planned[i].ID, "error", err)
		}
		if err := st.WriteTask(planned[i]); err != nil {
			return nil, fmt.Errorf("persist task %s: %w", planned[i].ID, err)
		}
	}
	return planned, nil
}

func (o *Orchestrator) abort(jour *journal.Journal, sessionID task.SessionId, reason string) {
	if err := jour.Append(journal.SessionAbort(sessionID, reason, time.Now())); err != nil {
		slog.Warn("orchestrator: journal session_abort failed", "error", err)
	}
	if err := journal.SetPointer(o.BaseDir, sessionID, jour.Path()); err != nil {
		slog.Warn("orchestrator: finalize pointer on abort failed", "error", err)
	}
}

// adaptInvoker wraps the AgentInvoker's Execute method as a
// scheduler.WorkerFn, turning a transport-level error into a retryable
// WorkerOutcome rather than letting it escape the scheduler.
func adaptInvoker(invoker agentinvoker.Invoker, tasks []task.Task) scheduler.WorkerFn {
	byID := make(map[task.TaskId]task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	return func(ctx context.Context, t task.Task, onOutput func(chunk string)) task.WorkerOutcome {
		if invoker == nil {
			return task.WorkerOutcome{Error: "no AgentInvoker configured", Retryable: false}
		}
		execCtx := make(map[string]any, len(byID))
		for id, other := range byID {
			execCtx[string(id)] = map[string]any{"state": string(other.State), "output": other.OutputFiles}
		}
		outcome, err := invoker.Execute(ctx, t, execCtx)
		if err != nil {
			return task.WorkerOutcome{Error: err.Error(), Retryable: true}
		}
		// The gateway call returns in one shot rather than streaming, so
		// the best this adapter can offer the journal is the artifact
		// summary as a single chunk once Execute completes.
		if outcome.ArtifactSummary != "" {
			onOutput(outcome.ArtifactSummary)
		}
		return outcome
	}
}

func collectOutcomes(tasks []task.Task, st *store.TaskStore) []task.WorkerOutcome {
	outcomes := make([]task.WorkerOutcome, 0, len(tasks))
	for _, t := range tasks {
		persisted, err := st.ReadTask(t.ID)
		if err != nil {
			continue
		}
		if persisted.State == task.StateDone {
			outcomes = append(outcomes, task.WorkerOutcome{ChangedFiles: persisted.OutputFiles})
		} else if persisted.State == task.StateFailed {
			outcomes = append(outcomes, task.WorkerOutcome{Error: persisted.LastError, Retryable: false})
		}
	}
	return outcomes
}
