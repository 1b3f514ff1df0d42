// Package scheduler implements the Scheduler (C6): it owns a built
// DependencyGraph, iterates execution levels, dispatches READY tasks to
// a bounded worker pool, and enforces retries, the quality gate, and
// cooperative cancellation.
//
// Grounded on the orchestrator lineage's dag_engine.go: a ready-channel
// seeded per level, a fixed worker-pool goroutine group draining it, and
// a coordinator that decrements dependents' in-degree as each task
// terminates. cancellation.go's single CancelHandle-via-context pattern
// backs cancellation here too.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowkit/agentctl/internal/condition"
	"github.com/flowkit/agentctl/internal/graph"
	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/reviewer"
	"github.com/flowkit/agentctl/internal/store"
	"github.com/flowkit/agentctl/internal/task"
)

// WorkerFn executes one task attempt and returns its outcome. Per
// spec.md §5(d), it is expected to perform I/O or subprocess execution
// and must return promptly once ctx is cancelled. onOutput streams
// interim chunks into the journal as task_output records (spec.md §2,
// §6.4); a WorkerFn with nothing to stream may simply never call it.
type WorkerFn func(ctx context.Context, t task.Task, onOutput func(chunk string)) task.WorkerOutcome

// Config is the Scheduler's run contract, per spec.md §4.2.
type Config struct {
	MaxWorkers         int
	PerTaskMaxAttempts int // used when a task's own MaxAttempts is unset (0)
	PerTaskTimeout     time.Duration
	BaseDelay          time.Duration // default 500ms
	MaxDelay           time.Duration // default 30s
	GracePeriod        time.Duration // default 10s, bounded join on cancel
	WorkerFn           WorkerFn
}

// Result is the Scheduler's outcome, per spec.md §4.2.
type Result struct {
	Completed []task.TaskId
	Failed    []task.TaskId
	Blocked   []task.TaskId
	Aborted   bool
}

// Metrics is the subset of obstel.Metrics the scheduler records into.
type Metrics struct {
	TasksDispatched metric.Int64Counter
	TasksRetried    metric.Int64Counter
	TaskDuration    metric.Float64Histogram
}

// Scheduler runs one session's task set to completion.
type Scheduler struct {
	store    *store.TaskStore
	jour     *journal.Journal
	reviewer *reviewer.Reviewer
	cond     *condition.Evaluator
	metrics  Metrics
	tracer   trace.Tracer
}

// New constructs a Scheduler. reviewer and cond may be nil, in which
// case the quality gate and condition evaluation are skipped.
func New(st *store.TaskStore, jour *journal.Journal, rev *reviewer.Reviewer, cond *condition.Evaluator, m Metrics, tracer trace.Tracer) *Scheduler {
	return &Scheduler{store: st, jour: jour, reviewer: rev, cond: cond, metrics: m, tracer: tracer}
}

// Run executes tasks against g's levels. ctx is the CancelHandle: a
// cancel of ctx stops new dispatches; in-flight workers are signalled
// via ctx and joined with a bounded grace period.
func (s *Scheduler) Run(ctx context.Context, sessionID task.SessionId, g *graph.Graph, tasks []task.Task, cfg Config) (Result, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "scheduler.run")
		defer span.End()
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}

	byID := make(map[task.TaskId]*task.Task, len(tasks))
	for i := range tasks {
		t := tasks[i]
		byID[t.ID] = &t
	}

	cyclic := g.Cycles()
	el := g.Levels()

	res := Result{}
	failedSet := make(map[task.TaskId]bool)
	blockedSet := make(map[task.TaskId]bool)

	blockAndDescendants := func(id task.TaskId) {
		if blockedSet[id] {
			return
		}
		blockedSet[id] = true
		if t := byID[id]; t != nil {
			t.State = task.StateBlocked
			s.persist(*t)
		}
		for _, d := range g.Descendants(id) {
			if !blockedSet[d] && !failedSet[d] {
				blockAndDescendants(d)
			}
		}
	}

	for id := range cyclic {
		blockAndDescendants(id)
	}
	for _, id := range el.Unschedulable {
		if !cyclic[id] {
			blockAndDescendants(id)
		}
	}

	for levelIdx, level := range el.Levels {
		if ctx.Err() != nil {
			res.Aborted = true
			break
		}

		ready := make([]task.TaskId, 0, len(level))
		for _, id := range level {
			if blockedSet[id] || failedSet[id] {
				continue
			}
			if s.anyDependencyBad(byID[id], failedSet, blockedSet) {
				blockAndDescendants(id)
				continue
			}
			if s.cond != nil && byID[id].Condition != "" {
				ok, err := s.cond.Eval(byID[id].Condition, execContext(byID))
				if err != nil || !ok {
					if err != nil {
						slog.Warn("scheduler: condition evaluation error, treating as unmet", "task", id, "error", err)
					}
					byID[id].LastError = "condition not met"
					blockAndDescendants(id)
					continue
				}
			}
			ready = append(ready, id)
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

		if len(ready) == 0 {
			continue
		}

		for _, id := range ready {
			byID[id].State = task.StateReady
			s.persist(*byID[id])
			s.journalAppend(journal.TaskReady(sessionID, id, time.Now()))
		}

		s.journalAppend(journal.PhaseStart(sessionID, levelIdx, ready, time.Now()))

		aborted := s.dispatchLevel(ctx, sessionID, byID, ready, cfg, failedSet, blockedSet, blockAndDescendants)
		if aborted {
			res.Aborted = true
		}

		s.journalAppend(journal.PhaseComplete(sessionID, levelIdx, time.Now()))

		if aborted {
			break
		}
	}

	for id, t := range byID {
		switch t.State {
		case task.StateDone:
			res.Completed = append(res.Completed, id)
		case task.StateFailed:
			res.Failed = append(res.Failed, id)
		case task.StateBlocked:
			res.Blocked = append(res.Blocked, id)
		}
	}
	sort.Slice(res.Completed, func(i, j int) bool { return res.Completed[i] < res.Completed[j] })
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i] < res.Failed[j] })
	sort.Slice(res.Blocked, func(i, j int) bool { return res.Blocked[i] < res.Blocked[j] })

	return res, nil
}

func (s *Scheduler) anyDependencyBad(t *task.Task, failedSet, blockedSet map[task.TaskId]bool) bool {
	if t == nil {
		return false
	}
	for _, dep := range t.DependencySet() {
		if failedSet[dep] || blockedSet[dep] {
			return true
		}
	}
	return false
}

// dispatchLevel drains ready into a bounded worker pool, returning true
// if the run was aborted mid-level by ctx cancellation.
func (s *Scheduler) dispatchLevel(
	ctx context.Context,
	sessionID task.SessionId,
	byID map[task.TaskId]*task.Task,
	ready []task.TaskId,
	cfg Config,
	failedSet, blockedSet map[task.TaskId]bool,
	blockAndDescendants func(task.TaskId),
) bool {
	sem := make(chan struct{}, cfg.MaxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	abortedFlag := false

	for _, id := range ready {
		if ctx.Err() != nil {
			abortedFlag = true
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(id task.TaskId) {
			defer wg.Done()
			defer func() { <-sem }()

			_, final := s.runTaskWithRetries(ctx, sessionID, byID[id], cfg)

			if final == task.StateFailed {
				mu.Lock()
				failedSet[id] = true
				mu.Unlock()
			}
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		abortedFlag = true
		select {
		case <-done:
		case <-time.After(cfg.GracePeriod):
			slog.Warn("scheduler: grace period elapsed, giving up on in-flight workers")
		}
	}

	return abortedFlag
}

func (s *Scheduler) persist(t task.Task) {
	if s.store == nil {
		return
	}
	if err := s.store.WriteTask(t); err != nil {
		slog.Warn("scheduler: persist task failed", "task", t.ID, "error", err)
	}
}

func (s *Scheduler) journalAppend(rec journal.Record) {
	if s.jour == nil {
		return
	}
	if err := s.jour.Append(rec); err != nil {
		slog.Warn("scheduler: journal append failed", "error", err)
	}
}

func execContext(byID map[task.TaskId]*task.Task) map[string]any {
	ctx := make(map[string]any, len(byID))
	for id, t := range byID {
		ctx[string(id)] = map[string]any{
			"state":  string(t.State),
			"output": t.OutputFiles,
		}
	}
	return ctx
}
