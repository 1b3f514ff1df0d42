package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowkit/agentctl/internal/graph"
	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/reviewer"
	"github.com/flowkit/agentctl/internal/task"
)

func buildGraph(t *testing.T, tasks []task.Task) *graph.Graph {
	t.Helper()
	g, err := graph.Build(tasks)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	return g
}

// S1: a diamond (a -> b,c -> d) completes fully across three levels.
func TestDiamondLevelsAllComplete(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", MaxAttempts: 1},
		{ID: "b", Dependencies: []task.TaskId{"a"}, MaxAttempts: 1},
		{ID: "c", Dependencies: []task.TaskId{"a"}, MaxAttempts: 1},
		{ID: "d", Dependencies: []task.TaskId{"b", "c"}, MaxAttempts: 1},
	}
	g := buildGraph(t, tasks)

	sched := New(nil, nil, nil, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers: 4,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			return task.WorkerOutcome{ArtifactSummary: "ok"}
		},
	}

	res, err := sched.Run(context.Background(), "s1", g, tasks, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Completed) != 4 {
		t.Fatalf("expected all 4 tasks done, got %+v", res)
	}
	if len(res.Failed) != 0 || len(res.Blocked) != 0 {
		t.Fatalf("expected no failures or blocks, got %+v", res)
	}
}

// S2: a cycle between a and b blocks both of them and d (a's dependent),
// while an unrelated task c still runs to completion.
func TestCycleBlocksParticipantsAndDescendants(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", Dependencies: []task.TaskId{"b"}, MaxAttempts: 1},
		{ID: "b", Dependencies: []task.TaskId{"a"}, MaxAttempts: 1},
		{ID: "c", MaxAttempts: 1},
		{ID: "d", Dependencies: []task.TaskId{"a"}, MaxAttempts: 1},
	}
	g := buildGraph(t, tasks)

	var ranC bool
	sched := New(nil, nil, nil, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers: 2,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			if tk.ID == "c" {
				ranC = true
			}
			return task.WorkerOutcome{ArtifactSummary: "ok"}
		},
	}

	res, err := sched.Run(context.Background(), "s1", g, tasks, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ranC {
		t.Fatal("c has no path to the cycle and should have run")
	}
	blocked := make(map[task.TaskId]bool, len(res.Blocked))
	for _, id := range res.Blocked {
		blocked[id] = true
	}
	for _, id := range []task.TaskId{"a", "b", "d"} {
		if !blocked[id] {
			t.Fatalf("expected %s blocked, got %+v", id, res)
		}
	}
	if len(res.Completed) != 1 || res.Completed[0] != "c" {
		t.Fatalf("expected only c completed, got %+v", res.Completed)
	}
}

// S3: a task retries twice and succeeds on its third attempt, following
// the deterministic backoff sequence.
func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	tasks := []task.Task{{ID: "a", MaxAttempts: 3}}
	g := buildGraph(t, tasks)

	var attempts int32
	sched := New(nil, nil, nil, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return task.WorkerOutcome{Error: "transient", Retryable: true}
			}
			return task.WorkerOutcome{ArtifactSummary: "ok"}
		},
	}

	res, err := sched.Run(context.Background(), "s1", g, tasks, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Completed) != 1 {
		t.Fatalf("expected task to complete after retries, got %+v", res)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

// A non-retryable failure on one branch blocks only its dependents, not
// the whole run.
func TestNonRetryableFailureBlocksDependentsOnly(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", MaxAttempts: 1},
		{ID: "b", Dependencies: []task.TaskId{"a"}, MaxAttempts: 1},
		{ID: "c", MaxAttempts: 1},
	}
	g := buildGraph(t, tasks)

	sched := New(nil, nil, nil, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers: 2,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			if tk.ID == "a" {
				return task.WorkerOutcome{Error: "fatal", Retryable: false}
			}
			return task.WorkerOutcome{ArtifactSummary: "ok"}
		},
	}

	res, err := sched.Run(context.Background(), "s1", g, tasks, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "a" {
		t.Fatalf("expected a to have failed, got %+v", res)
	}
	if len(res.Blocked) != 1 || res.Blocked[0] != "b" {
		t.Fatalf("expected b blocked by its failed dependency, got %+v", res)
	}
	if len(res.Completed) != 1 || res.Completed[0] != "c" {
		t.Fatalf("expected c unaffected, got %+v", res)
	}
}

// S4: the quality gate rejects the first attempt's output, forcing a
// retry; the second attempt passes review and the task completes.
func TestQualityGateRejectsThenRetrySucceeds(t *testing.T) {
	tasks := []task.Task{{ID: "a", MaxAttempts: 2, Description: "render widget"}}
	g := buildGraph(t, tasks)

	var attempts int32
	rev := reviewer.New(reviewer.Config{RejectThreshold: 1, ScopeCreepTolerance: 2})
	sched := New(nil, nil, rev, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			n := atomic.AddInt32(&attempts, 1)
			if n == 1 {
				return task.WorkerOutcome{ChangedFiles: map[string]string{
					"src/x.go": `x := y ?? "default"` + "\n",
				}}
			}
			return task.WorkerOutcome{ChangedFiles: map[string]string{
				"src/x.go": "x := computeDefault(y)\n",
			}}
		},
	}

	res, err := sched.Run(context.Background(), "s1", g, tasks, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Completed) != 1 {
		t.Fatalf("expected completion after reject-then-fix, got %+v", res)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts (reject then accept), got %d", attempts)
	}
}

// Property 4: the scheduler never runs more than maxWorkers tasks
// concurrently within a level.
func TestConcurrencyNeverExceedsMaxWorkers(t *testing.T) {
	const n = 12
	tasks := make([]task.Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = task.Task{ID: task.TaskId(fmt.Sprintf("t%02d", i)), MaxAttempts: 1}
	}
	g := buildGraph(t, tasks)

	var current, maxObserved int32
	sched := New(nil, nil, nil, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers: 4,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			c := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&maxObserved)
				if c <= m || atomic.CompareAndSwapInt32(&maxObserved, m, c) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return task.WorkerOutcome{ArtifactSummary: "ok"}
		},
	}

	res, err := sched.Run(context.Background(), "s1", g, tasks, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Completed) != n {
		t.Fatalf("expected all %d tasks done, got %+v", n, res)
	}
	if atomic.LoadInt32(&maxObserved) > 4 {
		t.Fatalf("observed more than maxWorkers concurrent tasks: %d", maxObserved)
	}
}

// A cacheable task with a definition identical to one already served
// serves the cached outcome without a second WorkerFn invocation, while
// still producing a task_done record for the hit.
func TestCacheableTaskServesCachedOutcomeOnRepeatDefinition(t *testing.T) {
	def := task.Task{
		Title:       "render widget",
		Description: "render the shared widget",
		TaskType:    task.TypeImplementation,
		Cacheable:   true,
		MaxAttempts: 1,
	}
	first := def
	first.ID = "a"
	second := def
	second.ID = "b"

	tasks := []task.Task{first, second}
	g := buildGraph(t, tasks)

	var invocations int32
	sched := New(nil, nil, nil, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers: 1,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			atomic.AddInt32(&invocations, 1)
			return task.WorkerOutcome{ArtifactSummary: "ok"}
		},
	}

	res, err := sched.Run(context.Background(), "s1", g, tasks, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Completed) != 2 {
		t.Fatalf("expected both tasks to complete, got %+v", res)
	}
	if atomic.LoadInt32(&invocations) != 1 {
		t.Fatalf("expected the second task's identical definition to hit the cache instead of invoking WorkerFn again, got %d invocations", invocations)
	}
}

// A WorkerFn that streams interim chunks via onOutput produces
// task_output journal records ahead of the task's task_done record.
func TestWorkerStreamedOutputReachesJournal(t *testing.T) {
	tasks := []task.Task{{ID: "a", MaxAttempts: 1}}
	g := buildGraph(t, tasks)

	dir := t.TempDir()
	jour, err := journal.Open(dir, "s1")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer jour.Close()

	sched := New(nil, jour, nil, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers: 1,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			onOutput("compiling widget")
			onOutput("widget ready")
			return task.WorkerOutcome{ArtifactSummary: "ok"}
		},
	}

	res, err := sched.Run(context.Background(), "s1", g, tasks, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Completed) != 1 {
		t.Fatalf("expected task to complete, got %+v", res)
	}

	records, err := journal.Iterate(dir, "s1")
	if err != nil {
		t.Fatalf("journal.Iterate: %v", err)
	}
	var chunks []string
	for _, r := range records {
		if r.Type() == journal.TypeTaskOutput {
			chunks = append(chunks, r["chunk"].(string))
		}
		if r.Type() == journal.TypeTaskDone && len(chunks) != 2 {
			t.Fatalf("expected both task_output records before task_done, got %v", chunks)
		}
	}
	if len(chunks) != 2 || chunks[0] != "compiling widget" || chunks[1] != "widget ready" {
		t.Fatalf("expected both streamed chunks as task_output records in order, got %v", chunks)
	}
}

// S5: cancelling mid-level stops new dispatches and joins in-flight
// workers within the grace period rather than abandoning them outright.
func TestCancellationMidLevelJoinsWithinGracePeriod(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", MaxAttempts: 1},
		{ID: "b", MaxAttempts: 1},
		{ID: "c", MaxAttempts: 1},
		{ID: "d", MaxAttempts: 1},
	}
	g := buildGraph(t, tasks)

	started := make(chan struct{}, len(tasks))
	release := make(chan struct{})
	sched := New(nil, nil, nil, nil, Metrics{}, nil)
	cfg := Config{
		MaxWorkers:  2,
		GracePeriod: 2 * time.Second,
		WorkerFn: func(ctx context.Context, tk task.Task, onOutput func(string)) task.WorkerOutcome {
			started <- struct{}{}
			<-release
			return task.WorkerOutcome{ArtifactSummary: "ok"}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	var res Result
	var runErr error
	done := make(chan struct{})
	go func() {
		res, runErr = sched.Run(ctx, "s1", g, tasks, cfg)
		close(done)
	}()

	// Exactly maxWorkers tasks should ever be dispatched at once; wait
	// for both, then cancel before any third task is admitted.
	<-started
	<-started
	cancel()
	close(release)
	<-done

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if !res.Aborted {
		t.Fatalf("expected aborted run, got %+v", res)
	}
	if len(res.Completed) > 2 {
		t.Fatalf("expected at most the 2 in-flight tasks to complete, got %+v", res.Completed)
	}
}
