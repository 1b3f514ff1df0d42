package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/flowkit/agentctl/internal/task"
)

// resultCache backs SPEC_FULL.md §3's cacheable-task supplement: an
// in-process result cache keyed by a task's normalized definition, shared
// across every Scheduler in this process (not per-session) since the
// whole point is to skip re-invoking workerFn for an identical task
// definition wherever it recurs. It never changes journal semantics —
// callers still emit the usual task_start/task_done pair around a hit.
var resultCache sync.Map // cacheKey(string) -> task.WorkerOutcome

// cacheKeyFor computes spec.md's cacheKey: a sha256 over the task's
// normalized, stable definition fields. State, Attempts, LastError, and
// OutputFiles are deliberately excluded — they describe a run, not the
// task's definition.
func cacheKeyFor(t *task.Task) string {
	type definition struct {
		Title        string        `json:"title"`
		Description  string        `json:"description"`
		Dependencies []task.TaskId `json:"dependencies"`
		TaskType     task.TaskType `json:"taskType"`
		Priority     task.Priority `json:"priority"`
		Condition    string        `json:"condition"`
	}
	b, _ := json.Marshal(definition{
		Title:        t.Title,
		Description:  t.Description,
		Dependencies: t.DependencySet(),
		TaskType:     t.TaskType,
		Priority:     t.Priority,
		Condition:    t.Condition,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func cacheLookup(key string) (task.WorkerOutcome, bool) {
	if key == "" {
		return task.WorkerOutcome{}, false
	}
	v, ok := resultCache.Load(key)
	if !ok {
		return task.WorkerOutcome{}, false
	}
	return v.(task.WorkerOutcome), true
}

func cacheStore(key string, outcome task.WorkerOutcome) {
	if key == "" {
		return
	}
	resultCache.Store(key, outcome)
}
