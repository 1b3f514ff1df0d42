// Package store implements TaskStore (C5): a durable key-value store of
// TaskId -> Task backed by one JSON file per task, per spec.md §4.5.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flowkit/agentctl/internal/task"
)

// TaskStore reads and writes per-task JSON files under
// <base>/tasks/<id>.json. It performs no locking of its own — per
// spec.md §4.5, the Scheduler's own RUNNING-implies-one-worker invariant
// is what rules out concurrent writers to the same task id.
type TaskStore struct {
	base string
}

// New returns a TaskStore rooted at base.
func New(base string) *TaskStore {
	return &TaskStore{base: base}
}

func (s *TaskStore) dir() string {
	return filepath.Join(s.base, "tasks")
}

func (s *TaskStore) path(id task.TaskId) string {
	return filepath.Join(s.dir(), sanitize(string(id))+".json")
}

// sanitize strips path separators from a task id before it is used as a
// filename component, so a task id can never escape the tasks/ directory.
func sanitize(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}

// ReadTask loads one task by id.
func (s *TaskStore) ReadTask(id task.TaskId) (task.Task, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return task.Task{}, &task.ErrNotFound{Kind: "task", Key: string(id)}
		}
		return task.Task{}, fmt.Errorf("taskstore: read %s: %w", id, err)
	}
	var t task.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return task.Task{}, fmt.Errorf("taskstore: parse %s: %w", id, err)
	}
	return t, nil
}

// WriteTask persists t, writing via a temp file and atomic rename so a
// concurrent reader never observes a partially written task file.
func (s *TaskStore) WriteTask(t task.Task) error {
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return fmt.Errorf("taskstore: mkdir: %w", err)
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("taskstore: marshal %s: %w", t.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir(), "task-*.json.tmp")
	if err != nil {
		return fmt.Errorf("taskstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("taskstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("taskstore: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("taskstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(t.ID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("taskstore: rename %s: %w", t.ID, err)
	}
	return nil
}

// ListTasks returns every task currently persisted, sorted by TaskId.
func (s *TaskStore) ListTasks() ([]task.Task, error) {
	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskstore: readdir: %w", err)
	}

	var tasks []task.Task
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir(), e.Name()))
		if err != nil {
			continue
		}
		var t task.Task
		if err := json.Unmarshal(b, &t); err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}
