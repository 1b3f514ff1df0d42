package store

import (
	"testing"

	"github.com/flowkit/agentctl/internal/task"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	tk := task.Task{ID: "t1", Title: "do thing", State: task.StateNew, MaxAttempts: 3}
	if err := s.WriteTask(tk); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.ReadTask("t1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Title != tk.Title || got.State != tk.State {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.ReadTask("ghost")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var nf *task.ErrNotFound
	if !isNotFound(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %T: %v", err, err)
	}
}

func isNotFound(err error, target **task.ErrNotFound) bool {
	nf, ok := err.(*task.ErrNotFound)
	if ok {
		*target = nf
	}
	return ok
}

func TestListTasksSorted(t *testing.T) {
	s := New(t.TempDir())
	s.WriteTask(task.Task{ID: "b"})
	s.WriteTask(task.Task{ID: "a"})
	s.WriteTask(task.Task{ID: "c"})
	tasks, err := s.ListTasks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 || tasks[0].ID != "a" || tasks[2].ID != "c" {
		t.Fatalf("expected sorted [a b c], got %v", tasks)
	}
}

func TestSanitizeRejectsPathEscape(t *testing.T) {
	s := New(t.TempDir())
	tk := task.Task{ID: "../../etc/passwd"}
	if err := s.WriteTask(tk); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.ReadTask("../../etc/passwd")
	if err != nil {
		t.Fatalf("read back sanitized id: %v", err)
	}
	if got.ID != tk.ID {
		t.Fatalf("expected id preserved in content: %v", got)
	}
}
