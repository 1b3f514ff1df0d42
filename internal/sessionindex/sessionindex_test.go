package sessionindex

import (
	"testing"
	"time"

	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/task"
)

func TestRebuildThenSummary(t *testing.T) {
	base := t.TempDir()
	sessionID := task.SessionId("s1")

	jour, err := journal.Open(base, sessionID)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	now := time.Now()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	must(jour.Append(journal.SessionStart(sessionID, "do something", now)))
	must(jour.Append(journal.PhaseStart(sessionID, 0, []task.TaskId{"a"}, now)))
	must(jour.Append(journal.TaskDone(sessionID, "a", nil, now)))
	must(jour.Append(journal.PhaseComplete(sessionID, 0, now)))
	must(jour.Append(journal.SessionComplete(sessionID, "ok", nil, now)))
	jour.Close()

	idx, err := Open(base)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.Rebuild(base, sessionID); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	summary, found, err := idx.Summary(sessionID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !found {
		t.Fatal("expected summary to be found after rebuild")
	}
	if summary.Completed != 1 || !summary.Terminal {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	state, found, err := idx.TaskState(sessionID, "a")
	if err != nil {
		t.Fatalf("TaskState: %v", err)
	}
	if !found || state != task.StateDone {
		t.Fatalf("expected task a DONE, got %s found=%v", state, found)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	base := t.TempDir()
	sessionID := task.SessionId("s1")

	jour, err := journal.Open(base, sessionID)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	now := time.Now()
	jour.Append(journal.SessionStart(sessionID, "x", now))
	jour.Append(journal.TaskDone(sessionID, "a", nil, now))
	jour.Append(journal.SessionComplete(sessionID, "ok", nil, now))
	jour.Close()

	idx, err := Open(base)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.Rebuild(base, sessionID); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	first, _, _ := idx.Summary(sessionID)

	if err := idx.Rebuild(base, sessionID); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second, _, _ := idx.Summary(sessionID)

	if first != second {
		t.Fatalf("rebuild not idempotent: %+v vs %+v", first, second)
	}
}
