package janitor

import (
	"os"
	"testing"
	"time"

	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/sessionindex"
	"github.com/flowkit/agentctl/internal/task"
)

func seedTerminalSession(t *testing.T, base string, sessionID task.SessionId, terminalAt time.Time) *sessionindex.Index {
	t.Helper()
	jour, err := journal.Open(base, sessionID)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	jour.Append(journal.SessionStart(sessionID, "x", terminalAt))
	jour.Append(journal.TaskDone(sessionID, "a", nil, terminalAt))
	jour.Append(journal.SessionComplete(sessionID, "ok", nil, terminalAt))
	jour.Close()

	idx, err := sessionindex.Open(base)
	if err != nil {
		t.Fatalf("sessionindex.Open: %v", err)
	}
	if err := idx.Rebuild(base, sessionID); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return idx
}

func TestSweepPrunesSessionsPastRetention(t *testing.T) {
	base := t.TempDir()
	sessionID := task.SessionId("old-session")
	idx := seedTerminalSession(t, base, sessionID, time.Now().Add(-48*time.Hour))
	defer idx.Close()

	j, err := New(base, "@every 1h", 24*time.Hour, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := j.sweepOne(sessionID); err != nil {
		t.Fatalf("sweepOne: %v", err)
	}

	if _, err := os.Stat(journal.JournalPath(base, sessionID)); !os.IsNotExist(err) {
		t.Fatalf("expected journal to be pruned, stat err=%v", err)
	}
	tailPath := base + "/planning-sessions/" + string(sessionID) + ".json"
	if _, err := os.Stat(tailPath); err != nil {
		t.Fatalf("expected compacted tail at %s: %v", tailPath, err)
	}
}

func TestSweepLeavesRecentSessionsAlone(t *testing.T) {
	base := t.TempDir()
	sessionID := task.SessionId("fresh-session")
	idx := seedTerminalSession(t, base, sessionID, time.Now())
	defer idx.Close()

	j, err := New(base, "@every 1h", 24*time.Hour, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := j.sweepOne(sessionID); err != nil {
		t.Fatalf("sweepOne: %v", err)
	}

	if _, err := os.Stat(journal.JournalPath(base, sessionID)); err != nil {
		t.Fatalf("expected journal to survive, stat err=%v", err)
	}
}
