package main

import (
	"testing"

	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/task"
)

func TestSessionIDsToReportHonorsExplicitOverride(t *testing.T) {
	ids, err := sessionIDsToReport(t.TempDir(), "session-1")
	if err != nil {
		t.Fatalf("sessionIDsToReport: %v", err)
	}
	if len(ids) != 1 || ids[0] != task.SessionId("session-1") {
		t.Fatalf("ids = %v, want [session-1]", ids)
	}
}

func TestSessionIDsToReportListsAllKnownSessions(t *testing.T) {
	base := t.TempDir()
	if err := journal.SetPointer(base, "b-session", "/irrelevant/b.jsonl"); err != nil {
		t.Fatalf("SetPointer: %v", err)
	}
	if err := journal.SetPointer(base, "a-session", "/irrelevant/a.jsonl"); err != nil {
		t.Fatalf("SetPointer: %v", err)
	}

	ids, err := sessionIDsToReport(base, "")
	if err != nil {
		t.Fatalf("sessionIDsToReport: %v", err)
	}
	if len(ids) != 2 || ids[0] != task.SessionId("a-session") || ids[1] != task.SessionId("b-session") {
		t.Fatalf("ids = %v, want sorted [a-session b-session]", ids)
	}
}
