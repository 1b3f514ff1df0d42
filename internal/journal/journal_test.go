package journal

import (
	"os"
	"testing"
	"time"

	"github.com/flowkit/agentctl/internal/task"
)

func TestAppendAndIterateRoundTrip(t *testing.T) {
	base := t.TempDir()
	sid := task.SessionId("s1")
	j, err := Open(base, sid)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := SessionStart(sid, "do the thing", ts)
	if err := j.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := Iterate(base, sid)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Type() != TypeSessionStart {
		t.Fatalf("expected session_start, got %s", records[0].Type())
	}
	if records[0]["task"] != "do the thing" {
		t.Fatalf("round-trip lost task field: %v", records[0])
	}
}

func TestIterateSkipsMalformedTrailingLine(t *testing.T) {
	base := t.TempDir()
	sid := task.SessionId("s2")
	j, err := Open(base, sid)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ts := time.Now()
	if err := j.Append(SessionStart(sid, "x", ts)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Append(TaskDone(sid, "t1", nil, ts)); err != nil {
		t.Fatalf("append: %v", err)
	}
	j.Close()

	// Simulate a crash mid-write: append a truncated, non-JSON tail.
	f, err := os.OpenFile(JournalPath(base, sid), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	f.WriteString(`{"type":"task_start","taskId":"t2"` + "\n") // missing closing brace
	f.Close()

	records, err := Iterate(base, sid)
	if err != nil {
		t.Fatalf("iterate should not fail on malformed trailing line: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected malformed line to be skipped, got %d records", len(records))
	}
}

func TestExtractResumeCanResume(t *testing.T) {
	base := t.TempDir()
	sid := task.SessionId("s3")
	j, _ := Open(base, sid)
	ts := time.Now()
	j.Append(SessionStart(sid, "fix bug", ts))
	j.Append(TaskDone(sid, "a", nil, ts))
	j.Append(TaskDone(sid, "b", nil, ts))
	j.Append(SessionAbort(sid, "killed", ts))
	j.Close()

	rc, err := ExtractResume(base, sid)
	if err != nil {
		t.Fatalf("extract resume: %v", err)
	}
	if !rc.CanResume {
		t.Fatal("expected CanResume true after session_abort")
	}
	if rc.AbortReason != "killed" {
		t.Fatalf("expected abort reason 'killed', got %q", rc.AbortReason)
	}
	if len(rc.CompletedTasks) != 2 {
		t.Fatalf("expected 2 completed tasks, got %v", rc.CompletedTasks)
	}
}

func TestExtractResumeIdempotent(t *testing.T) {
	base := t.TempDir()
	sid := task.SessionId("s4")
	j, _ := Open(base, sid)
	ts := time.Now()
	j.Append(SessionStart(sid, "fix bug", ts))
	j.Append(TaskDone(sid, "a", nil, ts))
	j.Close()

	rc1, _ := ExtractResume(base, sid)
	rc2, _ := ExtractResume(base, sid)
	if rc1.CanResume != rc2.CanResume || len(rc1.CompletedTasks) != len(rc2.CompletedTasks) {
		t.Fatal("extractResume is not idempotent")
	}
}

func TestSetPointerAtomicUpdate(t *testing.T) {
	base := t.TempDir()
	sid := task.SessionId("s5")
	path := JournalPath(base, sid)
	if err := SetPointer(base, sid, path); err != nil {
		t.Fatalf("set pointer: %v", err)
	}
	p, err := ReadPointer(base)
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if p.Sessions[sid] != path {
		t.Fatalf("expected pointer to record %s, got %s", path, p.Sessions[sid])
	}
}
