package journal

import (
	"time"

	"github.com/flowkit/agentctl/internal/task"
)

// Record types, per spec.md §3/§6.4.
const (
	TypeSessionStart    = "session_start"
	TypeSessionComplete = "session_complete"
	TypeSessionAbort    = "session_abort"
	TypePhaseStart      = "phase_start"
	TypePhaseComplete   = "phase_complete"
	TypeTaskCreated     = "task_created"
	TypeTaskReady       = "task_ready"
	TypeTaskStart       = "task_start"
	TypeTaskOutput      = "task_output"
	TypeTaskReviewed    = "task_reviewed"
	TypeTaskDone        = "task_done"
	TypeTaskFailed      = "task_failed"
)

// Record is one journal line. It is a plain map so every record type's
// extra fields can ride alongside the three common ones without a
// discriminated-union type per record kind — the journal never inspects
// fields it doesn't own, only type/timestamp/sessionId.
type Record map[string]any

func newRecord(recordType string, sessionID task.SessionId, ts time.Time) Record {
	return Record{
		"type":      recordType,
		"sessionId": sessionID,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	}
}

// Type returns the record's "type" field, or "" if absent/malformed.
func (r Record) Type() string {
	s, _ := r["type"].(string)
	return s
}

// Timestamp parses the record's "timestamp" field.
func (r Record) Timestamp() (time.Time, bool) {
	s, ok := r["timestamp"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// TaskID returns the record's "taskId" field, if present.
func (r Record) TaskID() (task.TaskId, bool) {
	s, ok := r["taskId"].(string)
	if !ok {
		return "", false
	}
	return task.TaskId(s), true
}

// SessionStart builds a session_start record.
func SessionStart(sessionID task.SessionId, instruction string, ts time.Time) Record {
	r := newRecord(TypeSessionStart, sessionID, ts)
	r["task"] = instruction
	return r
}

// SessionComplete builds a session_complete record.
func SessionComplete(sessionID task.SessionId, summary string, metrics map[string]any, ts time.Time) Record {
	r := newRecord(TypeSessionComplete, sessionID, ts)
	r["summary"] = summary
	r["metrics"] = metrics
	return r
}

// SessionAbort builds a session_abort record.
func SessionAbort(sessionID task.SessionId, reason string, ts time.Time) Record {
	r := newRecord(TypeSessionAbort, sessionID, ts)
	r["reason"] = reason
	return r
}

// PhaseStart builds a phase_start record for the given level index.
func PhaseStart(sessionID task.SessionId, level int, taskIDs []task.TaskId, ts time.Time) Record {
	r := newRecord(TypePhaseStart, sessionID, ts)
	r["level"] = level
	r["taskIds"] = taskIDs
	return r
}

// PhaseComplete builds a phase_complete record for the given level index.
func PhaseComplete(sessionID task.SessionId, level int, ts time.Time) Record {
	r := newRecord(TypePhaseComplete, sessionID, ts)
	r["level"] = level
	return r
}

// TaskCreated builds a task_created record.
func TaskCreated(sessionID task.SessionId, t task.Task, ts time.Time) Record {
	r := newRecord(TypeTaskCreated, sessionID, ts)
	r["taskId"] = t.ID
	r["title"] = t.Title
	r["taskType"] = t.TaskType
	return r
}

// TaskReady builds a task_ready record.
func TaskReady(sessionID task.SessionId, taskID task.TaskId, ts time.Time) Record {
	r := newRecord(TypeTaskReady, sessionID, ts)
	r["taskId"] = taskID
	return r
}

// TaskStart builds a task_start record.
func TaskStart(sessionID task.SessionId, taskID task.TaskId, attempt int, ts time.Time) Record {
	r := newRecord(TypeTaskStart, sessionID, ts)
	r["taskId"] = taskID
	r["attempt"] = attempt
	return r
}

// TaskOutput builds a task_output record carrying a streamed chunk.
func TaskOutput(sessionID task.SessionId, taskID task.TaskId, chunk string, ts time.Time) Record {
	r := newRecord(TypeTaskOutput, sessionID, ts)
	r["taskId"] = taskID
	r["chunk"] = chunk
	return r
}

// TaskReviewed builds a task_reviewed record.
func TaskReviewed(sessionID task.SessionId, taskID task.TaskId, verdict task.ReviewResult, ts time.Time) Record {
	r := newRecord(TypeTaskReviewed, sessionID, ts)
	r["taskId"] = taskID
	r["score"] = verdict.Score
	r["rejected"] = verdict.ShouldReject
	return r
}

// TaskDone builds a task_done record.
func TaskDone(sessionID task.SessionId, taskID task.TaskId, outputs []string, ts time.Time) Record {
	r := newRecord(TypeTaskDone, sessionID, ts)
	r["taskId"] = taskID
	r["outputs"] = outputs
	return r
}

// TaskFailed builds a task_failed record.
func TaskFailed(sessionID task.SessionId, taskID task.TaskId, errMsg string, ts time.Time) Record {
	r := newRecord(TypeTaskFailed, sessionID, ts)
	r["taskId"] = taskID
	r["error"] = errMsg
	return r
}
