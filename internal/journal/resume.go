package journal

import (
	"github.com/flowkit/agentctl/internal/task"
)

// ResumeContext is derived by a linear scan over a session's journal,
// per spec.md §4.4.
type ResumeContext struct {
	OriginalTask   string
	AbortReason    string
	LastPhase      int
	CompletedTasks []task.TaskId
	CanResume      bool
}

// ExtractResume computes the ResumeContext for sessionID by reading its
// journal. CanResume is true iff the last record is session_abort.
// CompletedTasks lists every taskId mentioned in a task_done record, in
// first-seen order. Running this twice on an unchanged journal yields an
// equal result (spec.md §8 property 7) because it is a pure function of
// the file's contents.
func ExtractResume(base string, sessionID task.SessionId) (ResumeContext, error) {
	records, err := Iterate(base, sessionID)
	if err != nil {
		return ResumeContext{}, err
	}

	var rc ResumeContext
	seen := make(map[task.TaskId]bool)
	lastType := ""

	for _, rec := range records {
		switch rec.Type() {
		case TypeSessionStart:
			if t, ok := rec["task"].(string); ok {
				rc.OriginalTask = t
			}
		case TypePhaseStart:
			if lvl, ok := rec["level"].(float64); ok {
				rc.LastPhase = int(lvl)
			}
		case TypeTaskDone:
			if id, ok := rec.TaskID(); ok && !seen[id] {
				seen[id] = true
				rc.CompletedTasks = append(rc.CompletedTasks, id)
			}
		case TypeSessionAbort:
			if reason, ok := rec["reason"].(string); ok {
				rc.AbortReason = reason
			}
		}
		lastType = rec.Type()
	}

	rc.CanResume = lastType == TypeSessionAbort
	return rc, nil
}
