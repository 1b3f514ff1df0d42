package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flowkit/agentctl/internal/task"
)

func TestWriteProducesThreeFiles(t *testing.T) {
	base := t.TempDir()
	s := SessionSummary{
		SessionID:   "s1",
		Instruction: "do the thing",
		Tasks: []task.Task{
			{ID: "a", TaskType: task.TypeImplementation},
			{ID: "b", TaskType: task.TypeDocumentation, Dependencies: []task.TaskId{"a"}},
		},
		Completed:    []task.TaskId{"a", "b"},
		JudgePassed:  true,
		JudgeComment: "looks good",
	}
	if err := Write(base, s); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, name := range []string{"00-planning.md", "01-task-breakdown.md", "summary.md"} {
		path := filepath.Join(base, "reports", "s1", name)
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
		if len(b) == 0 {
			t.Fatalf("expected %s to be non-empty", path)
		}
	}
}
