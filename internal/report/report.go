// Package report renders the three Markdown files named in spec.md
// §6.2 under reports/<sessionId>/. Per SPEC_FULL.md §4.15 this is
// explicitly the one component not meriting engineering depth: a
// template fill, not a rendering engine.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowkit/agentctl/internal/task"
)

// SessionSummary is the minimal data Write needs; callers
// assemble it from the Orchestrator's Outcome and the planned task list.
type SessionSummary struct {
	SessionID    task.SessionId
	Instruction  string
	Tasks        []task.Task
	Completed    []task.TaskId
	Failed       []task.TaskId
	Blocked      []task.TaskId
	JudgePassed  bool
	JudgeComment string
}

// Write renders and writes reports/<sessionId>/{00-planning,
// 01-task-breakdown,summary}.md under base.
func Write(base string, s SessionSummary) error {
	dir := filepath.Join(base, "reports", string(s.SessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: mkdir %s: %w", dir, err)
	}

	files := map[string]string{
		"00-planning.md":       renderPlanning(s),
		"01-task-breakdown.md": renderTaskBreakdown(s),
		"summary.md":           renderSummary(s),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("report: write %s: %w", name, err)
		}
	}
	return nil
}

func renderPlanning(s SessionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Planning — %s\n\n", s.SessionID)
	fmt.Fprintf(&b, "Instruction: %s\n\n", s.Instruction)
	fmt.Fprintf(&b, "%d task(s) planned.\n", len(s.Tasks))
	return b.String()
}

func renderTaskBreakdown(s SessionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task Breakdown — %s\n\n", s.SessionID)
	fmt.Fprintf(&b, "| Task | Type | Dependencies |\n|---|---|---|\n")
	for _, t := range s.Tasks {
		deps := "-"
		if len(t.Dependencies) > 0 {
			names := make([]string, len(t.Dependencies))
			for i, d := range t.Dependencies {
				names[i] = string(d)
			}
			deps = strings.Join(names, ", ")
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", t.ID, t.TaskType, deps)
	}
	return b.String()
}

func renderSummary(s SessionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Summary — %s\n\n", s.SessionID)
	fmt.Fprintf(&b, "- Completed: %d\n", len(s.Completed))
	fmt.Fprintf(&b, "- Failed: %d\n", len(s.Failed))
	fmt.Fprintf(&b, "- Blocked: %d\n", len(s.Blocked))
	if s.JudgeComment != "" {
		fmt.Fprintf(&b, "\nJudge verdict: %v — %s\n", s.JudgePassed, s.JudgeComment)
	}
	return b.String()
}
