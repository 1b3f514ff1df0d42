// Package janitor implements the Janitor (C14): a cron-scheduled
// retention sweep over completed sessions. It compacts a terminal
// session's resume-relevant tail into a small planning-sessions/<id>.json
// summary and removes the now-redundant full journal segment once it is
// older than the retention window.
//
// Adapted from the teacher's cron-driven workflow Scheduler
// (services/orchestrator/scheduler.go): the same robfig/cron/v3 handle,
// Start/Stop lifecycle, and slog logging, repurposed from "trigger a
// workflow on a schedule" (a concern this domain doesn't have — tasks are
// dispatched by the dependency graph, not the clock) to "run a periodic
// maintenance job" (a concern it does).
package janitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/sessionindex"
	"github.com/flowkit/agentctl/internal/task"
)

// Janitor owns one cron handle sweeping base for sessions past
// retention.
type Janitor struct {
	cron      *cron.Cron
	base      string
	retention time.Duration
	index     *sessionindex.Index
}

// New constructs a Janitor. schedule is a standard 5-field cron
// expression or an "@every" shorthand (e.g. "@every 1h").
func New(base string, schedule string, retention time.Duration, index *sessionindex.Index) (*Janitor, error) {
	j := &Janitor{cron: cron.New(), base: base, retention: retention, index: index}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins the cron goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
	slog.Info("janitor started")
}

// Stop gracefully stops the cron goroutine, waiting for an in-flight
// sweep to finish or ctx to expire, whichever comes first.
func (j *Janitor) Stop(ctx context.Context) error {
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
		slog.Info("janitor stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("janitor stop timed out")
		return ctx.Err()
	}
}

// SweepOnce runs one sweep synchronously without starting the cron
// goroutine, for `agent gc`'s one-shot invocation.
func (j *Janitor) SweepOnce() {
	j.sweep()
}

// sweep is the cron job body: list indexed sessions, compact and prune
// every one whose terminal record is older than retention.
func (j *Janitor) sweep() {
	if j.index == nil {
		return
	}
	sessionIDs, err := j.index.ListSessions()
	if err != nil {
		slog.Warn("janitor: list sessions failed", "error", err)
		return
	}
	for _, id := range sessionIDs {
		if err := j.sweepOne(id); err != nil {
			slog.Warn("janitor: sweep failed", "session", id, "error", err)
		}
	}
}

func (j *Janitor) sweepOne(sessionID task.SessionId) error {
	summary, found, err := j.index.Summary(sessionID)
	if err != nil {
		return err
	}
	if !found || !summary.Terminal {
		return nil
	}
	terminalAt, err := time.Parse(time.RFC3339Nano, summary.TerminalAt)
	if err != nil {
		return fmt.Errorf("parse terminalAt: %w", err)
	}
	if time.Since(terminalAt) < j.retention {
		return nil
	}
	return j.compactAndPrune(sessionID)
}

// compactedTail is the minimal resume-relevant record kept once a
// session's full journal is pruned.
type compactedTail struct {
	SessionID  task.SessionId `json:"sessionId"`
	TerminalAt string         `json:"terminalAt"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	Blocked    int            `json:"blocked"`
}

func (j *Janitor) compactAndPrune(sessionID task.SessionId) error {
	summary, found, err := j.index.Summary(sessionID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	dir := filepath.Join(j.base, "planning-sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tail := compactedTail{
		SessionID:  sessionID,
		TerminalAt: summary.TerminalAt,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Blocked:    summary.Blocked,
	}
	b, err := json.MarshalIndent(tail, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tail: %w", err)
	}
	tailPath := filepath.Join(dir, string(sessionID)+".json")
	if err := os.WriteFile(tailPath, b, 0o644); err != nil {
		return fmt.Errorf("write tail %s: %w", tailPath, err)
	}

	journalPath := journal.JournalPath(j.base, sessionID)
	if err := os.Remove(journalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove journal %s: %w", journalPath, err)
	}
	slog.Info("janitor: compacted session", "session", sessionID, "tail", tailPath)
	return nil
}
