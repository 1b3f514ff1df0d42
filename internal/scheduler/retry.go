package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/task"
)

// runTaskWithRetries drives one task through dispatch, the quality gate,
// and the retry policy in spec.md §4.2: exponential backoff
// base·2^(attempts-1) capped at MaxDelay, using cenkalti/backoff's
// ExponentialBackOff with RandomizationFactor 0 so the sequence is
// deterministic rather than the library's usual jittered one.
func (s *Scheduler) runTaskWithRetries(ctx context.Context, sessionID task.SessionId, t *task.Task, cfg Config) (task.WorkerOutcome, task.State) {
	maxAttempts := t.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = cfg.PerTaskMaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.Multiplier = 2
	bo.MaxInterval = cfg.MaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if ctx.Err() != nil {
			return task.WorkerOutcome{}, t.State
		}

		t.Attempts++
		t.State = task.StateRunning
		s.persist(*t)
		s.journalAppend(journal.TaskStart(sessionID, t.ID, t.Attempts, time.Now()))

		var key string
		if t.Cacheable {
			key = cacheKeyFor(t)
		}

		outcome, hit := cacheLookup(key)
		if !hit {
			attemptCtx := ctx
			var cancel context.CancelFunc
			if cfg.PerTaskTimeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, cfg.PerTaskTimeout)
			}
			onOutput := func(chunk string) {
				s.journalAppend(journal.TaskOutput(sessionID, t.ID, chunk, time.Now()))
			}
			start := time.Now()
			outcome = cfg.WorkerFn(attemptCtx, *t, onOutput)
			duration := time.Since(start)
			if cancel != nil {
				cancel()
			}
			if s.metrics.TaskDuration != nil {
				s.metrics.TaskDuration.Record(ctx, float64(duration.Milliseconds()))
			}
			if s.metrics.TasksDispatched != nil {
				s.metrics.TasksDispatched.Add(ctx, 1)
			}

			if ctx.Err() != nil {
				return outcome, t.State
			}

			if !outcome.Failed() {
				outcome = s.applyQualityGate(sessionID, t, outcome)
			}
		}

		if !outcome.Failed() {
			t.State = task.StateDone
			if t.OutputFiles == nil {
				t.OutputFiles = map[string]string{}
			}
			for path, contents := range outcome.ChangedFiles {
				t.OutputFiles[path] = contents
			}
			s.persist(*t)
			s.journalAppend(journal.TaskDone(sessionID, t.ID, outputPaths(outcome.ChangedFiles), time.Now()))
			if !hit {
				cacheStore(key, outcome)
			}
			return outcome, task.StateDone
		}

		if !outcome.Retryable || t.Attempts >= maxAttempts {
			t.State = task.StateFailed
			t.LastError = outcome.Error
			s.persist(*t)
			s.journalAppend(journal.TaskFailed(sessionID, t.ID, outcome.Error, time.Now()))
			return outcome, task.StateFailed
		}

		if s.metrics.TasksRetried != nil {
			s.metrics.TasksRetried.Add(ctx, 1)
		}
		t.State = task.StateReady
		s.persist(*t)

		delay := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return outcome, t.State
		case <-time.After(delay):
		}
	}
}

// applyQualityGate runs the AntipatternReviewer over a successful
// outcome's changed files and rewrites it to a retryable error when
// rejected, per spec.md §4.2.
func (s *Scheduler) applyQualityGate(sessionID task.SessionId, t *task.Task, outcome task.WorkerOutcome) task.WorkerOutcome {
	if s.reviewer == nil || len(outcome.ChangedFiles) == 0 {
		return outcome
	}
	verdict := s.reviewer.Review(outcome.ChangedFiles, t.Description)
	s.journalAppend(journal.TaskReviewed(sessionID, t.ID, verdict, time.Now()))
	if verdict.ShouldReject {
		return task.WorkerOutcome{Error: verdict.RejectReason, Retryable: true}
	}
	return outcome
}

func outputPaths(changed map[string]string) []string {
	paths := make([]string, 0, len(changed))
	for p := range changed {
		paths = append(paths, p)
	}
	return paths
}
