package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowkit/agentctl/internal/agentinvoker"
	"github.com/flowkit/agentctl/internal/graph"
	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/obslog"
	"github.com/flowkit/agentctl/internal/obstel"
	"github.com/flowkit/agentctl/internal/orchestrator"
	"github.com/flowkit/agentctl/internal/task"
)

var resumeFlag bool

var planCmd = &cobra.Command{
	Use:   "plan [instruction]",
	Short: "Plan and run a new session, or resume the most recently aborted one",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return &userError{err}
		}

		obslog.Init("agentctl")
		shutdownTrace, _ := obstel.InitTracer(cmd.Context(), cfg.Telemetry.ServiceName)
		shutdownMetrics, metrics := obstel.InitMetrics(cmd.Context(), cfg.Telemetry.ServiceName)
		defer obstel.Flush(context.Background(), shutdownTrace)
		defer obstel.Flush(context.Background(), shutdownMetrics)

		invoker := agentinvoker.NewHTTPInvoker(cfg.AgentGateway, nil)
		o := orchestrator.New(cfg.BaseDir, cfg, invoker, schedulerMetrics(metrics), obstel.Tracer("agentctl"))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var out orchestrator.Outcome
		if resumeFlag {
			sessionID, err := latestResumableSession(cfg.BaseDir)
			if err != nil {
				return &userError{err}
			}
			out, err = o.Resume(ctx, sessionID)
			if err != nil {
				return wrapRunErr(ctx, err)
			}
		} else {
			if len(args) == 0 {
				return &userError{fmt.Errorf("plan requires an instruction, or --resume to continue the last aborted session")}
			}
			out, err = o.Plan(ctx, args[0])
			if err != nil {
				return wrapRunErr(ctx, err)
			}
		}

		printOutcome(out)
		if out.Aborted {
			return &abortedError{fmt.Errorf("session %s aborted", out.SessionID)}
		}
		if len(out.Failed) > 0 {
			return &executionFailure{fmt.Errorf("session %s: %d task(s) failed", out.SessionID, len(out.Failed))}
		}
		return nil
	},
}

func init() {
	planCmd.Flags().BoolVar(&resumeFlag, "resume", false, "resume the most recently aborted session instead of planning a new one")
}

func wrapRunErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &abortedError{err}
	}
	var ve *graph.ValidationError
	if errors.As(err, &ve) {
		return &validationError{err}
	}
	return &userError{err}
}

func printOutcome(out orchestrator.Outcome) {
	fmt.Printf("session %s: completed=%d failed=%d blocked=%d aborted=%v\n",
		out.SessionID, len(out.Completed), len(out.Failed), len(out.Blocked), out.Aborted)
}

// latestResumableSession scans pointer.json for the session whose
// journal's last record is session_abort and whose file was written
// most recently.
func latestResumableSession(base string) (task.SessionId, error) {
	ptr, err := journal.ReadPointer(base)
	if err != nil {
		return "", fmt.Errorf("read pointer: %w", err)
	}

	type candidate struct {
		id      task.SessionId
		modTime int64
	}
	var candidates []candidate
	for id, path := range ptr.Sessions {
		rc, err := journal.ExtractResume(base, id)
		if err != nil || !rc.CanResume {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{id: id, modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no resumable (aborted) session found under %s", base)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return candidates[0].id, nil
}
