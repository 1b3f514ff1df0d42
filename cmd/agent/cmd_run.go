package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowkit/agentctl/internal/agentinvoker"
	"github.com/flowkit/agentctl/internal/obslog"
	"github.com/flowkit/agentctl/internal/obstel"
	"github.com/flowkit/agentctl/internal/orchestrator"
	"github.com/flowkit/agentctl/internal/task"
)

var (
	runSessionFlag    string
	runMaxWorkersFlag int
)

var runCmd = &cobra.Command{
	Use:   "run --session <sessionId>",
	Short: "(Re-)dispatch an already-planned session's tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runSessionFlag == "" {
			return &userError{fmt.Errorf("run requires --session <sessionId>")}
		}

		cfg, err := loadConfig()
		if err != nil {
			return &userError{err}
		}
		if runMaxWorkersFlag > 0 {
			cfg.MaxWorkers = runMaxWorkersFlag
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

		out, err := o.RunSession(ctx, task.SessionId(runSessionFlag))
		if err != nil {
			return wrapRunErr(ctx, err)
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
	runCmd.Flags().StringVar(&runSessionFlag, "session", "", "sessionId of an already-planned session to (re-)dispatch")
	runCmd.Flags().IntVar(&runMaxWorkersFlag, "max-workers", 0, "override config.maxWorkers for this run")
}
