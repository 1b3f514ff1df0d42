package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowkit/agentctl/internal/janitor"
	"github.com/flowkit/agentctl/internal/sessionindex"
)

var gcRetentionFlag time.Duration

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run one retention sweep: compact and prune terminal sessions older than --retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return &userError{err}
		}
		retention := cfg.Janitor.Retention
		if gcRetentionFlag > 0 {
			retention = gcRetentionFlag
		}

		idx, err := sessionindex.Open(cfg.BaseDir)
		if err != nil {
			return &userError{err}
		}
		defer idx.Close()

		ids, err := sessionIDsToReport(cfg.BaseDir, "")
		if err != nil {
			return &userError{err}
		}
		for _, id := range ids {
			if err := idx.Rebuild(cfg.BaseDir, id); err != nil {
				return &executionFailure{fmt.Errorf("rebuild index for %s: %w", id, err)}
			}
		}

		j, err := janitor.New(cfg.BaseDir, cfg.Janitor.Schedule, retention, idx)
		if err != nil {
			return &userError{err}
		}
		j.SweepOnce()
		fmt.Printf("gc: swept %d session(s) with retention %s\n", len(ids), retention)
		return nil
	},
}

func init() {
	gcCmd.Flags().DurationVar(&gcRetentionFlag, "retention", 0, "override config.janitor.retention for this sweep")
}
