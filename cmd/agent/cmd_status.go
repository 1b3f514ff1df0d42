package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/flowkit/agentctl/internal/journal"
	"github.com/flowkit/agentctl/internal/sessionindex"
	"github.com/flowkit/agentctl/internal/task"
)

var statusSessionFlag string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session progress from the SessionIndex, rebuilding it from the journal first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return &userError{err}
		}

		idx, err := sessionindex.Open(cfg.BaseDir)
		if err != nil {
			return &userError{err}
		}
		defer idx.Close()

		ids, err := sessionIDsToReport(cfg.BaseDir, statusSessionFlag)
		if err != nil {
			return &userError{err}
		}
		if len(ids) == 0 {
			fmt.Println("no sessions found")
			return nil
		}

		for _, id := range ids {
			if err := idx.Rebuild(cfg.BaseDir, id); err != nil {
				return &executionFailure{fmt.Errorf("rebuild index for %s: %w", id, err)}
			}
			summary, ok, err := idx.Summary(id)
			if err != nil {
				return &executionFailure{fmt.Errorf("read summary for %s: %w", id, err)}
			}
			if !ok {
				continue
			}
			fmt.Printf("%s  phase=%d completed=%d failed=%d blocked=%d terminal=%v",
				id, summary.LastPhase, summary.Completed, summary.Failed, summary.Blocked, summary.Terminal)
			if summary.TerminalAt != "" {
				fmt.Printf(" terminalAt=%s", summary.TerminalAt)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSessionFlag, "session", "", "report only this sessionId instead of every known session")
}

// sessionIDsToReport resolves either a single requested sessionId or
// every sessionId known to pointer.json.
func sessionIDsToReport(base string, only string) ([]task.SessionId, error) {
	if only != "" {
		return []task.SessionId{task.SessionId(only)}, nil
	}
	ptr, err := journal.ReadPointer(base)
	if err != nil {
		return nil, err
	}
	ids := make([]task.SessionId, 0, len(ptr.Sessions))
	for id := range ptr.Sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
