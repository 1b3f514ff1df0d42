// Command agent is agentctl's CLI entry point: plan a session, run it,
// inspect its status, or garbage-collect old ones.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

var (
	configPath string
	baseDir    string
)

var rootCmd = &cobra.Command{
	Use:           "agent",
	Short:         "agentctl — autonomous multi-agent code-change orchestrator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "override config.baseDir")

	rootCmd.AddCommand(planCmd, runCmd, statusCmd, gcCmd)
}
