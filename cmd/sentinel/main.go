// Command sentinel runs incident-response workflows: it normalizes an
// alert, ticket, chat message or scheduled trigger into a task, drives
// it through the triage/investigate/plan/execute/verify pipeline and
// writes the report, episode and trace to an output directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Datacenter operations agent: diagnose incidents and plan remediation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newEvalCmd())
	return root
}
