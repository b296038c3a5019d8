package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = NewRootCmd()

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bombard",
		Short:   "A concurrent HTTP load generator",
		Version: version,
		Long: `Bombard replays a collection of templated HTTP requests from a pool of
concurrent workers, records the outcome of every request in a CSV report and
prints a latency summary when the run ends.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}

// Execute runs the root command and prints any error to stderr.
// This is called by main.Main(). It only needs to happen once to the RootCmd.
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(RootCmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}
