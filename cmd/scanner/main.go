// Command scanner runs the gainer scanner service and inspects its
// persisted output.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "scanner",
		Short: "Top-gainer signal scanner with simulated positions",
		Long: `scanner polls the exchange for the day's top gainers, scores each one
against a rule set and manages simulated long positions for accepted
entries. Running it without a subcommand starts the service.`,
		SilenceUsage: true,
		RunE:         runService,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(signalsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scan and monitor loops",
		RunE:  runService,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scanner version %s\n", version)
		},
	}
}
