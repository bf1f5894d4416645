package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	version = "dev" // Will be set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "sim-runner",
	Short: "Deterministic discrete-event simulator for distributed protocols",
	Long: `Sim Runner drives distributed protocols through simulated time under an
adversarial network model: message latency, duplication, per-link transient
failures, whole-network partitions and node crashes. Every stochastic
decision derives from a single seed, so any run - including any failure -
replays byte-identically.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fuzzCmd)
}

// Commands are defined in separate files:
// - runCmd in run.go
// - validateCmd in validate.go
// - fuzzCmd in fuzz.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
