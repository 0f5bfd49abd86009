package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the sunbeam binary.
var rootCmd = &cobra.Command{
	Use:   "sunbeam",
	Short: "Reconciliation engine for sidecar-managed services",
	Long: `sunbeam manages the lifecycle of a service deployed against a set of
dependent resources (message queue, databases, ingress, peer group,
identity service). It reconciles the service whenever any input changes:
once every dependency and workload is ready it pushes configuration,
performs the one-time bootstrap and marks the service active.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main to
// inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "sunbeam version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}
