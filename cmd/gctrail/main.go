package main

import (
	"os"

	"github.com/spf13/cobra"

	"gctrail/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gctrail",
		Short: "Trace why objects survive garbage collection",
		Long: `gctrail runs a traced collection over a heap snapshot and prints, for every
watched object it finds, the chain of references that keeps it alive.`,
		Version:      version.Current().Version,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().Bool("verbose", false, "log session lifecycle to stderr")
	root.PersistentFlags().String("config", "", "path to gctrail.toml (default: search upwards from the working directory)")

	root.AddCommand(newTraceCmd())
	root.AddCommand(newPackCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// main executes the root command and exits with status 1 on error.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
