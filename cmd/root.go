// Package cmd implements kapibara's command-line interface: run, test,
// gen uuid, and gen cert.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/un5af3/kapibara/common/klog"
)

var logLevel string

// Execute runs the root command, exiting the process with a non-zero code
// on failure.
func Execute() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kapibara",
		Short:         "kapibara is a configurable multi-protocol forwarding proxy",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&logLevel, "log", klog.LevelInfo,
		"log level: trace, debug, info, warn, error, off")

	root.AddCommand(newRunCommand())
	root.AddCommand(newTestCommand())
	root.AddCommand(newGenCommand())
	return root
}
