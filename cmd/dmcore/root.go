package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-delve/dmcore/internal/logflags"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	logDest string
	verbose bool
)

// newRootCmd builds the dmcore command tree in delve's cmd/dlv style:
// persistent flags configure logging and name the config file once,
// ahead of any subcommand's own flags. None of these flags overrides an
// individual config.Options value.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dmcore",
		Short:         "dmcore inspects recorded syscall traces and suppression files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var dest io.Writer
			if logDest != "" {
				f, err := os.Create(logDest)
				if err != nil {
					return fmt.Errorf("opening log destination: %w", err)
				}
				dest = f
			}
			logflags.Setup(verbose, dest)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a dmcore YAML config file")
	cmd.PersistentFlags().StringVar(&logDest, "log-dest", "", "write logs to this file instead of stderr")
	cmd.PersistentFlags().BoolVar(&verbose, "log", false, "enable verbose (debug) logging")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newSuppressCmd())
	cmd.AddCommand(newReportCmd())
	return cmd
}
