package main

import (
	"fmt"
	"os"

	"github.com/go-delve/dmcore/internal/suppress"
	"github.com/spf13/cobra"
)

func newSuppressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suppress",
		Short: "work with suppression files",
	}
	cmd.AddCommand(newSuppressValidateCmd())
	return cmd
}

func newSuppressValidateCmd() *cobra.Command {
	var maxFrames int
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "parse a suppression file and report its stanza counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuppressValidate(args[0], maxFrames)
		},
	}
	cmd.Flags().IntVar(&maxFrames, "max-frames", 8, "maximum frames kept per suppression stanza")
	return cmd
}

func runSuppressValidate(path string, maxFrames int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening suppression file: %w", err)
	}
	defer f.Close()

	specs, err := suppress.Load(f, maxFrames)
	if err != nil {
		return fmt.Errorf("invalid suppression file: %w", err)
	}

	total := 0
	for kind, list := range specs {
		fmt.Fprintf(os.Stdout, "%s: %d stanza(s)\n", kind, len(list))
		total += len(list)
	}
	fmt.Fprintf(os.Stdout, "%d suppression stanza(s) total, no errors\n", total)
	return nil
}
