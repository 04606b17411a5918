package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-delve/dmcore/internal/callstack"
	"github.com/go-delve/dmcore/internal/report"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "work with recorded findings",
	}
	cmd.AddCommand(newReportSummarizeCmd())
	return cmd
}

func newReportSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <tallies.json>",
		Short: "rebuild a summary from a dmcore check --json tally file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportSummarize(args[0])
		},
	}
}

func runReportSummarize(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading tallies: %w", err)
	}
	var tallies []tallyOut
	if err := json.Unmarshal(data, &tallies); err != nil {
		return fmt.Errorf("parsing tallies: %w", err)
	}

	pool := callstack.NewPool(1)
	accum := report.NewAccumulator(pool, -1, -1)
	for _, t := range tallies {
		kind, ok := report.KindFromHeader(t.Kind)
		if !ok {
			return fmt.Errorf("unknown kind %q", t.Kind)
		}
		for i := 0; i < t.Count; i++ {
			accum.Record(kind, callstack.NoStack)
		}
	}

	fmt.Fprint(os.Stdout, accum.Summary())
	return nil
}
