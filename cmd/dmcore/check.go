package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/go-delve/dmcore/internal/callstack"
	"github.com/go-delve/dmcore/internal/config"
	"github.com/go-delve/dmcore/internal/report"
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
	"github.com/go-delve/dmcore/internal/sysarg/handlers"
	"github.com/spf13/cobra"
)

// tallyOut is the JSON shape `check --json` writes and `report
// summarize` reads back: one entry per kind that produced at least
// one finding, with its total occurrence count.
type tallyOut struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

func newCheckCmd() *cobra.Command {
	var jsonOut string
	cmd := &cobra.Command{
		Use:   "check <trace.json>",
		Short: "replay a recorded syscall-argument trace through the sysarg walker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(args[0], jsonOut)
		},
	}
	cmd.Flags().StringVar(&jsonOut, "json", "", "also write per-kind finding tallies as JSON to this path")
	return cmd
}

func runCheck(path, jsonOut string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}
	var tf traceFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parsing trace: %w", err)
	}

	opts, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}

	sm := shadow.New()
	walker := &sysarg.Walker{
		Table:    sysarg.NewLinuxTable(),
		Mem:      safemem.NewReader(os.Getpid()),
		Shadow:   sm,
		Handlers: handlers.DefaultLinux(1),
	}

	pool := callstack.NewPool(64)
	accum := report.NewAccumulator(pool, opts.ReportMax, opts.ReportLeakMax)
	rep := &report.Reporter{Results: report.NewFile(os.Stdout), Shadow: sm, Pool: pool}

	tallies := map[report.Kind]int{}
	for i, tc := range tf.Calls {
		call, bufs := buildCall(tc)
		if findings, ok := walker.PreCall(call); ok {
			recordFindings(accum, rep, i, findings, tallies)
		}
		recordFindings(accum, rep, i, walker.PostCall(call), tallies)
		runtime.KeepAlive(bufs)
	}

	if opts.Summary {
		fmt.Fprint(os.Stdout, accum.Summary())
	}
	if jsonOut != "" {
		return writeTallies(jsonOut, tallies)
	}
	return nil
}

func recordFindings(accum *report.Accumulator, rep *report.Reporter, threadID int, findings []sysarg.Finding, tallies map[report.Kind]int) {
	for _, f := range findings {
		kind := report.UninitializedRead
		if f.Kind == sysarg.FindingUnaddressableAccess {
			kind = report.UnaddressableAccess
		}

		rec, first := accum.Record(kind, callstack.NoStack)
		if first {
			verb := "reading"
			if f.Write {
				verb = "writing"
			}
			rec.Detail = fmt.Sprintf("%s syscall arg %d at %#x (%d byte(s))", verb, f.Ordinal, f.Addr, f.Len)
		}
		if first && !rec.Suppressed && accum.ShouldRender(kind) {
			accum.AssignID(rec)
			rep.Emit(rec, threadID, nil)
		}
		tallies[kind]++
	}
}

func writeTallies(path string, tallies map[report.Kind]int) error {
	out := make([]tallyOut, 0, len(tallies))
	for k, c := range tallies {
		out = append(out, tallyOut{Kind: k.String(), Count: c})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tallies: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
