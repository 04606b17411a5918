// Command dmcore is a thin cobra front end over the detector core.
//
// It does not instrument anything itself (spec §1 "out of scope:
// binary instrumentation ... these are the responsibility of the
// hosting instrumentation engine"); it exists so the ambient-stack
// rule has a realistic entry point, and to let a recorded trace be
// replayed, a suppression file be validated, and a set of findings be
// summarized without standing up a live target process.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
