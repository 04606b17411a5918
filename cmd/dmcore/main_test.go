package main

import (
	"io"
	"os"
	"testing"
)

// captureStdout redirects os.Stdout for the duration of fn, since the
// run* helpers write straight to it the way a real CLI invocation
// would (spec §11.7's commands have no other output sink to test
// against).
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	runErr := fn()
	w.Close()
	os.Stdout = orig

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	return string(out), runErr
}
