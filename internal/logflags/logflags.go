// Package logflags configures the per-subsystem loggers used across dmcore.
//
// The convention mirrors delve's own pkg/logflags: one *logrus.Entry per
// subsystem, all backed by a single *logrus.Logger whose output and level
// are set once at startup.
package logflags

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	logger  = logrus.New()
	enabled = map[string]bool{}
)

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: false})
}

// Setup configures the global logger. dest is used as-is if non-nil,
// otherwise output stays on stderr. subsystems lists the names that
// should log at Debug level; everything else stays at Warn.
func Setup(verbose bool, dest io.Writer, subsystems ...string) {
	mu.Lock()
	defer mu.Unlock()
	if dest != nil {
		logger.SetOutput(dest)
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	for _, s := range subsystems {
		enabled[s] = true
	}
}

// Enabled reports whether verbose logging was requested for subsystem s.
func Enabled(s string) bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled[s] || logger.GetLevel() >= logrus.DebugLevel
}

func entry(subsystem string) *logrus.Entry {
	return logger.WithField("subsystem", subsystem)
}

// Shadow returns the logger for the shadow-memory subsystem.
func Shadow() *logrus.Entry { return entry("shadow") }

// Sysarg returns the logger for the syscall-argument-inspection subsystem.
func Sysarg() *logrus.Entry { return entry("sysarg") }

// Report returns the logger for the error-accumulator/reporter subsystem.
func Report() *logrus.Entry { return entry("report") }

// Suppress returns the logger for the suppression-matching subsystem.
func Suppress() *logrus.Entry { return entry("suppress") }

// Engine returns the logger for the top-level orchestration subsystem.
func Engine() *logrus.Entry { return entry("engine") }

// Callstack returns the logger for the stack-capture subsystem.
func Callstack() *logrus.Entry { return entry("callstack") }
