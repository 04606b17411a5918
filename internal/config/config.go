// Package config holds the tool-wide options enumerated in spec §6.
//
// Precedence, lowest to highest: Defaults(), a YAML file (LoadFile),
// then whatever a CLI layer overrides directly on the struct.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the full set of configuration knobs the core consults.
type Options struct {
	CallstackMaxFrames int `yaml:"callstack_max_frames"`

	ReportMax     int `yaml:"report_max"`
	ReportLeakMax int `yaml:"report_leak_max"`

	CountLeaks       bool `yaml:"count_leaks"`
	CheckLeaks       bool `yaml:"check_leaks"`
	PossibleLeaks    bool `yaml:"possible_leaks"`
	ShowReachable    bool `yaml:"show_reachable"`
	IgnoreEarlyLeaks bool `yaml:"ignore_early_leaks"`

	CheckInvalidFrees bool `yaml:"check_invalid_frees"`
	WarnNullPtr       bool `yaml:"warn_null_ptr"`

	UseDefaultSuppress bool     `yaml:"use_default_suppress"`
	SuppressFile       []string `yaml:"suppress_file"`

	PauseAtUnaddressable bool `yaml:"pause_at_unaddressable"`
	PauseAtUninitialized bool `yaml:"pause_at_uninitialized"`

	Summary    bool `yaml:"summary"`
	ThreadLogs bool `yaml:"thread_logs"`
}

// Defaults returns the option set the tool starts from absent any
// configuration file or flag.
func Defaults() Options {
	return Options{
		CallstackMaxFrames: 20,
		ReportMax:          -1,
		ReportLeakMax:      -1,
		CountLeaks:         true,
		CheckLeaks:         true,
		CheckInvalidFrees:  true,
		WarnNullPtr:        false,
		UseDefaultSuppress: true,
		Summary:            true,
		ThreadLogs:         false,
	}
}

// LoadFile reads a YAML configuration file and overlays it on top of
// Defaults(). A missing file is not an error; it simply returns the
// defaults unmodified.
func LoadFile(path string) (Options, error) {
	opts := Defaults()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return opts, nil
}
