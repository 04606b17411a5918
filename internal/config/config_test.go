package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaults(t *testing.T) {
	opts := Defaults()
	if opts.ReportMax != -1 || opts.ReportLeakMax != -1 {
		t.Fatalf("report thresholds should default to unlimited, got %+v", opts)
	}
	if opts.CallstackMaxFrames <= 0 {
		t.Fatalf("callstack_max_frames must default to a positive bound, got %d", opts.CallstackMaxFrames)
	}
}

func TestLoadFileMissing(t *testing.T) {
	opts, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if !reflect.DeepEqual(opts, Defaults()) {
		t.Fatalf("missing config file should yield defaults, got %+v", opts)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dmcore.yaml")
	contents := "report_max: 5\nwarn_null_ptr: true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	opts, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if opts.ReportMax != 5 {
		t.Fatalf("report_max override not applied: %+v", opts)
	}
	if !opts.WarnNullPtr {
		t.Fatalf("warn_null_ptr override not applied: %+v", opts)
	}
	if opts.CallstackMaxFrames != Defaults().CallstackMaxFrames {
		t.Fatalf("unset fields should keep their default, got %d", opts.CallstackMaxFrames)
	}
}

func TestLoadFileBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("report_max: [this is not an int\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error parsing malformed YAML")
	}
}
