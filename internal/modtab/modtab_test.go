package modtab

import (
	"reflect"
	"testing"
)

func TestOnModuleLoadAndByAddress(t *testing.T) {
	tab := New()
	tab.OnModuleLoad("libfoo.so", 0x1000, 0x100, true)

	m, ok := tab.ByAddress(0x1050)
	if !ok {
		t.Fatalf("expected 0x1050 to resolve inside libfoo.so")
	}
	if m.Name != "libfoo.so" {
		t.Fatalf("got module %q, want libfoo.so", m.Name)
	}

	if _, ok := tab.ByAddress(0x2000); ok {
		t.Fatalf("expected no module to contain 0x2000")
	}
}

func TestOnModuleLoadUnloadRemoves(t *testing.T) {
	tab := New()
	tab.OnModuleLoad("libfoo.so", 0x1000, 0x100, true)
	tab.OnModuleLoad("libfoo.so", 0x1000, 0x100, false)

	if _, ok := tab.ByAddress(0x1050); ok {
		t.Fatalf("expected libfoo.so to be gone after unload")
	}
	if tab.HasPrefix("libfoo") {
		t.Fatalf("expected the name trie to drop libfoo.so too")
	}
}

func TestHasPrefixMatchesLoadedNames(t *testing.T) {
	tab := New()
	tab.OnModuleLoad("libc.so.6", 0x1000, 0x100, true)
	tab.OnModuleLoad("libssl.so.3", 0x2000, 0x100, true)

	if !tab.HasPrefix("libc") {
		t.Fatalf("expected HasPrefix(libc) to find libc.so.6")
	}
	if tab.HasPrefix("libz") {
		t.Fatalf("expected HasPrefix(libz) to find nothing")
	}
}

func TestNamesSorted(t *testing.T) {
	tab := New()
	tab.OnModuleLoad("zeta.so", 0x1000, 0x10, true)
	tab.OnModuleLoad("alpha.so", 0x2000, 0x10, true)

	got := tab.Names()
	want := []string{"alpha.so", "zeta.so"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}
