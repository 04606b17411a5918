package suppress

import (
	"strings"
	"sync"
	"testing"

	"github.com/go-delve/dmcore/internal/report"
)

func TestSuggestWritesBothStanzas(t *testing.T) {
	var sb strings.Builder
	sc := NewSidecar(&sb)

	err := sc.Suggest(report.UninitializedRead, []string{"mymod!foo", "mymod!bar"}, []string{"<mymod+0x10>", "<mymod+0x20>"})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}

	out := sb.String()
	if !strings.Contains(out, "UNINITIALIZED READ") {
		t.Fatalf("missing kind header: %q", out)
	}
	if !strings.Contains(out, "mymod!foo") || !strings.Contains(out, "mymod!bar") {
		t.Fatalf("missing symbolic frames: %q", out)
	}
	if !strings.Contains(out, "<mymod+0x10>") || !strings.Contains(out, "<mymod+0x20>") {
		t.Fatalf("missing offset frames: %q", out)
	}

	symIdx := strings.Index(out, "mymod!foo")
	offIdx := strings.Index(out, "<mymod+0x10>")
	if symIdx == -1 || offIdx == -1 || symIdx >= offIdx {
		t.Fatalf("expected the symbolic stanza to precede the offset stanza: %q", out)
	}
}

func TestSuggestIsConcurrencySafe(t *testing.T) {
	var sb strings.Builder
	sc := NewSidecar(&sb)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sc.Suggest(report.Warning, []string{"m!f"}, []string{"<m+0x1>"})
		}(i)
	}
	wg.Wait()

	// Each stanza names the kind twice: in its comment line and in its
	// header line.
	if strings.Count(sb.String(), "WARNING") != 80 {
		t.Fatalf("expected 20 suggestions x 2 stanzas x 2 mentions each to have been appended cleanly, got %d WARNING occurrences", strings.Count(sb.String(), "WARNING"))
	}
}
