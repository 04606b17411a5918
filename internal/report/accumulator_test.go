package report

import (
	"testing"

	"github.com/go-delve/dmcore/internal/callstack"
)

func mkStack(pool *callstack.Pool, sym string) callstack.Handle {
	return pool.Intern([]callstack.Frame{{Module: "m", Symbol: sym}})
}

func TestRecordDedupAndCount(t *testing.T) {
	pool := callstack.NewPool(8)
	a := NewAccumulator(pool, -1, -1)

	s := mkStack(pool, "foo")
	r1, first1 := a.Record(UnaddressableAccess, s)
	if !first1 {
		t.Fatalf("expected first occurrence")
	}
	r2, first2 := a.Record(UnaddressableAccess, s)
	if first2 {
		t.Fatalf("expected second call to find the existing record")
	}
	if r1 != r2 {
		t.Fatalf("expected the same record pointer")
	}
	if r1.Count != 2 {
		t.Fatalf("Count = %d, want 2", r1.Count)
	}
}

func TestAssignIDIdempotent(t *testing.T) {
	pool := callstack.NewPool(8)
	a := NewAccumulator(pool, -1, -1)
	r, _ := a.Record(UninitializedRead, mkStack(pool, "foo"))

	id1 := a.AssignID(r)
	id2 := a.AssignID(r)
	if id1 != id2 {
		t.Fatalf("AssignID should be idempotent, got %d then %d", id1, id2)
	}
	if id1 == 0 {
		t.Fatalf("expected a nonzero id")
	}
}

func TestMarkSuppressedIdempotentlyDecrementsTotal(t *testing.T) {
	pool := callstack.NewPool(8)
	a := NewAccumulator(pool, -1, -1)
	r, _ := a.Record(Leak, mkStack(pool, "foo"))
	if a.NumTotal(Leak) != 1 {
		t.Fatalf("expected 1 total before suppression")
	}
	a.MarkSuppressed(r)
	a.MarkSuppressed(r)
	if a.NumTotal(Leak) != 0 {
		t.Fatalf("expected total to drop to 0 after suppression, got %d", a.NumTotal(Leak))
	}
	if !r.Suppressed {
		t.Fatalf("expected record to be marked suppressed")
	}
}

func TestThrottling(t *testing.T) {
	pool := callstack.NewPool(8)
	a := NewAccumulator(pool, 5, -1)

	var rendered, throttled int
	for i := 0; i < 7; i++ {
		r, first := a.Record(UnaddressableAccess, mkStack(pool, string(rune('a'+i))))
		if !first {
			t.Fatalf("each distinct stack should be a first occurrence")
		}
		if a.ShouldRender(UnaddressableAccess) {
			a.AssignID(r)
			rendered++
		} else {
			throttled++
		}
	}
	if rendered != 5 || throttled != 2 {
		t.Fatalf("rendered=%d throttled=%d, want 5 and 2", rendered, throttled)
	}
	if a.ThrottledCount(UnaddressableAccess) != 2 {
		t.Fatalf("ThrottledCount = %d, want 2", a.ThrottledCount(UnaddressableAccess))
	}
}

func TestCheckpointRevertAvoidsDoubleCounting(t *testing.T) {
	pool := callstack.NewPool(8)
	a := NewAccumulator(pool, -1, -1)
	stack := mkStack(pool, "leaky")

	r, _ := a.Record(Leak, stack)
	if r.Count != 1 {
		t.Fatalf("Count = %d, want 1", r.Count)
	}

	cp := a.Checkpoint()
	// A second scan in the same run re-finds the same leak.
	a.Record(Leak, stack)
	if r.Count != 2 {
		t.Fatalf("Count = %d, want 2 before revert", r.Count)
	}

	a.Revert(cp)
	if r.Count != 1 {
		t.Fatalf("Count = %d, want 1 after revert", r.Count)
	}
}

func TestForEachInIDOrder(t *testing.T) {
	pool := callstack.NewPool(8)
	a := NewAccumulator(pool, -1, -1)

	r3, _ := a.Record(Warning, mkStack(pool, "c"))
	r1, _ := a.Record(Warning, mkStack(pool, "a"))
	r2, _ := a.Record(Warning, mkStack(pool, "b"))
	a.AssignID(r1)
	a.AssignID(r2)
	a.AssignID(r3)

	var order []int
	a.ForEachInIDOrder(func(r *Record) { order = append(order, r.ID) })
	for i := 1; i < len(order); i++ {
		if order[i] <= order[i-1] {
			t.Fatalf("ForEachInIDOrder not sorted: %v", order)
		}
	}
}
