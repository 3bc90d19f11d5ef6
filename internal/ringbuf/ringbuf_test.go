package ringbuf

import (
	"sync"
	"testing"
)

func TestRing_NewestFirst(t *testing.T) {
	r := New[string](4)
	r.Push("a")
	r.Push("b")

	got := r.Snapshot()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("snapshot = %v, want [b a]", got)
	}
	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	got := r.Snapshot()
	want := []int{5, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	}
	if r.Evicted() != 2 {
		t.Fatalf("expected evicted=2, got %d", r.Evicted())
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := New[int](0)
	if r.Cap() != 1 {
		t.Fatalf("cap = %d, want 1", r.Cap())
	}
	r.Push(1)
	r.Push(2)
	if s := r.Snapshot(); len(s) != 1 || s[0] != 2 {
		t.Fatalf("snapshot = %v, want [2]", s)
	}
}

func TestRing_ConcurrentPush(t *testing.T) {
	r := New[int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Push(i)
				_ = r.Snapshot()
			}
		}()
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Fatalf("len = %d, want 50", r.Len())
	}
	if r.Evicted() != 750 {
		t.Fatalf("evicted = %d, want 750", r.Evicted())
	}
}
