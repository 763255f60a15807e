package ringbuf

import (
	"sync"
	"testing"
)

func TestRing_PushSnapshot(t *testing.T) {
	r := New[string](3)

	if _, ok := r.Last(); ok {
		t.Fatal("Last on empty ring should return false")
	}

	r.Push("A")
	r.Push("B")

	got := r.Snapshot()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("expected [A B], got %v", got)
	}
	if last, _ := r.Last(); last != "B" {
		t.Errorf("expected last B, got %s", last)
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	got := r.Snapshot()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if r.Len() != 3 || r.Cap() != 3 {
		t.Errorf("expected len=cap=3, got len=%d cap=%d", r.Len(), r.Cap())
	}
	if r.Overwritten() != 2 {
		t.Errorf("expected 2 overwritten, got %d", r.Overwritten())
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := New[int](0)
	r.Push(1)
	r.Push(2)
	if got := r.Snapshot(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected [2], got %v", got)
	}
}

func TestRing_ConcurrentPush(t *testing.T) {
	r := New[int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Push(i)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 64 {
		t.Errorf("expected full ring, got len=%d", r.Len())
	}
	if r.Overwritten() != 800-64 {
		t.Errorf("expected %d overwritten, got %d", 800-64, r.Overwritten())
	}
}
