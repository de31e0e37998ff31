package ringbuf

import "testing"

func TestSampleBufferAverageAndMax(t *testing.T) {
	b := NewSampleBuffer(3)
	b.Add(10)
	b.Add(20)
	b.Add(30)
	if b.Average() != 20 {
		t.Fatalf("expected average 20, got %v", b.Average())
	}
	if b.Max() != 30 {
		t.Fatalf("expected max 30, got %v", b.Max())
	}
	// Overflow evicts the oldest (10).
	b.Add(5)
	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	if avg := b.Average(); avg != (20.0+30.0+5.0)/3.0 {
		t.Fatalf("expected average %v, got %v", (20.0+30.0+5.0)/3.0, avg)
	}
	if b.Max() != 30 {
		t.Fatalf("expected max 30 after eviction of 10, got %v", b.Max())
	}
}

func TestSampleBufferEmpty(t *testing.T) {
	b := NewSampleBuffer(4)
	if b.Average() != 0 || b.Max() != 0 || b.Len() != 0 {
		t.Fatalf("expected zero values for empty buffer")
	}
}

func TestRingPushEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4) // evicts 1
	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	if v, _ := r.Front(); v != 2 {
		t.Fatalf("expected front 2, got %d", v)
	}
	if r.At(2) != 4 {
		t.Fatalf("expected newest 4, got %d", r.At(2))
	}
}

func TestRingPopFront(t *testing.T) {
	r := NewRing[string](2)
	r.Push("a")
	r.Push("b")
	v, ok := r.PopFront()
	if !ok || v != "a" {
		t.Fatalf("expected a, got %v %v", v, ok)
	}
	r.Push("c")
	if r.Len() != 2 {
		t.Fatalf("expected len 2, got %d", r.Len())
	}
	if r.At(0) != "b" || r.At(1) != "c" {
		t.Fatalf("unexpected ring contents")
	}
}

func TestRingPopFrontEmpty(t *testing.T) {
	r := NewRing[int](2)
	if _, ok := r.PopFront(); ok {
		t.Fatalf("expected ok=false on empty ring")
	}
}
