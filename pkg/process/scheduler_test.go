package process

import "testing"

func bareThread(prio int) *Thread {
	t := &Thread{index: -1}
	t.priority.Store(int32(prio))
	return t
}

// TestFIFOScheduler tests enqueue order, Remove and Contains.
func TestFIFOScheduler(t *testing.T) {
	s := NewFIFOScheduler()
	a, b, c := bareThread(2), bareThread(2), bareThread(2)
	s.Add(a)
	s.Add(b)
	s.Add(c)

	if !s.Remove(b) {
		t.Fatal("Remove(b) = false, want true")
	}
	if s.Contains(b) {
		t.Error("Contains(b) = true after Remove")
	}
	if s.Remove(b) {
		t.Error("second Remove(b) = true, want false")
	}
	for _, want := range []*Thread{a, c} {
		if got := s.Fetch(); got != want {
			t.Errorf("Fetch() = %p, want %p", got, want)
		}
	}
	if s.Fetch() != nil || s.Len() != 0 {
		t.Error("queue not empty after draining")
	}
}

// TestStrideSchedulerOrder tests that the smallest pass runs first and that
// ties fall back to enqueue order.
func TestStrideSchedulerOrder(t *testing.T) {
	const big = 1000
	s := NewStrideScheduler(big)
	low, high := bareThread(2), bareThread(10)
	s.Add(low)
	s.Add(high)

	// Both start at pass 0, so enqueue order decides.
	if got := s.Fetch(); got != low {
		t.Fatalf("first Fetch() = %p, want low", got)
	}
	if s.Pass(low) != big/2 {
		t.Errorf("Pass(low) = %d, want %d", s.Pass(low), big/2)
	}
	s.Add(low)

	var picks []*Thread
	for i := 0; i < 6; i++ {
		th := s.Fetch()
		picks = append(picks, th)
		s.Add(th)
	}
	highs := 0
	for _, th := range picks {
		if th == high {
			highs++
		}
	}
	if highs != 5 {
		t.Errorf("high picked %d of 6 times, want 5", highs)
	}
}

// TestStrideSchedulerRemove tests removal from the middle of the heap.
func TestStrideSchedulerRemove(t *testing.T) {
	s := NewStrideScheduler(1 << 20)
	ths := []*Thread{bareThread(2), bareThread(3), bareThread(4), bareThread(5)}
	for _, th := range ths {
		s.Add(th)
	}
	if !s.Remove(ths[2]) {
		t.Fatal("Remove() = false, want true")
	}
	if s.Contains(ths[2]) || s.Len() != 3 {
		t.Errorf("Contains = %v, Len = %d after Remove", s.Contains(ths[2]), s.Len())
	}
	seen := map[*Thread]bool{}
	for th := s.Fetch(); th != nil; th = s.Fetch() {
		seen[th] = true
	}
	if len(seen) != 3 || seen[ths[2]] {
		t.Errorf("drained %d threads, removed one present = %v", len(seen), seen[ths[2]])
	}
}
