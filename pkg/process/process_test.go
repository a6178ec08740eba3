package process

import (
	"errors"
	"testing"
	"time"

	"tcore/pkg/config"
	"tcore/pkg/fs"
	"tcore/pkg/mm"
	"tcore/pkg/timer"
)

// entryLoader treats a file's contents as the name of a registered entry.
type entryLoader map[string]Entry

func (l entryLoader) Load(data []byte) (*Image, error) {
	e, ok := l[string(data)]
	if !ok {
		return nil, errors.New("unknown image")
	}
	return &Image{Name: string(data), Memory: mm.NewMemorySet(), Entry: e}, nil
}

type testKernel struct {
	m     *Manager
	clock *timer.ManualClock
	files *fs.FS
	progs entryLoader
}

func newTestKernel(t *testing.T, policy config.Policy) *testKernel {
	t.Helper()
	cfg := config.Default()
	cfg.Policy = policy
	k := &testKernel{
		clock: timer.NewManualClock(0),
		files: fs.New(),
		progs: entryLoader{},
	}
	k.m = NewManager(cfg, k.clock, k.files, k.progs)
	t.Cleanup(k.m.Shutdown)
	return k
}

// install makes e loadable under name.
func (k *testKernel) install(t *testing.T, name string, e Entry) {
	t.Helper()
	k.progs[name] = e
	if err := k.files.WriteFile(name, []byte(name)); err != nil {
		t.Fatalf("WriteFile(%q) error = %v", name, err)
	}
}

func (k *testKernel) start(t *testing.T, name string, e Entry) *Process {
	t.Helper()
	p, err := k.m.NewProcess(&Image{Name: name, Memory: mm.NewMemorySet(), Entry: e}, nil)
	if err != nil {
		t.Fatalf("NewProcess(%q) error = %v", name, err)
	}
	return p
}

func (k *testKernel) run(t *testing.T) {
	t.Helper()
	if err := k.m.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

// waitThread yields until tid has exited and returns its exit code.
func waitThread(th *Thread, tid int) int {
	for {
		code, err := th.Waittid(tid)
		if err == nil {
			return code
		}
		th.Yield()
	}
}

// waitChild yields until pid has exited and returns its exit code.
func waitChild(th *Thread, pid int) int {
	for {
		_, code, err := th.Waitpid(pid)
		if err == nil {
			return code
		}
		th.Yield()
	}
}

// TestStateTransitions tests the transition table.
func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"Ready to Running", StatusReady, StatusRunning, true},
		{"Running to Ready", StatusRunning, StatusReady, true},
		{"Running to Blocked", StatusRunning, StatusBlocked, true},
		{"Blocked to Ready", StatusBlocked, StatusReady, true},
		{"Running to Zombie", StatusRunning, StatusZombie, true},
		{"Blocked to Zombie", StatusBlocked, StatusZombie, true},
		{"Ready to Blocked", StatusReady, StatusBlocked, false},
		{"Blocked to Running", StatusBlocked, StatusRunning, false},
		{"Zombie to Ready", StatusZombie, StatusReady, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("IsValidTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// TestRecycleAllocator tests id reuse order.
func TestRecycleAllocator(t *testing.T) {
	a := NewRecycleAllocator()
	for want := 0; want < 3; want++ {
		if got := a.Alloc(); got != want {
			t.Fatalf("Alloc() = %d, want %d", got, want)
		}
	}
	a.Dealloc(0)
	a.Dealloc(2)
	if got := a.Alloc(); got != 2 {
		t.Errorf("Alloc() = %d, want recycled 2", got)
	}
	if got := a.Alloc(); got != 0 {
		t.Errorf("Alloc() = %d, want recycled 0", got)
	}
	if got := a.Alloc(); got != 3 {
		t.Errorf("Alloc() = %d, want fresh 3", got)
	}
	if got := a.InUse(); got != 4 {
		t.Errorf("InUse() = %d, want 4", got)
	}
}

// TestRecycleAllocatorDoubleFree tests that a double free panics.
func TestRecycleAllocatorDoubleFree(t *testing.T) {
	a := NewRecycleAllocator()
	id := a.Alloc()
	a.Dealloc(id)
	defer func() {
		if recover() == nil {
			t.Error("second Dealloc did not panic")
		}
	}()
	a.Dealloc(id)
}

// TestArenaReusesFirstFree tests slot reuse.
func TestArenaReusesFirstFree(t *testing.T) {
	var a arena[string]
	for i, s := range []string{"a", "b", "c"} {
		id, grew := a.put(s)
		if id != i || !grew {
			t.Fatalf("put(%q) = %d, %v; want %d, true", s, id, grew, i)
		}
	}
	a.putAt(5, "f")
	if a.size() != 6 || a.count() != 4 {
		t.Fatalf("size, count = %d, %d; want 6, 4", a.size(), a.count())
	}
	id, grew := a.put("d")
	if id != 3 || grew {
		t.Errorf("put(d) = %d, %v; want 3, false", id, grew)
	}
	if _, ok := a.get(4); ok {
		t.Error("get(4) found a free slot")
	}
	if v, ok := a.get(5); !ok || v != "f" {
		t.Errorf("get(5) = %q, %v", v, ok)
	}
}

// TestYieldRoundRobin tests that FIFO scheduling alternates yielding
// processes.
func TestYieldRoundRobin(t *testing.T) {
	k := newTestKernel(t, config.PolicyFIFO)
	var trace []string
	step := func(name string) Entry {
		return func(th *Thread) int {
			for i := 0; i < 3; i++ {
				trace = append(trace, name)
				th.Yield()
			}
			return 0
		}
	}
	k.start(t, "a", step("a"))
	k.start(t, "b", step("b"))
	k.run(t)

	want := []string{"a", "b", "a", "b", "a", "b"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
	if n := k.m.LiveThreads(); n != 0 {
		t.Errorf("LiveThreads() = %d after run, want 0", n)
	}
}

// TestSetPriority tests the priority bounds.
func TestSetPriority(t *testing.T) {
	k := newTestKernel(t, config.PolicyStride)
	tests := []struct {
		prio    int
		wantErr bool
	}{
		{0, true},
		{1, true},
		{2, false},
		{5, false},
	}
	p := k.start(t, "prio", func(th *Thread) int { return 0 })
	th := p.MainThread()
	for _, tt := range tests {
		err := th.SetPriority(tt.prio)
		if (err != nil) != tt.wantErr {
			t.Errorf("SetPriority(%d) error = %v, wantErr %v", tt.prio, err, tt.wantErr)
		}
	}
	if th.Priority() != 5 {
		t.Errorf("Priority() = %d, want 5", th.Priority())
	}
}

// TestStrideProportionalShare tests that a higher priority earns more
// dispatches.
func TestStrideProportionalShare(t *testing.T) {
	k := newTestKernel(t, config.PolicyStride)
	var counts [2]int
	total := 0
	spin := func(i, prio int) Entry {
		return func(th *Thread) int {
			if err := th.SetPriority(prio); err != nil {
				t.Errorf("SetPriority(%d) error = %v", prio, err)
			}
			for total < 600 {
				counts[i]++
				total++
				th.Yield()
			}
			return 0
		}
	}
	k.start(t, "low", spin(0, 2))
	k.start(t, "high", spin(1, 10))
	k.run(t)

	if counts[1] < 3*counts[0] {
		t.Errorf("dispatches low=%d high=%d, want high >= 3*low", counts[0], counts[1])
	}
}

// TestSleep tests that a sleeper wakes no earlier than its deadline.
func TestSleep(t *testing.T) {
	k := newTestKernel(t, config.PolicyFIFO)
	k.clock.SetStep(time.Millisecond)
	var slept, woke time.Duration
	busy := 0
	k.start(t, "sleeper", func(th *Thread) int {
		slept = k.clock.Now()
		th.Sleep(50 * time.Millisecond)
		woke = k.clock.Now()
		return 0
	})
	k.start(t, "busy", func(th *Thread) int {
		for i := 0; i < 20; i++ {
			busy++
			th.Yield()
		}
		return 0
	})
	k.run(t)

	if woke-slept < 50*time.Millisecond {
		t.Errorf("woke after %v, want >= 50ms", woke-slept)
	}
	if busy != 20 {
		t.Errorf("busy = %d, want 20", busy)
	}
	if k.m.Timers().Len() != 0 {
		t.Errorf("Timers().Len() = %d, want 0", k.m.Timers().Len())
	}
}

// TestRunStalled tests that Run reports a CPU with only blocked threads.
func TestRunStalled(t *testing.T) {
	k := newTestKernel(t, config.PolicyFIFO)
	k.start(t, "stuck", func(th *Thread) int {
		id, _ := th.Process().SemaphoreCreate(0)
		th.SemaphoreDown(id)
		return 0
	})
	if err := k.m.Run(); !errors.Is(err, ErrStalled) {
		t.Errorf("Run() error = %v, want %v", err, ErrStalled)
	}
}

// TestRunningTime tests that running time only accrues while on the CPU.
func TestRunningTime(t *testing.T) {
	k := newTestKernel(t, config.PolicyFIFO)
	var during, after time.Duration
	k.start(t, "timed", func(th *Thread) int {
		k.clock.Advance(3 * time.Millisecond)
		during = th.RunningTime()
		th.Yield()
		after = th.RunningTime()
		return 0
	})
	k.start(t, "other", func(th *Thread) int {
		k.clock.Advance(10 * time.Millisecond)
		return 0
	})
	k.run(t)

	if during != 3*time.Millisecond {
		t.Errorf("RunningTime() = %v while running, want 3ms", during)
	}
	if after != 3*time.Millisecond {
		t.Errorf("RunningTime() = %v after yield, want 3ms", after)
	}
}
