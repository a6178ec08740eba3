package process

import (
	"errors"

	"gvisor.dev/gvisor/pkg/sync"

	"tcore/pkg/klog"
	"tcore/pkg/timer"
)

// ErrStalled is returned by Run when live threads remain but none is
// runnable and no timer is pending.
var ErrStalled = errors.New("every live thread is blocked and no timer is pending")

// Processor is the single logical CPU. It resumes one thread at a time and
// waits for that thread to hand the CPU back.
type Processor struct {
	m *Manager

	mu         sync.Mutex
	current    *Thread
	dispatches uint64

	back chan struct{}
}

func newProcessor(m *Manager) *Processor {
	return &Processor{m: m, back: make(chan struct{})}
}

// Current returns the thread that owns the CPU, or nil while the processor
// is choosing.
func (c *Processor) Current() *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Dispatches returns how many times a thread has been resumed.
func (c *Processor) Dispatches() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatches
}

func (c *Processor) setCurrent(t *Thread) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	if t != nil {
		c.dispatches++
	}
}

// Run dispatches threads until the init process exits or no live thread
// remains. When every live thread is blocked it idles until the next timer
// deadline, and returns ErrStalled if there is none.
func (c *Processor) Run() error {
	m := c.m
	for {
		for _, w := range m.timers.Expire(m.clock.Now()) {
			w.Wake()
		}
		t := m.sched.Fetch()
		if t == nil {
			if m.live.Load() == 0 {
				return nil
			}
			if next, ok := m.timers.Next(); ok {
				m.clock.WaitUntil(next)
				continue
			}
			klog.Warningf("processor stalled with %d live threads", m.live.Load())
			return ErrStalled
		}
		c.dispatch(t)
		if init := m.Init(); init != nil && init.IsZombie() {
			klog.Infof("init exited with code %d", init.ExitCode())
			return nil
		}
	}
}

// dispatch resumes t and waits for it to give the CPU back.
func (c *Processor) dispatch(t *Thread) {
	clock := c.m.clock
	t.mu.Lock()
	if t.status != StatusReady {
		t.mu.Unlock()
		return
	}
	t.setStatus(StatusRunning)
	first := !t.started
	t.started = true
	t.dispatched = clock.Now()
	t.mu.Unlock()

	c.setCurrent(t)
	if first {
		go t.main()
	}
	t.resume <- struct{}{}
	<-c.back
	c.setCurrent(nil)

	now := clock.Now()
	t.mu.Lock()
	t.runTime += now - t.dispatched
	t.mu.Unlock()
	if tk, ok := clock.(timer.Ticker); ok {
		tk.Tick()
	}
}
