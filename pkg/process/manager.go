package process

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/sync"

	"tcore/pkg/config"
	"tcore/pkg/fs"
	"tcore/pkg/klog"
	"tcore/pkg/mm"
	"tcore/pkg/timer"
)

// Process lifecycle errors.
var (
	ErrProcessNotFound = errors.New("process not found")
	ErrNoInit          = errors.New("init process not booted")
)

// Image is a loaded program: a fresh address space and the code to start
// at TextBase.
type Image struct {
	Name   string
	Memory *mm.MemorySet
	Entry  Entry
}

// Loader builds an Image from an executable file's contents.
type Loader interface {
	Load(data []byte) (*Image, error)
}

// Files opens executables by path.
type Files interface {
	OpenFile(name string, flags fs.OpenFlags) (*fs.Inode, error)
}

// Manager owns every process, the ready queue, the timer registry and the
// processor.
type Manager struct {
	cfg    *config.Config
	clock  timer.Clock
	timers *timer.Timers
	sched  Scheduler
	files  Files
	loader Loader
	cpu    *Processor
	pids   *RecycleAllocator
	out    io.Writer

	mu        sync.RWMutex
	processes map[int]*Process
	init      *Process

	live atomicbitops.Int32
}

// NewManager creates a manager. files and loader may be nil if processes are
// only ever built from images.
func NewManager(cfg *config.Config, clock timer.Clock, files Files, loader Loader) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if clock == nil {
		clock = timer.NewRealClock()
	}
	m := &Manager{
		cfg:       cfg,
		clock:     clock,
		timers:    timer.NewTimers(),
		files:     files,
		loader:    loader,
		pids:      NewRecycleAllocator(),
		processes: make(map[int]*Process),
		out:       io.Discard,
	}
	switch cfg.Policy {
	case config.PolicyStride:
		m.sched = NewStrideScheduler(cfg.BigStride)
	default:
		m.sched = NewFIFOScheduler()
	}
	m.cpu = newProcessor(m)
	return m
}

// Config returns the kernel configuration.
func (m *Manager) Config() *config.Config { return m.cfg }

// Clock returns the kernel clock.
func (m *Manager) Clock() timer.Clock { return m.clock }

// Timers returns the sleep registry.
func (m *Manager) Timers() *timer.Timers { return m.timers }

// Scheduler returns the ready queue.
func (m *Manager) Scheduler() Scheduler { return m.sched }

// SetConsole directs console output to w.
func (m *Manager) SetConsole(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = w
}

// Console returns the console writer.
func (m *Manager) Console() io.Writer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.out
}

// Processor returns the CPU.
func (m *Manager) Processor() *Processor { return m.cpu }

// Run drives the processor. See Processor.Run.
func (m *Manager) Run() error { return m.cpu.Run() }

// Init returns the init process, or nil before Boot.
func (m *Manager) Init() *Process {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.init
}

// LiveThreads returns the number of threads that have not exited.
func (m *Manager) LiveThreads() int { return int(m.live.Load()) }

// GetProcess looks up a registered process.
func (m *Manager) GetProcess(pid int) (*Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processes[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	return p, nil
}

// ListProcesses returns every registered process in pid order.
func (m *Manager) ListProcesses() []*Process {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps := make([]*Process, 0, len(m.processes))
	for _, p := range m.processes {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].pid < ps[j].pid })
	return ps
}

// ReadFile returns the contents of an executable.
func (m *Manager) ReadFile(path string) ([]byte, error) {
	if m.files == nil {
		return nil, fs.ErrFileNotFound
	}
	inode, err := m.files.OpenFile(path, fs.RDONLY)
	if err != nil {
		return nil, err
	}
	return inode.ReadAll(), nil
}

// LoadFile reads and loads the executable at path.
func (m *Manager) LoadFile(path string) (*Image, error) {
	data, err := m.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if m.loader == nil {
		return nil, fmt.Errorf("load %s: no loader", path)
	}
	img, err := m.loader.Load(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if img.Name == "" {
		img.Name = path
	}
	return img, nil
}

// Boot loads path as the init process. Orphans are reparented to it.
func (m *Manager) Boot(path string) (*Process, error) {
	img, err := m.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return m.BootImage(img)
}

// BootImage starts img as the init process.
func (m *Manager) BootImage(img *Image) (*Process, error) {
	p, err := m.NewProcess(img, nil)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.init = p
	m.mu.Unlock()
	klog.Infof("booted init %q as pid %d", p.name, p.pid)
	return p, nil
}

// NewProcess creates a process running img with one ready thread. A nil
// parent makes a root process.
func (m *Manager) NewProcess(img *Image, parent *Process) (*Process, error) {
	p := m.allocProcess(img.Name, img.Memory, parent)
	p.text[TextBase] = img.Entry
	p.nextText = TextBase + textStride

	p.mu.Lock()
	res, err := p.newUserResLocked(true)
	if err != nil {
		p.mu.Unlock()
		m.pids.Dealloc(p.pid)
		return nil, err
	}
	t := newThread(p, res, m.cfg.DefaultPriority)
	t.trapCx.Sepc = TextBase
	t.trapCx.X[RegSP] = res.UstackBase + m.cfg.UserStackSize
	p.installLocked(t)
	p.mu.Unlock()

	m.register(p, parent)
	m.sched.Add(t)
	return p, nil
}

// allocProcess builds an empty, unregistered process.
func (m *Manager) allocProcess(name string, memory *mm.MemorySet, parent *Process) *Process {
	return &Process{
		pid:    m.pids.Alloc(),
		name:   name,
		m:      m,
		parent: parent,
		memory: memory,
		text:   make(map[uint64]Entry),
		tids:   NewRecycleAllocator(),
		exited: make(map[int]int),
	}
}

func (m *Manager) register(p, parent *Process) {
	m.mu.Lock()
	m.processes[p.pid] = p
	m.mu.Unlock()
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, p)
		parent.mu.Unlock()
	}
	klog.Debugf("registered %v parent %d", p, p.ParentPid())
}

// reap drops a zombie child from the registry and frees its pid. The child
// must no longer be reachable from the ready queue or the timer registry.
func (m *Manager) reap(c *Process) {
	c.mu.Lock()
	for _, t := range c.tasks {
		if t == nil {
			continue
		}
		if m.sched.Contains(t) || m.timers.Contains(t) {
			c.mu.Unlock()
			panic(fmt.Sprintf("reaping %v while %v is still scheduled", c, t))
		}
	}
	c.tasks = nil
	c.mu.Unlock()

	m.mu.Lock()
	delete(m.processes, c.pid)
	m.mu.Unlock()
	m.pids.Dealloc(c.pid)
	klog.Debugf("reaped %v", c)
}

// retire turns a thread that is not the caller into a zombie and releases
// its goroutine. Callers hold t.process.mu.
func (m *Manager) retire(t *Thread) {
	t.mu.Lock()
	if t.status == StatusZombie {
		t.mu.Unlock()
		return
	}
	t.setStatus(StatusZombie)
	t.res = nil
	t.mu.Unlock()
	m.sched.Remove(t)
	m.timers.Remove(t)
	m.live.Add(-1)
	t.kill()
}

// retireOthers retires every thread of t's process except t and waits for
// their goroutines to unwind.
func (m *Manager) retireOthers(t *Thread) {
	p := t.process
	var victims []*Thread
	p.mu.Lock()
	for _, other := range p.tasks {
		if other != nil && other != t {
			m.retire(other)
			victims = append(victims, other)
		}
	}
	p.mu.Unlock()
	awaitKilled(victims)
}

// exitThread is called when t's entry returns. Returning from tid 0 exits
// the whole process.
func (m *Manager) exitThread(t *Thread, code int) {
	if t.Tid() == 0 {
		m.exitProcess(t, code)
		return
	}
	p := t.process
	size := m.cfg.UserStackSize
	p.mu.Lock()
	t.mu.Lock()
	t.setStatus(StatusZombie)
	t.exitCode = code
	tid, res := t.tid, t.res
	t.res = nil
	t.mu.Unlock()
	p.tasks[tid] = nil
	p.exited[tid] = code
	if res != nil {
		if err := p.memory.Munmap(res.UstackBase, size); err != nil {
			klog.Warningf("%v: unmap user stack: %v", t, err)
		}
	}
	p.tids.Dealloc(tid)
	p.mu.Unlock()
	m.live.Add(-1)
	klog.Debugf("%v exited with code %d", t, code)
	t.exitSwitch()
}

// exitProcess terminates every thread of t's process, hands its children to
// init and releases its address space. The main thread stays behind as a
// zombie so the parent can collect the exit code.
func (m *Manager) exitProcess(t *Thread, code int) {
	p := t.process
	m.retireOthers(t)
	p.mu.Lock()
	p.zombie = true
	p.exitCode = code
	t.mu.Lock()
	t.setStatus(StatusZombie)
	t.exitCode = code
	t.res = nil
	t.mu.Unlock()
	m.live.Add(-1)

	if len(p.tasks) > 0 {
		if main := p.tasks[0]; main != nil && main != t {
			main.mu.Lock()
			main.exitCode = code
			main.mu.Unlock()
		}
	}
	children := p.children
	p.children = nil
	p.mutexes.reset()
	p.semaphores.reset()
	p.condvars.reset()
	p.mutexStatus = nil
	p.semStatus = nil
	p.memory.Recycle()
	p.mu.Unlock()

	m.adopt(children)
	klog.Debugf("%v exited with code %d", p, code)
	t.exitSwitch()
}

// adopt reparents orphans to init.
func (m *Manager) adopt(children []*Process) {
	if len(children) == 0 {
		return
	}
	init := m.Init()
	if init == nil {
		for _, c := range children {
			c.mu.Lock()
			c.parent = nil
			c.mu.Unlock()
		}
		return
	}
	init.mu.Lock()
	for _, c := range children {
		c.mu.NestedLock(processLockChild)
		c.parent = init
		c.mu.NestedUnlock(processLockChild)
	}
	init.children = append(init.children, children...)
	init.mu.Unlock()
}

// Shutdown releases the goroutines of every thread that has not exited. It
// must only be called after Run has returned.
func (m *Manager) Shutdown() {
	var victims []*Thread
	for _, p := range m.ListProcesses() {
		p.mu.Lock()
		for _, t := range p.tasks {
			if t != nil && t.Status() != StatusZombie {
				m.retire(t)
				victims = append(victims, t)
			}
		}
		p.mu.Unlock()
	}
	awaitKilled(victims)
}
