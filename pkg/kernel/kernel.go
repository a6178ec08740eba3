// Package kernel assembles a tcore kernel from its configuration: the clock,
// the app store, the program loader and the process manager.
package kernel

import (
	"errors"
	"fmt"
	"io"
	"time"

	"tcore/pkg/config"
	"tcore/pkg/fs"
	"tcore/pkg/klog"
	"tcore/pkg/loader"
	"tcore/pkg/process"
	"tcore/pkg/timer"
)

// InitProc is the default name of the first user program.
const InitProc = "initproc"

// ErrNoInit is returned by Run when the init program is not installed.
var ErrNoInit = errors.New("kernel: init program not installed")

// Program is a user program bundled with the kernel.
type Program struct {
	// Name is the path the program is installed under.
	Name string
	// Entry is the program's code.
	Entry process.Entry
	// Data is the program's initialized data segment.
	Data []byte
	// BSS is the size of its zero-filled segment.
	BSS uint32
}

// Kernel is a configured, not yet running, kernel.
type Kernel struct {
	cfg      *config.Config
	clock    timer.Clock
	files    *fs.FS
	programs *loader.Registry
	manager  *process.Manager
}

// New builds a kernel from cfg. A nil cfg means config.Default().
func New(cfg *config.Config) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := klog.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	var clock timer.Clock
	switch cfg.Clock {
	case config.ClockManual:
		mc := timer.NewManualClock(0)
		mc.SetStep(time.Millisecond)
		clock = mc
	default:
		clock = timer.NewRealClock()
	}

	k := &Kernel{
		cfg:      cfg,
		clock:    clock,
		files:    fs.New(),
		programs: loader.NewRegistry(),
	}
	k.manager = process.NewManager(cfg, clock, k.files, loader.New(k.programs))
	return k, nil
}

// Config returns the kernel configuration.
func (k *Kernel) Config() *config.Config { return k.cfg }

// Clock returns the kernel clock.
func (k *Kernel) Clock() timer.Clock { return k.clock }

// Manager returns the process manager.
func (k *Kernel) Manager() *process.Manager { return k.manager }

// Files returns the app store.
func (k *Kernel) Files() *fs.FS { return k.files }

// SetConsole directs user output to w.
func (k *Kernel) SetConsole(w io.Writer) {
	k.manager.SetConsole(w)
}

// Install registers p and writes its image to the app store.
func (k *Kernel) Install(p Program) error {
	img, err := loader.Encode(&loader.Header{Program: p.Name, Data: p.Data, BSS: p.BSS})
	if err != nil {
		return fmt.Errorf("install %s: %w", p.Name, err)
	}
	if err := k.files.WriteFile(p.Name, img); err != nil {
		return fmt.Errorf("install %s: %w", p.Name, err)
	}
	k.programs.Register(p.Name, p.Entry)
	klog.Debugf("installed %s (%d bytes)", p.Name, len(img))
	return nil
}

// InstallAll installs every program in ps.
func (k *Kernel) InstallAll(ps []Program) error {
	for _, p := range ps {
		if err := k.Install(p); err != nil {
			return err
		}
	}
	return nil
}

// Programs returns the names of the installed programs.
func (k *Kernel) Programs() []string {
	return k.programs.Names()
}

// Run seals the app store, boots name as init and runs until init exits.
// It returns init's exit code.
func (k *Kernel) Run(name string) (int, error) {
	if _, ok := k.programs.Lookup(name); !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoInit, name)
	}
	k.files.Seal()
	p, err := k.manager.Boot(name)
	if err != nil {
		return 0, err
	}
	defer k.manager.Shutdown()
	if err := k.manager.Run(); err != nil {
		return 0, err
	}
	return p.ExitCode(), nil
}
