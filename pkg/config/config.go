// Package config holds the tunables of the kernel core.
//
// Values start from Default and may be overridden from TCORE_* environment
// variables with FromEnv; cmd/tcore layers command-line flags on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Configuration errors.
var (
	ErrInvalidPolicy = errors.New("config: invalid scheduler policy")
	ErrInvalidClock  = errors.New("config: invalid clock source")
	ErrInvalidValue  = errors.New("config: invalid value")
)

// Policy selects the ready-queue ordering.
type Policy string

const (
	// PolicyFIFO is plain round-robin in enqueue order.
	PolicyFIFO Policy = "fifo"
	// PolicyStride picks the ready thread with the smallest pass.
	PolicyStride Policy = "stride"
)

// ClockSource selects the monotonic clock implementation.
type ClockSource string

const (
	// ClockReal follows the host's monotonic clock.
	ClockReal ClockSource = "real"
	// ClockManual only moves when advanced, or when the processor idles
	// waiting for a timer.
	ClockManual ClockSource = "manual"
)

// Limits caps per-process resource tables.
type Limits struct {
	// MaxThreads is the maximum number of live thread slots.
	MaxThreads int
	// MaxMutexes is the maximum size of the mutex table.
	MaxMutexes int
	// MaxSemaphores is the maximum size of the semaphore table.
	MaxSemaphores int
	// MaxCondvars is the maximum size of the condvar table.
	MaxCondvars int
}

// Config contains the kernel configuration.
type Config struct {
	// Policy is the scheduling policy.
	Policy Policy
	// BigStride is the stride constant divided by a thread's priority.
	BigStride uint64
	// DefaultPriority is the priority assigned to new threads.
	DefaultPriority int
	// UserStackSize is the size in bytes of each thread's user stack.
	UserStackSize uint64
	// Clock is the clock source.
	Clock ClockSource
	// LogLevel is one of "warning", "info" or "debug".
	LogLevel string
	// Limits are applied to every process.
	Limits Limits
}

// DefaultLimits returns the default per-process limits.
func DefaultLimits() Limits {
	return Limits{
		MaxThreads:    64,
		MaxMutexes:    128,
		MaxSemaphores: 128,
		MaxCondvars:   128,
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Policy:          PolicyStride,
		BigStride:       1 << 20,
		DefaultPriority: 16,
		UserStackSize:   8 * 4096,
		Clock:           ClockReal,
		LogLevel:        "warning",
		Limits:          DefaultLimits(),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Policy {
	case PolicyFIFO, PolicyStride:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, c.Policy)
	}
	switch c.Clock {
	case ClockReal, ClockManual:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidClock, c.Clock)
	}
	if c.BigStride == 0 {
		return fmt.Errorf("%w: big stride must be positive", ErrInvalidValue)
	}
	if c.DefaultPriority < 2 {
		return fmt.Errorf("%w: default priority %d", ErrInvalidValue, c.DefaultPriority)
	}
	if c.UserStackSize == 0 || c.UserStackSize%4096 != 0 {
		return fmt.Errorf("%w: user stack size %d", ErrInvalidValue, c.UserStackSize)
	}
	if c.Limits.MaxThreads <= 0 || c.Limits.MaxMutexes <= 0 ||
		c.Limits.MaxSemaphores <= 0 || c.Limits.MaxCondvars <= 0 {
		return fmt.Errorf("%w: limits must be positive", ErrInvalidValue)
	}
	return nil
}

// FromEnv returns Default overridden by TCORE_* environment variables.
func FromEnv() (*Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (*Config, error) {
	c := Default()

	if v, ok := lookup("TCORE_SCHED"); ok {
		c.Policy = Policy(strings.ToLower(v))
	}
	if v, ok := lookup("TCORE_CLOCK"); ok {
		c.Clock = ClockSource(strings.ToLower(v))
	}
	if v, ok := lookup("TCORE_LOG"); ok {
		c.LogLevel = strings.ToLower(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TCORE_PRIORITY", &c.DefaultPriority},
		{"TCORE_MAX_THREADS", &c.Limits.MaxThreads},
		{"TCORE_MAX_MUTEXES", &c.Limits.MaxMutexes},
		{"TCORE_MAX_SEMAPHORES", &c.Limits.MaxSemaphores},
		{"TCORE_MAX_CONDVARS", &c.Limits.MaxCondvars},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, e.key, v)
		}
		*e.dst = n
	}

	uints := []struct {
		key string
		dst *uint64
	}{
		{"TCORE_BIG_STRIDE", &c.BigStride},
		{"TCORE_USTACK", &c.UserStackSize},
	}
	for _, e := range uints {
		v, ok := lookup(e.key)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, e.key, v)
		}
		*e.dst = n
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
