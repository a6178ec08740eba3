package config

import (
	"errors"
	"testing"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// TestDefaultValid tests that the defaults validate.
func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

// TestFromLookup tests environment overrides.
func TestFromLookup(t *testing.T) {
	c, err := fromLookup(lookupFrom(map[string]string{
		"TCORE_SCHED":       "FIFO",
		"TCORE_CLOCK":       "manual",
		"TCORE_MAX_THREADS": "8",
		"TCORE_BIG_STRIDE":  "0x1000",
	}))
	if err != nil {
		t.Fatalf("fromLookup() error = %v", err)
	}
	if c.Policy != PolicyFIFO {
		t.Errorf("Policy = %v, want %v", c.Policy, PolicyFIFO)
	}
	if c.Clock != ClockManual {
		t.Errorf("Clock = %v, want %v", c.Clock, ClockManual)
	}
	if c.Limits.MaxThreads != 8 {
		t.Errorf("MaxThreads = %d, want 8", c.Limits.MaxThreads)
	}
	if c.BigStride != 0x1000 {
		t.Errorf("BigStride = %#x, want 0x1000", c.BigStride)
	}
}

// TestFromLookupErrors tests rejected overrides.
func TestFromLookupErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"bad policy", map[string]string{"TCORE_SCHED": "lottery"}, ErrInvalidPolicy},
		{"bad clock", map[string]string{"TCORE_CLOCK": "sundial"}, ErrInvalidClock},
		{"bad int", map[string]string{"TCORE_PRIORITY": "high"}, ErrInvalidValue},
		{"priority too low", map[string]string{"TCORE_PRIORITY": "1"}, ErrInvalidValue},
		{"unaligned stack", map[string]string{"TCORE_USTACK": "1000"}, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromLookup(lookupFrom(tt.env))
			if !errors.Is(err, tt.want) {
				t.Errorf("fromLookup() error = %v, want %v", err, tt.want)
			}
		})
	}
}
