package process

import (
	"errors"
	"fmt"
)

// State transition errors.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TaskStatus is the scheduling state of a thread.
type TaskStatus uint32

// Thread states. The numeric values are reported by task_info.
const (
	// StatusReady: runnable, waiting in the ready queue.
	StatusReady TaskStatus = iota
	// StatusRunning: currently owns the CPU.
	StatusRunning
	// StatusBlocked: parked on a wait queue or a timer.
	StatusBlocked
	// StatusZombie: exited, waiting to be reaped.
	StatusZombie
)

// String returns the lowercase state name.
func (s TaskStatus) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusZombie:
		return "zombie"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// StateTransition represents a valid state transition.
type StateTransition struct {
	From TaskStatus
	To   TaskStatus
}

// ValidTransitions defines all valid state transitions.
var ValidTransitions = []StateTransition{
	// Dispatch: Ready -> Running
	{From: StatusReady, To: StatusRunning},
	// Yield: Running -> Ready
	{From: StatusRunning, To: StatusReady},
	// Wait: Running -> Blocked
	{From: StatusRunning, To: StatusBlocked},
	// Wake: Blocked -> Ready
	{From: StatusBlocked, To: StatusReady},
	// Exit: Running -> Zombie
	{From: StatusRunning, To: StatusZombie},
	// Killed by a sibling's exit or exec.
	{From: StatusReady, To: StatusZombie},
	{From: StatusBlocked, To: StatusZombie},
}

// IsValidTransition checks if a state transition is valid.
func IsValidTransition(from, to TaskStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// setStatus moves t to a new state. Callers hold t.mu.
func (t *Thread) setStatus(to TaskStatus) {
	if !IsValidTransition(t.status, to) {
		panic(fmt.Sprintf("thread %d:%d: %v: %v -> %v", t.process.pid, t.tid, ErrInvalidTransition, t.status, to))
	}
	t.status = to
}
