package process

import "fmt"

// ResourceType identifies a capped per-process table.
type ResourceType int

const (
	// ResourceThreads is the thread table.
	ResourceThreads ResourceType = iota
	// ResourceMutexes is the mutex table.
	ResourceMutexes
	// ResourceSemaphores is the semaphore table.
	ResourceSemaphores
	// ResourceCondvars is the condition variable table.
	ResourceCondvars
)

func (r ResourceType) String() string {
	switch r {
	case ResourceThreads:
		return "threads"
	case ResourceMutexes:
		return "mutexes"
	case ResourceSemaphores:
		return "semaphores"
	case ResourceCondvars:
		return "condvars"
	default:
		return fmt.Sprintf("resource(%d)", int(r))
	}
}

// LimitError represents a resource limit violation.
type LimitError struct {
	Type  ResourceType
	Limit int
	Used  int
}

// Error returns the error message.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%v limit exceeded: %d of %d in use", e.Type, e.Used, e.Limit)
}

// IsLimitError checks if an error is a limit error.
func IsLimitError(err error) bool {
	_, ok := err.(*LimitError)
	return ok
}

// limitFor returns the configured cap for r. Zero means unlimited.
func (p *Process) limitFor(r ResourceType) int {
	l := p.m.cfg.Limits
	switch r {
	case ResourceThreads:
		return l.MaxThreads
	case ResourceMutexes:
		return l.MaxMutexes
	case ResourceSemaphores:
		return l.MaxSemaphores
	case ResourceCondvars:
		return l.MaxCondvars
	}
	return 0
}

// checkLimitLocked fails if adding one more r would exceed its cap.
func (p *Process) checkLimitLocked(r ResourceType, used int) error {
	limit := p.limitFor(r)
	if limit > 0 && used >= limit {
		return &LimitError{Type: r, Limit: limit, Used: used}
	}
	return nil
}
