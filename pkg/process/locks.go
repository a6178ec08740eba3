package process

import (
	"reflect"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/sync/locking"
)

// processMutex guards a process's mutable state. Lock order is parent
// process, then child process, then thread.
type processMutex struct {
	mu sync.Mutex
}

var processPrefixIndex *locking.MutexClass

var processLockNames []string

type processLockNameIndex int

const (
	processLockChild = processLockNameIndex(0)
)

// Lock locks m.
// +checklocksignore
func (m *processMutex) Lock() {
	locking.AddGLock(processPrefixIndex, -1)
	m.mu.Lock()
}

// NestedLock locks m knowing that another process lock is held.
// +checklocksignore
func (m *processMutex) NestedLock(i processLockNameIndex) {
	locking.AddGLock(processPrefixIndex, int(i))
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *processMutex) Unlock() {
	locking.DelGLock(processPrefixIndex, -1)
	m.mu.Unlock()
}

// NestedUnlock unlocks m knowing that another process lock is held.
// +checklocksignore
func (m *processMutex) NestedUnlock(i processLockNameIndex) {
	locking.DelGLock(processPrefixIndex, int(i))
	m.mu.Unlock()
}

// threadMutex guards a thread's status and ledger.
type threadMutex struct {
	mu sync.Mutex
}

var threadPrefixIndex *locking.MutexClass

// Lock locks m.
// +checklocksignore
func (m *threadMutex) Lock() {
	locking.AddGLock(threadPrefixIndex, -1)
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *threadMutex) Unlock() {
	locking.DelGLock(threadPrefixIndex, -1)
	m.mu.Unlock()
}

func init() {
	processLockNames = []string{"child"}
	processPrefixIndex = locking.NewMutexClass(reflect.TypeOf(processMutex{}), processLockNames)
	threadPrefixIndex = locking.NewMutexClass(reflect.TypeOf(threadMutex{}), nil)
}
