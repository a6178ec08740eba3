package process

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/sync"
)

// RecycleAllocator hands out small integer ids, reusing freed ones before
// minting new ones.
type RecycleAllocator struct {
	mu       sync.Mutex
	current  int
	recycled []int
}

// NewRecycleAllocator returns an allocator whose first id is 0.
func NewRecycleAllocator() *RecycleAllocator {
	return &RecycleAllocator{}
}

// Alloc returns the most recently freed id, or the next fresh one.
func (a *RecycleAllocator) Alloc() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.recycled); n > 0 {
		id := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return id
	}
	id := a.current
	a.current++
	return id
}

// Dealloc returns id to the pool. Freeing an id that was never handed out,
// or freeing it twice, panics.
func (a *RecycleAllocator) Dealloc(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || id >= a.current {
		panic(fmt.Sprintf("id %d was never allocated", id))
	}
	for _, r := range a.recycled {
		if r == id {
			panic(fmt.Sprintf("id %d freed twice", id))
		}
	}
	a.recycled = append(a.recycled, id)
}

// InUse returns the number of ids currently handed out.
func (a *RecycleAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current - len(a.recycled)
}
