// Package mm models a process address space at page granularity.
//
// Page tables themselves are out of scope: a MemorySet keeps one 4 KiB frame
// per mapped virtual page number. Translation hands out one byte slice per
// page, so a user buffer that crosses a page boundary is never contiguous.
package mm

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gvisor.dev/gvisor/pkg/sync"
)

// Address space errors.
var (
	ErrUnaligned = errors.New("mm: address not page aligned")
	ErrOverlap   = errors.New("mm: range overlaps an existing mapping")
	ErrNotMapped = errors.New("mm: page not mapped")
	ErrFault     = errors.New("mm: user address fault")
	ErrBrk       = errors.New("mm: invalid program break")
	ErrEmpty     = errors.New("mm: empty range")
	ErrRange     = errors.New("mm: range wraps the address space")
)

// MapArea is a run of consecutive mapped pages sharing one permission.
type MapArea struct {
	// StartVPN is the first virtual page number.
	StartVPN uint64
	// EndVPN is one past the last virtual page number.
	EndVPN uint64
	// Perm is the permission of every page in the area.
	Perm MapPermission

	frames map[uint64][]byte
}

func newMapArea(startVPN, endVPN uint64, perm MapPermission) *MapArea {
	a := &MapArea{
		StartVPN: startVPN,
		EndVPN:   endVPN,
		Perm:     perm,
		frames:   make(map[uint64][]byte, endVPN-startVPN),
	}
	for vpn := startVPN; vpn < endVPN; vpn++ {
		a.frames[vpn] = make([]byte, PageSize)
	}
	return a
}

func (a *MapArea) clone() *MapArea {
	c := &MapArea{
		StartVPN: a.StartVPN,
		EndVPN:   a.EndVPN,
		Perm:     a.Perm,
		frames:   make(map[uint64][]byte, len(a.frames)),
	}
	for vpn, f := range a.frames {
		nf := make([]byte, PageSize)
		copy(nf, f)
		c.frames[vpn] = nf
	}
	return c
}

// split returns the parts of a outside [s, e). Frames move with their pages.
func (a *MapArea) split(s, e uint64) []*MapArea {
	var parts []*MapArea
	if a.StartVPN < s {
		left := &MapArea{StartVPN: a.StartVPN, EndVPN: s, Perm: a.Perm, frames: make(map[uint64][]byte)}
		for vpn := a.StartVPN; vpn < s; vpn++ {
			left.frames[vpn] = a.frames[vpn]
		}
		parts = append(parts, left)
	}
	if e < a.EndVPN {
		right := &MapArea{StartVPN: e, EndVPN: a.EndVPN, Perm: a.Perm, frames: make(map[uint64][]byte)}
		for vpn := e; vpn < a.EndVPN; vpn++ {
			right.frames[vpn] = a.frames[vpn]
		}
		parts = append(parts, right)
	}
	return parts
}

// MemorySet is a process address space.
type MemorySet struct {
	mu    sync.Mutex
	areas []*MapArea // sorted by StartVPN, never overlapping

	// heap is the area grown and shrunk by ChangeBrk; it may be empty.
	heap       *MapArea
	heapBottom uint64
	brk        uint64
}

// NewMemorySet returns an empty address space.
func NewMemorySet() *MemorySet {
	return &MemorySet{}
}

func (ms *MemorySet) overlapsLocked(s, e uint64) bool {
	for _, a := range ms.areas {
		if a.StartVPN == a.EndVPN {
			continue
		}
		if s < a.EndVPN && a.StartVPN < e {
			return true
		}
	}
	return false
}

func (ms *MemorySet) insertLocked(a *MapArea) {
	ms.areas = append(ms.areas, a)
	sort.Slice(ms.areas, func(i, j int) bool {
		return ms.areas[i].StartVPN < ms.areas[j].StartVPN
	})
}

func (ms *MemorySet) areaLocked(vpn uint64) *MapArea {
	for _, a := range ms.areas {
		if vpn >= a.StartVPN && vpn < a.EndVPN {
			return a
		}
	}
	return nil
}

// Insert maps the pages covering [start, end) with perm.
func (ms *MemorySet) Insert(start, end uint64, perm MapPermission) error {
	if end <= start {
		return ErrEmpty
	}
	if end > math.MaxUint64-PageSize+1 {
		return fmt.Errorf("%w: [%#x, %#x)", ErrRange, start, end)
	}
	s, e := vpnFloor(start), vpnCeil(end)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.overlapsLocked(s, e) {
		return fmt.Errorf("%w: [%#x, %#x)", ErrOverlap, start, end)
	}
	ms.insertLocked(newMapArea(s, e, perm))
	return nil
}

// Mmap maps [start, start+length) with perm. start must be page aligned;
// length is rounded up to whole pages.
func (ms *MemorySet) Mmap(start, length uint64, perm MapPermission) error {
	if !Aligned(start) {
		return ErrUnaligned
	}
	if length > math.MaxUint64-start {
		return fmt.Errorf("%w: %#x+%#x", ErrRange, start, length)
	}
	return ms.Insert(start, start+length, perm)
}

// Munmap unmaps [start, start+length). Both must be page aligned and every
// page in the range must be mapped; areas straddling the range are split.
func (ms *MemorySet) Munmap(start, length uint64) error {
	if !Aligned(start) || !Aligned(length) {
		return ErrUnaligned
	}
	if length == 0 {
		return ErrEmpty
	}
	if length > math.MaxUint64-start {
		return fmt.Errorf("%w: %#x+%#x", ErrRange, start, length)
	}
	s, e := vpnFloor(start), vpnFloor(start+length)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	for vpn := s; vpn < e; vpn++ {
		if a := ms.areaLocked(vpn); a == nil || a == ms.heap {
			return fmt.Errorf("%w: %#x", ErrNotMapped, vpn*PageSize)
		}
	}

	kept := ms.areas[:0:0]
	for _, a := range ms.areas {
		if a == ms.heap || e <= a.StartVPN || a.EndVPN <= s {
			kept = append(kept, a)
			continue
		}
		kept = append(kept, a.split(s, e)...)
	}
	ms.areas = kept
	sort.Slice(ms.areas, func(i, j int) bool {
		return ms.areas[i].StartVPN < ms.areas[j].StartVPN
	})
	return nil
}

// Mapped reports whether the page holding addr is mapped.
func (ms *MemorySet) Mapped(addr uint64) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.areaLocked(vpnFloor(addr)) != nil
}

// Permission returns the permission of the page holding addr.
func (ms *MemorySet) Permission(addr uint64) (MapPermission, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	a := ms.areaLocked(vpnFloor(addr))
	if a == nil {
		return 0, false
	}
	return a.Perm, true
}

// PageCount returns the number of mapped pages.
func (ms *MemorySet) PageCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for _, a := range ms.areas {
		n += len(a.frames)
	}
	return n
}

// InitHeap places an empty heap area at bottom, which must be page aligned.
func (ms *MemorySet) InitHeap(bottom uint64) error {
	if !Aligned(bottom) {
		return ErrUnaligned
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	vpn := vpnFloor(bottom)
	ms.heap = &MapArea{StartVPN: vpn, EndVPN: vpn, Perm: PermR | PermW | PermU, frames: make(map[uint64][]byte)}
	ms.insertLocked(ms.heap)
	ms.heapBottom = bottom
	ms.brk = bottom
	return nil
}

// Brk returns the current program break.
func (ms *MemorySet) Brk() uint64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.brk
}

// ChangeBrk moves the program break by delta bytes and returns the old
// break. It fails if the new break falls below the heap bottom or the grown
// heap would collide with another area.
func (ms *MemorySet) ChangeBrk(delta int64) (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.heap == nil {
		return 0, fmt.Errorf("%w: no heap", ErrBrk)
	}
	old := ms.brk
	next := int64(old) + delta
	if next < int64(ms.heapBottom) {
		return 0, fmt.Errorf("%w: %#x below heap bottom %#x", ErrBrk, next, ms.heapBottom)
	}
	newEnd := vpnCeil(uint64(next))
	h := ms.heap
	switch {
	case newEnd > h.EndVPN:
		for _, a := range ms.areas {
			if a != h && a.StartVPN < newEnd && h.EndVPN < a.EndVPN && a.StartVPN != a.EndVPN {
				return 0, fmt.Errorf("%w: heap growth to %#x", ErrOverlap, next)
			}
		}
		for vpn := h.EndVPN; vpn < newEnd; vpn++ {
			h.frames[vpn] = make([]byte, PageSize)
		}
		h.EndVPN = newEnd
	case newEnd < h.EndVPN:
		for vpn := newEnd; vpn < h.EndVPN; vpn++ {
			delete(h.frames, vpn)
		}
		h.EndVPN = newEnd
	}
	ms.brk = uint64(next)
	return old, nil
}

// Clone returns a deep copy of the address space.
func (ms *MemorySet) Clone() *MemorySet {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	c := &MemorySet{heapBottom: ms.heapBottom, brk: ms.brk}
	for _, a := range ms.areas {
		na := a.clone()
		if a == ms.heap {
			c.heap = na
		}
		c.areas = append(c.areas, na)
	}
	return c
}

// Recycle releases every frame. The memory set stays usable but empty.
func (ms *MemorySet) Recycle() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.areas = nil
	ms.heap = nil
	ms.heapBottom = 0
	ms.brk = 0
}

// Areas returns a snapshot of the mapped ranges as [start, end) addresses.
func (ms *MemorySet) Areas() [][2]uint64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([][2]uint64, 0, len(ms.areas))
	for _, a := range ms.areas {
		out = append(out, [2]uint64{a.StartVPN * PageSize, a.EndVPN * PageSize})
	}
	return out
}
