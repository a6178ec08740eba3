package mm

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

// TestPortPermission tests mmap port validation.
func TestPortPermission(t *testing.T) {
	tests := []struct {
		port uint64
		want MapPermission
		ok   bool
	}{
		{0, 0, false},
		{1, PermR | PermU, true},
		{2, PermW | PermU, true},
		{3, PermR | PermW | PermU, true},
		{7, PermR | PermW | PermX | PermU, true},
		{8, 0, false},
		{9, 0, false},
		{0xff, 0, false},
	}

	for _, tt := range tests {
		got, ok := PortPermission(tt.port)
		if ok != tt.ok || got != tt.want {
			t.Errorf("PortPermission(%d) = %v, %v, want %v, %v", tt.port, got, ok, tt.want, tt.ok)
		}
	}
}

// TestMmapMunmap tests that a mapped range is accessible per its permission
// and inaccessible once unmapped.
func TestMmapMunmap(t *testing.T) {
	for port := uint64(1); port <= 7; port++ {
		ms := NewMemorySet()
		perm, _ := PortPermission(port)
		start := uint64(0x10000000)
		length := uint64(3 * PageSize)

		if err := ms.Mmap(start, length, perm); err != nil {
			t.Fatalf("port %d: Mmap() error = %v", port, err)
		}

		payload := []byte("hello")
		err := ms.Store(start+length-2, payload[:2])
		if perm&PermW != 0 && err != nil {
			t.Errorf("port %d: Store() error = %v", port, err)
		}
		if perm&PermW == 0 && !errors.Is(err, ErrFault) {
			t.Errorf("port %d: Store() error = %v, want %v", port, err, ErrFault)
		}
		_, err = ms.Load(start, 16)
		if (perm&PermR != 0) != (err == nil) {
			t.Errorf("port %d: Load() error = %v", port, err)
		}

		if err := ms.Munmap(start, length); err != nil {
			t.Fatalf("port %d: Munmap() error = %v", port, err)
		}
		if ms.Mapped(start) || ms.Mapped(start+length-1) {
			t.Errorf("port %d: range still mapped after Munmap", port)
		}
		if _, err := ms.TranslatedByteBuffer(start, 1); !errors.Is(err, ErrFault) {
			t.Errorf("port %d: translate after Munmap error = %v", port, err)
		}
	}
}

// TestMmapErrors tests rejected mappings leave the address space untouched.
func TestMmapErrors(t *testing.T) {
	ms := NewMemorySet()
	if err := ms.Mmap(0x10000000, PageSize, PermR|PermU); err != nil {
		t.Fatalf("Mmap() error = %v", err)
	}

	if err := ms.Mmap(0x10000001, PageSize, PermR|PermU); !errors.Is(err, ErrUnaligned) {
		t.Errorf("unaligned Mmap() error = %v, want %v", err, ErrUnaligned)
	}
	if err := ms.Mmap(0x10000000-PageSize, 2*PageSize, PermR|PermU); !errors.Is(err, ErrOverlap) {
		t.Errorf("overlapping Mmap() error = %v, want %v", err, ErrOverlap)
	}
	wraps := []struct {
		name   string
		start  uint64
		length uint64
	}{
		{"end rounds past the top", 0x1000, math.MaxUint64 - 0x1000},
		{"length overflows", 0x20000000, math.MaxUint64 - 0x1000},
		{"last page", math.MaxUint64 - PageSize + 1, PageSize},
	}
	for _, tt := range wraps {
		t.Run(tt.name, func(t *testing.T) {
			if err := ms.Mmap(tt.start, tt.length, PermR|PermU); !errors.Is(err, ErrRange) {
				t.Errorf("Mmap(%#x, %#x) error = %v, want %v", tt.start, tt.length, err, ErrRange)
			}
		})
	}
	if len(ms.Areas()) != 1 {
		t.Errorf("Areas() = %#x, want one area", ms.Areas())
	}
	if ms.PageCount() != 1 {
		t.Errorf("PageCount() = %d, want 1", ms.PageCount())
	}
}

// TestMunmapErrors tests munmap validation.
func TestMunmapErrors(t *testing.T) {
	ms := NewMemorySet()
	start := uint64(0x20000000)
	ms.Mmap(start, 2*PageSize, PermR|PermW|PermU)

	tests := []struct {
		name   string
		start  uint64
		length uint64
		want   error
	}{
		{"unaligned start", start + 1, PageSize, ErrUnaligned},
		{"unaligned length", start, 100, ErrUnaligned},
		{"partially unmapped", start, 3 * PageSize, ErrNotMapped},
		{"never mapped", 0x30000000, PageSize, ErrNotMapped},
		{"wraps to zero", 0x10000, math.MaxUint64 - 0x10000 + 1, ErrRange},
		{"wraps past zero", start, math.MaxUint64 - PageSize + 1, ErrRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ms.Munmap(tt.start, tt.length); !errors.Is(err, tt.want) {
				t.Errorf("Munmap() error = %v, want %v", err, tt.want)
			}
		})
	}
	if ms.PageCount() != 2 {
		t.Errorf("PageCount() = %d, want 2", ms.PageCount())
	}
}

// TestMunmapSplit tests unmapping the middle of an area.
func TestMunmapSplit(t *testing.T) {
	ms := NewMemorySet()
	start := uint64(0x40000000)
	ms.Mmap(start, 3*PageSize, PermR|PermW|PermU)
	ms.Store(start+2*PageSize, []byte{0xAB})

	if err := ms.Munmap(start+PageSize, PageSize); err != nil {
		t.Fatalf("Munmap() error = %v", err)
	}
	if !ms.Mapped(start) || ms.Mapped(start+PageSize) || !ms.Mapped(start+2*PageSize) {
		t.Errorf("Areas() = %#x after split", ms.Areas())
	}
	b, err := ms.Load(start+2*PageSize, 1)
	if err != nil || b[0] != 0xAB {
		t.Errorf("Load() = %v, %v, want [0xab]", b, err)
	}
}

// TestWriteValueAcrossPages tests writing a struct split by a page boundary.
func TestWriteValueAcrossPages(t *testing.T) {
	ms := NewMemorySet()
	start := uint64(0x50000000)
	ms.Mmap(start, 2*PageSize, PermR|PermW|PermU)

	type pair struct {
		A uint64
		B uint64
	}
	ptr := start + PageSize - 5
	bufs, err := ms.TranslatedByteBuffer(ptr, 16)
	if err != nil {
		t.Fatalf("TranslatedByteBuffer() error = %v", err)
	}
	if len(bufs) != 2 || len(bufs[0]) != 5 || len(bufs[1]) != 11 {
		t.Fatalf("chunks = %d, want 2 chunks of 5 and 11 bytes", len(bufs))
	}

	in := pair{A: 0x0102030405060708, B: 42}
	if err := ms.WriteValue(ptr, in); err != nil {
		t.Fatalf("WriteValue() error = %v", err)
	}
	var out pair
	if err := ms.ReadValue(ptr, &out); err != nil {
		t.Fatalf("ReadValue() error = %v", err)
	}
	if out != in {
		t.Errorf("ReadValue() = %+v, want %+v", out, in)
	}
}

// TestTranslatedStr tests strings that cross a page boundary.
func TestTranslatedStr(t *testing.T) {
	ms := NewMemorySet()
	start := uint64(0x60000000)
	ms.Mmap(start, 2*PageSize, PermR|PermW|PermU)

	ptr := start + PageSize - 3
	ms.Store(ptr, append([]byte("ch8_spawn"), 0))
	s, err := ms.TranslatedStr(ptr)
	if err != nil || s != "ch8_spawn" {
		t.Errorf("TranslatedStr() = %q, %v, want ch8_spawn", s, err)
	}

	if _, err := ms.TranslatedStr(0x70000000); !errors.Is(err, ErrFault) {
		t.Errorf("TranslatedStr(unmapped) error = %v, want %v", err, ErrFault)
	}
}

// TestChangeBrk tests heap growth and shrinking.
func TestChangeBrk(t *testing.T) {
	ms := NewMemorySet()
	bottom := uint64(0x80000)
	if err := ms.InitHeap(bottom); err != nil {
		t.Fatalf("InitHeap() error = %v", err)
	}

	old, err := ms.ChangeBrk(100)
	if err != nil || old != bottom {
		t.Fatalf("ChangeBrk(100) = %#x, %v, want %#x", old, err, bottom)
	}
	if err := ms.Store(bottom+99, []byte{1}); err != nil {
		t.Errorf("Store() in heap error = %v", err)
	}
	if _, err := ms.ChangeBrk(-200); !errors.Is(err, ErrBrk) {
		t.Errorf("ChangeBrk(-200) error = %v, want %v", err, ErrBrk)
	}
	if ms.Brk() != bottom+100 {
		t.Errorf("Brk() = %#x after failed shrink, want %#x", ms.Brk(), bottom+100)
	}
	old, err = ms.ChangeBrk(-100)
	if err != nil || old != bottom+100 {
		t.Errorf("ChangeBrk(-100) = %#x, %v", old, err)
	}
	if ms.Mapped(bottom) {
		t.Error("heap page still mapped after shrinking to the bottom")
	}

	ms.Mmap(bottom+PageSize, PageSize, PermR|PermU)
	if _, err := ms.ChangeBrk(2 * PageSize); !errors.Is(err, ErrOverlap) {
		t.Errorf("ChangeBrk into mapping error = %v, want %v", err, ErrOverlap)
	}
}

// TestClone tests that a cloned address space is independent.
func TestClone(t *testing.T) {
	ms := NewMemorySet()
	start := uint64(0x90000000)
	ms.Mmap(start, PageSize, PermR|PermW|PermU)
	ms.Store(start, []byte("parent"))

	c := ms.Clone()
	c.Store(start, []byte("child!"))

	p, _ := ms.Load(start, 6)
	ch, _ := c.Load(start, 6)
	if !bytes.Equal(p, []byte("parent")) || !bytes.Equal(ch, []byte("child!")) {
		t.Errorf("parent = %q, child = %q", p, ch)
	}

	ms.Recycle()
	if ms.PageCount() != 0 || c.PageCount() != 1 {
		t.Errorf("PageCount() after Recycle = %d/%d, want 0/1", ms.PageCount(), c.PageCount())
	}
}
