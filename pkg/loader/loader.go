// Package loader defines the tcore executable image format and turns images
// into fresh address spaces.
//
// An image names a registered program, the Go entry that stands in for its
// machine code, and carries the program's initialized data. Loading maps the
// data segment at DataBase, zero-fills its bss and places an empty heap one
// guard page above it.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gvisor.dev/gvisor/pkg/sync"

	"tcore/pkg/mm"
	"tcore/pkg/process"
)

// Image format constants.
const (
	// Magic opens every image.
	Magic = "TCEX"
	// Version is the only image version understood.
	Version = 1
	// DataBase is where the data segment is mapped.
	DataBase = 0x10000
)

// Loader errors.
var (
	ErrBadMagic       = errors.New("loader: bad magic")
	ErrBadVersion     = errors.New("loader: unsupported image version")
	ErrTruncated      = errors.New("loader: truncated image")
	ErrTrailing       = errors.New("loader: trailing bytes after image")
	ErrUnknownProgram = errors.New("loader: program not registered")
	ErrInvalidName    = errors.New("loader: invalid program name")
)

// Header describes an image.
type Header struct {
	// Program is the registered program the image runs.
	Program string
	// Data is the initialized data segment.
	Data []byte
	// BSS is the number of zero bytes following Data.
	BSS uint32
}

// Encode serializes h.
func Encode(h *Header) ([]byte, error) {
	if h.Program == "" || strings.IndexByte(h.Program, 0) >= 0 {
		return nil, ErrInvalidName
	}
	n := len(Magic) + 2 + len(h.Program) + 1 + 4 + len(h.Data) + 4
	buf := make([]byte, n)
	c := NewCodec(buf)
	err := c.WriteBytes([]byte(Magic))
	if err == nil {
		err = c.WriteUint16(Version)
	}
	if err == nil {
		err = c.WriteString(h.Program)
	}
	if err == nil {
		err = c.WriteUint32(uint32(len(h.Data)))
	}
	if err == nil {
		err = c.WriteBytes(h.Data)
	}
	if err == nil {
		err = c.WriteUint32(h.BSS)
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode parses an image.
func Decode(b []byte) (*Header, error) {
	c := NewCodec(b)
	magic, err := c.ReadBytes(len(Magic))
	if err != nil {
		return nil, ErrTruncated
	}
	if !bytes.Equal(magic, []byte(Magic)) {
		return nil, ErrBadMagic
	}
	v, err := c.ReadUint16()
	if err != nil {
		return nil, ErrTruncated
	}
	if v != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	h := &Header{}
	if h.Program, err = c.ReadString(); err != nil {
		return nil, ErrTruncated
	}
	n, err := c.ReadUint32()
	if err != nil {
		return nil, ErrTruncated
	}
	if h.Data, err = c.ReadBytes(int(n)); err != nil {
		return nil, ErrTruncated
	}
	if h.BSS, err = c.ReadUint32(); err != nil {
		return nil, ErrTruncated
	}
	if c.Remaining() != 0 {
		return nil, ErrTrailing
	}
	return h, nil
}

// Registry maps program names to their entries.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]process.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]process.Entry)}
}

// Register adds or replaces a program.
func (r *Registry) Register(name string, e process.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[name] = e
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (process.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.programs[name]
	return e, ok
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.programs))
	for n := range r.programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Loader builds process images from encoded headers.
type Loader struct {
	reg *Registry
}

// New creates a loader resolving programs in reg.
func New(reg *Registry) *Loader {
	return &Loader{reg: reg}
}

// Load implements process.Loader.
func (l *Loader) Load(data []byte) (*process.Image, error) {
	h, err := Decode(data)
	if err != nil {
		return nil, err
	}
	entry, ok := l.reg.Lookup(h.Program)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, h.Program)
	}
	ms, err := Layout(h)
	if err != nil {
		return nil, err
	}
	return &process.Image{Name: h.Program, Memory: ms, Entry: entry}, nil
}

// Layout builds the address space for h.
func Layout(h *Header) (*mm.MemorySet, error) {
	ms := mm.NewMemorySet()
	end := uint64(DataBase)
	if size := uint64(len(h.Data)) + uint64(h.BSS); size > 0 {
		end = DataBase + size
		if err := ms.Insert(DataBase, end, mm.PermR|mm.PermW|mm.PermU); err != nil {
			return nil, err
		}
		if len(h.Data) > 0 {
			if err := ms.Store(DataBase, h.Data); err != nil {
				return nil, err
			}
		}
	}
	heap := (end+mm.PageSize-1)/mm.PageSize*mm.PageSize + mm.PageSize
	if err := ms.InitHeap(heap); err != nil {
		return nil, err
	}
	return ms, nil
}

var _ process.Loader = (*Loader)(nil)
