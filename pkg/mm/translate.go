package mm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// maxStrLen bounds TranslatedStr so a missing terminator cannot run away.
const maxStrLen = 4096

// TranslatedByteBuffer returns the frames backing [ptr, ptr+n), one slice per
// page touched. Every page must be mapped user accessible. Kernel writes go
// through the frames directly and ignore the W bit, like a kernel writing
// through its own mapping of physical memory.
func (ms *MemorySet) TranslatedByteBuffer(ptr uint64, n int) ([][]byte, error) {
	return ms.translate(ptr, n, 0)
}

func (ms *MemorySet) translate(ptr uint64, n int, need MapPermission) ([][]byte, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out [][]byte
	for n > 0 {
		vpn := vpnFloor(ptr)
		a := ms.areaLocked(vpn)
		if a == nil || a.Perm&PermU == 0 || a.Perm&need != need {
			return nil, fmt.Errorf("%w: %#x", ErrFault, ptr)
		}
		off := int(ptr % PageSize)
		take := PageSize - off
		if take > n {
			take = n
		}
		out = append(out, a.frames[vpn][off:off+take])
		ptr += uint64(take)
		n -= take
	}
	return out, nil
}

// TranslatedStr reads a NUL-terminated string starting at ptr.
func (ms *MemorySet) TranslatedStr(ptr uint64) (string, error) {
	var b []byte
	for len(b) < maxStrLen {
		chunk, err := ms.TranslatedByteBuffer(ptr, PageSize-int(ptr%PageSize))
		if err != nil {
			return "", err
		}
		page := chunk[0]
		if i := bytes.IndexByte(page, 0); i >= 0 {
			return string(append(b, page[:i]...)), nil
		}
		b = append(b, page...)
		ptr += uint64(len(page))
	}
	return "", fmt.Errorf("%w: unterminated string", ErrFault)
}

// TranslatedRefMut returns a writer for a value of size bytes at ptr.
func (ms *MemorySet) TranslatedRefMut(ptr uint64, size int) (*UserBuffer, error) {
	bufs, err := ms.TranslatedByteBuffer(ptr, size)
	if err != nil {
		return nil, err
	}
	return NewUserBuffer(bufs), nil
}

// UserBuffer is a user memory range split into per-page chunks.
type UserBuffer struct {
	Buffers [][]byte
}

// NewUserBuffer wraps translated chunks.
func NewUserBuffer(bufs [][]byte) *UserBuffer {
	return &UserBuffer{Buffers: bufs}
}

// Len returns the total size of the buffer.
func (ub *UserBuffer) Len() int {
	n := 0
	for _, b := range ub.Buffers {
		n += len(b)
	}
	return n
}

// Write scatters p over the chunks in order and returns the bytes copied.
func (ub *UserBuffer) Write(p []byte) (int, error) {
	did := 0
	for _, b := range ub.Buffers {
		if len(p) == 0 {
			break
		}
		c := copy(b, p)
		p = p[c:]
		did += c
	}
	return did, nil
}

// Read gathers the chunks into p and returns the bytes copied.
func (ub *UserBuffer) Read(p []byte) (int, error) {
	did := 0
	for _, b := range ub.Buffers {
		if len(p) == 0 {
			break
		}
		c := copy(p, b)
		p = p[c:]
		did += c
	}
	return did, nil
}

// WriteValue encodes v little endian and writes it at ptr, across page
// boundaries if needed. v must be a fixed-size value for encoding/binary.
func (ms *MemorySet) WriteValue(ptr uint64, v any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return err
	}
	ub, err := ms.TranslatedRefMut(ptr, buf.Len())
	if err != nil {
		return err
	}
	_, err = ub.Write(buf.Bytes())
	return err
}

// ReadValue decodes a little endian value at ptr into v.
func (ms *MemorySet) ReadValue(ptr uint64, v any) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("mm: %T has no fixed size", v)
	}
	ub, err := ms.TranslatedRefMut(ptr, size)
	if err != nil {
		return err
	}
	raw := make([]byte, size)
	ub.Read(raw)
	return binary.Read(bytes.NewReader(raw), binary.LittleEndian, v)
}

// Load performs a user-mode read of n bytes, which requires PermR.
func (ms *MemorySet) Load(ptr uint64, n int) ([]byte, error) {
	bufs, err := ms.translate(ptr, n, PermR)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	NewUserBuffer(bufs).Read(out)
	return out, nil
}

// Store performs a user-mode write of p, which requires PermW.
func (ms *MemorySet) Store(ptr uint64, p []byte) error {
	bufs, err := ms.translate(ptr, len(p), PermW)
	if err != nil {
		return err
	}
	NewUserBuffer(bufs).Write(p)
	return nil
}
