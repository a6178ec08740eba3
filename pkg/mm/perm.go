package mm

import "strings"

// PageSize is the size of a page in bytes.
const PageSize = 4096

// MapPermission is the permission set of a mapped area. The bit layout
// follows the page table entry flags: bit 0 is the valid bit and is never
// part of a permission.
type MapPermission uint8

const (
	// PermR allows reads.
	PermR MapPermission = 1 << 1
	// PermW allows writes.
	PermW MapPermission = 1 << 2
	// PermX allows execution.
	PermX MapPermission = 1 << 3
	// PermU makes the area accessible from user mode.
	PermU MapPermission = 1 << 4
)

// PortPermission converts an mmap port (bit 0 read, bit 1 write, bit 2
// execute) into a user-accessible permission. It reports false if port has
// bits outside the low three or grants nothing.
func PortPermission(port uint64) (MapPermission, bool) {
	if port&^0x7 != 0 || port&0x7 == 0 {
		return 0, false
	}
	return MapPermission(port<<1) | PermU, true
}

func (p MapPermission) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit MapPermission
		c   byte
	}{{PermR, 'r'}, {PermW, 'w'}, {PermX, 'x'}, {PermU, 'u'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Aligned reports whether addr is page aligned.
func Aligned(addr uint64) bool {
	return addr%PageSize == 0
}

func vpnFloor(addr uint64) uint64 { return addr / PageSize }

func vpnCeil(addr uint64) uint64 { return (addr + PageSize - 1) / PageSize }
