// Package fs provides the file-content provider used by exec and spawn: a
// flat, in-memory store of application images addressed by name.
package fs

import (
	"errors"
	"path"
	"sort"
	"strings"
	"time"

	"gvisor.dev/gvisor/pkg/sync"
)

// ErrFileNotFound is returned when a file is not found.
var ErrFileNotFound = errors.New("fs: file not found")

// ErrFileExists is returned when a file already exists.
var ErrFileExists = errors.New("fs: file already exists")

// ErrReadOnly is returned when writing to a read-only filesystem.
var ErrReadOnly = errors.New("fs: read-only filesystem")

// ErrInvalidName is returned for an empty or directory-like name.
var ErrInvalidName = errors.New("fs: invalid file name")

// OpenFlags selects how OpenFile opens a file.
type OpenFlags uint32

const (
	// RDONLY opens for reading.
	RDONLY OpenFlags = 0
	// WRONLY opens for writing.
	WRONLY OpenFlags = 1 << 0
	// RDWR opens for reading and writing.
	RDWR OpenFlags = 1 << 1
	// CREATE creates the file if missing.
	CREATE OpenFlags = 1 << 9
	// TRUNC truncates an existing file.
	TRUNC OpenFlags = 1 << 10
)

// Inode is an open file.
type Inode struct {
	name     string
	node     *node
	readable bool
	writable bool
}

type node struct {
	mu    sync.RWMutex
	data  []byte
	mtime time.Time
}

// Name returns the file name.
func (i *Inode) Name() string {
	return i.name
}

// ReadAll returns a copy of the whole file content.
func (i *Inode) ReadAll() []byte {
	if !i.readable {
		return nil
	}
	i.node.mu.RLock()
	defer i.node.mu.RUnlock()
	out := make([]byte, len(i.node.data))
	copy(out, i.node.data)
	return out
}

// Write appends p to the file.
func (i *Inode) Write(p []byte) (int, error) {
	if !i.writable {
		return 0, ErrReadOnly
	}
	i.node.mu.Lock()
	defer i.node.mu.Unlock()
	i.node.data = append(i.node.data, p...)
	i.node.mtime = time.Now()
	return len(p), nil
}

// FS is the in-memory application store.
type FS struct {
	mu       sync.RWMutex
	files    map[string]*node
	readOnly bool
}

// New creates an empty filesystem.
func New() *FS {
	return &FS{files: make(map[string]*node)}
}

// Seal makes the filesystem read-only.
func (fs *FS) Seal() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.readOnly = true
}

func clean(name string) (string, error) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || strings.Contains(name, "/") {
		return "", ErrInvalidName
	}
	return name, nil
}

// WriteFile creates or replaces name with data.
func (fs *FS) WriteFile(name string, data []byte) error {
	name, err := clean(name)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return ErrReadOnly
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	fs.files[name] = &node{data: buf, mtime: time.Now()}
	return nil
}

// OpenFile opens name with flags.
func (fs *FS) OpenFile(name string, flags OpenFlags) (*Inode, error) {
	name, err := clean(name)
	if err != nil {
		return nil, err
	}
	readable := flags&WRONLY == 0
	writable := flags&(WRONLY|RDWR) != 0

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if writable && fs.readOnly {
		return nil, ErrReadOnly
	}
	n, ok := fs.files[name]
	if !ok {
		if flags&CREATE == 0 {
			return nil, ErrFileNotFound
		}
		if fs.readOnly {
			return nil, ErrReadOnly
		}
		n = &node{mtime: time.Now()}
		fs.files[name] = n
	} else if flags&TRUNC != 0 && writable {
		n.mu.Lock()
		n.data = nil
		n.mu.Unlock()
	}
	return &Inode{name: name, node: n, readable: readable, writable: writable}, nil
}

// Remove deletes name.
func (fs *FS) Remove(name string) error {
	name, err := clean(name)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return ErrReadOnly
	}
	if _, ok := fs.files[name]; !ok {
		return ErrFileNotFound
	}
	delete(fs.files, name)
	return nil
}

// List returns the file names in sorted order.
func (fs *FS) List() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	names := make([]string, 0, len(fs.files))
	for n := range fs.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
