// Package execmem hands out code regions that follow a write-xor-execute
// discipline: a region is writable while code is emitted into it and
// read-only/executable afterwards, never both at once.
package execmem

import (
	"errors"
	"fmt"
	"sync"
)

// Protection is the current access mode of a region.
type Protection int

const (
	ProtWritable   Protection = iota // read + write
	ProtExecutable                   // read + execute
	ProtFreed                        // unmapped
)

func (p Protection) String() string {
	switch p {
	case ProtWritable:
		return "rw-"
	case ProtExecutable:
		return "r-x"
	case ProtFreed:
		return "---"
	}
	return fmt.Sprintf("Protection(%d)", int(p))
}

var (
	// ErrNotWritable is returned when writing to a sealed region.
	ErrNotWritable = errors.New("execmem: region is not writable")
	// ErrFreed is returned for any operation on a released region.
	ErrFreed = errors.New("execmem: region has been freed")
	// ErrOutOfRange is returned when a write does not fit the region.
	ErrOutOfRange = errors.New("execmem: write out of range")
)

// Region is a page-aligned block of memory obtained from the OS.
type Region struct {
	mu   sync.Mutex
	mem  []byte // whole mapping, page-rounded
	size int    // requested size
	prot Protection
}

// Allocate maps a fresh region of at least size bytes. The region starts
// out writable.
func Allocate(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("execmem: invalid size %d", size)
	}
	page := pageSize()
	n := (size + page - 1) &^ (page - 1)
	mem, err := sysAlloc(n)
	if err != nil {
		return nil, fmt.Errorf("execmem: allocate %d bytes: %w", n, err)
	}
	return &Region{mem: mem, size: size, prot: ProtWritable}, nil
}

// Len returns the requested size.
func (r *Region) Len() int {
	return r.size
}

// Cap returns the mapped size, a multiple of the page size.
func (r *Region) Cap() int {
	return len(r.mem)
}

// Protection returns the current access mode.
func (r *Region) Protection() Protection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prot
}

// Bytes returns the usable part of the region. The slice must not be
// written to unless the region is writable.
func (r *Region) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prot == ProtFreed {
		return nil
	}
	return r.mem[:r.size:r.size]
}

// Write copies data into the region at off.
func (r *Region) Write(off int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.prot {
	case ProtFreed:
		return ErrFreed
	case ProtExecutable:
		return ErrNotWritable
	}
	if off < 0 || off+len(data) > r.size {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, off, off+len(data), r.size)
	}
	copy(r.mem[off:], data)
	return nil
}

// MakeWritable drops execute permission and allows writes.
func (r *Region) MakeWritable() error {
	return r.protect(ProtWritable)
}

// MakeExecutable drops write permission and allows execution.
func (r *Region) MakeExecutable() error {
	return r.protect(ProtExecutable)
}

func (r *Region) protect(p Protection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prot == ProtFreed {
		return ErrFreed
	}
	if r.prot == p {
		return nil
	}
	if err := sysProtect(r.mem, p == ProtExecutable); err != nil {
		return fmt.Errorf("execmem: protect %s: %w", p, err)
	}
	r.prot = p
	return nil
}

// Free unmaps the region. Calling Free twice is a no-op.
func (r *Region) Free() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prot == ProtFreed {
		return nil
	}
	err := sysFree(r.mem)
	r.mem = nil
	r.prot = ProtFreed
	if err != nil {
		return fmt.Errorf("execmem: free: %w", err)
	}
	return nil
}
