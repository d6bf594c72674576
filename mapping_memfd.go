//go:build linux

package magicring

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MemfdMapper implements the memfd back-end from spec.md §4.2.2. The
// name passed to Create is only a label; the object itself is
// anonymous and is discovered across processes via the
// /proc/<pid>/fd/<n> path convention spec.md §6 describes, which this
// package encodes into the returned Mapping's Name.
//
// golang.org/x/sys/unix.MemfdCreate is only bound on Linux, so unlike
// PosixMapper this backend is not offered on FreeBSD despite spec.md
// §4.2.2's title listing both: FreeBSD's memfd_create is reachable
// only via cgo or a raw syscall number this package has no grounded
// example for, so FreeBSD uses PosixMapper as its default instead (see
// mapping_default_other.go and DESIGN.md).
type MemfdMapper struct{}

func (MemfdMapper) Create(name string, d Descriptor) (*Mapping, error) {
	const op = "create"
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, posixErr(op, name, err)
	}
	f := os.NewFile(uintptr(fd), name)

	physical := int64(d.AlignedHeader + d.AlignedBuffer)
	if err := unix.Ftruncate(fd, physical); err != nil {
		f.Close()
		return nil, posixErr(op, name, err)
	}

	m, err := mmapDouble(op, f, d, true)
	if err != nil {
		f.Close()
		return nil, err
	}
	m.name = memfdProcPath(fd)
	m.closer = func() error {
		if err := munmapMapping(m); err != nil {
			return err
		}
		return f.Close()
	}
	return m, nil
}

// Open attaches to a memfd previously created in this process (or
// inherited by a child) via its /proc/<pid>/fd/<n> path. Per spec.md
// §9.1, secondary openers always get a read-only mapping: memfd has no
// name registry a second, unrelated process can look up by label, and
// the teacher's asymmetric-by-construction sharing model is preserved
// rather than papered over.
func (MemfdMapper) Open(name string, d Descriptor, writable bool) (*Mapping, error) {
	const op = "open"
	fd, err := unix.Open(name, unix.O_RDONLY, 0)
	if err != nil {
		return nil, posixErr(op, name, err)
	}
	f := os.NewFile(uintptr(fd), name)

	m, err := mmapDouble(op, f, d, false)
	if err != nil {
		f.Close()
		return nil, err
	}
	m.name = name
	m.closer = func() error {
		if err := munmapMapping(m); err != nil {
			return err
		}
		return f.Close()
	}
	return m, nil
}

func (MemfdMapper) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func memfdProcPath(fd int) string {
	return fmt.Sprintf("/proc/%d/fd/%d", os.Getpid(), fd)
}
