//go:build unix

package magicring

import (
	"errors"
	"fmt"
	"os"
	"path"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PosixMapper implements the POSIX named shared memory back-end from
// spec.md §4.2.1. Names must begin with "/"; they are rooted at
// /dev/shm, the conventional tmpfs-backed namespace POSIX shm objects
// live in on Linux (and under which most cgo-free Go shm libraries
// implement shm_open without binding libc directly).
type PosixMapper struct{}

var errNameTooLong = errors.New("name too long")

func shmPath(name string) (string, error) {
	if len(name) == 0 || name[0] != '/' {
		return "", fmt.Errorf("name must begin with '/'")
	}
	if len(name) > 255 {
		return "", errNameTooLong
	}
	return path.Join("/dev/shm", name), nil
}

func (PosixMapper) Create(name string, d Descriptor) (*Mapping, error) {
	const op = "create"
	p, err := shmPath(name)
	if err != nil {
		return nil, newError(op, name, KindNameTooLong, err)
	}

	fd, err := unix.Open(p, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0666)
	if err != nil {
		return nil, posixErr(op, name, err)
	}
	f := os.NewFile(uintptr(fd), p)

	physical := int64(d.AlignedHeader + d.AlignedBuffer)
	if err := unix.Ftruncate(fd, physical); err != nil {
		f.Close()
		unix.Unlink(p)
		return nil, posixErr(op, name, err)
	}

	m, err := mmapDouble(op, f, d, true)
	if err != nil {
		f.Close()
		unix.Unlink(p)
		return nil, err
	}
	m.name = name
	m.closer = func() error {
		if err := munmapMapping(m); err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		if err := unix.Unlink(p); err != nil && !errors.Is(err, unix.ENOENT) {
			return newError("close", name, KindUnexpected, err)
		}
		return nil
	}
	return m, nil
}

func (PosixMapper) Open(name string, d Descriptor, writable bool) (*Mapping, error) {
	const op = "open"
	p, err := shmPath(name)
	if err != nil {
		return nil, newError(op, name, KindNameTooLong, err)
	}

	flags := unix.O_RDONLY
	if writable {
		flags = unix.O_RDWR
	}
	fd, err := unix.Open(p, flags, 0)
	if err != nil {
		return nil, posixErr(op, name, err)
	}
	f := os.NewFile(uintptr(fd), p)

	m, err := mmapDouble(op, f, d, writable)
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

func (PosixMapper) Exists(name string) bool {
	p, err := shmPath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// mmapDouble implements spec.md §4.2.1 steps 3-5, following the
// teacher's reservation-then-fixed-submap dance (ring.go's
// ringBase/ringOne/ringTwo) rather than the riskier
// map-then-hope-the-next-address-is-free reading of the prose: first
// reserve the entire virtual range (header+2*buffer) as an anonymous
// PROT_NONE placeholder, then MAP_FIXED the backing fd into it twice
// — once for header+primary (contiguous in both the file and the
// reservation), once more for the buffer region alone to produce the
// mirror immediately after.
func mmapDouble(op string, f *os.File, d Descriptor, writable bool) (*Mapping, error) {
	name := f.Name()
	fd := int(f.Fd())

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	total := uintptr(d.TotalSize)
	base, err := rawMmap(0, total, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE, -1, 0)
	if err != nil {
		return nil, posixErr(op, name, err)
	}

	headerPrimaryLen := uintptr(d.AlignedHeader + d.AlignedBuffer)
	headerPrimary, err := rawMmap(base, headerPrimaryLen, prot, unix.MAP_FIXED|unix.MAP_SHARED, fd, 0)
	if err != nil {
		rawMunmap(base, total)
		return nil, posixErr(op, name, err)
	}
	if headerPrimary != base {
		rawMunmap(base, total)
		return nil, newError(op, name, KindMapsNotAdjacent, nil)
	}

	bufLen := uintptr(d.AlignedBuffer)
	mirrorAddr := base + uintptr(d.MirrorOffset)
	mirror, err := rawMmap(mirrorAddr, bufLen, prot, unix.MAP_FIXED|unix.MAP_SHARED, fd, int64(d.BufferOffset))
	if err != nil {
		rawMunmap(base, total)
		return nil, posixErr(op, name, err)
	}
	if mirror != mirrorAddr {
		rawMunmap(base, total)
		return nil, newError(op, name, KindMapsNotAdjacent, nil)
	}

	data := ptrToSlice(base, int(total))
	primarySlice := data[d.BufferOffset : d.BufferOffset+d.AlignedBuffer]
	mirrorSlice := data[d.MirrorOffset : d.MirrorOffset+d.AlignedBuffer]

	return &Mapping{
		Data:     data,
		Header:   data[:d.AlignedHeader],
		Primary:  primarySlice,
		Mirror:   mirrorSlice,
		Combined: combinedView(primarySlice, mirrorSlice),
		writable: writable,
	}, nil
}

func munmapMapping(m *Mapping) error {
	if len(m.Data) == 0 {
		return nil
	}
	return rawMunmap(uintptr(unsafe.Pointer(&m.Data[0])), uintptr(len(m.Data)))
}

// rawMmap and rawMunmap drop to the raw mmap/munmap syscalls (via
// golang.org/x/sys/unix's exported Syscall6/Syscall) because
// golang.org/x/sys/unix.Mmap hardcodes addr=0 and offers no way to
// request MAP_FIXED at a caller-chosen address — the one primitive
// this package needs that the friendly wrapper doesn't expose, same
// as the teacher's own reason for dropping to syscall.Syscall6.
func rawMmap(addr, length uintptr, prot, flags, fd int, offset int64) (uintptr, error) {
	r0, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length,
		uintptr(prot), uintptr(flags), uintptr(fd), uintptr(offset))
	if errno != 0 {
		return 0, errno
	}
	return r0, nil
}

func rawMunmap(addr, length uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, length, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ptrToSlice reinterprets a raw mmap'd address as a []byte of the
// given length. Sound only because the mapping outlives every slice
// derived from it until Close unmaps the whole reservation.
func ptrToSlice(addr uintptr, length int) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}

func posixErr(op, name string, err error) error {
	switch {
	case errors.Is(err, unix.EEXIST):
		return newError(op, name, KindAlreadyExists, err)
	case errors.Is(err, unix.ENOENT):
		return newError(op, name, KindDoesNotExist, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return newError(op, name, KindAccessDenied, err)
	case errors.Is(err, unix.ENAMETOOLONG):
		return newError(op, name, KindNameTooLong, err)
	case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
		return newError(op, name, KindFdQuotaExceeded, err)
	default:
		return newError(op, name, KindUnexpected, err)
	}
}
