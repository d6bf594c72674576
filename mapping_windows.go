//go:build windows

package magicring

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// WindowsMapper implements the Windows back-end from spec.md §4.2.3:
// a page-backed file mapping plus a reserved placeholder range split
// into header/primary/mirror placeholders, each individually replaced
// by a view of the same section.
type WindowsMapper struct{}

const (
	memReservePlaceholder  = 0x00040000
	memPreservePlaceholder = 0x00000002
	memReplacePlaceholder  = 0x00004000
)

// kernelbase.dll exports VirtualAlloc2 and MapViewOfFile3, the APIs
// that make placeholder splitting possible; neither is bound by
// golang.org/x/sys/windows as of the version this module targets, and
// no retrieved example calls them either, so they are resolved the
// same way the teacher drops to a raw syscall when the standard
// wrapper doesn't expose a primitive it needs (see DESIGN.md).
var (
	modKernelbase      = windows.NewLazySystemDLL("kernelbase.dll")
	procVirtualAlloc2  = modKernelbase.NewProc("VirtualAlloc2")
	procMapViewOfFile3 = modKernelbase.NewProc("MapViewOfFile3")
)

func virtualAlloc2(process windows.Handle, addr uintptr, size uintptr, allocType, protect uint32) (uintptr, error) {
	r1, _, err := procVirtualAlloc2.Call(
		uintptr(process), addr, size,
		uintptr(allocType), uintptr(protect),
		0, 0, // extended parameters: none
	)
	if r1 == 0 {
		return 0, err
	}
	return r1, nil
}

func mapViewOfFile3(h windows.Handle, process windows.Handle, addr uintptr, offset uint64, size uintptr, allocType uint32, protect uint32) (uintptr, error) {
	r1, _, err := procMapViewOfFile3.Call(
		uintptr(h), uintptr(process), addr, uintptr(offset), size,
		uintptr(allocType), uintptr(protect),
		0, 0, // extended parameters: none
	)
	if r1 == 0 {
		return 0, err
	}
	return r1, nil
}

func (WindowsMapper) Create(name string, d Descriptor) (*Mapping, error) {
	const op = "create"
	physical := d.AlignedHeader + d.AlignedBuffer
	if physical%d.Granularity != 0 {
		return nil, newError(op, name, KindAllocationGranularity, nil)
	}

	// CreateFileMapping silently attaches to an existing section of the
	// same name instead of failing; spec.md §7 requires create to fail
	// with AlreadyExists, so that case is checked explicitly up front
	// (a benign TOCTOU: a racing creator between this check and the
	// call below still fails, just via a different Kind).
	if (WindowsMapper{}).Exists(name) {
		return nil, newError(op, name, KindAlreadyExists, nil)
	}

	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, newError(op, name, KindUnexpected, err)
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE,
		uint32(physical>>32), uint32(physical), namePtr)
	if err != nil {
		return nil, winErr(op, name, err)
	}

	return buildWindowsMapping(op, name, h, d, true)
}

func (WindowsMapper) Open(name string, d Descriptor, writable bool) (*Mapping, error) {
	const op = "open"
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, newError(op, name, KindUnexpected, err)
	}
	access := uint32(windows.FILE_MAP_READ | windows.FILE_MAP_WRITE)
	if !writable {
		access = windows.FILE_MAP_READ
	}
	h, err := windows.OpenFileMapping(access, false, namePtr)
	if err != nil {
		return nil, winErr(op, name, err)
	}
	return buildWindowsMapping(op, name, h, d, writable)
}

func (WindowsMapper) Exists(name string) bool {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return false
	}
	h, err := windows.OpenFileMapping(windows.FILE_MAP_READ, false, namePtr)
	if err != nil {
		return false
	}
	windows.CloseHandle(h)
	return true
}

// buildWindowsMapping implements spec.md §4.2.3 steps 2-4: reserve a
// single placeholder spanning header+primary+mirror, split it into
// three adjacent placeholders, and replace each with a view of the
// section — the header view at file offset 0, and both the primary
// and mirror views at file offset AlignedHeader, which is what makes
// the mirror alias the primary.
func buildWindowsMapping(op, name string, h windows.Handle, d Descriptor, writable bool) (*Mapping, error) {
	self := windows.CurrentProcess()

	total := uintptr(d.TotalSize)
	base, err := virtualAlloc2(self, 0, total, windows.MEM_RESERVE|memReservePlaceholder, windows.PAGE_NOACCESS)
	if err != nil {
		windows.CloseHandle(h)
		return nil, winErr(op, name, err)
	}

	headerLen := uintptr(d.AlignedHeader)
	bufLen := uintptr(d.AlignedBuffer)

	if err := windows.VirtualFree(base, headerLen, windows.MEM_RELEASE|memPreservePlaceholder); err != nil {
		windows.VirtualFree(base, 0, windows.MEM_RELEASE)
		windows.CloseHandle(h)
		return nil, winErr(op, name, err)
	}
	if err := windows.VirtualFree(base+headerLen, bufLen, windows.MEM_RELEASE|memPreservePlaceholder); err != nil {
		windows.VirtualFree(base, 0, windows.MEM_RELEASE)
		windows.CloseHandle(h)
		return nil, winErr(op, name, err)
	}

	protect := uint32(windows.PAGE_READONLY)
	if writable {
		protect = windows.PAGE_READWRITE
	}

	headerAddr, err := mapViewOfFile3(h, self, base, 0, headerLen, memReplacePlaceholder, protect)
	if err != nil {
		windows.VirtualFree(base, 0, windows.MEM_RELEASE)
		windows.CloseHandle(h)
		return nil, winErr(op, name, err)
	}
	primaryAddr, err := mapViewOfFile3(h, self, base+headerLen, uint64(d.AlignedHeader), bufLen, memReplacePlaceholder, protect)
	if err != nil {
		windows.UnmapViewOfFile(headerAddr)
		windows.CloseHandle(h)
		return nil, winErr(op, name, err)
	}
	mirrorAddr, err := mapViewOfFile3(h, self, base+headerLen+bufLen, uint64(d.AlignedHeader), bufLen, memReplacePlaceholder, protect)
	if err != nil {
		windows.UnmapViewOfFile(primaryAddr)
		windows.UnmapViewOfFile(headerAddr)
		windows.CloseHandle(h)
		return nil, winErr(op, name, err)
	}
	if mirrorAddr != primaryAddr+bufLen {
		windows.UnmapViewOfFile(mirrorAddr)
		windows.UnmapViewOfFile(primaryAddr)
		windows.UnmapViewOfFile(headerAddr)
		windows.CloseHandle(h)
		return nil, newError(op, name, KindMapsNotAdjacent, nil)
	}

	data := ptrToSliceWindows(headerAddr, int(headerLen+2*bufLen))
	primarySlice := data[headerLen : headerLen+bufLen]
	mirrorSlice := data[headerLen+bufLen:]

	m := &Mapping{
		Data:     data,
		Header:   data[:headerLen],
		Primary:  primarySlice,
		Mirror:   mirrorSlice,
		Combined: combinedView(primarySlice, mirrorSlice),
		name:     name,
		writable: writable,
	}
	m.closer = func() error {
		if err := windows.UnmapViewOfFile(mirrorAddr); err != nil {
			return winErr("close", name, err)
		}
		if err := windows.UnmapViewOfFile(primaryAddr); err != nil {
			return winErr("close", name, err)
		}
		if err := windows.UnmapViewOfFile(headerAddr); err != nil {
			return winErr("close", name, err)
		}
		return windows.CloseHandle(h)
	}
	return m, nil
}

func ptrToSliceWindows(addr uintptr, length int) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}

func winErr(op, name string, err error) error {
	switch err {
	case windows.ERROR_ALREADY_EXISTS:
		return newError(op, name, KindAlreadyExists, err)
	case windows.ERROR_FILE_NOT_FOUND:
		return newError(op, name, KindDoesNotExist, err)
	case windows.ERROR_ACCESS_DENIED:
		return newError(op, name, KindAccessDenied, err)
	case windows.ERROR_FILENAME_EXCED_RANGE:
		return newError(op, name, KindNameTooLong, err)
	default:
		return newError(op, name, KindUnexpected, fmt.Errorf("%w", err))
	}
}
