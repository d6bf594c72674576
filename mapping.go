package magicring

import "unsafe"

// Mapping is the result of a platform mapper's Create/Open: three
// non-overlapping byte ranges (conceptually; Primary and Mirror in
// fact alias the same physical pages) plus the combined view used for
// wrap-free slicing. See spec.md §4.2 and the GLOSSARY.
type Mapping struct {
	// Data is the full reservation: header, primary, mirror, in that
	// order, as returned by the platform mapper.
	Data []byte

	// Header is Data[:layout.AlignedHeader].
	Header []byte

	// Primary is the first mapping of the buffer region, length
	// layout.AlignedBuffer.
	Primary []byte

	// Mirror is the second mapping of the same buffer region,
	// immediately following Primary in the virtual address space.
	// Mirror[i] and Primary[i] are the same physical byte.
	Mirror []byte

	// Combined is Primary immediately followed by Mirror: a single
	// slice header over both, exploiting their guaranteed adjacency.
	Combined []byte

	name     string
	writable bool
	closer   func() error
}

// Name returns the backing-object name this Mapping was created or
// opened under.
func (m *Mapping) Name() string { return m.name }

// Writable reports whether writes through Primary/Mirror are valid.
func (m *Mapping) Writable() bool { return m.writable }

// Close tears the mapping down via the backend that produced it.
func (m *Mapping) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// combinedView builds the Combined field out of two adjacent slices,
// by constructing a new slice header that spans both of their
// backing arrays. This is sound only because the platform mapper has
// already guaranteed mirror immediately follows primary in the virtual
// address space (spec.md §4.2 step 4-5); it is the Go-level expression
// of the "magic ring buffer" trick.
func combinedView(primary, mirror []byte) []byte {
	if len(primary) == 0 {
		return mirror
	}
	return unsafe.Slice(&primary[0], len(primary)+len(mirror))
}

// Mapper presents the platform-mapper contract from spec.md §4.2: an
// identical create/open/close/exists surface over three back-ends
// (memfd, POSIX shm, Windows placeholders), selected at compile time
// per spec.md §9's "dynamic-dispatched platform selection" note.
type Mapper interface {
	// Create allocates a new named backing object sized per d and maps
	// header+primary+mirror into it. On the named backends (PosixMapper,
	// WindowsMapper) it fails with KindAlreadyExists if name is already
	// present; MemfdMapper objects are anonymous, so it never reports
	// that Kind.
	Create(name string, d Descriptor) (*Mapping, error)

	// Open attaches to an existing named backing object. It fails with
	// KindDoesNotExist if name is absent. writable selects read-write
	// vs read-only attach where the backend supports the distinction.
	Open(name string, d Descriptor, writable bool) (*Mapping, error)

	// Exists reports whether a backing object of the given name is
	// currently present.
	Exists(name string) bool
}

// Default returns the Mapper this platform builds with by default
// (spec.md §4.2's "Rationale for three back-ends"): memfd on Linux,
// POSIX named shared memory on the remaining POSIX platforms (FreeBSD
// included), and Windows placeholder splitting on Windows.
func Default() Mapper {
	return defaultMapper()
}
