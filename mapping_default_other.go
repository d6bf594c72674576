//go:build unix && !linux

package magicring

// Every other POSIX platform (FreeBSD, Darwin, and the rest) defaults
// to named POSIX shared memory: the cross-process read-write attach
// memfd cannot offer outweighs the persistent namespace entry it costs
// (spec.md §4.2.2 "Rationale for three back-ends"). FreeBSD does have
// memfd_create, but golang.org/x/sys/unix.MemfdCreate is Linux-only and
// no retrieved example binds it on FreeBSD another way, so FreeBSD is
// grouped here rather than with Linux (see DESIGN.md).
func defaultMapper() Mapper { return PosixMapper{} }
