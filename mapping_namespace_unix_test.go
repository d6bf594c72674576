//go:build unix

package magicring

// namedNamespaceMapper returns a backend whose Create enforces
// already-exists against a shared namespace, used by tests that don't
// want MemfdMapper's anonymous-object semantics.
func namedNamespaceMapper() Mapper { return PosixMapper{} }
