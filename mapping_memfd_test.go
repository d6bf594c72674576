//go:build linux

package magicring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMemfdOpenIsAlwaysReadOnly documents and asserts the asymmetry
// from spec.md §9.1: a second attacher to a memfd object always gets a
// read-only mapping, even when it asks for writable.
func TestMemfdOpenIsAlwaysReadOnly(t *testing.T) {
	d := Compute(8, 1, 0)
	mapper := MemfdMapper{}

	m, err := mapper.Create(freshMappingName(t), d)
	require.NoError(t, err)
	defer m.Close()

	m2, err := mapper.Open(m.Name(), d, true)
	require.NoError(t, err)
	defer m2.Close()

	require.False(t, m2.Writable())
}
