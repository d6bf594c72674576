package magicring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pault.ag/go/magicring/internal/rtest"
)

func freshMappingName(t *testing.T) string { return rtest.FreshName(t, "magicring-mapping-test") }

// TestMirrorAliasesPrimary validates the "magic" trick itself (spec.md
// §5 "Cross-view aliasing"): a write through Primary must be visible
// through Mirror, and the Combined view must span both without a copy.
func TestMirrorAliasesPrimary(t *testing.T) {
	d := Compute(8, 4, 0)
	m, err := Default().Create(freshMappingName(t), d)
	rtest.SkipIfUnavailable(t, err)
	defer m.Close()

	require.Equal(t, len(m.Primary), len(m.Mirror))
	require.Equal(t, 2*len(m.Primary), len(m.Combined))

	copy(m.Primary, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Equal(t, m.Primary[:8], m.Mirror[:8])
	require.Equal(t, m.Primary[:8], m.Combined[:8])
	require.Equal(t, m.Primary[:8], m.Combined[len(m.Primary):len(m.Primary)+8])

	copy(m.Mirror[:4], []byte{100, 101, 102, 103})
	require.Equal(t, []byte{100, 101, 102, 103}, m.Primary[:4])
}

func TestMapperExistsRoundtrip(t *testing.T) {
	name := freshMappingName(t)
	mapper := Default()
	require.False(t, mapper.Exists(name))

	d := Compute(8, 1, 0)
	m, err := mapper.Create(name, d)
	rtest.SkipIfUnavailable(t, err)
	defer m.Close()

	require.True(t, mapper.Exists(m.Name()))
}

// TestMapperCreateAlreadyExists uses a named-namespace backend
// explicitly rather than Default(): on Linux, Default() is
// MemfdMapper, whose objects are anonymous and so have no "already
// exists" concept to enforce (spec.md §9.1 / DESIGN.md).
func TestMapperCreateAlreadyExists(t *testing.T) {
	name := freshMappingName(t)
	mapper := namedNamespaceMapper()
	d := Compute(8, 1, 0)

	m, err := mapper.Create(name, d)
	rtest.SkipIfUnavailable(t, err)
	defer m.Close()

	_, err = mapper.Create(name, d)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindAlreadyExists, merr.Kind)
}

func TestMapperOpenDoesNotExist(t *testing.T) {
	d := Compute(8, 1, 0)
	_, err := Default().Open(freshMappingName(t), d, true)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, KindDoesNotExist, merr.Kind)
}
