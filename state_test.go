package magicring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModIndex(t *testing.T) {
	require.Equal(t, uint64(2), modIndex(5, 3, 10))
	require.Equal(t, uint64(8), modIndex(3, 5, 10))
	require.Equal(t, uint64(0), modIndex(5, 5, 10))
	require.Equal(t, uint64(0), modIndex(0, 0, 1))
}
