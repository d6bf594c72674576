package magicring

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := newError("open", "/foo", KindDoesNotExist, nil)
	require.Equal(t, `magicring: open "/foo": does not exist`, e.Error())

	wrapped := newError("create", "/foo", KindUnexpected, fmt.Errorf("boom"))
	require.Equal(t, `magicring: create "/foo": platform error: boom`, wrapped.Error())
}

func TestErrorIsMatchesByKind(t *testing.T) {
	e := newError("open", "/foo", KindDoesNotExist, errors.New("enoent"))
	require.True(t, errors.Is(e, &Error{Kind: KindDoesNotExist}))
	require.False(t, errors.Is(e, &Error{Kind: KindAlreadyExists}))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	e := newError("open", "/foo", KindUnexpected, inner)
	require.Equal(t, inner, errors.Unwrap(e))
}
