// Package rtest collects the small testing helpers shared across this
// module's package-level test files: a unique-name generator safe for
// every C2 backend's naming rules, and the skip-not-fail convention
// for tests that need a working platform mapper. It deliberately knows
// nothing about magicring's types, so the in-package (white-box)
// *_test.go files that import it never form an import cycle.
package rtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
)

var counter int64

// FreshName returns a name unique to this process run and test,
// prefixed by prefix. Safe for PosixMapper (rooted at /dev/shm, no
// nested directories) and MemfdMapper (an opaque label) alike.
func FreshName(t *testing.T, prefix string) string {
	t.Helper()
	n := atomic.AddInt64(&counter, 1)
	safe := strings.NewReplacer("/", "-", " ", "-").Replace(t.Name())
	return fmt.Sprintf("/%s-%s-%d", prefix, safe, n)
}

// SkipIfUnavailable skips the calling test, rather than failing it,
// when err indicates the platform mapper could not be used in this
// sandbox (e.g. no /dev/shm, no memfd_create, no Win32 APIs).
func SkipIfUnavailable(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Skipf("platform mapper unavailable in this environment: %v", err)
	}
}
