//go:build !windows

package magicring

import "os"

// On POSIX, the allocation granularity for a file mapping is the page
// size itself: there is no separate, coarser alignment requirement the
// way there is on Windows.
func osPageSize() int {
	return os.Getpagesize()
}

func pageAlignmentUnit() uint64 {
	return uint64(os.Getpagesize())
}
