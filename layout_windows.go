//go:build windows

package magicring

import (
	"sync"

	"golang.org/x/sys/windows"
)

var (
	winSysInfoOnce  sync.Once
	winPageSize     uint64
	winGranularity  uint64
)

func winSysInfo() (pageSize, granularity uint64) {
	winSysInfoOnce.Do(func() {
		var info windows.SystemInfo
		windows.GetSystemInfo(&info)
		winPageSize = uint64(info.PageSize)
		winGranularity = uint64(info.AllocationGranularity)
	})
	return winPageSize, winGranularity
}

func osPageSize() int {
	pageSize, _ := winSysInfo()
	return int(pageSize)
}

// Windows' allocation granularity (typically 64 KiB) is always at
// least as coarse as its page size (typically 4 KiB); spec.md §4.1
// step 3 requires aligning to whichever of the two is stricter, which
// on Windows is always the granularity.
func pageAlignmentUnit() uint64 {
	pageSize, granularity := winSysInfo()
	if granularity > pageSize {
		return granularity
	}
	return pageSize
}
