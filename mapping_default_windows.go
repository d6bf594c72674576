//go:build windows

package magicring

func defaultMapper() Mapper { return WindowsMapper{} }
