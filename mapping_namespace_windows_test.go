//go:build windows

package magicring

func namedNamespaceMapper() Mapper { return WindowsMapper{} }
