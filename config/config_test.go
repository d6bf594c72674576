package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	c := &Config{
		ProjectName:    "demo",
		Name:           "ticks",
		ShmPath:        "/demo-ticks",
		NumConnections: 2,
		LibraryVersion: "0.1.0",
		ShmSize:        4096,
		ElementSize:    16,
		ElementType:    "Tick",
	}
	require.NoError(t, Save(c))

	got, err := Load(c.ProjectName, c.Name)
	require.NoError(t, err)
	require.Equal(t, c, got)
}

func TestPathLayout(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	p, err := Path("demo", "ticks")
	require.NoError(t, err)
	require.Equal(t, "ticks_config.json", filepath.Base(p))
	require.Equal(t, "demo", filepath.Base(filepath.Dir(p)))

	_, err = os.Stat(p)
	require.True(t, os.IsNotExist(err))
}
