package config

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath_XDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG only applies on Linux")
	}

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, appName, configFileName), DefaultConfigPath())
}

func TestDefaultTokenPath_XDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG only applies on Linux")
	}

	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	assert.Equal(t, filepath.Join(dir, appName, tokenFileName), DefaultTokenPath())
}

func TestDefaultDirs_FallBackToHome(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("XDG only applies on Linux")
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	assert.Equal(t, filepath.Join(home, ".config", appName), DefaultConfigDir())
	assert.Equal(t, filepath.Join(home, ".local", "share", appName), DefaultDataDir())
}
