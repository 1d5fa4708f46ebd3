package vkconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFileOverridesOverDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	confDir := filepath.Join(home, configDirName)
	require.NoError(t, os.MkdirAll(confDir, 0o755))

	toml := `
[mounts]
apps-dir = "/custom/apps"

[badgehub]
base-url = "https://hub.example/api/v3"
firmware-slug = "custom-firmware"

[wifi]
ssid = "camp-wifi"
psk = "hunter2"
`
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "conf.toml"), []byte(toml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/custom/apps", cfg.AppsDir)
	require.Equal(t, "https://hub.example/api/v3", cfg.BadgehubBaseURL)
	require.Equal(t, "custom-firmware", cfg.FirmwareSlug)
	require.Equal(t, "camp-wifi", cfg.WifiSSID)
	require.Equal(t, filepath.Join(home, configDirName, "flash"), cfg.FlashDir)
}

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, configDirName, "apps"), cfg.AppsDir)
	require.NotEmpty(t, cfg.BadgehubBaseURL)
}

func TestEnvironmentOverridesFileAndDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BADGEVMS_APPS_DIR", "/from/env")

	confDir := filepath.Join(home, configDirName)
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "conf.toml"), []byte("[mounts]\napps-dir = \"/from/file\"\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/from/env", cfg.AppsDir)
}
