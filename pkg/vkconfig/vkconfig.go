// Package vkconfig loads BadgeVMS's boot-time configuration: the three
// mount directories (apps, flash, sd), the Badgehub base URL, and Wi-Fi
// defaults, from a TOML file under the user's home directory with
// viper-backed override from environment variables.
//
// Grounded on cmd/vorteil/conf.go's loadVorteilConfig: a
// github.com/sisatech/toml-decoded struct with defaults applied when the
// file is absent, paths expanded via github.com/mitchellh/go-homedir.
package vkconfig

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sisatech/toml"
	"github.com/spf13/viper"
)

// fileConfig is the on-disk TOML shape, matching vorteildConf's nested
// table idiom.
type fileConfig struct {
	Mounts struct {
		AppsDir  string `toml:"apps-dir"`
		FlashDir string `toml:"flash-dir"`
		SDDir    string `toml:"sd-dir"`
	} `toml:"mounts"`
	Badgehub struct {
		BaseURL         string `toml:"base-url"`
		FirmwareSlug    string `toml:"firmware-slug"`
		RunningFirmware string `toml:"running-firmware"`
	} `toml:"badgehub"`
	Wifi struct {
		SSID string `toml:"ssid"`
		PSK  string `toml:"psk"`
	} `toml:"wifi"`
}

// Config is the resolved, post-default configuration BadgeVMS boots with.
type Config struct {
	AppsDir  string
	FlashDir string
	SDDir    string

	BadgehubBaseURL string
	FirmwareSlug    string
	RunningFirmware string

	WifiSSID string
	WifiPSK  string
}

const configDirName = ".badgevms"

// Load reads "~/.badgevms/conf.toml", falling back to defaults rooted
// under the home directory when the file is absent, the way
// loadVorteilConfig falls back to downloads.vorteil.io defaults. Viper is
// layered on top so BADGEVMS_-prefixed environment variables can override
// any field, matching cmd/vorteil/cli.go's viper usage.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	base := filepath.Join(home, configDirName)
	confPath := filepath.Join(base, "conf.toml")

	cfg := &Config{
		AppsDir:         filepath.Join(base, "apps"),
		FlashDir:        filepath.Join(base, "flash"),
		SDDir:           filepath.Join(base, "sd"),
		BadgehubBaseURL: "https://badgehub.example/api/v3",
		FirmwareSlug:    "badgevms-firmware",
		RunningFirmware: "0.0.0",
	}

	data, err := os.ReadFile(confPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyViperOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}

	if fc.Mounts.AppsDir != "" {
		cfg.AppsDir = fc.Mounts.AppsDir
	}
	if fc.Mounts.FlashDir != "" {
		cfg.FlashDir = fc.Mounts.FlashDir
	}
	if fc.Mounts.SDDir != "" {
		cfg.SDDir = fc.Mounts.SDDir
	}
	if fc.Badgehub.BaseURL != "" {
		cfg.BadgehubBaseURL = fc.Badgehub.BaseURL
	}
	if fc.Badgehub.FirmwareSlug != "" {
		cfg.FirmwareSlug = fc.Badgehub.FirmwareSlug
	}
	if fc.Badgehub.RunningFirmware != "" {
		cfg.RunningFirmware = fc.Badgehub.RunningFirmware
	}
	cfg.WifiSSID = fc.Wifi.SSID
	cfg.WifiPSK = fc.Wifi.PSK

	applyViperOverrides(cfg)
	return cfg, nil
}

// applyViperOverrides lets BADGEVMS_-prefixed environment variables win
// over the TOML file, mirroring cmd/vorteil's root command binding
// environment variables ahead of config-file values.
func applyViperOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("badgevms")
	v.AutomaticEnv()

	if v.IsSet("apps_dir") {
		cfg.AppsDir = v.GetString("apps_dir")
	}
	if v.IsSet("flash_dir") {
		cfg.FlashDir = v.GetString("flash_dir")
	}
	if v.IsSet("sd_dir") {
		cfg.SDDir = v.GetString("sd_dir")
	}
	if v.IsSet("badgehub_base_url") {
		cfg.BadgehubBaseURL = v.GetString("badgehub_base_url")
	}
	if v.IsSet("firmware_slug") {
		cfg.FirmwareSlug = v.GetString("firmware_slug")
	}
	if v.IsSet("running_firmware") {
		cfg.RunningFirmware = v.GetString("running_firmware")
	}
	if v.IsSet("wifi_ssid") {
		cfg.WifiSSID = v.GetString("wifi_ssid")
	}
	if v.IsSet("wifi_psk") {
		cfg.WifiPSK = v.GetString("wifi_psk")
	}
}

// EnsureDirs creates the three mount directories if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.AppsDir, c.FlashDir, c.SDDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
