package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgielen/why2025-clife-sub001/pkg/apps"
	"github.com/sgielen/why2025-clife-sub001/pkg/compositor"
	"github.com/sgielen/why2025-clife-sub001/pkg/device"
	"github.com/sgielen/why2025-clife-sub001/pkg/devicefs"
	"github.com/sgielen/why2025-clife-sub001/pkg/hermes"
	"github.com/sgielen/why2025-clife-sub001/pkg/process"
	"github.com/sgielen/why2025-clife-sub001/pkg/symtab"
	"github.com/sgielen/why2025-clife-sub001/pkg/vkconfig"
)

// system bundles the live subsystems a booted badge wires together,
// matching spec.md §2's data-flow: mount filesystems, register devices,
// initialize AppRegistry, spawn launcher.
type system struct {
	cfg        *vkconfig.Config
	devices    *device.Table
	apps       *apps.Registry
	processes  *process.Manager
	compositor *compositor.Compositor
	hermes     *hermes.Controller
}

// boot performs spec.md §2's boot sequence: mount filesystems, register
// devices, initialize AppRegistry, start Hermes. The launcher process spawn
// is left to the caller since the CLI itself plays the launcher's role
// here.
func boot() (*system, error) {
	cfg, err := vkconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating mount directories: %w", err)
	}

	devices := device.New(log)

	flashFS, err := devicefs.NewFatFS(cfg.FlashDir)
	if err != nil {
		return nil, fmt.Errorf("mounting flash: %w", err)
	}
	devices.MustRegister("FLASH0", flashFS)

	sdFS, err := devicefs.NewFatFS(cfg.SDDir)
	if err != nil {
		return nil, fmt.Errorf("mounting sd: %w", err)
	}
	devices.MustRegister("SD0", sdFS)

	tty, err := devicefs.NewTTY(64 * 1024)
	if err != nil {
		return nil, fmt.Errorf("attaching tty: %w", err)
	}
	devices.MustRegister("TTY0", tty)

	devices.MustRegister("WIFI0", devicefs.NewWifi())

	registry := apps.New(log)
	if err := registry.Init(cfg.AppsDir, cfg.FlashDir, cfg.SDDir); err != nil {
		return nil, fmt.Errorf("initializing app registry: %w", err)
	}

	symbols := symtab.New()
	procs := process.New(log, symbols, process.MapRegistry{})

	registry.SetLauncher(func(absoluteBinaryPath string, argv []string) (int, error) {
		pid, err := procs.Spawn(absoluteBinaryPath, 64*1024, argv)
		return int(pid), err
	})

	comp := compositor.New(320, 240, 64)

	radio := hermes.New(log, nil)
	radio.Run()

	return &system{
		cfg:        cfg,
		devices:    devices,
		apps:       registry,
		processes:  procs,
		compositor: comp,
		hermes:     radio,
	}, nil
}

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Boot the device table, application registry, and Hermes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		log.Infof("badgevms: booted with apps_dir=%s flash_dir=%s sd_dir=%s", sys.cfg.AppsDir, sys.cfg.FlashDir, sys.cfg.SDDir)
		log.Infof("badgevms: devices registered: %v", sys.devices.Names())
		return nil
	},
}
