package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgielen/why2025-clife-sub001/pkg/ota"
)

// deviceMAC returns the host's first hardware address as a stand-in for
// the badge's radio MAC, which Badgehub's ping endpoint uses to identify
// the calling device (spec.md §6).
func deviceMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "00:00:00:00:00:00"
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return "00:00:00:00:00:00"
}

var otaCmd = &cobra.Command{
	Use:   "ota",
	Short: "Check for and apply application/firmware updates via Badgehub",
}

var otaCheckCmd = &cobra.Command{
	Use:   "check <app-id> <slug>",
	Short: "Check whether a newer revision of an app is available",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		app, err := sys.apps.Get(args[0])
		if err != nil {
			return err
		}

		updater := ota.New(log, sys.cfg.BadgehubBaseURL, sys.cfg.FirmwareSlug, sys.cfg.RunningFirmware)

		if err := updater.Ping(deviceMAC()); err != nil {
			return fmt.Errorf("badgehub unreachable: %w", err)
		}

		version, revision, newer, err := updater.CheckForUpdates(app, args[1])
		if err != nil {
			return err
		}

		if newer {
			fmt.Fprintf(os.Stdout, "update available: rev%d version=%s (installed=%s)\n", revision, version, app.Version)
		} else {
			fmt.Fprintf(os.Stdout, "up to date (installed=%s, remote=%s)\n", app.Version, version)
		}
		return nil
	},
}

var otaApplyCmd = &cobra.Command{
	Use:   "apply <app-id> <slug>",
	Short: "Apply an update if a newer revision is available",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		updater := ota.New(log, sys.cfg.BadgehubBaseURL, sys.cfg.FirmwareSlug, sys.cfg.RunningFirmware)

		app, err := sys.apps.Get(args[0])
		if err != nil {
			return err
		}
		version, revision, newer, err := updater.CheckForUpdates(app, args[1])
		if err != nil {
			return err
		}
		if !newer {
			fmt.Fprintln(os.Stdout, "already up to date")
			return nil
		}
		return updater.UpdateApplication(sys.apps, app, args[1], revision, version)
	},
}
