package main

import (
	"fmt"
	"os"

	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"
)

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Drive Hermes, the Wi-Fi control loop",
}

var wifiScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for networks (rate-limited to once per 60s)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		stations, err := sys.hermes.Scan()
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"SSID", "Channel", "RSSI"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		for _, s := range stations {
			table.Append([]string{s.SSID, fmt.Sprintf("%d", s.PrimaryChannel), fmt.Sprintf("%d", s.RSSI)})
		}
		table.Render()
		return nil
	},
}

var wifiConnectCmd = &cobra.Command{
	Use:   "connect <ssid> <psk>",
	Short: "Connect to a network, blocking until Connected/WrongCredentials/Error",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		status := sys.hermes.Connect(args[0], args[1])
		log.Infof("badgevms: wifi connect result: %v", status)
		return nil
	},
}
