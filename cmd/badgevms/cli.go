// cmd/badgevms is BadgeVMS's glue layer: it mounts the configured
// filesystem devices, initializes the application registry, starts
// Hermes, and gives an operator a command tree to list/install/remove
// apps, drive Wi-Fi, and check for OTA updates.
//
// Grounded on cmd/vorteil/cli.go's commandInit/rootCmd pattern and
// persistent-flag-driven logger construction.
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sgielen/why2025-clife-sub001/pkg/vklog"
)

var log vklog.View

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "badgevms",
	Short: "BadgeVMS host simulator and administration CLI",
	Long: `badgevms boots a host simulation of the badge's multi-process
operating environment: device table, application registry, compositor,
Hermes (Wi-Fi), and the OTA updater, plus commands to drive each of them
without a physical badge attached.`,
}

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger := &vklog.CLI{}

		if flagJSON {
			logger.DisableTTY = true
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
			logrus.SetOutput(vklog.Stdout())
		}

		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}

		log = logger
		return nil
	}

	rootCmd.AddCommand(bootCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(wifiCmd)
	rootCmd.AddCommand(otaCmd)

	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsInstallCmd)
	appsCmd.AddCommand(appsLaunchCmd)
	appsCmd.AddCommand(appsBrowseCmd)
	appsCmd.AddCommand(appsRmCmd)

	appsLaunchCmd.Flags().StringVar(&appsLaunchArgs, "args", "", "shell-quoted launch arguments")

	wifiCmd.AddCommand(wifiScanCmd)
	wifiCmd.AddCommand(wifiConnectCmd)

	otaCmd.AddCommand(otaCheckCmd)
	otaCmd.AddCommand(otaApplyCmd)
}
