package main

import (
	"fmt"
	"os"

	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sgielen/why2025-clife-sub001/pkg/apps"
	"github.com/sgielen/why2025-clife-sub001/pkg/ota"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage installed applications",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed applications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		it, err := sys.apps.List()
		if err != nil {
			return err
		}
		defer it.Close()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Name", "Version", "Source"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)

		for app := it.Next(); app != nil; app = it.Next() {
			source := "Unknown"
			if app.Source == apps.SourceBadgehub {
				source = "Badgehub"
			}
			table.Append([]string{app.UniqueIdentifier, app.Name, app.Version, source})
		}
		table.Render()
		return nil
	},
}

var appsInstallCmd = &cobra.Command{
	Use:   "install <id> <name> <author> <version>",
	Short: "Register a new application in the registry",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		app, err := sys.apps.Create(args[0], args[1], args[2], args[3], "", apps.SourceUnknown)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "installed %s at %s\n", app.UniqueIdentifier, app.InstalledPath)
		return nil
	},
}

var appsLaunchArgs string

// appsLaunchCmd launches an installed app; --args is a shell-quoted
// string split into argv by github.com/mattn/go-shellwords and persisted
// as the app's launch_args for future launches.
var appsLaunchCmd = &cobra.Command{
	Use:   "launch <id>",
	Short: "Launch an installed application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		if appsLaunchArgs != "" {
			app, err := sys.apps.Get(args[0])
			if err != nil {
				return err
			}
			sys.apps.SetLaunchArgs(app, appsLaunchArgs)
		}

		pid, err := sys.apps.Launch(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "launched %s as pid %d\n", args[0], pid)
		return nil
	},
}

// appsBrowseCmd lists the project slugs Badgehub currently offers, the
// install-time counterpart to `apps list`'s already-registered view.
var appsBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List installable application slugs known to Badgehub",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := boot()
		if err != nil {
			return err
		}
		defer sys.hermes.Stop()

		updater := ota.New(log, sys.cfg.BadgehubBaseURL, sys.cfg.FirmwareSlug, sys.cfg.RunningFirmware)
		projects, err := updater.ListProjects()
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Slug"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		for _, p := range projects {
			table.Append([]string{p.Slug})
		}
		table.Render()
		return nil
	},
}

var appsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Destroy an application and its metadata",
	Args:  cobra.ExactArgs(1),
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
		if !sys.apps.Destroy(app) {
			return fmt.Errorf("failed to destroy %s", args[0])
		}
		return nil
	},
}
