package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
)

func newCleanCommand() *Command {
	cmd := &Command{
		Name:        "clean",
		Description: "Remove plugin libraries that fail to load",
		Flags:       flag.NewFlagSet("clean", flag.ContinueOnError),
		Run:         runClean,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.String("dir", "", "Plugin directory to clean (defaults to the configured one)")
	return cmd
}

func runClean(args []string) error {
	cmd := newCleanCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	dir := cmd.Flags.Lookup("dir").Value.String()

	return withApp(globals(cmd.Flags), func(ctx context.Context, a *app) error {
		if dir == "" {
			dir = a.cfg.PluginsDir
		}
		a.discover(ctx)

		report, err := a.registry.Clean(ctx, a.loader, dir)
		if err != nil {
			return err
		}

		for _, path := range report.Removed {
			fmt.Printf("Removed %s: %v\n", path, report.Invalid[path])
		}

		failed := make([]string, 0, len(report.Failed))
		for path := range report.Failed {
			failed = append(failed, path)
		}
		sort.Strings(failed)
		for _, path := range failed {
			fmt.Printf("Could not remove %s: %v\n", path, report.Failed[path])
		}

		fmt.Printf("%d valid, %d removed\n", len(report.Valid), len(report.Removed))
		if len(failed) > 0 {
			return fmt.Errorf("failed to remove %d invalid plugins", len(failed))
		}
		return nil
	})
}
