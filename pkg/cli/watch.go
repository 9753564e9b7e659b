package cli

import (
	"context"
	"flag"
	"fmt"
)

func newWatchCommand() *Command {
	cmd := &Command{
		Name:        "watch",
		Description: "Load plugins as they are installed until interrupted",
		Flags:       flag.NewFlagSet("watch", flag.ContinueOnError),
		Run:         runWatch,
	}
	addGlobalFlags(cmd.Flags)
	return cmd
}

func runWatch(args []string) error {
	cmd := newWatchCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	return withApp(globals(cmd.Flags), func(ctx context.Context, a *app) error {
		report := a.discover(ctx)
		fmt.Printf("Loaded %d plugins, watching %s (Ctrl-C to stop)\n", len(report.Loaded), a.cfg.PluginsDir)
		return a.loader.Watch(ctx, a.registry)
	})
}
