package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
)

func newActionCommand() *Command {
	cmd := &Command{
		Name:        "action",
		Description: "Run a plugin action, or a configured shortcut",
		Flags:       flag.NewFlagSet("action", flag.ContinueOnError),
		Run:         runAction,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.Bool("list", false, "List configured shortcuts")
	return cmd
}

// runAction accepts either `<plugin> <action> [args...]` or
// `<shortcut> [args...]`.
func runAction(args []string) error {
	cmd := newActionCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	listShortcuts := cmd.Flags.Lookup("list").Value.String() == "true"
	rest := cmd.Flags.Args()

	if !listShortcuts && len(rest) == 0 {
		return fmt.Errorf("usage: llx action <plugin> <action> [args...] | llx action <shortcut> [args...]")
	}

	return withApp(globals(cmd.Flags), func(ctx context.Context, a *app) error {
		if listShortcuts {
			printShortcuts(a)
			return nil
		}

		var plugin, action string
		var actionArgs []string
		if sc, ok := a.cfg.Shortcuts[rest[0]]; ok {
			plugin, action, actionArgs = sc.Plugin, sc.Action, rest[1:]
		} else if len(rest) >= 2 {
			plugin, action, actionArgs = rest[0], rest[1], rest[2:]
		} else {
			return fmt.Errorf("unknown shortcut: %s", rest[0])
		}

		a.discover(ctx)
		if err := a.registry.PerformAction(ctx, plugin, action, actionArgs); err != nil {
			return err
		}
		fmt.Printf("%s: %s done\n", plugin, action)
		return nil
	})
}

func printShortcuts(a *app) {
	if len(a.cfg.Shortcuts) == 0 {
		fmt.Println("No shortcuts configured")
		return
	}

	names := make([]string, 0, len(a.cfg.Shortcuts))
	for name := range a.cfg.Shortcuts {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SHORTCUT\tPLUGIN\tACTION\tDESCRIPTION")
	for _, name := range names {
		sc := a.cfg.Shortcuts[name]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, sc.Plugin, sc.Action, sc.Description)
	}
	w.Flush()
}
