package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

var errNoHealthDB = errors.New("no health database configured (set health_db)")

func newHealthCommand() *Command {
	cmd := &Command{
		Name:        "health",
		Description: "Show plugin error history and missing dependencies",
		Flags:       flag.NewFlagSet("health", flag.ContinueOnError),
		Run:         runHealth,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.String("clear", "", "Delete the stored history of a plugin")
	cmd.Flags.Duration("prune", 0, "Delete stored errors older than this age (e.g. 720h)")
	cmd.Flags.Int("n", 5, "Number of recent errors to show per plugin")
	return cmd
}

func runHealth(args []string) error {
	cmd := newHealthCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	clearPlugin := cmd.Flags.Lookup("clear").Value.String()
	prune, _ := time.ParseDuration(cmd.Flags.Lookup("prune").Value.String())
	recent, _ := strconv.Atoi(cmd.Flags.Lookup("n").Value.String())
	if recent < 0 {
		recent = 0
	}

	return withApp(globals(cmd.Flags), func(ctx context.Context, a *app) error {
		switch {
		case clearPlugin != "":
			if a.store == nil {
				return errNoHealthDB
			}
			if err := a.store.Clear(ctx, clearPlugin); err != nil {
				return err
			}
			fmt.Printf("Cleared health history of %s\n", clearPlugin)
			return nil

		case prune > 0:
			if a.store == nil {
				return errNoHealthDB
			}
			n, err := a.store.Prune(ctx, time.Now().Add(-prune))
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d health events older than %s\n", n, prune)
			return nil
		}

		a.discover(ctx)
		return printHealth(ctx, a, cmd.Flags.Args(), recent)
	})
}

func printHealth(ctx context.Context, a *app, only []string, recent int) error {
	ledger := a.registry.Health()

	names := only
	if len(names) == 0 {
		stored, err := ledger.HistoryPlugins(ctx)
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		for _, name := range stored {
			seen[name] = true
		}
		for _, h := range a.registry.List() {
			seen[h.Name()] = true
		}
		for name := range seen {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	if len(names) == 0 {
		fmt.Println("No plugins")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLUGIN\tHEALTH\tERRORS\tLAST SUCCESS\tMISSING")
	records := make(map[string][]string)
	for _, name := range names {
		rec, err := ledger.History(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to load health of %s: %w", name, err)
		}
		health := "healthy"
		if !rec.Healthy() {
			health = "unhealthy"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", name, health, len(rec.Errors), formatTime(rec.LastSuccess),
			orDash(strings.Join(rec.MissingDependencies, ", ")))

		start := len(rec.Errors) - recent
		if start < 0 {
			start = 0
		}
		for _, ev := range rec.Errors[start:] {
			records[name] = append(records[name], fmt.Sprintf("  %s  %s", formatTime(ev.At), ev.Message))
		}
	}
	w.Flush()

	for _, name := range names {
		if len(records[name]) == 0 {
			continue
		}
		fmt.Printf("\n%s:\n%s\n", name, strings.Join(records[name], "\n"))
	}
	return nil
}
