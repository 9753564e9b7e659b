package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/llx/pkg/plugins"
)

// PluginStatus is the JSON form of one row of `llx plugins`.
type PluginStatus struct {
	Name                string   `json:"name"`
	Version             string   `json:"version"`
	Description         string   `json:"description"`
	Path                string   `json:"path"`
	ProtocolVersion     uint32   `json:"protocol_version"`
	Enabled             bool     `json:"enabled"`
	Healthy             bool     `json:"healthy"`
	Formats             []string `json:"formats"`
	Features            []string `json:"features,omitempty"`
	Errors              int      `json:"errors"`
	LastError           string   `json:"last_error,omitempty"`
	MissingDependencies []string `json:"missing_dependencies,omitempty"`
}

func newPluginsCommand() *Command {
	cmd := &Command{
		Name:        "plugins",
		Description: "List installed plugins with their status and health",
		Flags:       flag.NewFlagSet("plugins", flag.ContinueOnError),
		Run:         runPlugins,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.Bool("json", false, "Output in JSON format")
	cmd.Flags.Bool("v", false, "Show paths, features and the last error")
	return cmd
}

func runPlugins(args []string) error {
	cmd := newPluginsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	jsonOutput := cmd.Flags.Lookup("json").Value.String() == "true"
	verbose := cmd.Flags.Lookup("v").Value.String() == "true"

	return withApp(globals(cmd.Flags), func(ctx context.Context, a *app) error {
		report := a.discover(ctx)

		var statuses []PluginStatus
		for _, info := range a.registry.Describe(ctx) {
			statuses = append(statuses, pluginStatus(info))
		}

		if jsonOutput {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(statuses)
		}

		if len(statuses) == 0 {
			fmt.Printf("No plugins installed in %s\n", a.cfg.PluginsDir)
		} else {
			printPluginTable(statuses, verbose)
		}

		if len(report.Rejected) > 0 {
			fmt.Printf("\nRejected libraries:\n")
			for _, rejected := range report.Rejected {
				fmt.Printf("  %s\n", rejected)
			}
		}
		return nil
	})
}

func pluginStatus(info plugins.PluginInfo) PluginStatus {
	status := PluginStatus{
		Name:                info.Name,
		Version:             info.Version,
		Description:         info.Description,
		Path:                info.Path,
		ProtocolVersion:     info.ProtocolVersion,
		Enabled:             info.Enabled,
		Healthy:             info.Health.Healthy(),
		Formats:             []string(info.Formats),
		Features:            info.Features,
		Errors:              len(info.Health.Errors),
		MissingDependencies: info.Health.MissingDependencies,
	}
	if last, ok := info.Health.LastError(); ok {
		status.LastError = last.Message
	}
	return status
}

func printPluginTable(statuses []PluginStatus, verbose bool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if verbose {
		fmt.Fprintln(w, "NAME\tVERSION\tSTATUS\tHEALTH\tFORMATS\tFEATURES\tPATH")
	} else {
		fmt.Fprintln(w, "NAME\tVERSION\tSTATUS\tHEALTH\tDESCRIPTION")
	}

	for _, s := range statuses {
		state := "disabled"
		if s.Enabled {
			state = "enabled"
		}
		health := "ok"
		if !s.Healthy {
			health = fmt.Sprintf("%d errors", s.Errors)
		}
		if len(s.MissingDependencies) > 0 {
			health += " (missing: " + strings.Join(s.MissingDependencies, ", ") + ")"
		}

		if verbose {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				s.Name, s.Version, state, health,
				orDash(strings.Join(s.Formats, ",")), orDash(strings.Join(s.Features, ",")), s.Path)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Version, state, health, s.Description)
		}
	}
	w.Flush()

	if verbose {
		for _, s := range statuses {
			if s.LastError != "" {
				fmt.Printf("\n%s last error: %s\n", s.Name, s.LastError)
			}
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}
