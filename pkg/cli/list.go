package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/llx/pkg/config"
	"github.com/platinummonkey/llx/pkg/lister"
	"github.com/platinummonkey/llx/pkg/plugins"
	"github.com/platinummonkey/llx/pkg/protocol"
)

func newListCommand() *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List directory contents, decorated by enabled plugins",
		Flags:       flag.NewFlagSet("list", flag.ContinueOnError),
		Run:         runList,
	}
	addGlobalFlags(cmd.Flags)
	cmd.Flags.String("format", "", "Output format (default, long, tree, grid, table)")
	cmd.Flags.Bool("l", false, "Use the long format")
	cmd.Flags.Bool("a", false, "Include entries starting with a dot")
	cmd.Flags.Bool("no-plugins", false, "Skip plugin decoration")
	return cmd
}

func runList(args []string) error {
	cmd := newListCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	format := cmd.Flags.Lookup("format").Value.String()
	long := cmd.Flags.Lookup("l").Value.String() == "true"
	all := cmd.Flags.Lookup("a").Value.String() == "true"
	noPlugins := cmd.Flags.Lookup("no-plugins").Value.String() == "true"

	paths := cmd.Flags.Args()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	return withApp(globals(cmd.Flags), func(ctx context.Context, a *app) error {
		if long {
			format = protocol.FormatLong
		}
		if format == "" {
			format = a.cfg.DefaultFormat
		}
		if !config.IsFormat(format) {
			return fmt.Errorf("invalid format: %s (must be one of %s)", format, strings.Join(config.Formats, ", "))
		}
		if !noPlugins {
			a.discover(ctx)
		}

		for i, path := range paths {
			entries, err := a.lister.List(ctx, path, lister.Options{All: all})
			if err != nil {
				return err
			}
			if len(paths) > 1 {
				if i > 0 {
					fmt.Println()
				}
				fmt.Printf("%s:\n", path)
			}
			entries = decorateListing(ctx, a.registry, path, entries, format)
			if err := renderEntries(ctx, os.Stdout, a.registry, entries, format); err != nil {
				return err
			}
		}
		return nil
	})
}

// decorateListing decorates the entries listed for path. A single file goes
// through the cached single-entry path.
func decorateListing(ctx context.Context, registry *plugins.Registry, path string, entries []protocol.Entry, format string) []protocol.Entry {
	if abs, err := filepath.Abs(path); err == nil && len(entries) == 1 && entries[0].Path == abs {
		return []protocol.Entry{registry.DecorateEntry(ctx, entries[0], format)}
	}
	return registry.Decorate(ctx, entries, format)
}

// renderEntries prints entries in format. Plugin columns come from FormatField
// where plugins render their own, and from the decorated fields otherwise.
func renderEntries(ctx context.Context, out io.Writer, registry *plugins.Registry, entries []protocol.Entry, format string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	switch format {
	case protocol.FormatLong:
		for _, e := range entries {
			md := e.Metadata
			if md == nil {
				md = &protocol.EntryMetadata{}
			}
			cols := []string{
				modeString(md),
				fmt.Sprintf("%d", md.Size),
				time.Unix(int64(md.Modified), 0).Format("Jan _2 15:04"),
				filepath.Base(e.Path),
			}
			cols = append(cols, pluginColumns(ctx, registry, e, format)...)
			fmt.Fprintln(w, strings.Join(cols, "\t"))
		}
	case protocol.FormatDefault:
		for _, e := range entries {
			cols := append([]string{displayName(e)}, pluginColumns(ctx, registry, e, format)...)
			fmt.Fprintln(w, strings.Join(cols, "\t"))
		}
	case "table":
		fmt.Fprintln(w, "NAME\tSIZE\tMODE")
		for _, e := range entries {
			md := e.Metadata
			if md == nil {
				md = &protocol.EntryMetadata{}
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", displayName(e), md.Size, modeString(md))
		}
	case "grid":
		row := make([]string, 0, 4)
		for _, e := range entries {
			row = append(row, displayName(e))
			if len(row) == cap(row) {
				fmt.Fprintln(w, strings.Join(row, "\t"))
				row = row[:0]
			}
		}
		if len(row) > 0 {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
	default:
		for i, e := range entries {
			branch := "├── "
			if i == len(entries)-1 {
				branch = "└── "
			}
			fmt.Fprintln(w, branch+displayName(e))
		}
	}
	return w.Flush()
}

func pluginColumns(ctx context.Context, registry *plugins.Registry, e protocol.Entry, format string) []string {
	if fields := registry.FormatFields(ctx, e, format); len(fields) > 0 {
		return fields
	}
	var cols []string
	for _, name := range e.SortedFieldNames() {
		value := e.CustomFields[name]
		if e.FieldTypeOf(name).Kind == protocol.FieldBadge {
			value = "[" + value + "]"
		}
		cols = append(cols, value)
	}
	return cols
}

func displayName(e protocol.Entry) string {
	name := filepath.Base(e.Path)
	if e.Metadata != nil && e.Metadata.IsDir {
		name += string(filepath.Separator)
	}
	return name
}

func modeString(md *protocol.EntryMetadata) string {
	mode := fs.FileMode(md.Permissions).Perm()
	switch {
	case md.IsDir:
		mode |= fs.ModeDir
	case md.IsSymlink:
		mode |= fs.ModeSymlink
	}
	return mode.String()
}
