package cli

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Version is the llx version, set at build time with -ldflags "-X".
var Version = "dev"

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "llx",
		Description: "llx - An extensible file lister",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("llx", flag.ContinueOnError),
	}

	// Add subcommands
	root.Subcommands["list"] = newListCommand()
	root.Subcommands["plugins"] = newPluginsCommand()
	root.Subcommands["enable"] = newEnableCommand()
	root.Subcommands["disable"] = newDisableCommand()
	root.Subcommands["action"] = newActionCommand()
	root.Subcommands["clean"] = newCleanCommand()
	root.Subcommands["health"] = newHealthCommand()
	root.Subcommands["watch"] = newWatchCommand()
	root.Subcommands["version"] = newVersionCommand()

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with args. Without a subcommand, or when the
// first argument is not one, it lists the given paths.
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.Subcommands["list"].Run(args)
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	// Anything that looks like a flag or a path belongs to list.
	if strings.HasPrefix(args[0], "-") || pathExists(args[0]) {
		return c.Subcommands["list"].Run(args)
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Printf("Usage: %s [command] [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	fmt.Printf("\nWith no command, llx lists the current directory.\n")
	return nil
}

func newVersionCommand() *Command {
	return &Command{
		Name:        "version",
		Description: "Print the llx version",
		Run: func(args []string) error {
			fmt.Printf("llx %s (plugin protocol %s)\n", Version, supportedProtocols())
			return nil
		},
	}
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
