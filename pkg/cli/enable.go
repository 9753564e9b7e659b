package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/platinummonkey/llx/pkg/config"
)

func newEnableCommand() *Command {
	cmd := &Command{
		Name:        "enable",
		Description: "Enable a plugin and save the configuration",
		Flags:       flag.NewFlagSet("enable", flag.ContinueOnError),
		Run:         runEnable,
	}
	addGlobalFlags(cmd.Flags)
	return cmd
}

func newDisableCommand() *Command {
	cmd := &Command{
		Name:        "disable",
		Description: "Disable a plugin and save the configuration",
		Flags:       flag.NewFlagSet("disable", flag.ContinueOnError),
		Run:         runDisable,
	}
	addGlobalFlags(cmd.Flags)
	return cmd
}

// runEnable enables an installed plugin. The plugin must load, so a broken
// library is never written into the enabled list.
func runEnable(args []string) error {
	cmd := newEnableCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	if cmd.Flags.NArg() != 1 {
		return fmt.Errorf("usage: llx enable <plugin>")
	}
	name := cmd.Flags.Arg(0)

	return withApp(globals(cmd.Flags), func(ctx context.Context, a *app) error {
		a.discover(ctx)
		if err := a.registry.Enable(name); err != nil {
			return err
		}

		changed, err := config.UpdateEnabledPlugins(a.configPath, func(c *config.Config) bool {
			return c.EnablePlugin(name)
		})
		if err != nil {
			return err
		}
		if !changed {
			fmt.Printf("Plugin %s is already enabled\n", name)
			return nil
		}
		fmt.Printf("Enabled plugin %s\n", name)
		return nil
	})
}

// runDisable removes a plugin from the enabled list. It does not need the
// plugin to be installed, so a plugin that no longer loads can be disabled.
func runDisable(args []string) error {
	cmd := newDisableCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}
	if cmd.Flags.NArg() != 1 {
		return fmt.Errorf("usage: llx disable <plugin>")
	}
	name := cmd.Flags.Arg(0)

	return withApp(globals(cmd.Flags), func(ctx context.Context, a *app) error {
		changed, err := config.UpdateEnabledPlugins(a.configPath, func(c *config.Config) bool {
			return c.DisablePlugin(name)
		})
		if err != nil {
			return err
		}
		if !changed {
			fmt.Printf("Plugin %s is not enabled\n", name)
			return nil
		}
		fmt.Printf("Disabled plugin %s\n", name)
		return nil
	})
}
