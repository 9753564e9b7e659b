package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	// Test basic properties
	assert.Equal(t, "llx", root.Name)
	assert.Equal(t, "llx - An extensible file lister", root.Description)
	assert.NotNil(t, root.Subcommands)
	assert.NotNil(t, root.Flags)

	// Test that all expected subcommands are registered
	expectedCommands := []string{
		"list",
		"plugins",
		"enable",
		"disable",
		"action",
		"clean",
		"health",
		"watch",
		"version",
	}

	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
		assert.NotNil(t, root.Subcommands[cmdName].Run, "Expected subcommand %s to be runnable", cmdName)
	}

	// Verify the exact number of subcommands
	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestSubcommandFlags(t *testing.T) {
	root := NewRootCommand()

	for name, cmd := range root.Subcommands {
		if cmd.Flags == nil {
			continue
		}
		assert.NotNil(t, cmd.Flags.Lookup("config"), "%s accepts --config", name)
		assert.NotNil(t, cmd.Flags.Lookup("log-level"), "%s accepts --log-level", name)
	}

	list := root.Subcommands["list"]
	for _, flag := range []string{"format", "l", "a", "no-plugins"} {
		assert.NotNil(t, list.Flags.Lookup(flag), "list accepts -%s", flag)
	}
	assert.NotNil(t, root.Subcommands["health"].Flags.Lookup("prune"))
	assert.NotNil(t, root.Subcommands["health"].Flags.Lookup("clear"))
}

func TestCommandUsage(t *testing.T) {
	root := NewRootCommand()

	output, err := captureOutput(t, root.usage)

	// Verify no error
	assert.NoError(t, err)

	// Verify output contains expected content
	assert.Contains(t, output, "Usage: llx [command] [args]")
	assert.Contains(t, output, "Commands:")
	for name := range root.Subcommands {
		assert.Contains(t, output, name)
	}
	assert.Less(t, strings.Index(output, "action"), strings.Index(output, "watch"), "commands are listed in name order")
}

func TestCommandExecute_HelpFlag(t *testing.T) {
	for _, helpFlag := range []string{"-h", "--help", "help"} {
		t.Run(helpFlag, func(t *testing.T) {
			output, err := captureOutput(t, func() error {
				return NewRootCommand().ExecuteArgs([]string{helpFlag})
			})

			// Should show usage for help flag
			assert.NoError(t, err)
			assert.Contains(t, output, "Usage: llx [command] [args]")
		})
	}
}

func TestCommandExecute_ValidSubcommand(t *testing.T) {
	root := NewRootCommand()

	var receivedArgs []string
	root.Subcommands["test"] = &Command{
		Name:        "test",
		Description: "Test command",
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	err := root.ExecuteArgs([]string{"test", "--flag", "value", "arg"})

	assert.NoError(t, err)
	assert.Equal(t, []string{"--flag", "value", "arg"}, receivedArgs)
}

func TestCommandExecute_DefaultsToList(t *testing.T) {
	tests := []struct {
		name string
		args func(dir string) []string
		want []string
	}{
		{name: "no args", args: func(string) []string { return nil }, want: nil},
		{name: "flag", args: func(string) []string { return []string{"-l"} }, want: []string{"-l"}},
		{name: "path", args: func(dir string) []string { return []string{dir} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			root := NewRootCommand()

			called := false
			var got []string
			root.Subcommands["list"].Run = func(args []string) error {
				called = true
				got = args
				return nil
			}

			args := tt.args(dir)
			require.NoError(t, root.ExecuteArgs(args))
			assert.True(t, called)
			if tt.want != nil {
				assert.Equal(t, tt.want, got)
			} else {
				assert.Equal(t, args, got)
			}
		})
	}
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	root := NewRootCommand()

	err := root.ExecuteArgs([]string{"nonexistent-command"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nonexistent-command")
}

func TestCommandExecute_SubcommandError(t *testing.T) {
	root := NewRootCommand()
	boom := errors.New("boom")
	root.Subcommands["fail"] = &Command{
		Name: "fail",
		Run:  func([]string) error { return boom },
	}

	assert.ErrorIs(t, root.ExecuteArgs([]string{"fail"}), boom)
}

func TestVersionCommand(t *testing.T) {
	output, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "llx "+Version)
	assert.Contains(t, output, "plugin protocol 1")
}
