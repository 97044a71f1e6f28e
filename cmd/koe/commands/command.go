package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koelabs/koe/pkg/cli"
	"github.com/koelabs/koe/pkg/detect"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Manage the voice command list",
	Long: `Manage the ordered list of voice commands.

List order matters: the pipeline fires the first enabled command whose
trigger matches, so put more specific triggers first. Commands are
addressed by id; any unambiguous id prefix works.`,
}

var commandsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List voice commands in match order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		commands, err := st.LoadCommands(cmd.Context())
		if err != nil {
			return err
		}
		if len(commands) == 0 {
			cli.PrintInfo("no commands saved; koed seeds the defaults on first run")
			return nil
		}
		return output(commands)
	},
}

var (
	addTrigger string
	addAction  string
)

var commandsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a voice command",
	RunE: func(cmd *cobra.Command, args []string) error {
		command := detect.NewCommand(addTrigger, detect.Action(addAction))
		if err := command.Validate(); err != nil {
			return err
		}
		if !command.Action.Known() {
			cli.PrintInfo("%q is not a built-in action, dispatchers will see it verbatim", addAction)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		commands, err := st.LoadCommands(cmd.Context())
		if err != nil {
			return err
		}
		commands = append(commands, command)
		if err := st.SaveCommands(cmd.Context(), commands); err != nil {
			return err
		}
		cli.PrintSuccess("added command %s: %q -> %s", command.ID[:8], command.Trigger, command.Action)
		return nil
	},
}

var commandsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the command list from a YAML or JSON file",
	Long: `Replace the whole command list with the one in the given file.

The file holds a list of commands in the same shape 'commands list -o
yaml' prints. Entries without an id get a fresh one, so a hand-written
file only needs trigger and action:

  - trigger: koe
    action: notify
    enabled: true
  - trigger: start dictation
    action: start-recording
    enabled: true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var commands []detect.VoiceCommand
		var err error
		if args[0] == "-" {
			err = cli.LoadStdin(&commands)
		} else {
			err = cli.LoadFile(args[0], &commands)
		}
		if err != nil {
			return err
		}
		for i := range commands {
			if commands[i].ID == "" {
				fresh := detect.NewCommand(commands[i].Trigger, commands[i].Action)
				fresh.Enabled = commands[i].Enabled
				commands[i] = fresh
			}
			if err := commands[i].Validate(); err != nil {
				return err
			}
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveCommands(cmd.Context(), commands); err != nil {
			return err
		}
		cli.PrintSuccess("imported %d command(s) from %s", len(commands), args[0])
		return nil
	},
}

var commandsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a voice command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateCommand(cmd, args[0], func(commands []detect.VoiceCommand, i int) []detect.VoiceCommand {
			cli.PrintSuccess("removed command %s: %q", commands[i].ID[:8], commands[i].Trigger)
			return append(commands[:i], commands[i+1:]...)
		})
	},
}

var commandsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a voice command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCommandEnabled(cmd, args[0], true)
	},
}

var commandsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a voice command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCommandEnabled(cmd, args[0], false)
	},
}

func setCommandEnabled(cmd *cobra.Command, idPrefix string, enabled bool) error {
	return updateCommand(cmd, idPrefix, func(commands []detect.VoiceCommand, i int) []detect.VoiceCommand {
		commands[i].Enabled = enabled
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		cli.PrintSuccess("%s command %s: %q", state, commands[i].ID[:8], commands[i].Trigger)
		return commands
	})
}

// updateCommand loads the command list, applies edit to the single
// command matching the id prefix, and saves the result.
func updateCommand(cmd *cobra.Command, idPrefix string, edit func([]detect.VoiceCommand, int) []detect.VoiceCommand) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	commands, err := st.LoadCommands(cmd.Context())
	if err != nil {
		return err
	}
	found := -1
	for i, c := range commands {
		if !strings.HasPrefix(c.ID, idPrefix) {
			continue
		}
		if found >= 0 {
			return fmt.Errorf("id prefix %q is ambiguous", idPrefix)
		}
		found = i
	}
	if found < 0 {
		return fmt.Errorf("no command with id prefix %q", idPrefix)
	}
	return st.SaveCommands(cmd.Context(), edit(commands, found))
}

func init() {
	commandsAddCmd.Flags().StringVar(&addTrigger, "trigger", "", "trigger phrase (required)")
	commandsAddCmd.Flags().StringVar(&addAction, "action", string(detect.ActionNotify), "action to fire")
	_ = commandsAddCmd.MarkFlagRequired("trigger")

	commandsCmd.AddCommand(commandsListCmd)
	commandsCmd.AddCommand(commandsAddCmd)
	commandsCmd.AddCommand(commandsImportCmd)
	commandsCmd.AddCommand(commandsRemoveCmd)
	commandsCmd.AddCommand(commandsEnableCmd)
	commandsCmd.AddCommand(commandsDisableCmd)
	rootCmd.AddCommand(commandsCmd)
}
