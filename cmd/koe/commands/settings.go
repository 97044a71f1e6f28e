package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/koelabs/koe/pkg/cli"
	"github.com/koelabs/koe/pkg/detect"
	"github.com/koelabs/koe/pkg/store"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change the pipeline settings",
	Long: `Show and change the persisted pipeline settings.

Settings saved here win over the config file's settings block; koed
picks them up on its next start.

Keys:
  vad_enabled                bool
  vad_threshold              0.0 - 1.0
  confidence_threshold       0.5 - 0.95
  silence_confirmation_delay seconds, 0.5 - 10
  use_extended_trigger       bool
  extended_trigger_phrase    string
  use_neural_verifier        bool`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		settings, err := st.LoadSettings(cmd.Context())
		if errors.Is(err, store.ErrNotFound) {
			cli.PrintInfo("no settings saved yet, showing defaults")
			settings = detect.DefaultSettings()
		} else if err != nil {
			return err
		}
		return output(settings)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		settings, err := st.LoadSettings(cmd.Context())
		if errors.Is(err, store.ErrNotFound) {
			settings = detect.DefaultSettings()
		} else if err != nil {
			return err
		}

		if err := applySetting(&settings, args[0], args[1]); err != nil {
			return err
		}
		if err := settings.Validate(); err != nil {
			return err
		}
		if err := st.SaveSettings(cmd.Context(), settings); err != nil {
			return err
		}
		cli.PrintSuccess("set %s = %s (restart koed to apply)", args[0], args[1])
		return nil
	},
}

func applySetting(s *detect.Settings, key, value string) error {
	switch key {
	case "vad_enabled":
		return parseBoolInto(&s.VADEnabled, key, value)
	case "vad_threshold":
		return parseFloatInto(&s.VADThreshold, key, value)
	case "confidence_threshold":
		return parseFloatInto(&s.ConfidenceThreshold, key, value)
	case "silence_confirmation_delay":
		return parseFloatInto(&s.SilenceConfirmationDelay, key, value)
	case "use_extended_trigger":
		return parseBoolInto(&s.UseExtendedTrigger, key, value)
	case "extended_trigger_phrase":
		s.ExtendedTriggerPhrase = value
		return nil
	case "use_neural_verifier":
		return parseBoolInto(&s.UseNeuralVerifier, key, value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

func parseBoolInto(target *bool, key, value string) error {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s wants a boolean, got %q", key, value)
	}
	*target = parsed
	return nil
}

func parseFloatInto(target *float64, key, value string) error {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%s wants a number, got %q", key, value)
	}
	*target = parsed
	return nil
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
