package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/koelabs/koe/pkg/cli"
	"github.com/koelabs/koe/pkg/store"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and delete enrolled voice profiles",
}

// profileSummary is what 'profile show' renders; raw embedding values
// are elided, only their dimensions are interesting here.
type profileSummary struct {
	Name        string    `json:"name" yaml:"name"`
	SampleCount int       `json:"sample_count" yaml:"sample_count"`
	FeatureDims int       `json:"feature_dims" yaml:"feature_dims"`
	NeuralDims  int       `json:"neural_dims" yaml:"neural_dims"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show an enrolled profile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.Profile
		if len(args) == 1 {
			name = args[0]
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		profile, err := st.LoadProfile(cmd.Context(), name)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("profile %q is not enrolled", name)
		}
		if err != nil {
			return err
		}
		return output(profileSummary{
			Name:        profile.Name,
			SampleCount: profile.SampleCount,
			FeatureDims: len(profile.FeatureEmbedding),
			NeuralDims:  len(profile.NeuralEmbedding),
			CreatedAt:   profile.CreatedAt,
			UpdatedAt:   profile.UpdatedAt,
		})
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		names, err := st.ListProfiles(cmd.Context())
		if err != nil {
			return err
		}
		if len(names) == 0 {
			cli.PrintInfo("no profiles enrolled")
			return nil
		}
		return output(names)
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile and its archived recordings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("deleted profile %q", args[0])
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}
