package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koelabs/koe/pkg/audio/wave"
	"github.com/koelabs/koe/pkg/cli"
	"github.com/koelabs/koe/pkg/store"
	"github.com/koelabs/koe/pkg/voiceid"
)

var (
	verifyProfile   string
	verifyThreshold float64
	verifyNeural    bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <wav>",
	Short: "Verify a recording against an enrolled profile",
	Long: `Score a probe recording against the enrolled voice profile and
report whether it would be accepted by the pipeline.

By default the hand-crafted feature verifier is used; --neural scores
against the neural embedding instead, which requires a configured
model and a profile whose neural training has completed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := wave.LoadPipeline(args[0])
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		profile, err := st.LoadProfile(cmd.Context(), verifyProfile)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("profile %q is not enrolled, run 'koe enroll' first", verifyProfile)
		}
		if err != nil {
			return err
		}

		threshold := verifyThreshold
		if settings, err := st.LoadSettings(cmd.Context()); err == nil && threshold == 0 {
			threshold = settings.ConfidenceThreshold
		}

		var ok bool
		var confidence float64
		if verifyNeural {
			if !profile.HasNeural() {
				return fmt.Errorf("profile %q has no neural embedding yet", verifyProfile)
			}
			if cfg.Neural.ModelPath == "" {
				return errors.New("neural.model_path is not configured")
			}
			if threshold == 0 {
				threshold = voiceid.DefaultNeuralThreshold
			}
			model, err := voiceid.NewSherpaModel(cfg.Neural.ModelPath)
			if err != nil {
				return err
			}
			defer model.Close()
			neural := voiceid.NewNeuralVerifier(
				func() (voiceid.Model, error) { return model, nil },
				voiceid.WithNeuralEnrollment(profile.NeuralEmbedding),
				voiceid.WithNeuralThreshold(threshold),
			)
			defer neural.Close()
			neural.Load()
			if err := neural.WaitReady(cmd.Context()); err != nil {
				return err
			}
			ok, confidence = neural.Verify(samples)
		} else {
			if threshold == 0 {
				threshold = voiceid.DefaultFeatureThreshold
			}
			feature := voiceid.NewFeatureVerifier(nil,
				voiceid.WithEnrollment(profile.FeatureEmbedding),
				voiceid.WithThreshold(threshold),
			)
			ok, confidence = feature.Verify(samples)
		}

		if ok {
			cli.PrintSuccess("match: similarity %.3f >= threshold %.2f", confidence, threshold)
		} else {
			cli.PrintWarning("no match: similarity %.3f < threshold %.2f", confidence, threshold)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyProfile, "profile", "owner", "profile name to verify against")
	verifyCmd.Flags().Float64Var(&verifyThreshold, "threshold", 0, "similarity threshold (default: pipeline settings)")
	verifyCmd.Flags().BoolVar(&verifyNeural, "neural", false, "score against the neural embedding")
	rootCmd.AddCommand(verifyCmd)
}
