package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/koelabs/koe/pkg/audio/wave"
	"github.com/koelabs/koe/pkg/cli"
	"github.com/koelabs/koe/pkg/voiceid"
)

var (
	enrollProfile string
	enrollTag     string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <wav>...",
	Short: "Enroll a voice profile from WAV recordings",
	Long: `Train a voice profile from one or more WAV recordings.

Recordings should each hold a few seconds of the owner speaking
naturally; five or more give a stable enrollment. Any 16-bit PCM WAV
works, other sample rates and stereo are converted to 16kHz mono.

The feature embedding trains immediately. When a neural model is
configured (neural.model_path), the neural embedding trains as well
before the command exits, which can take a little longer on first run
while the model loads.

Raw recordings are archived under the profile so enrollment can be
audited or re-run later.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		utterances := make([][]float32, 0, len(args))
		for _, path := range args {
			samples, err := wave.LoadPipeline(path)
			if err != nil {
				return err
			}
			cli.PrintVerbose(verbose, "loaded %s: %d samples (%.1fs)",
				path, len(samples), float64(len(samples))/float64(wave.PipelineFormat.SampleRate))
			utterances = append(utterances, samples)
		}
		if len(utterances) < 3 {
			cli.PrintWarning("only %d recording(s); 5 or more give a more stable enrollment", len(utterances))
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		feature := voiceid.NewFeatureVerifier(nil)
		var neural *voiceid.NeuralVerifier
		if cfg.Neural.ModelPath != "" {
			neural = voiceid.NewNeuralVerifier(func() (voiceid.Model, error) {
				var opts []voiceid.SherpaModelOption
				if cfg.Neural.Threads > 0 {
					opts = append(opts, voiceid.WithSherpaNumThreads(cfg.Neural.Threads))
				}
				return voiceid.NewSherpaModel(cfg.Neural.ModelPath, opts...)
			})
			defer neural.Close()
		}

		enroller := voiceid.NewEnroller(feature, neural, st,
			voiceid.WithEnrollerLogger(slog.Default()))
		profile, err := enroller.Enroll(cmd.Context(), enrollProfile, utterances)
		if err != nil {
			return err
		}
		if err := st.SaveSamples(cmd.Context(), enrollProfile, enrollTag, utterances); err != nil {
			cli.PrintWarning("profile saved, but archiving recordings failed: %v", err)
		}
		if neural != nil {
			cli.PrintInfo("training neural embedding...")
			enroller.Wait()
		}

		cli.PrintSuccess("enrolled %q from %d recording(s)", profile.Name, profile.SampleCount)
		fmt.Printf("  feature embedding: %d dims\n", len(profile.FeatureEmbedding))
		if profile.HasNeural() {
			fmt.Printf("  neural embedding:  %d dims\n", len(profile.NeuralEmbedding))
		}
		return nil
	},
}

func init() {
	enrollCmd.Flags().StringVar(&enrollProfile, "profile", "owner", "profile name to enroll")
	enrollCmd.Flags().StringVar(&enrollTag, "tag", "enroll", "archive tag for the recordings")
	rootCmd.AddCommand(enrollCmd)
}
