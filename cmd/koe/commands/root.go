package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/koelabs/koe/pkg/cli"
	"github.com/koelabs/koe/pkg/config"
	"github.com/koelabs/koe/pkg/history"
	"github.com/koelabs/koe/pkg/kv"
	"github.com/koelabs/koe/pkg/storage"
	"github.com/koelabs/koe/pkg/store"
)

var (
	configPath   string
	outputFormat string
	outputFile   string
	verbose      bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "koe",
	Short: "Manage the koe voice command pipeline",
	Long: `koe - operator CLI for the koe voice command daemon.

The CLI works directly on the daemon's data directory: the voice
profile store, the command list, pipeline settings, and the detection
history. It reads the same configuration as koed (-config flag, then
KOE_* environment variables).

The Badger store takes a single writer, so stop koed before running
enroll, commands, profile, or settings subcommands.

Examples:
  # Enroll the owner from five recordings
  koe enroll --profile owner s1.wav s2.wav s3.wav s4.wav s5.wav

  # Check a probe recording against the enrollment
  koe verify --profile owner probe.wav

  # Manage triggers
  koe commands list
  koe commands add --trigger "koe" --action notify

  # Inspect recent detections
  koe history list --limit 10 --jq '.[] | select(.verified)'`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the koed configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (yaml, json, raw)")
	rootCmd.PersistentFlags().StringVar(&outputFile, "output-file", "", "write output to a file instead of stdout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// output renders a command result honoring the global format flags.
func output(result any) error {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
	})
}

// openStore opens the daemon's durable state for this invocation.
// Callers must Close it.
func openStore() (*store.Store, error) {
	kvStore, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.KVDir()})
	if err != nil {
		return nil, fmt.Errorf("open kv store (is koed running?): %w", err)
	}
	archive, err := openArchive()
	if err != nil {
		kvStore.Close()
		return nil, err
	}
	var opts []store.Option
	if archive != nil {
		opts = append(opts, store.WithSampleArchive(archive))
	}
	return store.New(kvStore, opts...), nil
}

// openArchive builds the sample archive from the config, nil when the
// archive is disabled.
func openArchive() (storage.FileStore, error) {
	switch cfg.Archive.Backend {
	case "":
		return nil, nil
	case "local":
		return storage.NewLocal(cfg.ArchiveDir())
	case "s3":
		s3cfg := cfg.Archive.S3
		return storage.NewS3(newS3Client(s3cfg), s3cfg.Bucket, s3cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}

// openHistory opens the detection log read-write, pruning on open like
// the daemon does.
func openHistory(cmd *cobra.Command) (*history.Log, error) {
	return history.Open(cmd.Context(), history.Config{
		Path:       cfg.HistoryPath(),
		MaxEntries: cfg.History.MaxEntries,
		MaxAge:     time.Duration(cfg.History.MaxAgeDays) * 24 * time.Hour,
	})
}
