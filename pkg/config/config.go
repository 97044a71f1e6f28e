// Package config loads the daemon configuration: built-in defaults,
// then the YAML file, then KOE_* environment overrides, in that order.
// The settings block only seeds the pipeline on first run; once saved,
// the persisted copy wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/koelabs/koe/pkg/detect"
	"github.com/koelabs/koe/pkg/trigger"
	"github.com/koelabs/koe/pkg/voiceid"
)

type ListenConfig struct {
	// Addr is the HTTP bind address for the feed and health endpoints.
	Addr string `yaml:"addr"`
	// FeedPath is where the recognizer connects its WebSocket.
	FeedPath string `yaml:"feed_path"`
	// WindowSeconds is the length of the rolling audio window.
	WindowSeconds float64 `yaml:"window_seconds"`
}

type TelemetryConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// MetricsAddr serves Prometheus metrics, empty disables them.
	MetricsAddr string `yaml:"metrics_addr"`
}

type BusConfig struct {
	Enabled          bool   `yaml:"enabled"`
	URL              string `yaml:"url"`
	Name             string `yaml:"name"`
	ConnectTimeoutMS int    `yaml:"connect_timeout_ms"`
}

type HistoryConfig struct {
	// Path overrides the default <data_dir>/history.db location.
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type NeuralConfig struct {
	// ModelPath points at the speaker embedding ONNX model. Empty runs
	// the pipeline on the feature verifier alone.
	ModelPath string `yaml:"model_path"`
	Threads   int    `yaml:"threads"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type ArchiveConfig struct {
	// Backend selects where enrollment WAVs go: "local", "s3", or
	// empty to disable the archive.
	Backend string `yaml:"backend"`
	// Dir overrides the default <data_dir>/samples location for the
	// local backend.
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

type Config struct {
	// DataDir holds the kv store, history database, and sample archive
	// unless their paths are overridden.
	DataDir string `yaml:"data_dir"`
	// Profile is the voice profile the pipeline verifies against.
	Profile string `yaml:"profile"`

	Listen    ListenConfig    `yaml:"listen"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bus       BusConfig       `yaml:"bus"`
	History   HistoryConfig   `yaml:"history"`
	Neural    NeuralConfig    `yaml:"neural"`
	Archive   ArchiveConfig   `yaml:"archive"`

	// Hooks maps actions to shell command lines run on detection.
	Hooks map[string]string `yaml:"hooks"`
	// Variants adds or replaces phonetic variants per trigger word.
	Variants map[string][]string `yaml:"trigger_variants"`
	// Settings seeds the pipeline settings on first run.
	Settings detect.Settings `yaml:"settings"`
}

func Default() Config {
	settings := detect.DefaultSettings()
	// Zero means "pick by backend" in normalize.
	settings.ConfidenceThreshold = 0

	return Config{
		DataDir: "./data",
		Profile: "owner",
		Listen: ListenConfig{
			Addr:          ":7700",
			FeedPath:      "/v1/feed",
			WindowSeconds: 5,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "text",
			MetricsAddr: ":9700",
		},
		Bus: BusConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			Name:             "koed",
			ConnectTimeoutMS: 2000,
		},
		History: HistoryConfig{
			MaxEntries: 50,
			MaxAgeDays: 7,
		},
		Archive: ArchiveConfig{
			Backend: "local",
		},
		Settings: settings,
	}
}

// DefaultPath returns the conventional config location,
// os.UserConfigDir()/koe/koe.yaml, when that file exists, or "".
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "koe", "koe.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Load reads the configuration. An empty path loads defaults plus
// environment overrides; a non-empty path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: file not found: %w", err)
			}
			return cfg, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// normalize fills the confidence threshold by backend when the file
// left it unset: the neural verifier scores run hotter than the
// feature verifier, so it gets the stricter default.
func normalize(cfg *Config) {
	if cfg.Settings.ConfidenceThreshold == 0 {
		if cfg.Settings.UseNeuralVerifier {
			cfg.Settings.ConfidenceThreshold = voiceid.DefaultNeuralThreshold
		} else {
			cfg.Settings.ConfidenceThreshold = voiceid.DefaultFeatureThreshold
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.DataDir, "KOE_DATA_DIR")
	overrideString(&cfg.Profile, "KOE_PROFILE")
	overrideString(&cfg.Listen.Addr, "KOE_LISTEN_ADDR")
	overrideString(&cfg.Listen.FeedPath, "KOE_LISTEN_FEED_PATH")
	overrideFloat(&cfg.Listen.WindowSeconds, "KOE_LISTEN_WINDOW_SECONDS")
	overrideString(&cfg.Telemetry.LogLevel, "KOE_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "KOE_LOG_FORMAT")
	overrideString(&cfg.Telemetry.MetricsAddr, "KOE_METRICS_ADDR")
	overrideBool(&cfg.Bus.Enabled, "KOE_BUS_ENABLED")
	overrideString(&cfg.Bus.URL, "KOE_BUS_URL")
	overrideString(&cfg.Bus.Name, "KOE_BUS_NAME")
	overrideInt(&cfg.Bus.ConnectTimeoutMS, "KOE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "KOE_HISTORY_PATH")
	overrideInt(&cfg.History.MaxEntries, "KOE_HISTORY_MAX_ENTRIES")
	overrideInt(&cfg.History.MaxAgeDays, "KOE_HISTORY_MAX_AGE_DAYS")
	overrideString(&cfg.Neural.ModelPath, "KOE_NEURAL_MODEL_PATH")
	overrideInt(&cfg.Neural.Threads, "KOE_NEURAL_THREADS")
	overrideString(&cfg.Archive.Backend, "KOE_ARCHIVE_BACKEND")
	overrideString(&cfg.Archive.Dir, "KOE_ARCHIVE_DIR")
	overrideString(&cfg.Archive.S3.Bucket, "KOE_ARCHIVE_S3_BUCKET")
	overrideString(&cfg.Archive.S3.Prefix, "KOE_ARCHIVE_S3_PREFIX")
	overrideString(&cfg.Archive.S3.Region, "KOE_ARCHIVE_S3_REGION")
	overrideString(&cfg.Archive.S3.Endpoint, "KOE_ARCHIVE_S3_ENDPOINT")
	overrideString(&cfg.Archive.S3.AccessKey, "KOE_ARCHIVE_S3_ACCESS_KEY")
	overrideString(&cfg.Archive.S3.SecretKey, "KOE_ARCHIVE_S3_SECRET_KEY")
	overrideBool(&cfg.Settings.VADEnabled, "KOE_SETTINGS_VAD_ENABLED")
	overrideFloat(&cfg.Settings.VADThreshold, "KOE_SETTINGS_VAD_THRESHOLD")
	overrideFloat(&cfg.Settings.ConfidenceThreshold, "KOE_SETTINGS_CONFIDENCE_THRESHOLD")
	overrideFloat(&cfg.Settings.SilenceConfirmationDelay, "KOE_SETTINGS_SILENCE_DELAY")
	overrideBool(&cfg.Settings.UseNeuralVerifier, "KOE_SETTINGS_USE_NEURAL")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.DataDir == "" {
		return errors.New("config: data_dir must not be empty")
	}
	if cfg.Profile == "" {
		return errors.New("config: profile must not be empty")
	}
	if cfg.Listen.Addr == "" {
		return errors.New("config: listen.addr must not be empty")
	}
	if !strings.HasPrefix(cfg.Listen.FeedPath, "/") {
		return errors.New("config: listen.feed_path must start with /")
	}
	if cfg.Listen.WindowSeconds <= 0 || cfg.Listen.WindowSeconds > 60 {
		return errors.New("config: listen.window_seconds must be in (0, 60]")
	}
	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("config: telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Telemetry.LogFormat {
	case "text", "json":
	default:
		return errors.New("config: telemetry.log_format must be text or json")
	}
	if cfg.Bus.Enabled && cfg.Bus.URL == "" {
		return errors.New("config: bus.url must be set when the bus is enabled")
	}
	if cfg.History.MaxEntries <= 0 {
		return errors.New("config: history.max_entries must be positive")
	}
	if cfg.History.MaxAgeDays <= 0 {
		return errors.New("config: history.max_age_days must be positive")
	}
	switch cfg.Archive.Backend {
	case "", "local":
	case "s3":
		if cfg.Archive.S3.Bucket == "" {
			return errors.New("config: archive.s3.bucket must be set for the s3 backend")
		}
	default:
		return errors.New("config: archive.backend must be local, s3, or empty")
	}
	for word := range cfg.Variants {
		if trigger.Normalize(word) == "" {
			return fmt.Errorf("config: trigger_variants key %q is not a word", word)
		}
	}
	for action, hook := range cfg.Hooks {
		if strings.TrimSpace(action) == "" {
			return errors.New("config: hooks must not have a blank action")
		}
		if strings.TrimSpace(hook) == "" {
			return fmt.Errorf("config: hook for %q is empty", action)
		}
	}
	return cfg.Settings.Validate()
}

// KVDir is where the Badger store lives.
func (c Config) KVDir() string {
	return filepath.Join(c.DataDir, "kv")
}

// HistoryPath is the history database location.
func (c Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.DataDir, "history.db")
}

// ArchiveDir is where the local sample archive lives.
func (c Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(c.DataDir, "samples")
}
