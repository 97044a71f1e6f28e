package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/koelabs/koe/pkg/voiceid"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen.Addr != ":7700" {
		t.Errorf("Listen.Addr = %q", cfg.Listen.Addr)
	}
	if cfg.Profile != "owner" {
		t.Errorf("Profile = %q", cfg.Profile)
	}
	if !cfg.Settings.VADEnabled {
		t.Error("VADEnabled default lost")
	}
	if cfg.Settings.ConfidenceThreshold != voiceid.DefaultFeatureThreshold {
		t.Errorf("ConfidenceThreshold = %v, want the feature default", cfg.Settings.ConfidenceThreshold)
	}
	if cfg.Bus.Enabled {
		t.Error("bus enabled by default")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "koe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/koe
profile: alice
listen:
  addr: ":9000"
bus:
  enabled: true
  url: nats://bus:4222
settings:
  use_neural_verifier: true
  vad_threshold: 0.5
hooks:
  notify: "notify-send koe"
trigger_variants:
  koe: [kway, cove]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataDir != "/var/lib/koe" || cfg.Profile != "alice" {
		t.Errorf("file values lost: data_dir=%q profile=%q", cfg.DataDir, cfg.Profile)
	}
	if cfg.Listen.Addr != ":9000" {
		t.Errorf("Listen.Addr = %q", cfg.Listen.Addr)
	}
	if cfg.Listen.FeedPath != "/v1/feed" {
		t.Errorf("FeedPath default lost: %q", cfg.Listen.FeedPath)
	}
	if !cfg.Bus.Enabled || cfg.Bus.URL != "nats://bus:4222" {
		t.Errorf("bus = %+v", cfg.Bus)
	}
	if cfg.Settings.VADThreshold != 0.5 {
		t.Errorf("VADThreshold = %v", cfg.Settings.VADThreshold)
	}
	if cfg.Settings.SilenceConfirmationDelay != 2.0 {
		t.Errorf("SilenceConfirmationDelay default lost: %v", cfg.Settings.SilenceConfirmationDelay)
	}
	if cfg.Hooks["notify"] != "notify-send koe" {
		t.Errorf("Hooks = %v", cfg.Hooks)
	}
	if v := cfg.Variants["koe"]; len(v) != 2 || v[0] != "kway" {
		t.Errorf("Variants = %v", cfg.Variants)
	}
}

func TestNeuralBackendPicksStricterThreshold(t *testing.T) {
	path := writeConfig(t, `
settings:
  use_neural_verifier: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Settings.ConfidenceThreshold != voiceid.DefaultNeuralThreshold {
		t.Errorf("ConfidenceThreshold = %v, want the neural default", cfg.Settings.ConfidenceThreshold)
	}
}

func TestExplicitConfidenceWins(t *testing.T) {
	path := writeConfig(t, `
settings:
  use_neural_verifier: true
  confidence_threshold: 0.85
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Settings.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %v, want 0.85", cfg.Settings.ConfidenceThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KOE_DATA_DIR", "/tmp/koe-data")
	t.Setenv("KOE_PROFILE", "bob")
	t.Setenv("KOE_LISTEN_ADDR", ":8111")
	t.Setenv("KOE_BUS_ENABLED", "true")
	t.Setenv("KOE_BUS_URL", "nats://elsewhere:4222")
	t.Setenv("KOE_HISTORY_MAX_ENTRIES", "10")
	t.Setenv("KOE_SETTINGS_VAD_THRESHOLD", "0.6")
	t.Setenv("KOE_ARCHIVE_BACKEND", "s3")
	t.Setenv("KOE_ARCHIVE_S3_BUCKET", "koe-samples")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataDir != "/tmp/koe-data" || cfg.Profile != "bob" {
		t.Errorf("env overrides lost: data_dir=%q profile=%q", cfg.DataDir, cfg.Profile)
	}
	if cfg.Listen.Addr != ":8111" {
		t.Errorf("Listen.Addr = %q", cfg.Listen.Addr)
	}
	if !cfg.Bus.Enabled || cfg.Bus.URL != "nats://elsewhere:4222" {
		t.Errorf("bus = %+v", cfg.Bus)
	}
	if cfg.History.MaxEntries != 10 {
		t.Errorf("MaxEntries = %d", cfg.History.MaxEntries)
	}
	if cfg.Settings.VADThreshold != 0.6 {
		t.Errorf("VADThreshold = %v", cfg.Settings.VADThreshold)
	}
	if cfg.Archive.Backend != "s3" || cfg.Archive.S3.Bucket != "koe-samples" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"empty profile", func(c *Config) { c.Profile = "" }},
		{"relative feed path", func(c *Config) { c.Listen.FeedPath = "feed" }},
		{"zero window", func(c *Config) { c.Listen.WindowSeconds = 0 }},
		{"huge window", func(c *Config) { c.Listen.WindowSeconds = 120 }},
		{"bad log level", func(c *Config) { c.Telemetry.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.Telemetry.LogFormat = "xml" }},
		{"bus without url", func(c *Config) { c.Bus.Enabled = true; c.Bus.URL = "" }},
		{"zero history entries", func(c *Config) { c.History.MaxEntries = 0 }},
		{"zero history age", func(c *Config) { c.History.MaxAgeDays = 0 }},
		{"unknown archive backend", func(c *Config) { c.Archive.Backend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Archive.Backend = "s3" }},
		{"punctuation variant key", func(c *Config) { c.Variants = map[string][]string{"!!!": {"x"}} }},
		{"blank hook", func(c *Config) { c.Hooks = map[string]string{"notify": "  "} }},
		{"bad vad threshold", func(c *Config) { c.Settings.VADThreshold = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			normalize(&cfg)
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Error("validate accepted the config")
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/d"

	if got := cfg.KVDir(); got != filepath.Join("/d", "kv") {
		t.Errorf("KVDir = %q", got)
	}
	if got := cfg.HistoryPath(); got != filepath.Join("/d", "history.db") {
		t.Errorf("HistoryPath = %q", got)
	}
	cfg.History.Path = "/elsewhere/h.db"
	if got := cfg.HistoryPath(); got != "/elsewhere/h.db" {
		t.Errorf("HistoryPath override = %q", got)
	}
	if got := cfg.ArchiveDir(); got != filepath.Join("/d", "samples") {
		t.Errorf("ArchiveDir = %q", got)
	}
}
