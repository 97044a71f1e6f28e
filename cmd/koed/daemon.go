package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nats-io/nats.go"

	"github.com/koelabs/koe/pkg/audio/vad"
	"github.com/koelabs/koe/pkg/config"
	"github.com/koelabs/koe/pkg/detect"
	"github.com/koelabs/koe/pkg/dispatch"
	"github.com/koelabs/koe/pkg/history"
	"github.com/koelabs/koe/pkg/kv"
	"github.com/koelabs/koe/pkg/listener"
	"github.com/koelabs/koe/pkg/storage"
	"github.com/koelabs/koe/pkg/store"
	"github.com/koelabs/koe/pkg/trigger"
	"github.com/koelabs/koe/pkg/voiceid"
)

// daemon wires the detection pipeline to its durable state, the intake
// feed, and the outbound dispatchers.
type daemon struct {
	cfg config.Config
	log *slog.Logger

	store    *store.Store
	history  *history.Log
	bus      *nats.Conn
	neural   *voiceid.NeuralVerifier
	pipeline *detect.Pipeline
	feed     *listener.Feed

	metrics       http.Handler
	meterShutdown func(context.Context) error

	ready atomic.Bool
}

func newDaemon(ctx context.Context, cfg config.Config, log *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, log: log}

	// The meter provider must be installed before any dispatcher
	// creates its instruments.
	if cfg.Telemetry.MetricsAddr != "" {
		handler, shutdown, err := setupMetrics()
		if err != nil {
			return nil, fmt.Errorf("setup metrics: %w", err)
		}
		d.metrics = handler
		d.meterShutdown = shutdown
	}

	archive, err := newArchive(cfg)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("open sample archive: %w", err)
	}

	kvStore, err := kv.NewBadger(kv.BadgerOptions{Dir: cfg.KVDir()})
	if err != nil {
		d.close()
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	var storeOpts []store.Option
	if archive != nil {
		storeOpts = append(storeOpts, store.WithSampleArchive(archive))
	}
	d.store = store.New(kvStore, storeOpts...)

	d.history, err = history.Open(ctx, history.Config{
		Path:       cfg.HistoryPath(),
		MaxEntries: cfg.History.MaxEntries,
		MaxAge:     time.Duration(cfg.History.MaxAgeDays) * 24 * time.Hour,
	})
	if err != nil {
		d.close()
		return nil, fmt.Errorf("open history log: %w", err)
	}

	feature := voiceid.NewFeatureVerifier(voiceid.NewFeatureExtractor(voiceid.DefaultFeatureConfig()))
	if cfg.Neural.ModelPath != "" {
		d.neural = voiceid.NewNeuralVerifier(newSherpaLoader(cfg.Neural))
		d.neural.Load()
	}

	profile, err := d.store.LoadProfile(ctx, cfg.Profile)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("no voice profile enrolled, commands stay unverified", "profile", cfg.Profile)
	case err != nil:
		d.close()
		return nil, fmt.Errorf("load profile: %w", err)
	default:
		feature.SetEnrollment(profile.FeatureEmbedding)
		if d.neural != nil && profile.HasNeural() {
			d.neural.SetEnrollment(profile.NeuralEmbedding)
		}
		log.Info("voice profile loaded",
			"profile", profile.Name,
			"samples", profile.SampleCount,
			"neural", profile.HasNeural())
	}

	settings, err := d.store.LoadSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		settings = cfg.Settings
		if err := d.store.SaveSettings(ctx, settings); err != nil {
			d.close()
			return nil, fmt.Errorf("seed settings: %w", err)
		}
	} else if err != nil {
		d.close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	commands, err := d.store.LoadCommands(ctx)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("load commands: %w", err)
	}
	if len(commands) == 0 {
		commands = detect.DefaultCommands()
		if err := d.store.SaveCommands(ctx, commands); err != nil {
			d.close()
			return nil, fmt.Errorf("seed commands: %w", err)
		}
	}

	pipelineCfg := detect.Config{
		Verifier: feature,
		VAD:      vad.New(vad.DefaultConfig()),
		Matcher:  trigger.NewMatcher(trigger.WithVariants(cfg.Variants)),
		MicBusy:  func() bool { return d.feed != nil && d.feed.Busy() },
		Settings: &settings,
		Commands: commands,
		Logger:   log,
	}
	if d.neural != nil {
		pipelineCfg.Neural = d.neural
	}
	d.pipeline, err = detect.New(pipelineCfg)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	d.feed, err = listener.NewFeed(listener.Config{
		Pipeline: d.pipeline,
		Window:   time.Duration(cfg.Listen.WindowSeconds * float64(time.Second)),
		Logger:   log,
	})
	if err != nil {
		d.close()
		return nil, fmt.Errorf("build feed: %w", err)
	}

	dispatchers, err := d.newDispatchers()
	if err != nil {
		d.close()
		return nil, err
	}
	d.pipeline.SetDispatcher(dispatchers)

	return d, nil
}

// newDispatchers assembles the fan-out list for confirmed commands. The
// feed goes last so clients hear about a detection only after every
// durable sink saw it.
func (d *daemon) newDispatchers() (dispatch.Multi, error) {
	dispatchers := dispatch.Multi{
		dispatch.NewLogger(d.log),
		dispatch.NewRecorder(d.history),
	}
	if d.metrics != nil {
		metrics, err := dispatch.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		dispatchers = append(dispatchers, metrics)
	}
	if d.cfg.Bus.Enabled {
		conn, err := nats.Connect(d.cfg.Bus.URL,
			nats.Name(d.cfg.Bus.Name),
			nats.Timeout(time.Duration(d.cfg.Bus.ConnectTimeoutMS)*time.Millisecond),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		d.bus = conn
		d.log.Info("connected to nats", "url", d.cfg.Bus.URL)
		dispatchers = append(dispatchers, dispatch.NewNATS(conn))
	}
	if len(d.cfg.Hooks) > 0 {
		hooks := make(map[detect.Action]string, len(d.cfg.Hooks))
		for action, command := range d.cfg.Hooks {
			hooks[detect.Action(action)] = command
		}
		dispatchers = append(dispatchers, dispatch.NewExec(dispatch.ExecConfig{
			Hooks:  hooks,
			Logger: d.log,
		}))
	}
	return append(dispatchers, d.feed), nil
}

// run serves the feed and health endpoints until ctx is cancelled or a
// listener fails, then shuts everything down in order.
func (d *daemon) run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(d.cfg.Listen.FeedPath, d.feed)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !d.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	server := &http.Server{
		Addr:              d.cfg.Listen.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("listen on %s: %w", d.cfg.Listen.Addr, err)
		}
	}()

	var metricsServer *http.Server
	if d.metrics != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", d.metrics)
		metricsServer = &http.Server{
			Addr:              d.cfg.Telemetry.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("listen on %s: %w", d.cfg.Telemetry.MetricsAddr, err)
			}
		}()
	}

	d.ready.Store(true)
	d.log.Info("koed started",
		"addr", d.cfg.Listen.Addr,
		"feed", d.cfg.Listen.FeedPath,
		"metrics", d.cfg.Telemetry.MetricsAddr,
		"profile", d.cfg.Profile)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	d.ready.Store(false)
	d.log.Info("stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		d.log.Warn("feed server shutdown", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			d.log.Warn("metrics server shutdown", "error", err)
		}
	}
	d.close()
	return runErr
}

// close releases components in dependency order. The pipeline drains
// first so in-flight confirmations still reach the history log and the
// bus before those go away. Safe to call on a partially built daemon.
func (d *daemon) close() {
	if d.pipeline != nil {
		d.pipeline.Close()
		d.pipeline = nil
	}
	if d.neural != nil {
		d.neural.Close()
		d.neural = nil
	}
	if d.bus != nil {
		if err := d.bus.Drain(); err != nil {
			d.log.Warn("nats drain", "error", err)
		}
		d.bus.Close()
		d.bus = nil
	}
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.log.Warn("history close", "error", err)
		}
		d.history = nil
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn("store close", "error", err)
		}
		d.store = nil
	}
	if d.meterShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.meterShutdown(ctx); err != nil {
			d.log.Warn("telemetry shutdown", "error", err)
		}
		cancel()
		d.meterShutdown = nil
	}
}

// newArchive builds the enrollment sample archive, nil when disabled.
func newArchive(cfg config.Config) (storage.FileStore, error) {
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

func newS3Client(cfg config.S3Config) *s3.Client {
	opts := s3.Options{Region: cfg.Region}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if cfg.Endpoint != "" {
		// Custom endpoints are MinIO-style deployments, which want
		// path addressing.
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	if cfg.AccessKey != "" {
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			}, nil
		})
	}
	return s3.New(opts)
}

// newSherpaLoader defers ONNX model loading to the verifier's
// background goroutine so a slow load never stalls startup.
func newSherpaLoader(cfg config.NeuralConfig) func() (voiceid.Model, error) {
	return func() (voiceid.Model, error) {
		var opts []voiceid.SherpaModelOption
		if cfg.Threads > 0 {
			opts = append(opts, voiceid.WithSherpaNumThreads(cfg.Threads))
		}
		return voiceid.NewSherpaModel(cfg.ModelPath, opts...)
	}
}
