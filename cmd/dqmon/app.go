package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/anomaly"
	"github.com/nao1215/dqmon/internal/config"
	"github.com/nao1215/dqmon/internal/decision"
	dqlog "github.com/nao1215/dqmon/internal/log"
	"github.com/nao1215/dqmon/internal/notify"
	"github.com/nao1215/dqmon/internal/pipeline"
	"github.com/nao1215/dqmon/internal/quality"
	"github.com/nao1215/dqmon/internal/ratelimit"
	"github.com/nao1215/dqmon/internal/report"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag retrieves the --config path from the command or its parent.
func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return ""
		}
	}
	return path
}

// loadConfig resolves and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(getConfigFlag(cmd))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// setupLogger creates the secure logger for cmd and makes it the default.
// The returned function closes the log file, if any.
func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, func() error, error) {
	logger, closeLog, err := dqlog.New(dqlog.Options{
		Writer:  cmd.ErrOrStderr(),
		Verbose: getVerboseFlag(cmd),
		File:    cfg.Log.File,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closeLog, nil
}

// appOptions select the optional parts of an app.
type appOptions struct {
	// persist writes report artifacts to the configured sinks.
	persist bool

	// observers receive every alert dispatch.
	observers []func(decision.Dispatch)
}

// app holds the components built from one configuration.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	system  *decision.System
	monitor *pipeline.Monitor
	store   ratelimit.Store
	closers []io.Closer
}

// newApp builds the limiter, notifiers, decision system, analyzers and
// artifact sinks described by cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	built := false
	defer func() {
		if !built {
			a.Close() //nolint:errcheck,gosec // best effort cleanup on failed setup
		}
	}()

	ruleSet, err := cfg.RuleSet()
	if err != nil {
		return nil, err
	}

	store, err := newLimiterStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(
		ratelimit.WithStore(store),
		ratelimit.WithMaxPerHour(cfg.RateLimit.MaxAlertsPerHour),
		ratelimit.WithCooldown(cfg.Cooldown()),
		ratelimit.WithLogger(logger),
	)
	if err != nil {
		store.Close() //nolint:errcheck,gosec // limiter never took ownership
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, limiter)

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, notifier)

	systemOpts := []decision.Option{
		decision.WithManager(alert.NewManager(alert.WithLimiter(limiter), alert.WithLogger(logger))),
		decision.WithNotifier(notifier),
		decision.WithLogger(logger),
	}
	if len(opts.observers) > 0 {
		observers := opts.observers
		systemOpts = append(systemOpts, decision.WithObserver(func(d decision.Dispatch) {
			for _, fn := range observers {
				fn(d)
			}
		}))
	}
	a.system = decision.New(cfg.DecisionConfig(), systemOpts...)

	detector, err := anomaly.New(
		anomaly.WithLogger(logger),
		anomaly.WithContamination(cfg.Quality.Contamination),
		anomaly.WithZThreshold(cfg.Quality.AnomalyThreshold),
		anomaly.WithIQRMultiplier(cfg.Quality.IQRMultiplier),
	)
	if err != nil {
		return nil, err
	}

	var sink report.Sink
	if opts.persist {
		sink, err = newSink(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	a.monitor = &pipeline.Monitor{
		Engine:   quality.New(quality.WithLogger(logger)),
		Detector: detector,
		System:   a.system,
		Sink:     sink,
		QualityOptions: quality.Options{
			KeyColumns: cfg.Quality.KeyColumns,
			Rules:      ruleSet,
		},
		Methods:        cfg.Quality.Methods,
		DriftThreshold: cfg.Quality.DriftThreshold,
		Logger:         logger,
	}
	built = true
	return a, nil
}

// Close releases the limiter store and the notifier connections.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newLimiterStore opens the rate limiter store selected by rate_limit.store.
func newLimiterStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, error) {
	ttl := ratelimit.Window + cfg.Cooldown()
	switch cfg.RateLimit.Store {
	case config.StoreSQLite:
		s, err := ratelimit.OpenSQLite(config.XDGDataDir(), ratelimit.DefaultSQLiteOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open limiter database: %w", err)
		}
		return s, nil
	case config.StoreRedis:
		s, err := ratelimit.NewRedisStore(ctx, cfg.RedisSettings(), ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return s, nil
	default:
		return ratelimit.NewMemoryStore(ttl), nil
	}
}

// newNotifier combines every configured delivery channel. Without any,
// alerts are logged.
func newNotifier(cfg *config.Config, logger *slog.Logger) (*notify.Multi, error) {
	var notifiers []notify.Notifier

	if cfg.Slack.Enabled {
		s, err := notify.NewSlack(cfg.SlackSettings(), notify.WithSlackLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		notifiers = append(notifiers, s)
	}
	if len(cfg.Notifiers.Kafka.Brokers) > 0 {
		k, err := notify.NewKafka(cfg.KafkaSettings())
		if err != nil {
			closeAll(notifiers)
			return nil, fmt.Errorf("kafka: %w", err)
		}
		notifiers = append(notifiers, k)
	}
	if cfg.Notifiers.MQTT.Broker != "" {
		m, err := notify.NewMQTT(cfg.MQTTSettings())
		if err != nil {
			closeAll(notifiers)
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		notifiers = append(notifiers, m)
	}

	if len(notifiers) == 0 {
		notifiers = append(notifiers, notify.NewLog(logger))
	}
	return notify.NewMulti(notifiers...), nil
}

func closeAll(notifiers []notify.Notifier) {
	for _, n := range notifiers {
		if c, ok := n.(io.Closer); ok {
			c.Close() //nolint:errcheck,gosec // best effort cleanup
		}
	}
}

// newSink builds the artifact sink: the local report directory, plus the
// MinIO bucket when an endpoint is configured.
func newSink(ctx context.Context, cfg *config.Config) (report.Sink, error) {
	dir := report.NewDirSink(cfg.Artifacts.Dir)
	if cfg.Artifacts.Minio.Endpoint == "" {
		return dir, nil
	}

	m, err := report.NewMinioSink(cfg.MinioSettings())
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return report.MultiSink{dir, m}, nil
}

// isTerminal reports whether f is a character device, used to enable color.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
