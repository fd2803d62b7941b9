package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/config"
	"github.com/nao1215/dqmon/internal/decision"
	"github.com/nao1215/dqmon/internal/metrics"
	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/pipeline"
	"github.com/nao1215/dqmon/internal/ratelimit"
)

// ErrNoDataSources is returned by watch when monitoring.data_sources is empty.
var ErrNoDataSources = errors.New("no data sources configured (add monitoring.data_sources to the configuration)")

// DefaultDigestSchedule sends the alert digest once a day.
const DefaultDigestSchedule = "@daily"

// DefaultRetentionSchedule prunes alert and report histories and idle
// limiter keys once an hour.
const DefaultRetentionSchedule = "@hourly"

// shutdownTimeout bounds the HTTP server shutdown.
const shutdownTimeout = 10 * time.Second

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor the configured data sources on a schedule",
		Long: `Watch runs the monitoring pipeline over every monitoring.data_sources entry
on the monitoring.schedule cron spec (six fields, with seconds) and serves:

  /metrics               Prometheus metrics
  /healthz               liveness
  /api/latest            latest run report per dataset (JSON)
  /api/latest/{dataset}  latest run report of one dataset
  /api/alerts/stats      alert history summary

A first pass starts immediately. A pass is skipped while the previous one runs. An alert
digest is sent on the --digest schedule. Every hour, alerts and reports older than seven
days are dropped from memory and idle rate limiter keys are removed from the SQLite store.

Examples:
  # Run with the configured schedule and listen address
  dqmon watch

  # Run every source once, print a summary and exit
  dqmon watch --once

  # Every 15 minutes, metrics on port 9100
  dqmon watch --schedule "0 */15 * * * *" --listen :9100`,
		Args: cobra.NoArgs,
		RunE: runWatchCmd,
	}

	cmd.Flags().Bool("once", false, "Run every data source once and exit")
	cmd.Flags().String("schedule", "", "Cron spec overriding monitoring.schedule")
	cmd.Flags().String("listen", "", "Address overriding monitoring.listen (empty string in config disables the server)")
	cmd.Flags().String("digest", DefaultDigestSchedule, "Cron spec for the alert digest (\"\" disables it)")

	return cmd
}

// watchOptions are the watch command flags.
type watchOptions struct {
	once     bool
	schedule string
	listen   string
	digest   string
}

func getWatchOptions(cmd *cobra.Command) (watchOptions, error) {
	var (
		o   watchOptions
		err error
	)
	if o.once, err = cmd.Flags().GetBool("once"); err != nil {
		return o, err
	}
	if o.schedule, err = cmd.Flags().GetString("schedule"); err != nil {
		return o, err
	}
	if o.listen, err = cmd.Flags().GetString("listen"); err != nil {
		return o, err
	}
	if o.digest, err = cmd.Flags().GetString("digest"); err != nil {
		return o, err
	}
	return o, nil
}

// sourcesFromConfig converts the configured data sources.
func sourcesFromConfig(cfg *config.Config) []pipeline.Source {
	out := make([]pipeline.Source, 0, len(cfg.Monitoring.DataSources))
	for _, ds := range cfg.Monitoring.DataSources {
		out = append(out, pipeline.Source{Name: ds.Name, Path: ds.Path, Reference: ds.Reference})
	}
	return out
}

// runWatchCmd executes the watch command.
func runWatchCmd(cmd *cobra.Command, _ []string) error {
	opts, err := getWatchOptions(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.schedule != "" {
		cfg.Monitoring.Schedule = opts.schedule
	}
	if opts.listen != "" {
		cfg.Monitoring.Listen = opts.listen
	}
	if len(cfg.Monitoring.DataSources) == 0 {
		return ErrNoDataSources
	}

	schedule, err := config.ParseSchedule(cfg.Monitoring.Schedule)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidSchedule, err)
	}
	var digest cron.Schedule
	if opts.digest != "" {
		if digest, err = config.ParseSchedule(opts.digest); err != nil {
			return fmt.Errorf("invalid digest schedule: %w", err)
		}
	}

	logger, closeLog, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()
	latest := newLatestReports()

	a, err := newApp(ctx, cfg, logger, appOptions{
		persist:   true,
		observers: []func(decision.Dispatch){collector.ObserveDispatch},
	})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	a.monitor.OnComplete = func(r *model.RunReport) {
		collector.ObserveRun(r)
		latest.set(r)
	}

	w := &watcher{
		monitor:     a.monitor,
		sources:     sourcesFromConfig(cfg),
		concurrency: cfg.Monitoring.Concurrency,
		logger:      logger,
	}

	if opts.once {
		reports := w.pass(ctx)
		printPassSummary(cmd, reports)
		return nil
	}

	var srv *http.Server
	if cfg.Monitoring.Listen != "" {
		srv = &http.Server{
			Addr: cfg.Monitoring.Listen,
			Handler: newRouter(serverDeps{
				metrics: collector.Handler(),
				latest:  latest,
				stats:   a.system.Stats,
				started: time.Now().UTC(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		go func() {
			logger.Info("serving metrics and API", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "error", err)
				stop()
			}
		}()
	}

	retention, err := config.ParseSchedule(DefaultRetentionSchedule)
	if err != nil {
		return err
	}

	c := cron.New()
	c.Schedule(schedule, cron.FuncJob(func() { w.pass(ctx) }))
	c.Schedule(retention, cron.FuncJob(func() { a.prune(ctx, time.Now()) }))
	if digest != nil {
		c.Schedule(digest, cron.FuncJob(func() {
			if err := a.system.SendDigest(ctx, ""); err != nil {
				logger.Error("failed to send alert digest", "error", err)
			}
		}))
	}
	logger.Info("watch started",
		"sources", len(w.sources),
		"schedule", cfg.Monitoring.Schedule,
		"next", schedule.Next(time.Now()),
	)

	serve(ctx, c, func() { w.pass(ctx) }, logger)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
	}
	return nil
}

// serve starts c and runs first immediately, then blocks until ctx is done
// and every running job, first included, has returned. Jobs observe ctx and
// stop early.
func serve(ctx context.Context, c *cron.Cron, first func(), logger *slog.Logger) {
	var wg sync.WaitGroup
	wg.Go(first)
	c.Start()

	<-ctx.Done()
	logger.Info("received shutdown signal, stopping...")

	<-c.Stop().Done()
	wg.Wait()
}

// prune drops alerts, quality reports and anomaly reports older than
// alert.RetentionWindow and deletes limiter keys idle for longer than the
// limiter window plus cooldown from a SQLite store.
func (a *app) prune(ctx context.Context, now time.Time) {
	cutoff := now.Add(-alert.RetentionWindow)

	alerts := a.system.Manager().ClearOlderThan(alert.RetentionWindow)
	reports := a.monitor.Engine.History().Retain(func(r *model.QualityReport) bool {
		return r.Timestamp.After(cutoff)
	})
	reports += a.monitor.Detector.History().Retain(func(r *model.AnomalyReport) bool {
		return r.Timestamp.After(cutoff)
	})

	var keys int64
	if s, ok := a.store.(*ratelimit.SQLiteStore); ok {
		n, err := s.DeleteIdle(ctx, ratelimit.Window+a.cfg.Cooldown())
		if err != nil {
			a.logger.Error("failed to delete idle rate limit keys", "error", err)
		}
		keys = n
	}

	a.logger.Debug("retention pass complete",
		"alerts", alerts,
		"reports", reports,
		"limiter_keys", keys,
	)
}

// watcher runs monitoring passes over a fixed set of sources.
type watcher struct {
	mu sync.Mutex

	monitor     *pipeline.Monitor
	sources     []pipeline.Source
	concurrency int
	logger      *slog.Logger
}

// pass monitors every source once. A pass that starts while another is
// running is skipped. Failures are logged and reported as pipeline alerts
// by the monitor; a pass never aborts the watch loop.
func (w *watcher) pass(ctx context.Context) []*model.RunReport {
	if !w.mu.TryLock() {
		w.logger.Warn("previous monitoring pass still running, skipping")
		return nil
	}
	defer w.mu.Unlock()

	start := time.Now()
	reports, err := w.monitor.RunAll(ctx, w.sources, w.concurrency)
	if err != nil {
		w.logger.Warn("monitoring pass finished with errors", "error", err)
	}

	failed := 0
	for _, r := range reports {
		if r == nil || r.Failed() {
			failed++
		}
	}
	w.logger.Info("monitoring pass complete",
		"sources", len(w.sources),
		"failed", failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return reports
}

// printPassSummary prints one line per report of a --once pass.
func printPassSummary(cmd *cobra.Command, reports []*model.RunReport) {
	out := cmd.OutOrStdout()
	for _, r := range reports {
		if r == nil {
			continue
		}
		s := model.NewRunSummary(r)
		status := "ok"
		if r.Failed() {
			status = "FAILED: " + s.Error
		}
		fmt.Fprintf(out, "%-24s score %6.2f%%  anomalies %5d  alerts %3d  %s\n",
			s.DatasetName, s.QualityScore, s.TotalAnomalies, s.TotalAlerts(), status)
	}
}
