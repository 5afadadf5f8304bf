package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/api"
	"tools.zach/dev/timetrack/internal/config"
	"tools.zach/dev/timetrack/internal/confirm"
	"tools.zach/dev/timetrack/internal/logger"
	"tools.zach/dev/timetrack/internal/metrics"
	"tools.zach/dev/timetrack/internal/paths"
	"tools.zach/dev/timetrack/internal/project"
	"tools.zach/dev/timetrack/internal/snapshot"
	"tools.zach/dev/timetrack/internal/store"
	"tools.zach/dev/timetrack/internal/tracker"
)

// shutdownTimeout bounds closing the last session and draining writes.
const shutdownTimeout = 15 * time.Second

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

// daemon owns every long-lived component of `timetrack run`.
type daemon struct {
	cfg     *config.Config
	store   store.Store
	tracker *tracker.Tracker
	source  snapshot.Source
	metrics *metrics.Metrics

	// watcher is nil unless the file source is watched.
	watcher *snapshot.Watcher
	// server is nil when the API is disabled.
	server *api.Server

	closeSink func()
}

// newDaemon builds the components from cfg. On error everything opened so
// far is released again.
func newDaemon(ctx context.Context, dp paths.DataDir, cfg *config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg, closeSink: func() {}}
	built := false
	defer func() {
		if built {
			return
		}
		if d.tracker != nil {
			_ = d.tracker.Shutdown(context.Background())
		}
		d.close()
	}()

	var err error
	d.store, err = store.Open(ctx, store.Options{
		Driver:     cfg.Store.Driver,
		DSN:        cfg.Store.DSN,
		DataDir:    dp.Root,
		WarnSizeMB: cfg.Store.WarnSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	matcher, err := newMatcher(dp, cfg.Matcher)
	if err != nil {
		return nil, err
	}

	sink, closeSink, err := confirm.New(confirm.Options{
		Mode:       cfg.Confirm.Mode,
		WebhookURL: cfg.Confirm.WebhookURL,
	})
	if err != nil {
		return nil, fmt.Errorf("confirm sink: %w", err)
	}
	d.closeSink = closeSink

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.metrics = metrics.New(reg)

	d.tracker = tracker.New(d.store, sink, matcher,
		tracker.WithMinDuration(cfg.MinSession()),
		tracker.WithStoreTimeout(cfg.StoreTimeout()),
		tracker.WithIgnore(cfg.IsIgnored),
		tracker.WithMetrics(d.metrics),
	)

	probe := cfg.Source.File
	if probe == "" {
		probe = dp.Probe()
	}
	d.source, err = snapshot.New(snapshot.Options{
		Kind:    cfg.Source.Kind,
		File:    probe,
		Command: cfg.Source.Command,
		Timeout: cfg.CommandTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot source: %w", err)
	}
	if cfg.Source.Kind == "file" && cfg.Source.Watch {
		d.watcher = snapshot.NewWatcher(probe, snapshot.WithPollInterval(cfg.PollInterval()))
		if d.watcher.Polling() {
			slog.Info("probe file watch unavailable, relying on polls", "path", probe)
		}
	}

	if cfg.API.Enabled {
		d.server, err = api.Listen(cfg.API.Listen, api.NewRouter(d.tracker, d.store, reg))
		if err != nil {
			return nil, err
		}
	}
	built = true
	return d, nil
}

// newMatcher builds the project matcher, restoring and persisting the recency
// cache when configured.
func newMatcher(dp paths.DataDir, mc config.MatcherConfig) (*project.Matcher, error) {
	var opts []project.Option
	if mc.PersistRecent {
		opts = append(opts, project.WithOnChange(func(recent []string) {
			if err := project.SaveRecent(dp.Recent(), recent); err != nil {
				slog.Warn("failed to save recent projects", "error", err)
			}
		}))
	}
	m, err := project.NewMatcher(mc.Prefixes, mc.RecentSize, opts...)
	if err != nil {
		return nil, err
	}
	if mc.PersistRecent {
		recent, err := project.LoadRecent(dp.Recent())
		if err != nil {
			slog.Warn("ignoring unreadable recent projects", "error", err)
		}
		m.Restore(recent)
	}
	return m, nil
}

// run polls and serves until ctx is canceled or a component fails, then
// closes the open session and drains pending writes.
func (d *daemon) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if d.server != nil {
		g.Go(func() error { return d.server.Serve(gctx) })
	}

	var events <-chan struct{}
	if d.watcher != nil {
		events = d.watcher.Events()
	}
	g.Go(func() error {
		pollLoop(gctx, d.source, d.tracker, d.metrics, d.cfg.PollInterval(), events)
		return nil
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.tracker.Shutdown(shutdownCtx); err != nil {
		slog.Warn("tracker shutdown incomplete", "error", err)
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// close releases what newDaemon opened. Safe on a partially built daemon.
func (d *daemon) close() {
	if d.watcher != nil {
		d.watcher.Close()
	}
	d.closeSink()
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}
}

// ///////////////////////////////////////////////
// Poll Loop
// ///////////////////////////////////////////////

// snapshotter is the tracker side of the poll loop.
type snapshotter interface {
	OnSnapshot(snap *activity.WindowSnapshot)
}

// pollLoop feeds one snapshot to tr immediately, then on every tick and every
// probe change event until ctx is done. A failed snapshot skips the cycle.
func pollLoop(ctx context.Context, src snapshot.Source, tr snapshotter, m *metrics.Metrics, interval time.Duration, events <-chan struct{}) {
	poll := func() {
		snap, err := src.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.Skipped("source_error")
			slog.Warn("snapshot failed, skipping poll", "error", err)
			return
		}
		if snap != nil {
			logger.Trace(slog.Default(), "snapshot", "app", snap.Application, "title", snap.Title)
		}
		tr.OnSnapshot(snap)
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		case <-events:
			poll()
		}
	}
}
