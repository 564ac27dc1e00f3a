// ABOUTME: Main host application orchestration
// ABOUTME: Wires config, source, coordinator, TUI, auto-sync and metrics together
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/truetime-go/internal/config"
	"github.com/harperreed/truetime-go/internal/discovery"
	"github.com/harperreed/truetime-go/internal/ui"
	"github.com/harperreed/truetime-go/internal/version"
	"github.com/harperreed/truetime-go/pkg/protocol"
	"github.com/harperreed/truetime-go/pkg/source"
	"github.com/harperreed/truetime-go/pkg/truetime"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DiscoveryTimeout bounds the wait for an mDNS authority
const DiscoveryTimeout = 10 * time.Second

// Options supplies collaborators; zero values use the real ones
type Options struct {
	Logger logrus.FieldLogger

	// Clock supplies local readings (default: truetime.SystemClock)
	Clock truetime.Clock

	// Timers drives auto-sync (default: the real clock)
	Timers clockwork.Clock

	// Source replaces the source built from config
	Source truetime.Source

	// SourceName is shown for a replaced Source
	SourceName string
}

// App is the truetime host application
type App struct {
	config   config.Config
	logger   logrus.FieldLogger
	clock    truetime.Clock
	timers   clockwork.Clock
	registry *prometheus.Registry
	metrics  *truetime.Metrics

	source     truetime.Source
	sourceName string
}

// New creates the application
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = truetime.SystemClock{}
	}
	if opts.Timers == nil {
		opts.Timers = clockwork.NewRealClock()
	}

	a := &App{
		config:     cfg,
		logger:     opts.Logger,
		clock:      opts.Clock,
		timers:     opts.Timers,
		registry:   prometheus.NewRegistry(),
		metrics:    truetime.NewMetrics(),
		source:     opts.Source,
		sourceName: opts.SourceName,
	}

	a.registry.MustRegister(
		a.metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return a, nil
}

// MetricsHandler serves the application's Prometheus registry
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Run syncs until ctx is cancelled or the user quits. The in-flight attempt
// is released before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, server, err := a.resolveSource(ctx)
	if err != nil {
		return err
	}
	a.logger.WithField("host", server).Infof("Using %s time source", a.config.Source)

	coord := truetime.NewCoordinator(truetime.Config{
		Source:  src,
		Clock:   a.clock,
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	defer coord.Shutdown()

	observers := truetime.MultiObserver{a.logObserver()}
	send := func(tea.Msg) {}

	var prog *tea.Program
	var controls *ui.Controls
	if !a.config.NoTUI {
		controls = ui.NewControls()
		prog = ui.Run(ui.Options{
			Server:   server,
			Clock:    a.clock,
			Sample:   coord.SampleCurrentEstimate,
			Controls: controls,
		})
		send = prog.Send
		observers = append(observers, ui.NewObserver(prog.Send))
	}
	coord.SetObserver(observers)

	g, gctx := errgroup.WithContext(ctx)

	if prog != nil {
		g.Go(func() error {
			defer cancel()
			if _, err := prog.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			prog.Quit()
			return nil
		})
	}

	if a.config.MetricsAddr != "" {
		g.Go(func() error {
			return a.serveMetrics(gctx)
		})
	}

	g.Go(func() error {
		return a.syncLoop(gctx, coord, server, controls, send, cancel)
	})

	return g.Wait()
}

// resolveSource builds the configured source, discovering an authority if asked to
func (a *App) resolveSource(ctx context.Context) (truetime.Source, string, error) {
	if a.source != nil {
		return a.source, a.sourceName, nil
	}

	timeout := a.config.QueryTimeout.Duration()

	switch a.config.Source {
	case config.SourceAuthority:
		addr := a.config.AuthorityAddr
		if addr == "" {
			var err error
			if addr, err = a.discover(ctx); err != nil {
				return nil, "", err
			}
		}
		return source.NewAuthority(source.AuthorityConfig{
			Addr:    addr,
			Name:    a.config.Name,
			Timeout: timeout,
			Clock:   a.clock,
			Logger:  a.logger,
			DeviceInfo: protocol.DeviceInfo{
				ProductName:     version.Product,
				Manufacturer:    version.Manufacturer,
				SoftwareVersion: version.Version,
			},
		}), addr, nil

	default:
		return source.NewNTP(source.NTPConfig{
			Host:    a.config.NTPHost,
			Timeout: timeout,
			Clock:   a.clock,
			Logger:  a.logger,
		}), a.config.NTPHost, nil
	}
}

// discover waits for the first authority advertised via mDNS
func (a *App) discover(ctx context.Context) (string, error) {
	a.logger.Info("Starting authority discovery...")

	disc := discovery.NewManager(discovery.Config{Logger: a.logger})
	defer disc.Stop()

	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	server, err := disc.Discover(ctx)
	if err != nil {
		return "", err
	}

	a.logger.Infof("Discovered authority %s at %s", server.Name, server.Addr())
	return server.Addr(), nil
}

// syncLoop starts the first sync, then re-syncs on request or on the auto-sync interval
func (a *App) syncLoop(ctx context.Context, coord *truetime.Coordinator, server string, controls *ui.Controls, send func(tea.Msg), stop func()) error {
	var requests, quit <-chan struct{}
	if controls != nil {
		requests = controls.SyncRequests
		quit = controls.Quit
	}

	var autoSync <-chan time.Time
	if interval := a.config.AutoSyncInterval.Duration(); interval > 0 {
		ticker := a.timers.NewTicker(interval)
		defer ticker.Stop()
		autoSync = ticker.Chan()
	}

	startSync := func(reason string) {
		a.logger.WithField("reason", reason).Debug("Requesting sync")
		send(ui.SyncStartedMsg{Server: server})
		coord.StartSync()
	}

	startSync("startup")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-requests:
			startSync("user")
		case <-autoSync:
			startSync("auto")
		case <-quit:
			a.logger.Info("Received quit signal from TUI")
			stop()
			return nil
		}
	}
}

// serveMetrics serves /metrics until ctx ends
func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())

	srv := &http.Server{
		Addr:              a.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.logger.Infof("Serving metrics on %s", a.config.MetricsAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// logObserver reports results in the streaming log
func (a *App) logObserver() truetime.Observer {
	return truetime.ObserverFuncs{
		Succeeded: func(est truetime.Estimate) {
			a.logger.WithFields(logrus.Fields{
				"local": est.LocalTime().Format(time.RFC3339Nano),
				"true":  est.TrueTime().Format(time.RFC3339Nano),
			}).Infof("Drift: %s", ui.DriftText(est.DriftMs))
		},
		Failed: func(err error) {
			a.logger.WithError(err).Warn("Sync failed")
		},
	}
}
