// ABOUTME: Entry point for the truetime authority server
// ABOUTME: Parses CLI flags and serves time over websocket until signalled
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/truetime-go/pkg/authority"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	port        = flag.Int("port", authority.DefaultPort, "WebSocket server port")
	name        = flag.String("name", "", "Server friendly name (default: hostname-truetime-authority)")
	logFile     = flag.String("log-file", "truetime-authority.log", "Log file path")
	logLevel    = flag.String("log-level", "info", "Log level")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	rate        = flag.Float64("rate", authority.DefaultRequestRate, "client/time requests per second allowed per client")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
)

func main() {
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level: %v", err)
	}

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logrus.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(io.MultiWriter(os.Stdout, f))

	// Determine server name
	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-truetime-authority", hostname)
	}

	logger.Infof("Starting truetime authority: %s on port %d", serverName, *port)
	logger.Infof("Logging to: %s", *logFile)
	logger.Info("Press Ctrl-C to stop")

	registry := prometheus.NewRegistry()

	srv, err := authority.NewServer(authority.Config{
		Port:        *port,
		Name:        serverName,
		EnableMDNS:  !*noMDNS,
		RequestRate: *rate,
		Logger:      logger,
		Registerer:  registry,
	})
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		srv.Stop()
		return nil
	})

	if *metricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, logger, registry)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Info("Server stopped")
}

func serveMetrics(ctx context.Context, logger logrus.FieldLogger, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	metricsSrv := &http.Server{
		Addr:              *metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving metrics on %s", *metricsAddr)
	if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
