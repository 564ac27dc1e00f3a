// ABOUTME: Entry point for the truetime host
// ABOUTME: Loads config, sets up logging and runs the sync application
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/truetime-go/internal/app"
	"github.com/harperreed/truetime-go/internal/config"
	"github.com/harperreed/truetime-go/internal/version"
	"github.com/sirupsen/logrus"
)

func main() {
	flags := config.RegisterFlags(flag.CommandLine)
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(flags.ConfigPath())
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	flags.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}

	// Set up logging
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logrus.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	logger := logrus.New()
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)

	if cfg.NoTUI {
		// Streaming logs mode: log to both stdout and file
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
		logger.Infof("Starting %s: %s", version.String(), cfg.Name)
	} else {
		// TUI mode: log only to file
		logger.SetOutput(f)
	}

	a, err := app.New(cfg, app.Options{Logger: logger})
	if err != nil {
		logger.Fatalf("Failed to create app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.WithError(err).Error("Exited with error")
		_ = f.Close()
		os.Exit(1)
	}

	logger.Info("Stopped")
}
