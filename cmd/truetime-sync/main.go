// ABOUTME: One-shot sync tool
// ABOUTME: Queries the configured source once and prints local time, true time and drift
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/harperreed/truetime-go/internal/config"
	"github.com/harperreed/truetime-go/internal/ui"
	"github.com/harperreed/truetime-go/pkg/discovery"
	"github.com/harperreed/truetime-go/pkg/source"
	"github.com/harperreed/truetime-go/pkg/truetime"
	"github.com/sirupsen/logrus"
)

const (
	timeLayout      = "2006-01-02 15:04:05.000"
	discoveryWindow = 3 * time.Second
)

func main() {
	flags := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Load(flags.ConfigPath())
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}

	logger := logrus.New()
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)

	var src truetime.Source
	host := cfg.NTPHost
	switch cfg.Source {
	case config.SourceAuthority:
		host = cfg.AuthorityAddr
		if host == "" {
			services, err := discovery.Discover(context.Background(), discoveryWindow)
			if err != nil {
				logger.Fatalf("Discovery failed: %v", err)
			}
			for _, svc := range services {
				fmt.Printf("Found authority %s at %s\n", svc.Name, svc.Addr())
			}
			host = services[0].Addr()
		}
		src = source.NewAuthority(source.AuthorityConfig{
			Addr:    host,
			Name:    cfg.Name,
			Timeout: cfg.QueryTimeout.Duration(),
			Logger:  logger,
		})
	default:
		src = source.NewNTP(source.NTPConfig{
			Host:    cfg.NTPHost,
			Timeout: cfg.QueryTimeout.Duration(),
			Logger:  logger,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.QueryTimeout.Duration())
	defer cancel()

	fmt.Printf("Querying %s...\n", host)
	anchor, err := source.QueryOnce(ctx, src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		os.Exit(1)
	}

	clock := truetime.SystemClock{}
	est := truetime.ComputeEstimate(anchor, clock.MonotonicMs(), clock.WallClockMs())

	fmt.Printf("Local time:    %s\n", est.LocalTime().Format(timeLayout))
	fmt.Printf("True time:     %s\n", est.TrueTime().Format(timeLayout))
	fmt.Printf("Drift:         %s\n", ui.DriftText(est.DriftMs))
	fmt.Printf("Drift (ms):    %d\n", est.DriftMs)
	fmt.Printf("Boot relative: %dms\n", anchor.BootRelativeTrueTimeMs())
	fmt.Printf("Server:        %s\n", host)
}
