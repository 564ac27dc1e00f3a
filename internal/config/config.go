// ABOUTME: Layered configuration for the truetime host binaries
// ABOUTME: Defaults, then an optional TOML file, then TRUETIME_* env, then flags
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment variable, e.g. TRUETIME_SOURCE
const EnvPrefix = "truetime"

// Source kinds
const (
	SourceNTP       = "ntp"
	SourceAuthority = "authority"
)

// Config holds host configuration
type Config struct {
	// Source selects the time source: "ntp" or "authority"
	Source string `toml:"source" split_words:"true"`

	NTPHost string `toml:"ntp_host" split_words:"true"`

	// AuthorityAddr is host:port of a truetime authority
	AuthorityAddr string `toml:"authority_addr" split_words:"true"`

	// Discover finds an authority via mDNS when AuthorityAddr is empty
	Discover bool `toml:"discover" split_words:"true"`

	QueryTimeout Duration `toml:"query_timeout" split_words:"true"`

	// AutoSyncInterval re-syncs periodically; zero disables it
	AutoSyncInterval Duration `toml:"auto_sync_interval" split_words:"true"`

	// MetricsAddr serves Prometheus metrics when set
	MetricsAddr string `toml:"metrics_addr" split_words:"true"`

	LogFile  string `toml:"log_file" split_words:"true"`
	LogLevel string `toml:"log_level" split_words:"true"`
	NoTUI    bool   `toml:"no_tui" split_words:"true"`

	// Name identifies this client to authorities
	Name string `toml:"name" split_words:"true"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Source:       SourceNTP,
		NTPHost:      "time.android.com",
		QueryTimeout: Duration(5 * time.Second),
		LogFile:      "truetime.log",
		LogLevel:     "info",
		Name:         defaultName(),
	}
}

func defaultName() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-truetime", hostname)
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty) and the environment
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(bytes.NewReader(b)); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	return cfg, nil
}

// FromReader loads a TOML config over the defaults
func FromReader(reader io.Reader) (Config, error) {
	cfg := Default()
	if err := cfg.decode(reader); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(reader io.Reader) error {
	dec := toml.NewDecoder(reader)
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}

var (
	errUnknownSource   = errors.New("source must be \"ntp\" or \"authority\"")
	errNoNTPHost       = errors.New("ntp source needs an ntp_host")
	errNoAuthority     = errors.New("authority source needs authority_addr or discover")
	errBadQueryTimeout = errors.New("query_timeout must be positive")
	errBadAutoSync     = errors.New("auto_sync_interval must not be negative")
)

// Validate establishes if the config is valid
func (c Config) Validate() error {
	var errs []error

	switch c.Source {
	case SourceNTP:
		if c.NTPHost == "" {
			errs = append(errs, errNoNTPHost)
		}
	case SourceAuthority:
		if c.AuthorityAddr == "" && !c.Discover {
			errs = append(errs, errNoAuthority)
		}
		if c.AuthorityAddr != "" {
			if _, _, err := net.SplitHostPort(c.AuthorityAddr); err != nil {
				errs = append(errs, fmt.Errorf("authority_addr: %w", err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", errUnknownSource, c.Source))
	}

	if c.QueryTimeout <= 0 {
		errs = append(errs, errBadQueryTimeout)
	}
	if c.AutoSyncInterval < 0 {
		errs = append(errs, errBadAutoSync)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics_addr: %w", err))
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	return errors.Join(errs...)
}

// Flags holds command-line overrides. Only flags the user set are applied.
type Flags struct {
	fs         *flag.FlagSet
	configPath string
	values     Config
}

// RegisterFlags registers the host flags on fs
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs, values: Default()}
	v := &f.values

	fs.StringVar(&f.configPath, "config", "", "Path to a TOML config file")
	fs.StringVar(&v.Source, "source", v.Source, "Time source: ntp or authority")
	fs.StringVar(&v.NTPHost, "ntp-host", v.NTPHost, "NTP server host")
	fs.StringVar(&v.AuthorityAddr, "server", v.AuthorityAddr, "Authority address host:port (skip mDNS)")
	fs.BoolVar(&v.Discover, "discover", v.Discover, "Discover an authority via mDNS")
	fs.Var(&durationFlag{&v.QueryTimeout}, "timeout", "Per-query timeout")
	fs.Var(&durationFlag{&v.AutoSyncInterval}, "auto-sync", "Re-sync interval (0 disables)")
	fs.StringVar(&v.MetricsAddr, "metrics-addr", v.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.StringVar(&v.LogFile, "log-file", v.LogFile, "Log file path")
	fs.StringVar(&v.LogLevel, "log-level", v.LogLevel, "Log level")
	fs.BoolVar(&v.NoTUI, "no-tui", v.NoTUI, "Disable TUI, use streaming logs instead")
	fs.StringVar(&v.Name, "name", v.Name, "Client name (default: hostname-truetime)")

	return f
}

// ConfigPath returns the -config flag value
func (f *Flags) ConfigPath() string {
	return f.configPath
}

// Apply copies the flags that were set onto c
// A -server or -discover flag without -source selects the authority source.
func (f *Flags) Apply(c *Config) {
	sourceSet, authoritySet := false, false

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "source":
			sourceSet = true
			c.Source = f.values.Source
		case "ntp-host":
			c.NTPHost = f.values.NTPHost
		case "server":
			authoritySet = true
			c.AuthorityAddr = f.values.AuthorityAddr
		case "discover":
			authoritySet = true
			c.Discover = f.values.Discover
		case "timeout":
			c.QueryTimeout = f.values.QueryTimeout
		case "auto-sync":
			c.AutoSyncInterval = f.values.AutoSyncInterval
		case "metrics-addr":
			c.MetricsAddr = f.values.MetricsAddr
		case "log-file":
			c.LogFile = f.values.LogFile
		case "log-level":
			c.LogLevel = f.values.LogLevel
		case "no-tui":
			c.NoTUI = f.values.NoTUI
		case "name":
			c.Name = f.values.Name
		}
	})

	if authoritySet && !sourceSet {
		c.Source = SourceAuthority
	}
}

type durationFlag struct {
	d *Duration
}

func (f *durationFlag) String() string {
	if f.d == nil {
		return "0s"
	}
	return f.d.Duration().String()
}

func (f *durationFlag) Set(s string) error {
	return f.d.UnmarshalText([]byte(s))
}
