// ABOUTME: Tests for layered configuration
// ABOUTME: Covers TOML decoding, env overrides, flag precedence and validation
package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, SourceNTP, cfg.Source)
	assert.Equal(t, "time.android.com", cfg.NTPHost)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout.Duration())
	assert.True(t, strings.HasSuffix(cfg.Name, "-truetime"))
}

func TestFromReader(t *testing.T) {
	cfg, err := FromReader(strings.NewReader(`
source = "authority"
authority_addr = "10.0.0.5:8928"
query_timeout = "2s"
auto_sync_interval = "1m"
metrics_addr = ":9100"
no_tui = true
`))
	require.NoError(t, err)

	assert.Equal(t, SourceAuthority, cfg.Source)
	assert.Equal(t, "10.0.0.5:8928", cfg.AuthorityAddr)
	assert.Equal(t, 2*time.Second, cfg.QueryTimeout.Duration())
	assert.Equal(t, time.Minute, cfg.AutoSyncInterval.Duration())
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.True(t, cfg.NoTUI)

	// Unset keys keep their defaults.
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := FromReader(strings.NewReader(`ntp_hots = "pool.ntp.org"`))
	assert.Error(t, err)
}

func TestFromReaderRejectsBadDuration(t *testing.T) {
	_, err := FromReader(strings.NewReader(`query_timeout = "soon"`))
	assert.Error(t, err)
}

func TestLoadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truetime.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
ntp_host = "pool.ntp.org"
log_level = "debug"
`), 0o600))

	t.Setenv("TRUETIME_LOG_LEVEL", "warn")
	t.Setenv("TRUETIME_QUERY_TIMEOUT", "750ms")
	t.Setenv("TRUETIME_NO_TUI", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pool.ntp.org", cfg.NTPHost, "file overrides default")
	assert.Equal(t, "warn", cfg.LogLevel, "env overrides file")
	assert.Equal(t, 750*time.Millisecond, cfg.QueryTimeout.Duration())
	assert.True(t, cfg.NoTUI)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("TRUETIME_SOURCE", "authority")
	t.Setenv("TRUETIME_AUTHORITY_ADDR", "clock.local:8928")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceAuthority, cfg.Source)
	assert.Equal(t, "clock.local:8928", cfg.AuthorityAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", "x.toml", "-timeout", "3s", "-no-tui"}))

	cfg := Default()
	cfg.NTPHost = "from-file.example"
	flags.Apply(&cfg)

	assert.Equal(t, "x.toml", flags.ConfigPath())
	assert.Equal(t, 3*time.Second, cfg.QueryTimeout.Duration())
	assert.True(t, cfg.NoTUI)
	assert.Equal(t, "from-file.example", cfg.NTPHost, "unset flag must not clobber")
	assert.Equal(t, SourceNTP, cfg.Source)
}

func TestServerFlagSelectsAuthority(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-server", "10.0.0.5:8928"}))

	cfg := Default()
	flags.Apply(&cfg)

	assert.Equal(t, SourceAuthority, cfg.Source)
	assert.Equal(t, "10.0.0.5:8928", cfg.AuthorityAddr)
}

func TestExplicitSourceWins(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-discover", "-source", "ntp"}))

	cfg := Default()
	flags.Apply(&cfg)

	assert.Equal(t, SourceNTP, cfg.Source)
	assert.True(t, cfg.Discover)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{name: "unknown source", modify: func(c *Config) { c.Source = "gps" }, wantErr: errUnknownSource},
		{name: "empty ntp host", modify: func(c *Config) { c.NTPHost = "" }, wantErr: errNoNTPHost},
		{name: "authority without address", modify: func(c *Config) { c.Source = SourceAuthority }, wantErr: errNoAuthority},
		{name: "zero timeout", modify: func(c *Config) { c.QueryTimeout = 0 }, wantErr: errBadQueryTimeout},
		{name: "negative auto sync", modify: func(c *Config) { c.AutoSyncInterval = Duration(-time.Second) }, wantErr: errBadAutoSync},
		{name: "bad metrics address", modify: func(c *Config) { c.MetricsAddr = "9100" }},
		{name: "bad authority address", modify: func(c *Config) {
			c.Source = SourceAuthority
			c.AuthorityAddr = "no-port"
		}},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAuthorityDiscovery(t *testing.T) {
	cfg := Default()
	cfg.Source = SourceAuthority
	cfg.Discover = true

	assert.NoError(t, cfg.Validate())
}
