// ABOUTME: NTP time source built on beevik/ntp
// ABOUTME: Anchors local wall time plus the measured clock offset to the monotonic clock
package source

import (
	"fmt"
	"net"
	"time"

	"github.com/beevik/ntp"
	"github.com/harperreed/truetime-go/pkg/truetime"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultNTPHost is used when no host is configured
	DefaultNTPHost = "time.android.com"

	// DefaultTimeout bounds one exchange
	DefaultTimeout = 5 * time.Second
)

// NTPConfig configures an NTP source
type NTPConfig struct {
	// Host is an NTP server, optionally with :port (default: time.android.com)
	Host string

	// Timeout bounds each query (default: 5s)
	Timeout time.Duration

	// Clock supplies the monotonic reading at receipt (default: truetime.SystemClock)
	Clock truetime.Clock

	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger
}

// queryFunc matches ntp.QueryWithOptions
type queryFunc func(host string, opts ntp.QueryOptions) (*ntp.Response, error)

// NTP queries an NTP server once per Query call
type NTP struct {
	host    string
	timeout time.Duration
	clock   truetime.Clock
	logger  logrus.FieldLogger
	query   queryFunc
}

var _ truetime.Source = (*NTP)(nil)

// NewNTP creates an NTP source
func NewNTP(config NTPConfig) *NTP {
	if config.Host == "" {
		config.Host = DefaultNTPHost
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Clock == nil {
		config.Clock = truetime.SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &NTP{
		host:    config.Host,
		timeout: config.Timeout,
		clock:   config.Clock,
		logger:  config.Logger.WithFields(logrus.Fields{"source": "ntp", "host": config.Host}),
		query:   ntp.QueryWithOptions,
	}
}

// Host returns the configured NTP server
func (n *NTP) Host() string {
	return n.host
}

// Query implements truetime.Source
func (n *NTP) Query(onSuccess func(int64, int64), onFailure func(error)) truetime.CancelFunc {
	q := newQuery(onSuccess, onFailure)
	go n.run(q)
	return q.cancel
}

func (n *NTP) run(q *query) {
	opts := ntp.QueryOptions{
		Timeout: n.timeout,
		Dialer: func(localAddress, remoteAddress string) (net.Conn, error) {
			var d net.Dialer
			if localAddress != "" {
				d.LocalAddr = &net.UDPAddr{IP: net.ParseIP(localAddress)}
			}
			conn, err := d.DialContext(q.ctx, "udp", remoteAddress)
			if err != nil {
				return nil, err
			}
			// Closing the socket is what unblocks a cancelled query.
			q.track(func() { conn.Close() })
			return conn, nil
		},
	}

	n.logger.Debug("Sending NTP query")
	resp, err := n.query(n.host, opts)

	// Capture both readings as close to receipt as possible.
	mono := n.clock.MonotonicMs()
	wall := n.clock.WallClockMs()

	if q.ctx.Err() != nil {
		n.logger.Debug("NTP query cancelled")
		return
	}

	if err != nil {
		q.fail(&truetime.NetworkError{Op: "query", Host: n.host, Err: err})
		return
	}

	if err := resp.Validate(); err != nil {
		q.fail(&truetime.NetworkError{Op: "validate", Host: n.host, Err: fmt.Errorf("invalid NTP response: %w", err)})
		return
	}

	n.logger.WithFields(logrus.Fields{
		"offset":  resp.ClockOffset,
		"rtt":     resp.RTT,
		"stratum": resp.Stratum,
	}).Debug("NTP response")

	q.succeed(wall+resp.ClockOffset.Milliseconds(), mono)
}
