// ABOUTME: Truetime authority source over the WebSocket protocol
// ABOUTME: Performs one client/time exchange per query and anchors the NTP-style estimate
package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/truetime-go/pkg/protocol"
	"github.com/harperreed/truetime-go/pkg/truetime"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// AuthorityConfig configures an authority source
type AuthorityConfig struct {
	// Addr is the authority's host:port
	Addr string

	// Name identifies this client to the authority
	Name string

	// ClientID is sent in client/hello. When empty each query uses a fresh
	// UUID so a superseded connection cannot collide with its replacement.
	ClientID string

	DeviceInfo protocol.DeviceInfo

	// Timeout bounds connect plus exchange (default: 5s)
	Timeout time.Duration

	// Clock supplies local readings (default: truetime.SystemClock)
	Clock truetime.Clock

	// Timers drives the timeout (default: the real clock)
	Timers clockwork.Clock

	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger
}

// Authority queries a truetime authority once per Query call
type Authority struct {
	config AuthorityConfig
	logger logrus.FieldLogger
}

var _ truetime.Source = (*Authority)(nil)

// errRejected is wrapped when the authority answers with server/error
var errRejected = errors.New("rejected by authority")

// NewAuthority creates an authority source
func NewAuthority(config AuthorityConfig) *Authority {
	if config.Name == "" {
		config.Name = "truetime"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Clock == nil {
		config.Clock = truetime.SystemClock{}
	}
	if config.Timers == nil {
		config.Timers = clockwork.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &Authority{
		config: config,
		logger: config.Logger.WithFields(logrus.Fields{"source": "authority", "host": config.Addr}),
	}
}

// Addr returns the authority address
func (a *Authority) Addr() string {
	return a.config.Addr
}

// Query implements truetime.Source
func (a *Authority) Query(onSuccess func(int64, int64), onFailure func(error)) truetime.CancelFunc {
	q := newQuery(onSuccess, onFailure)

	if a.config.Addr == "" {
		q.fail(fmt.Errorf("%w: no authority address", truetime.ErrSourceUnavailable))
		return q.cancel
	}

	go a.run(q)
	return q.cancel
}

type anchorResult struct {
	anchor truetime.Anchor
	err    error
}

// run enforces the timeout around exchange
func (a *Authority) run(q *query) {
	timer := a.config.Timers.NewTimer(a.config.Timeout)
	defer timer.Stop()

	results := make(chan anchorResult, 1)
	go func() {
		results <- a.exchange(q)
	}()

	select {
	case r := <-results:
		if r.err != nil {
			q.fail(r.err)
			return
		}
		q.succeed(r.anchor.ServerWallTimeAtReceiptMs, r.anchor.MonotonicAtReceiptMs)

	case <-timer.Chan():
		a.logger.Debug("Authority query timed out")
		q.fail(&truetime.NetworkError{Op: "query", Host: a.config.Addr, Err: truetime.ErrTimeout})
		<-results

	case <-q.ctx.Done():
		a.logger.Debug("Authority query cancelled")
		<-results
	}
}

// exchange connects, sends client/time and waits for server/time
func (a *Authority) exchange(q *query) anchorResult {
	clientID := a.config.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	client := protocol.NewClient(protocol.Config{
		ServerAddr: a.config.Addr,
		ClientID:   clientID,
		Name:       a.config.Name,
		DeviceInfo: a.config.DeviceInfo,
		Logger:     a.logger,
	})
	q.track(client.Close)

	if err := client.Connect(q.ctx); err != nil {
		return anchorResult{err: &truetime.NetworkError{Op: "connect", Host: a.config.Addr, Err: err}}
	}

	t1 := a.config.Clock.WallClockMs() * 1000
	if err := client.SendTimeSync(t1); err != nil {
		return anchorResult{err: &truetime.NetworkError{Op: "send", Host: a.config.Addr, Err: err}}
	}

	select {
	case resp := <-client.TimeSyncResp:
		mono := a.config.Clock.MonotonicMs()
		t4 := a.config.Clock.WallClockMs() * 1000

		exchange := protocol.NewExchange(resp, t4)
		a.logger.WithFields(logrus.Fields{
			"offset_us": exchange.Offset(),
			"rtt_us":    exchange.RTT(),
		}).Debug("Authority response")

		if err := client.SendGoodbye("synced"); err != nil {
			a.logger.WithError(err).Debug("Failed to send goodbye")
		}

		return anchorResult{anchor: truetime.Anchor{
			ServerWallTimeAtReceiptMs: exchange.ServerTimeAtReceipt() / 1000,
			MonotonicAtReceiptMs:      mono,
		}}

	case serverErr := <-client.Errors:
		return anchorResult{err: &truetime.NetworkError{
			Op:   "query",
			Host: a.config.Addr,
			Err:  fmt.Errorf("%w: %s: %s", errRejected, serverErr.Code, serverErr.Message),
		}}

	case <-client.Done():
		return anchorResult{err: &truetime.NetworkError{Op: "read", Host: a.config.Addr, Err: errors.New("connection closed")}}

	case <-q.ctx.Done():
		return anchorResult{err: q.ctx.Err()}
	}
}
