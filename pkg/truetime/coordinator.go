// ABOUTME: Sync coordinator owning the single in-flight time query
// ABOUTME: Serializes restarts, results and shutdown on one goroutine and drops stale results
package truetime

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of the current sync attempt.
type State int

const (
	StateIdle State = iota
	StateInFlight
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in-flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config configures a Coordinator.
type Config struct {
	// Source answers time queries. A nil Source fails every attempt with
	// ErrSourceUnavailable.
	Source Source

	// Clock supplies local readings (default: SystemClock).
	Clock Clock

	// Observer is notified of results. It can be replaced with SetObserver.
	Observer Observer

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// Metrics is optional.
	Metrics *Metrics
}

// Coordinator manages sync attempts against a Source and keeps the most
// recent Anchor. It is safe for concurrent use.
type Coordinator struct {
	source  Source
	clock   Clock
	logger  logrus.FieldLogger
	metrics *Metrics

	// Event queue feeding run. Never blocks producers.
	queueMu sync.Mutex
	queue   []event
	wake    chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Owned by run.
	generation uint64
	attemptID  string
	cancel     CancelFunc

	// Published for readers.
	mu        sync.RWMutex
	state     State
	anchor    Anchor
	hasAnchor bool
	lastErr   error
	observer  Observer
}

type event interface{}

type startEvent struct{}

type resultEvent struct {
	generation uint64
	anchor     Anchor
	err        error
}

// NewCoordinator creates a coordinator and starts its goroutine. Call Shutdown
// to stop it.
func NewCoordinator(config Config) *Coordinator {
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	c := &Coordinator{
		source:   config.Source,
		clock:    config.Clock,
		logger:   config.Logger,
		metrics:  config.Metrics,
		observer: config.Observer,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.run()
	return c
}

// StartSync begins a new attempt, cancelling the one in flight if any. The
// outcome is reported to the observer. It does not wait for the network.
func (c *Coordinator) StartSync() {
	select {
	case <-c.stop:
		c.logger.Warn("sync requested after shutdown; ignoring")
		return
	default:
	}
	c.enqueue(startEvent{})
}

// SampleCurrentEstimate recomputes true time and drift from the current
// anchor. It returns false if no sync has succeeded yet.
func (c *Coordinator) SampleCurrentEstimate() (Estimate, bool) {
	anchor, ok := c.Anchor()
	if !ok {
		return Estimate{}, false
	}
	return ComputeEstimate(anchor, c.clock.MonotonicMs(), c.clock.WallClockMs()), true
}

// Shutdown cancels the in-flight attempt and stops the coordinator. It waits
// for the coordinator goroutine to exit and may be called more than once. It
// must not be called from an Observer callback.
func (c *Coordinator) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

// Anchor returns the most recent anchor.
func (c *Coordinator) Anchor() (Anchor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anchor, c.hasAnchor
}

// State returns the state of the current attempt.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the reason the most recent attempt failed, or nil.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// SetObserver replaces the observer.
func (c *Coordinator) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

func (c *Coordinator) enqueue(ev event) {
	c.queueMu.Lock()
	c.queue = append(c.queue, ev)
	c.queueMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) drain() []event {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	events := c.queue
	c.queue = nil
	return events
}

// run is the only goroutine that touches the attempt fields.
func (c *Coordinator) run() {
	defer close(c.done)

	for {
		select {
		case <-c.stop:
			c.release(outcomeShutdown)
			return
		case <-c.wake:
		}

		for _, ev := range c.drain() {
			// Prioritize stop over queued work.
			select {
			case <-c.stop:
				c.release(outcomeShutdown)
				return
			default:
			}

			switch ev := ev.(type) {
			case startEvent:
				c.handleStart()
			case resultEvent:
				c.handleResult(ev)
			}
		}
	}
}

// release cancels the in-flight query, if any.
func (c *Coordinator) release(outcome string) {
	if c.cancel == nil {
		return
	}

	cancel := c.cancel
	c.cancel = nil
	c.safeCancel(cancel)
	c.metrics.attemptEnded(outcome)
	c.logger.WithFields(logrus.Fields{
		"attempt":    c.attemptID,
		"generation": c.generation,
		"reason":     outcome,
	}).Debug("released in-flight sync attempt")

	if outcome == outcomeShutdown {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}
}

// safeCancel runs a source's cancel func; a panic there must not stop the loop.
func (c *Coordinator) safeCancel(cancel CancelFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("cancelling sync attempt failed")
		}
	}()
	cancel()
}

func (c *Coordinator) handleStart() {
	c.release(outcomeSuperseded)

	c.generation++
	c.attemptID = uuid.New().String()
	gen := c.generation

	c.mu.Lock()
	c.state = StateInFlight
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"attempt":    c.attemptID,
		"generation": gen,
	}).Info("starting time sync")

	cancel, err := c.query(gen)
	if err != nil {
		c.handleResult(resultEvent{generation: gen, err: err})
		return
	}
	c.cancel = cancel
}

// query starts the source operation for generation gen. Results are queued
// back onto run.
func (c *Coordinator) query(gen uint64) (cancel CancelFunc, err error) {
	if c.source == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrSourceUnavailable)
	}

	defer func() {
		if r := recover(); r != nil {
			cancel = nil
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, r)
		}
	}()

	cancel = c.source.Query(
		func(serverWallTimeAtReceiptMs, monotonicAtReceiptMs int64) {
			c.enqueue(resultEvent{
				generation: gen,
				anchor: Anchor{
					ServerWallTimeAtReceiptMs: serverWallTimeAtReceiptMs,
					MonotonicAtReceiptMs:      monotonicAtReceiptMs,
				},
			})
		},
		func(reason error) {
			if reason == nil {
				reason = fmt.Errorf("%w: failure without reason", ErrSourceUnavailable)
			}
			c.enqueue(resultEvent{generation: gen, err: reason})
		},
	)
	if cancel == nil {
		cancel = func() {}
	}
	return cancel, nil
}

func (c *Coordinator) handleResult(ev resultEvent) {
	logger := c.logger.WithFields(logrus.Fields{
		"attempt":    c.attemptID,
		"generation": ev.generation,
	})

	c.mu.RLock()
	inFlight := c.state == StateInFlight
	observer := c.observer
	c.mu.RUnlock()

	if ev.generation != c.generation || !inFlight {
		c.metrics.staleDiscarded()
		logger.WithField("current_generation", c.generation).Debug("discarding stale sync result")
		return
	}

	// The attempt is complete; its cancel func has nothing left to release.
	c.cancel = nil

	if ev.err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.lastErr = ev.err
		c.mu.Unlock()

		c.metrics.attemptEnded(outcomeFailed)
		logger.WithError(ev.err).Warn("time sync failed")
		c.notify(observer, func(o Observer) { o.OnSyncFailed(ev.err) })
		return
	}

	c.mu.Lock()
	c.state = StateSucceeded
	c.anchor = ev.anchor
	c.hasAnchor = true
	c.lastErr = nil
	c.mu.Unlock()

	est := ComputeEstimate(ev.anchor, c.clock.MonotonicMs(), c.clock.WallClockMs())
	c.metrics.synced(est)
	logger.WithFields(logrus.Fields{
		"boot_relative_ms": ev.anchor.BootRelativeTrueTimeMs(),
		"drift_ms":         est.DriftMs,
	}).Info("time sync succeeded")
	c.notify(observer, func(o Observer) { o.OnSyncSucceeded(est) })
}

// notify calls the observer, containing any panic so the loop keeps running.
func (c *Coordinator) notify(observer Observer, call func(Observer)) {
	if observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("sync observer panicked")
		}
	}()
	call(observer)
}
