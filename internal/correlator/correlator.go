// Package correlator multiplexes a single event-bus connection across
// many concurrent in-flight requests, each identified by a correlation
// id, waking the request that matches an inbound result frame.
package correlator

import (
	"context"
	"time"

	"github.com/godbolt/ce-router/internal/metrics"
	"github.com/godbolt/ce-router/pkg/logging"
)

// busClient is the subset of eventbus.Bus the correlator drives.
type busClient interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	Ack(ctx context.Context, topic string) error
}

type waiter struct {
	resultCh chan Result
	timer    *time.Timer
}

type registerCmd struct {
	correlationID string
	timeout       time.Duration
	resultCh      chan Result
}

type unsubscribeCmd struct {
	correlationID string
}

type timeoutMsg struct {
	correlationID string
}

type frameMsg struct {
	data map[string]interface{}
}

// Correlator owns the waiter mapping from a single run goroutine; no
// other goroutine touches it directly.
type Correlator struct {
	bus           busClient
	objects       resultFetcher
	resultsPrefix string
	logger        *logging.Logger
	m             *metrics.Metrics

	registers     chan registerCmd
	unsubscribes  chan unsubscribeCmd
	timeouts      chan timeoutMsg
	frames        chan frameMsg
}

// New builds a Correlator. Run must be started before Subscribe,
// WaitForResult, or Unsubscribe are called.
func New(bus busClient, objects resultFetcher, resultsPrefix string, logger *logging.Logger, m *metrics.Metrics) *Correlator {
	if bus == nil {
		panic("correlator: bus cannot be nil")
	}
	if objects == nil {
		panic("correlator: object store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Correlator{
		bus:           bus,
		objects:       objects,
		resultsPrefix: resultsPrefix,
		logger:        logger,
		m:             m,
		registers:     make(chan registerCmd),
		unsubscribes:  make(chan unsubscribeCmd),
		timeouts:      make(chan timeoutMsg),
		frames:        make(chan frameMsg, 64),
	}
}

// Subscribe asks the event bus to subscribe to correlationID. It does
// not create a waiter.
func (c *Correlator) Subscribe(ctx context.Context, correlationID string) error {
	return c.bus.Subscribe(ctx, correlationID)
}

// Unsubscribe removes any waiter for correlationID and tells the event
// bus to drop the subscription.
func (c *Correlator) Unsubscribe(ctx context.Context, correlationID string) error {
	c.unsubscribes <- unsubscribeCmd{correlationID: correlationID}
	return c.bus.Unsubscribe(ctx, correlationID)
}

// OnMessage feeds one decoded bus frame into the correlator. Safe to
// call from the event-bus client's consuming goroutine.
func (c *Correlator) OnMessage(frame map[string]interface{}) {
	select {
	case c.frames <- frameMsg{data: frame}:
	default:
		c.logger.Warn("correlator: frame queue full, dropping message")
	}
}

// WaitForResult registers a waiter for correlationID and blocks until a
// matching result arrives or timeout elapses. It is an error to call
// this twice concurrently for the same id.
func (c *Correlator) WaitForResult(ctx context.Context, correlationID string, timeout time.Duration) (map[string]interface{}, error) {
	resultCh := make(chan Result, 1)
	select {
	case c.registers <- registerCmd{correlationID: correlationID, timeout: timeout, resultCh: resultCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.Payload, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run owns the waiter map and processes registrations, unsubscribes,
// timeouts, and inbound frames until ctx is cancelled.
func (c *Correlator) Run(ctx context.Context) {
	waiters := map[string]*waiter{}

	cleanup := func() {
		for id, w := range waiters {
			w.timer.Stop()
			delete(waiters, id)
		}
	}

	for {
		select {
		case <-ctx.Done():
			cleanup()
			return

		case cmd := <-c.registers:
			if _, exists := waiters[cmd.correlationID]; exists {
				cmd.resultCh <- Result{Err: ErrAlreadyWaiting}
				continue
			}
			id := cmd.correlationID
			w := &waiter{resultCh: cmd.resultCh}
			w.timer = time.AfterFunc(cmd.timeout, func() {
				select {
				case c.timeouts <- timeoutMsg{correlationID: id}:
				case <-ctx.Done():
				}
			})
			waiters[id] = w
			c.m.WaitersActive(len(waiters))

		case uc := <-c.unsubscribes:
			if w, ok := waiters[uc.correlationID]; ok {
				w.timer.Stop()
				delete(waiters, uc.correlationID)
				c.m.WaitersActive(len(waiters))
			}

		case t := <-c.timeouts:
			w, ok := waiters[t.correlationID]
			if !ok {
				continue
			}
			delete(waiters, t.correlationID)
			c.m.WaitersActive(len(waiters))
			c.m.CorrelatorResolved("timeout")
			go func(id string, w *waiter) {
				_ = c.bus.Unsubscribe(context.Background(), id)
				w.resultCh <- Result{Err: ErrTimeout}
			}(t.correlationID, w)

		case f := <-c.frames:
			guid, _ := f.data["guid"].(string)
			if guid == "" {
				continue
			}
			w, ok := waiters[guid]
			if !ok {
				continue
			}
			w.timer.Stop()
			delete(waiters, guid)
			c.m.WaitersActive(len(waiters))
			c.m.CorrelatorResolved("delivered")
			go c.completeWaiter(guid, w, f.data)
		}
	}
}

// completeWaiter acks the delivery, unsubscribes, resolves any
// overflowed payload, and hands the final result to the waiting
// request. Runs off the actor goroutine so network I/O never blocks
// the waiter map.
func (c *Correlator) completeWaiter(guid string, w *waiter, frame map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.bus.Ack(ctx, guid); err != nil {
		c.logger.Warn("correlator: ack failed", "error", err, "guid", guid)
	}
	if err := c.bus.Unsubscribe(ctx, guid); err != nil {
		c.logger.Warn("correlator: unsubscribe failed", "error", err, "guid", guid)
	}

	payload := resolve(ctx, frame, c.objects, c.resultsPrefix)
	w.resultCh <- Result{Payload: payload}
}
