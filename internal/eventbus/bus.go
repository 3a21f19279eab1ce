// Package eventbus maintains one long-lived, reconnecting duplex
// connection to the shared compilation result bus and fans decoded
// frames out to a single consumer (the correlator).
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/godbolt/ce-router/internal/metrics"
	"github.com/godbolt/ce-router/pkg/logging"
)

// State is the connection lifecycle state machine: disconnected ->
// connecting -> open -> closing -> closed.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
)

const (
	pendingSubscriptionTTL = 60 * time.Second
)

// Frame is one decoded inbound JSON object message.
type Frame map[string]interface{}

// Config tunes reconnect/keepalive behavior.
type Config struct {
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	return c
}

type pendingSub struct {
	subscribedAt time.Time
}

// Bus owns a single websocket connection and the active/pending
// subscription bookkeeping. All mutable state is touched only from the
// run goroutine; callers interact through channels.
type Bus struct {
	url    string
	cfg    Config
	logger *logging.Logger
	m      *metrics.Metrics

	dialer *websocket.Dialer

	commands chan command
	messages chan Frame
	errors   chan error

	stateMu sync.RWMutex
	state   State

	closeOnce sync.Once
	closed    chan struct{}

	nowFunc func() time.Time
}

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdUnsubscribe
	cmdAck
)

type command struct {
	kind  commandKind
	topic string
	done  chan error
}

// New builds a Bus targeting url. Call Run to start connecting.
func New(url string, cfg Config, logger *logging.Logger, m *metrics.Metrics) *Bus {
	if url == "" {
		panic("eventbus: url cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{
		url:      url,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		m:        m,
		dialer:   websocket.DefaultDialer,
		commands: make(chan command),
		messages: make(chan Frame, 64),
		errors:   make(chan error, 16),
		state:    StateDisconnected,
		closed:   make(chan struct{}),
		nowFunc:  time.Now,
	}
}

// Messages returns the channel of decoded inbound frames.
func (b *Bus) Messages() <-chan Frame { return b.messages }

// Errors returns the channel of malformed-frame decode errors.
func (b *Bus) Errors() <-chan error { return b.errors }

// State returns the bus's current connection state.
func (b *Bus) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

func (b *Bus) setState(s State) {
	b.stateMu.Lock()
	b.state = s
	b.stateMu.Unlock()
	b.m.EventBusState(string(s))
}

// Subscribe registers interest in topic (a correlation id). It blocks
// until the subscribe frame is sent (or queued as pending, if the
// connection isn't open yet).
func (b *Bus) Subscribe(ctx context.Context, topic string) error {
	return b.send(ctx, cmdSubscribe, topic)
}

// Unsubscribe releases interest in topic.
func (b *Bus) Unsubscribe(ctx context.Context, topic string) error {
	return b.send(ctx, cmdUnsubscribe, topic)
}

// Ack acknowledges delivery of a result for topic.
func (b *Bus) Ack(ctx context.Context, topic string) error {
	return b.send(ctx, cmdAck, topic)
}

func (b *Bus) send(ctx context.Context, kind commandKind, topic string) error {
	done := make(chan error, 1)
	select {
	case b.commands <- command{kind: kind, topic: topic, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return fmt.Errorf("eventbus: bus is closed")
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return fmt.Errorf("eventbus: bus is closed")
	}
}

// Run drives the connect/reconnect/keepalive loop until ctx is
// cancelled or Close is called. It is meant to be started in its own
// goroutine.
func (b *Bus) Run(ctx context.Context) {
	active := map[string]struct{}{}
	pending := map[string]pendingSub{}

	var (
		conn    *websocket.Conn
		inbound chan wireMessage
	)

	attempts := 0
	pingTicker := time.NewTicker(b.cfg.PingInterval)
	defer pingTicker.Stop()

	connectNow := make(chan struct{}, 1)
	connectNow <- struct{}{}

	var reconnectTimer *time.Timer

	closeConn := func() {
		if conn != nil {
			_ = conn.Close()
			conn = nil
			inbound = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			b.setState(StateClosing)
			closeConn()
			b.setState(StateClosed)
			b.closeOnce.Do(func() { close(b.closed) })
			return

		case <-b.closed:
			b.setState(StateClosing)
			closeConn()
			b.setState(StateClosed)
			return

		case <-connectNow:
			b.setState(StateConnecting)
			c, _, err := b.dialer.DialContext(ctx, b.url, http.Header{})
			if err != nil {
				attempts++
				b.logger.Warn("eventbus: dial failed", "error", err, "attempt", attempts, "url", b.url)
				if attempts > b.cfg.MaxReconnectAttempts {
					b.logger.Error("eventbus: exceeded max reconnect attempts, giving up", "attempts", attempts)
					b.setState(StateDisconnected)
					continue
				}
				reconnectTimer = time.AfterFunc(b.cfg.ReconnectInterval, func() {
					select {
					case connectNow <- struct{}{}:
					default:
					}
				})
				b.setState(StateDisconnected)
				continue
			}
			if reconnectTimer != nil {
				reconnectTimer.Stop()
			}
			if attempts > 0 {
				b.m.EventBusReconnect()
			}
			attempts = 0
			conn = c
			inbound = readLoop(conn)
			b.setState(StateOpen)
			b.replaySubscriptions(conn, active, pending)

		case wire, ok := <-inbound:
			if !ok {
				closeConn()
				b.setState(StateDisconnected)
				select {
				case connectNow <- struct{}{}:
				default:
				}
				continue
			}
			if wire.err != nil {
				b.logger.Warn("eventbus: read error", "error", wire.err)
				closeConn()
				b.setState(StateDisconnected)
				select {
				case connectNow <- struct{}{}:
				default:
				}
				continue
			}
			b.handleWireMessage(wire.data, active)

		case <-pingTicker.C:
			if conn != nil {
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}

		case cmd := <-b.commands:
			b.handleCommand(cmd, conn, active, pending)
		}
	}
}

type wireMessage struct {
	data []byte
	err  error
}

func readLoop(conn *websocket.Conn) chan wireMessage {
	ch := make(chan wireMessage)
	go func() {
		defer close(ch)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				ch <- wireMessage{err: err}
				return
			}
			ch <- wireMessage{data: data}
		}
	}()
	return ch
}

func (b *Bus) handleWireMessage(data []byte, active map[string]struct{}) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed[0] != '{' {
		return
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		select {
		case b.errors <- fmt.Errorf("eventbus: malformed frame: %w", err):
		default:
		}
		return
	}
	select {
	case b.messages <- frame:
	default:
		b.logger.Warn("eventbus: message buffer full, dropping frame")
	}
}

func (b *Bus) handleCommand(cmd command, conn *websocket.Conn, active map[string]struct{}, pending map[string]pendingSub) {
	var err error
	switch cmd.kind {
	case cmdSubscribe:
		active[cmd.topic] = struct{}{}
		pending[cmd.topic] = pendingSub{subscribedAt: b.nowFunc()}
		if writeErr := b.writeFrame(conn, "subscribe", cmd.topic); writeErr != nil {
			b.logger.Warn("eventbus: subscribe write failed, relying on pending replay", "error", writeErr, "topic", cmd.topic)
		}
	case cmdUnsubscribe:
		delete(active, cmd.topic)
		delete(pending, cmd.topic)
		err = b.writeFrame(conn, "unsubscribe", cmd.topic)
	case cmdAck:
		err = b.writeFrame(conn, "ack", cmd.topic)
	}
	cmd.done <- err
}

func (b *Bus) writeFrame(conn *websocket.Conn, verb, topic string) error {
	if conn == nil {
		return fmt.Errorf("eventbus: not connected")
	}
	line := fmt.Sprintf("%s: %s", verb, topic)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("eventbus: write %s frame: %w", verb, err)
	}
	return nil
}

// replaySubscriptions reissues a subscribe frame exactly once, per
// reconnect, for every topic still marked pending-and-unexpired.
// Topics whose pending wait has reached pendingSubscriptionTTL are
// dropped from both active and pending instead of being resubscribed.
func (b *Bus) replaySubscriptions(conn *websocket.Conn, active map[string]struct{}, pending map[string]pendingSub) {
	now := b.nowFunc()
	for topic, p := range pending {
		if now.Sub(p.subscribedAt) >= pendingSubscriptionTTL {
			delete(pending, topic)
			delete(active, topic)
			continue
		}
		if err := b.writeFrame(conn, "subscribe", topic); err != nil {
			b.logger.Warn("eventbus: resubscribe failed", "error", err, "topic", topic)
		}
	}
}

// Close stops the run loop, suppressing any further reconnect attempts.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}
