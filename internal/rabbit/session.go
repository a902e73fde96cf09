// Package rabbit owns the long-lived AMQP session and the transaction
// publisher. One supervised connection, topology declared once per channel,
// publishes fail fast with a BrokerUnavailable kind while the transport is
// down and trigger an on-demand repair.
package rabbit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/errs"
)

// State is the connection lifecycle:
// Connecting -> Connected -> (Error | Closing | Closed) -> Connecting ...
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "closed"
	}
}

// WireChannel is the slice of an AMQP channel the publisher needs. Satisfied
// by *amqp091.Channel; tests supply fakes.
type WireChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ChannelSource hands out currently-valid channels and accepts invalidation
// when a publish fails mid-flight.
type ChannelSource interface {
	Channel(ctx context.Context) (WireChannel, error)
	Invalidate()
}

// Session supervises one AMQP connection plus one channel. The mutex guards
// state transitions only; publishes hold a channel handle outside the lock.
// The library heartbeat runs for the lifetime of the connection and is torn
// down by Close or by a detected failure.
type Session struct {
	url            string
	connectTimeout time.Duration
	heartbeat      time.Duration

	mu    chan struct{} // 1-slot semaphore usable with context cancellation
	conn  *amqp.Connection
	ch    *amqp.Channel
	state State
}

var _ ChannelSource = (*Session)(nil)

// NewSession creates an unconnected session. The first Channel call dials.
func NewSession(cfg config.RabbitConfig) *Session {
	s := &Session{
		url:            cfg.URL,
		connectTimeout: time.Duration(cfg.ConnectionTimeoutSecs) * time.Second,
		heartbeat:      config.RabbitHeartbeat,
		mu:             make(chan struct{}, 1),
		state:          StateClosed,
	}
	return s
}

// lock acquires the session mutex, honoring context cancellation.
func (s *Session) lock(ctx context.Context) error {
	select {
	case s.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), errs.BrokerUnavailable, "session lock wait cancelled")
	}
}

func (s *Session) unlock() {
	<-s.mu
}

// Channel returns a currently-valid channel, repairing the connection on
// demand. While the broker is unreachable every call fails with the
// BrokerUnavailable kind.
func (s *Session) Channel(ctx context.Context) (WireChannel, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	if s.isValid() {
		return s.ch, nil
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s.ch, nil
}

// Invalidate marks the transport broken so the next Channel call repairs it.
func (s *Session) Invalidate() {
	if err := s.lock(context.Background()); err != nil {
		return
	}
	defer s.unlock()
	if s.state == StateConnected {
		s.state = StateError
		s.teardown()
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	if err := s.lock(context.Background()); err != nil {
		return StateError
	}
	defer s.unlock()
	return s.state
}

// isValid reports whether the connection is Connected and the channel is
// known-open. Callers hold the lock.
func (s *Session) isValid() bool {
	return s.state == StateConnected &&
		s.conn != nil && !s.conn.IsClosed() &&
		s.ch != nil && !s.ch.IsClosed()
}

// connect establishes the transport, channel and close watcher. Callers hold
// the lock.
func (s *Session) connect(ctx context.Context) error {
	s.teardown()
	s.state = StateConnecting

	slog.Info("rabbit session connecting", "timeout", s.connectTimeout)

	conn, err := amqp.DialConfig(s.url, amqp.Config{
		Heartbeat: s.heartbeat,
		Dial:      amqp.DefaultDial(s.connectTimeout),
	})
	if err != nil {
		s.state = StateError
		return errs.Wrap(err, errs.BrokerUnavailable, "failed to dial broker").
			WithSource(errs.SourceBroker).
			WithContext(errs.CtxRabbitConnection)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		s.state = StateError
		return errs.Wrap(err, errs.BrokerUnavailable, "failed to open channel").
			WithSource(errs.SourceBroker).
			WithContext(errs.CtxRabbitChannel)
	}

	s.conn = conn
	s.ch = ch
	s.state = StateConnected

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go s.watchClose(conn, closed)

	slog.Info("rabbit session connected")
	return nil
}

// watchClose flips the session into the error state when the transport dies
// underneath it. A later Channel call repairs.
func (s *Session) watchClose(conn *amqp.Connection, closed <-chan *amqp.Error) {
	reason, ok := <-closed
	if !ok {
		// Clean shutdown via Close.
		return
	}
	slog.Warn("rabbit connection lost", "reason", reason)

	if err := s.lock(context.Background()); err != nil {
		return
	}
	defer s.unlock()
	// Only transition if this connection is still the current one.
	if s.conn == conn && s.state == StateConnected {
		s.state = StateError
	}
}

// teardown closes transport resources, stopping the heartbeat with them.
// Callers hold the lock.
func (s *Session) teardown() {
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close shuts the session down for good.
func (s *Session) Close() error {
	if err := s.lock(context.Background()); err != nil {
		return err
	}
	defer s.unlock()

	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosing
	s.teardown()
	s.state = StateClosed

	slog.Info("rabbit session closed")
	return nil
}

// Connect dials eagerly so startup fails fast on a bad broker URL.
func (s *Session) Connect(ctx context.Context) error {
	if _, err := s.Channel(ctx); err != nil {
		return fmt.Errorf("initial broker connect: %w", err)
	}
	return nil
}
