// Package firehose follows the live post stream and engages with matching
// posts as they arrive.
package firehose

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"vacunagates/wait"

	jsmodels "github.com/bluesky-social/jetstream/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	listenerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vacunagates_listener_state",
		Help: "Current listener state (0 connecting, 1 streaming, 2 reconnecting, 3 stopped)",
	})

	listenerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vacunagates_listener_reconnects_total",
		Help: "Times the listener tore down and re-established the stream",
	})
)

// Stream yields events from one live connection. Any error that is not a
// *DecodeError means the connection is unusable.
type Stream interface {
	Next(ctx context.Context) (*jsmodels.Event, error)
	Close() error
}

// Source opens live connections. cursor is the time_us of the last event seen
// and zero for a fresh start.
type Source interface {
	Connect(ctx context.Context, cursor int64) (Stream, error)
}

// DecodeError is a malformed message on an otherwise healthy connection.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Handler processes one event. Errors are logged, never fatal to the stream.
type Handler interface {
	Process(ctx context.Context, event *jsmodels.Event) error
}

type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Listener keeps a subscription alive: CONNECTING -> STREAMING, and on any
// transport error RECONNECTING -> STREAMING again, without bound. It only
// stops when ctx is cancelled or the reconnect policy returns backoff.Stop.
type Listener struct {
	source  Source
	handler Handler
	policy  backoff.BackOff
	sleep   wait.Sleeper

	state  atomic.Int32
	cursor atomic.Int64
	// OnStateChange, when set, observes every transition.
	OnStateChange func(State)
}

// ImmediateReconnect re-establishes the stream with no delay.
func ImmediateReconnect() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// ExponentialReconnect is the gentler policy for unstable networks.
func ExponentialReconnect() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0 // Never stop retrying
	return b
}

func NewListener(source Source, handler Handler, policy backoff.BackOff) *Listener {
	if policy == nil {
		policy = ImmediateReconnect()
	}
	l := &Listener{
		source:  source,
		handler: handler,
		policy:  policy,
		sleep:   wait.Sleep,
	}
	l.state.Store(int32(StateStopped))
	return l
}

// WithSleep replaces the wait between reconnects.
func (l *Listener) WithSleep(sleep wait.Sleeper) *Listener {
	l.sleep = wait.Or(sleep)
	return l
}

func (l *Listener) State() State {
	return State(l.state.Load())
}

// Cursor is the time_us of the last event handed to the handler.
func (l *Listener) Cursor() int64 {
	return l.cursor.Load()
}

func (l *Listener) setState(s State) {
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	listenerState.Set(float64(s))
	log.WithField("state", s.String()).Info("Listener state changed")
	if l.OnStateChange != nil {
		l.OnStateChange(s)
	}
}

// Run blocks until ctx is cancelled or the reconnect policy gives up.
func (l *Listener) Run(ctx context.Context) error {
	log.Info("Running listener")
	l.setState(StateConnecting)
	defer l.setState(StateStopped)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stream, err := l.source.Connect(ctx, l.Cursor())
		if err == nil {
			l.policy.Reset()
			l.setState(StateStreaming)
			err = l.consume(ctx, stream)
			if closeErr := stream.Close(); closeErr != nil {
				log.WithError(closeErr).Debug("Error closing stream")
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		log.WithError(err).Error("Stream interrupted, reconnecting")
		l.setState(StateReconnecting)
		listenerReconnects.Inc()

		next := l.policy.NextBackOff()
		if next == backoff.Stop {
			return fmt.Errorf("reconnect policy gave up: %w", err)
		}
		if err := l.sleep(ctx, next); err != nil {
			return err
		}
	}
}

func (l *Listener) consume(ctx context.Context, stream Stream) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		event, err := stream.Next(ctx)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				log.WithError(err).Warn("Skipping undecodable message")
				continue
			}
			return err
		}

		if event.TimeUS > 0 {
			l.cursor.Store(event.TimeUS)
		}

		if err := l.handler.Process(ctx, event); err != nil {
			log.WithError(err).WithField("did", event.Did).Error("Failed to process event")
		}
	}
}
