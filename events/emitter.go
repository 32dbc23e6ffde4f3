package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Sink receives events. Errors are logged and otherwise ignored.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Deliver(ctx context.Context, e Event) error { return f(ctx, e) }

// Config bounds the emitter queue.
type Config struct {
	// Capacity of the queue. Emit drops events once it is full.
	Capacity int `yaml:"capacity"`

	// DeliverTimeout bounds every Sink.Deliver call.
	DeliverTimeout time.Duration `yaml:"deliver_timeout"`
}

// DefaultConfig returns a 256 event queue and a 2s delivery timeout.
func DefaultConfig() Config {
	return Config{Capacity: 256, DeliverTimeout: 2 * time.Second}
}

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "events: config error in field " + e.Field + ": " + e.Message
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.DeliverTimeout <= 0 {
		return &ConfigError{Field: "DeliverTimeout", Message: "must be greater than 0"}
	}
	return nil
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Emitted   int64
	Dropped   int64
	Delivered int64
	Failed    int64
}

// Emitter hands events to a single delivery goroutine through a bounded
// channel. Emit never blocks.
type Emitter struct {
	cfg    Config
	sink   Sink
	logger zerolog.Logger

	queue chan Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	emitted   *xsync.Counter
	dropped   *xsync.Counter
	delivered *xsync.Counter
	failed    *xsync.Counter

	droppedTotal prometheus.Counter
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger used for drops and delivery failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Emitter) { e.logger = logger }
}

// WithRegisterer exports the drop counter on reg.
func WithRegisterer(namespace string, reg prometheus.Registerer) Option {
	return func(e *Emitter) {
		e.droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because the queue was full.",
		})
		if reg != nil {
			reg.MustRegister(e.droppedTotal)
		}
	}
}

// NewEmitter starts the delivery goroutine. A nil sink discards events.
func NewEmitter(cfg Config, sink Sink, opts ...Option) (*Emitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = Discard
	}

	e := &Emitter{
		cfg:       cfg,
		sink:      sink,
		logger:    zerolog.Nop(),
		queue:     make(chan Event, cfg.Capacity),
		done:      make(chan struct{}),
		emitted:   xsync.NewCounter(),
		dropped:   xsync.NewCounter(),
		delivered: xsync.NewCounter(),
		failed:    xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "events").Logger()

	go e.run()
	return e, nil
}

// Emit queues ev and reports whether it was accepted. A full queue or a
// closed emitter drops the event.
func (e *Emitter) Emit(ev Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.drop(ev, "closed")
		return false
	}

	select {
	case e.queue <- ev:
		e.emitted.Inc()
		return true
	default:
		e.drop(ev, "queue full")
		return false
	}
}

// Close stops accepting events and waits until queued ones are delivered or
// ctx is done.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Emitted:   e.emitted.Value(),
		Dropped:   e.dropped.Value(),
		Delivered: e.delivered.Value(),
		Failed:    e.failed.Value(),
	}
}

func (e *Emitter) drop(ev Event, reason string) {
	e.dropped.Inc()
	if e.droppedTotal != nil {
		e.droppedTotal.Inc()
	}
	e.logger.Warn().
		Str("kind", string(ev.Kind())).
		Str("owner", ev.Owner()).
		Str("reason", reason).
		Int64("dropped", e.dropped.Value()).
		Msg("event dropped")
}

func (e *Emitter) run() {
	defer close(e.done)

	for ev := range e.queue {
		if err := e.deliver(ev); err != nil {
			e.failed.Inc()
			e.logger.Debug().Err(err).Str("kind", string(ev.Kind())).Msg("event delivery failed")
			continue
		}
		e.delivered.Inc()
	}
}

func (e *Emitter) deliver(ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("events: sink panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DeliverTimeout)
	defer cancel()
	return e.sink.Deliver(ctx, ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// LogSink writes every event to a zerolog logger at info level.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Deliver(_ context.Context, e Event) error {
	s.Logger.Info().
		Str("kind", string(e.Kind())).
		Str("owner", e.Owner()).
		Int("count", Count(e)).
		Time("at", e.OccurredAt()).
		Msg("usage event")
	return nil
}

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
