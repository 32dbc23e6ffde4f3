package vocab

import (
	"time"

	"github.com/goliatone/go-vocabulary-store/cache"
	"github.com/goliatone/go-vocabulary-store/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Emitter receives usage events. Emit must not block.
type Emitter interface {
	Emit(e events.Event) bool
}

type options struct {
	cfg     Config
	logger  zerolog.Logger
	emitter Emitter
	codec   cache.KeyCodec
	metrics *Metrics
	now     func() time.Time
	newID   func() uuid.UUID
}

// Option configures a Service or a BatchEngine.
type Option func(*options)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEmitter sets where usage events go. Without one events are discarded.
func WithEmitter(e Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithKeyCodec sets the codec used to build cache keys.
func WithKeyCodec(c cache.KeyCodec) Option {
	return func(o *options) { o.codec = c }
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides uuid.New for new records.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(o *options) { o.newID = fn }
}

func buildOptions(opts []Option) (options, error) {
	o := options{
		cfg:    DefaultConfig(),
		logger: zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return o, err
	}
	if o.codec == nil {
		o.codec = cache.NewKeyCodec("vocab")
	}
	if o.metrics == nil {
		o.metrics = NewMetrics("", nil)
	}
	if o.emitter == nil {
		o.emitter = discard{}
	}
	return o, nil
}

type discard struct{}

func (discard) Emit(events.Event) bool { return true }
