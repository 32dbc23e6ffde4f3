package vocab

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-vocabulary-store/retry"
)

// Config holds the service and batch engine settings.
type Config struct {
	// ChunkSize is the number of records written per transaction.
	ChunkSize int `yaml:"chunk_size"`

	// MaxConcurrentChunks bounds how many chunk transactions run at once.
	MaxConcurrentChunks int `yaml:"max_concurrent_chunks"`

	ItemTTL   time.Duration `yaml:"item_ttl"`
	ListTTL   time.Duration `yaml:"list_ttl"`
	SearchTTL time.Duration `yaml:"search_ttl"`

	// StatsTTL must not exceed ItemTTL. Stats share the list invalidation
	// triggers; the shorter lifetime bounds drift of aggregates.
	StatsTTL time.Duration `yaml:"stats_ttl"`

	// SearchMinScore drops candidates scoring below it.
	SearchMinScore float64 `yaml:"search_min_score"`
	// SearchMaxDistance is the edit distance still counted as a fuzzy match.
	SearchMaxDistance int `yaml:"search_max_distance"`
	// SearchLimit caps the number of search results.
	SearchLimit int `yaml:"search_limit"`

	Retry retry.Policy `yaml:"retry"`
}

// DefaultConfig returns chunks of 100 written 4 at a time, a 5 minute item
// TTL, a 30 second stats TTL and the default retry policy.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           100,
		MaxConcurrentChunks: 4,
		ItemTTL:             5 * time.Minute,
		ListTTL:             5 * time.Minute,
		SearchTTL:           2 * time.Minute,
		StatsTTL:            30 * time.Second,
		SearchMinScore:      1,
		SearchMaxDistance:   2,
		SearchLimit:         50,
		Retry:               retry.DefaultPolicy(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ChunkSize, validation.Required, validation.Min(1), validation.Max(10000)),
		validation.Field(&c.MaxConcurrentChunks, validation.Required, validation.Min(1)),
		validation.Field(&c.ItemTTL, validation.Required),
		validation.Field(&c.ListTTL, validation.Required),
		validation.Field(&c.SearchTTL, validation.Required),
		validation.Field(&c.StatsTTL, validation.Required, validation.Max(c.ItemTTL)),
		validation.Field(&c.SearchMinScore, validation.Min(0.0)),
		validation.Field(&c.SearchMaxDistance, validation.Min(0), validation.Max(4)),
		validation.Field(&c.SearchLimit, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return err
	}
	return c.Retry.Validate()
}
