package cacheinfra

import (
	"context"
	"strings"

	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-vocabulary-store/cache"
)

// SturdycTier adapts a sturdyc client to cache.Tier. It is a sharded local
// alternative to LRUTier for very large working sets: sturdyc evicts a
// percentage of entries when full rather than exactly the least recently
// used one.
type SturdycTier struct {
	client *sturdyc.Client[cache.Entry]
}

// NewSturdycTier creates a sturdyc backed tier.
// It validates the configuration and initializes a sturdyc client with the provided settings.
//
// Version compatibility note: This implementation assumes sturdyc v1.x API.
func NewSturdycTier(cfg SturdycConfig) (*SturdycTier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[cache.Entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		options...,
	)

	return &SturdycTier{client: client}, nil
}

func (s *SturdycTier) Name() string { return "sturdyc" }

func (s *SturdycTier) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	entry, ok := s.client.Get(key)
	return entry, ok, nil
}

func (s *SturdycTier) Set(_ context.Context, key string, entry cache.Entry) error {
	s.client.Set(key, entry)
	return nil
}

func (s *SturdycTier) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// InvalidateByPrefix scans every key held by the client and deletes the
// matches.
func (s *SturdycTier) InvalidateByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Len returns the number of entries currently held.
func (s *SturdycTier) Len() int {
	return s.client.Size()
}

func (s *SturdycTier) Close() error { return nil }
