package cacheinfra

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-vocabulary-store/cache"
)

// envelope is the wire format of entries stored out of process. Timestamps
// travel as unix nanoseconds so no time zone survives the round trip.
type envelope struct {
	Value     []byte `msgpack:"v"`
	ExpiresAt int64  `msgpack:"e"`
	StoredAt  int64  `msgpack:"s"`
}

func encodeEntry(entry cache.Entry) ([]byte, error) {
	return msgpack.Marshal(envelope{
		Value:     entry.Value,
		ExpiresAt: entry.ExpiresAt.UnixNano(),
		StoredAt:  entry.StoredAt.UnixNano(),
	})
}

func decodeEntry(data []byte) (cache.Entry, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return cache.Entry{}, err
	}
	return cache.Entry{
		Value:     env.Value,
		ExpiresAt: time.Unix(0, env.ExpiresAt).UTC(),
		StoredAt:  time.Unix(0, env.StoredAt).UTC(),
	}, nil
}
