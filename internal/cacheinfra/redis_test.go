package cacheinfra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-vocabulary-store/cache"
)

func newTestRedisTier(t *testing.T) (*RedisTier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.ScanCount = 2
	tier, err := NewRedisTier(cfg)
	if err != nil {
		t.Fatalf("NewRedisTier() failed: %v", err)
	}
	t.Cleanup(func() { _ = tier.Close() })
	return tier, mr
}

func TestRedisTier_RoundTrip(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	ctx := context.Background()

	stored := time.Date(2024, 2, 3, 4, 5, 6, 789, time.UTC)
	entry := cache.Entry{Value: []byte("payload"), StoredAt: stored, ExpiresAt: time.Now().Add(time.Minute)}

	if err := tier.Set(ctx, "items::u1::abc", entry); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, ok, err := tier.Get(ctx, "items::u1::abc")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if string(got.Value) != "payload" {
		t.Errorf("value = %q", got.Value)
	}
	if !got.StoredAt.Equal(stored) || !got.ExpiresAt.Equal(entry.ExpiresAt) {
		t.Errorf("timestamps changed: %+v", got)
	}

	if ttl := mr.TTL("items::u1::abc"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("redis TTL = %v, want within (0, 1m]", ttl)
	}
}

func TestRedisTier_MissAndExpiry(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	ctx := context.Background()

	if _, ok, err := tier.Get(ctx, "nope"); ok || err != nil {
		t.Errorf("Get(nope) = %v, %v; want clean miss", ok, err)
	}

	_ = tier.Set(ctx, "k", cache.Entry{Value: []byte("v"), StoredAt: time.Now(), ExpiresAt: time.Now().Add(time.Second)})
	mr.FastForward(2 * time.Second)

	if _, ok, _ := tier.Get(ctx, "k"); ok {
		t.Error("redis kept an expired key")
	}
}

func TestRedisTier_SetExpiredEntryDeletes(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	ctx := context.Background()

	_ = tier.Set(ctx, "k", freshEntry("v"))
	if err := tier.Set(ctx, "k", cache.Entry{Value: []byte("v"), ExpiresAt: time.Now().Add(-time.Second)}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if mr.Exists("k") {
		t.Error("expired write should remove the key")
	}
}

func TestRedisTier_InvalidateByPrefix(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	ctx := context.Background()

	keys := map[string]bool{
		"items::u1::a":   false,
		"items::u1::b":   false,
		"items::u1::c":   false,
		"items::u1::d":   false,
		"items::u2::a":   true,
		"items::u1x::a":  true,
		"search::u1::a":  true,
		"items::u*::esc": true,
	}
	for k := range keys {
		if err := tier.Set(ctx, k, freshEntry(k)); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	for i := 0; i < 2; i++ {
		if err := tier.InvalidateByPrefix(ctx, "items::u1::"); err != nil {
			t.Fatalf("InvalidateByPrefix() failed: %v", err)
		}
	}

	for k, survives := range keys {
		if mr.Exists(k) != survives {
			t.Errorf("key %s exists=%v, want %v", k, mr.Exists(k), survives)
		}
	}

	if err := tier.InvalidateByPrefix(ctx, "items::u*::"); err != nil {
		t.Fatalf("InvalidateByPrefix() failed: %v", err)
	}
	if mr.Exists("items::u2::a") != true || mr.Exists("items::u*::esc") {
		t.Error("glob characters in the prefix must match literally")
	}
}

func TestRedisTier_ServerErrors(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	ctx := context.Background()

	mr.SetError("ERR injected failure")
	defer mr.SetError("")

	if _, _, err := tier.Get(ctx, "k"); err == nil {
		t.Error("expected Get() error")
	}
	if err := tier.Set(ctx, "k", freshEntry("v")); err == nil {
		t.Error("expected Set() error")
	}
	if err := tier.InvalidateByPrefix(ctx, "items::"); err == nil {
		t.Error("expected InvalidateByPrefix() error")
	}
}

func TestRedisTier_CorruptPayload(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	if err := mr.Set("k", "not msgpack"); err != nil {
		t.Fatalf("miniredis Set failed: %v", err)
	}

	if _, ok, err := tier.Get(context.Background(), "k"); err == nil || ok {
		t.Errorf("Get() = %v, %v; want decode error", ok, err)
	}
}

func TestNewRedisTierFromClient_DoesNotCloseClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tier := NewRedisTierFromClient(client, 0)
	if err := tier.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}
	if err := tier.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Errorf("shared client closed by tier: %v", err)
	}
}
