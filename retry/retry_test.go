package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{12, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry_%d", tt.retry), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Backoff(tt.retry))
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.MaxAttempts = 0
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.Multiplier = 0.5
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.MaxDelay = 10 * time.Millisecond
	assert.Error(t, bad.Validate())
}

func TestDo_SucceedsAfterTwoTimeouts(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = recordingSleep(&delays)

	calls := 0
	got, state, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", context.DeadlineExceeded
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, state.Attempts)
	assert.Equal(t, 2, state.Retries)
	assert.Nil(t, state.LastErr)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestDo_TerminalErrorIsNotRetried(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = recordingSleep(&delays)

	terminal := errors.New("unique violation")
	calls := 0
	_, state, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, terminal
	})

	require.ErrorIs(t, err, terminal)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, state.Retries)
	assert.False(t, state.LastRetryable)
	assert.Empty(t, delays)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = recordingSleep(&delays)

	calls := 0
	_, state, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, MarkTransient(errors.New("503 service unavailable"))
	})

	require.ErrorIs(t, err, ErrExhausted)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, state.Attempts)
	assert.Equal(t, 2, state.Retries)
	assert.True(t, state.LastRetryable)
}

func TestDo_AttemptTimeoutIsRetryable(t *testing.T) {
	p := DefaultPolicy()
	p.AttemptTimeout = 10 * time.Millisecond
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	got, state, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 1, state.Retries)
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.Sleep = Sleep

	calls := 0
	_, state, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, MarkTransient(errors.New("connection reset"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, state.Retries)
}

func TestDo_OnRetryHook(t *testing.T) {
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	var seen []State
	p.OnRetry = func(s State) { seen = append(seen, s) }

	_, _, _ = Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	})

	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].Attempts)
	assert.Equal(t, time.Second, seen[0].NextDelay)
	assert.Equal(t, 2, seen[1].Attempts)
	assert.Equal(t, 2*time.Second, seen[1].NextDelay)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"marked", MarkTransient(errors.New("busy")), true},
		{"wrapped marked", fmt.Errorf("chunk 2: %w", MarkTransient(errors.New("busy"))), true},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, true},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"retryable go-error", goerrors.NewRetryableExternal("upstream 502"), true},
		{"non retryable go-error", goerrors.NewNonRetryable("bad input", goerrors.CategoryBadInput), false},
		{"validation go-error", goerrors.New("bad", goerrors.CategoryValidation), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
