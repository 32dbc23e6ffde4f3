// Package retry decides whether an error is worth another attempt and runs
// operations under an exponential backoff budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrExhausted is wrapped into the error returned by Do when the attempt
// budget ran out on a retryable failure.
var ErrExhausted = errors.New("retry budget exhausted")

// Classifier reports whether err is transient.
type Classifier func(err error) bool

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes a bounded exponential backoff.
//
// Delay before retry n (1 based) is BaseDelay * Multiplier^(n-1), capped at
// MaxDelay. Every attempt runs under AttemptTimeout when it is positive, and a
// timed out attempt is classified as transient.
type Policy struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	Multiplier     float64       `yaml:"multiplier"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// Classify defaults to IsTransient.
	Classify Classifier `yaml:"-"`
	// Sleep defaults to a timer based wait. Tests replace it.
	Sleep SleepFunc `yaml:"-"`
	// OnRetry is called before every backoff wait.
	OnRetry func(State) `yaml:"-"`
}

// State tracks one logical operation across its attempts.
type State struct {
	Attempts      int
	Retries       int
	NextDelay     time.Duration
	LastErr       error
	LastRetryable bool
}

// DefaultPolicy returns 3 attempts, 1s base delay, multiplier 2 and a 10s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		Multiplier:     2,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// Validate checks the numeric fields of the policy.
func (p Policy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.BaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&p.Multiplier, validation.Required, validation.Min(1.0)),
		validation.Field(&p.MaxDelay, validation.Min(p.BaseDelay)),
		validation.Field(&p.AttemptTimeout, validation.Min(time.Duration(0))),
	)
}

// Backoff returns the delay to wait before retry number n (1 based).
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(mult, float64(n-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Do calls fn until it succeeds, fails with a non transient error, the
// budget is spent or ctx is done. The returned State is always populated.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, State, error) {
	var (
		zero  T
		state State
	)

	classify := p.Classify
	if classify == nil {
		classify = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for {
		state.Attempts++

		value, err := attempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			state.LastErr = nil
			state.LastRetryable = false
			state.NextDelay = 0
			return value, state, nil
		}

		state.LastErr = err
		state.LastRetryable = classify(err)

		if !state.LastRetryable {
			return zero, state, err
		}
		if state.Attempts >= maxAttempts {
			return zero, state, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, state.Attempts, err)
		}
		if ctx.Err() != nil {
			return zero, state, err
		}

		state.NextDelay = p.Backoff(state.Attempts)
		if p.OnRetry != nil {
			p.OnRetry(state)
		}
		if serr := sleep(ctx, state.NextDelay); serr != nil {
			return zero, state, err
		}
		state.Retries++
	}
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

// Sleep waits for d or for ctx to be done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
