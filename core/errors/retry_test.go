package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestCalculateDelay(t *testing.T) {
	policy := &RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, CalculateDelay(tt.attempt, policy), "attempt %d", tt.attempt)
	}

	assert.Zero(t, CalculateDelay(3, nil))
	assert.Equal(t, 40*time.Millisecond, CalculateDelay(2, &RetryPolicy{InitialDelay: 10 * time.Millisecond}),
		"multiplier defaults to 2")
}

func TestAddJitter(t *testing.T) {
	assert.Equal(t, time.Second, AddJitter(time.Second, 0))

	for range 100 {
		d := AddJitter(time.Second, 0.1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
	assert.GreaterOrEqual(t, AddJitter(time.Microsecond, 0.5), time.Millisecond)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return Model("load", "truncated", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(2), func() error {
		calls++
		return Input("load", "missing", nil)
	})
	require.Error(t, err)
	assert.True(t, IsInput(err))
	assert.Equal(t, 3, calls)
}

func TestRetry_NotRetryable(t *testing.T) {
	policy := fastPolicy(5)
	policy.Retryable = IsModel

	calls := 0
	err := Retry(context.Background(), policy, func() error {
		calls++
		return Config("load", "bad", nil)
	})
	assert.True(t, IsConfig(err))
	assert.Equal(t, 1, calls)
}

func TestRetry_NilPolicy(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := Retry(context.Background(), nil, func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour}

	calls := 0
	err := Retry(ctx, policy, func() error {
		calls++
		cancel()
		return Model("load", "truncated", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestReloadPolicy(t *testing.T) {
	p := ReloadPolicy()
	assert.Positive(t, p.MaxAttempts)
	require.NotNil(t, p.Retryable)
	assert.True(t, p.Retryable(Model("x", "y", nil)))
	assert.True(t, p.Retryable(Input("x", "y", nil)))
	assert.False(t, p.Retryable(Config("x", "y", nil)))
	assert.False(t, p.Retryable(errors.New("plain")))
}
