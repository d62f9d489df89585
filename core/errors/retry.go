package errors

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how a failing operation is retried.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the first attempt. Zero means
	// no retry.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier grows the delay per attempt (default 2).
	Multiplier float64 `yaml:"multiplier"`

	// JitterPercent randomizes each delay by up to this fraction either way.
	JitterPercent float64 `yaml:"jitter_percent"`

	// Retryable reports whether err deserves another attempt. Nil retries
	// every error.
	Retryable func(error) bool `yaml:"-"`
}

// ReloadPolicy is used when a watched model file changes. A writer that does
// not replace the file atomically can leave it truncated or briefly missing,
// which shows up as model or input errors that clear on their own.
func ReloadPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
		Retryable: func(err error) bool {
			return IsModel(err) || IsInput(err)
		},
	}
}

// NoRetry runs an operation exactly once.
func NoRetry() *RetryPolicy {
	return &RetryPolicy{}
}

// CalculateDelay returns the wait before retry number attempt (0-based):
// InitialDelay * Multiplier^attempt, capped at MaxDelay.
func CalculateDelay(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil {
		return 0
	}
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(policy.InitialDelay) * math.Pow(multiplier, float64(attempt)))
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		return policy.MaxDelay
	}
	return delay
}

// AddJitter moves delay by a random amount within ±jitterPercent of it, never
// below one millisecond.
func AddJitter(delay time.Duration, jitterPercent float64) time.Duration {
	if jitterPercent <= 0 || delay <= 0 {
		return delay
	}
	offset := (rand.Float64()*2 - 1) * float64(delay) * jitterPercent
	jittered := time.Duration(float64(delay) + offset)
	if jittered < time.Millisecond {
		return time.Millisecond
	}
	return jittered
}

// Retry calls fn until it succeeds, the policy gives up, or ctx is done. It
// returns the last error from fn, or ctx's error if ctx ended the wait.
func Retry(ctx context.Context, policy *RetryPolicy, fn func() error) error {
	if policy == nil {
		policy = NoRetry()
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= policy.MaxAttempts {
			return err
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}
		if werr := wait(ctx, AddJitter(CalculateDelay(attempt, policy), policy.JitterPercent)); werr != nil {
			return werr
		}
	}
}

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
