package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	PolicyFixed = "fixed"
	PolicyCount = "count"
	PolicyNone  = "none"

	DefaultDelay       = time.Second
	DefaultMaxAttempts = 3
)

var ErrUnknownPolicy = errors.New("unknown retry policy")

// Policy describes how peer calls are retried. Fixed retries with Delay until the context
// ends or MaxAttempts is reached (zero means unlimited). Count retries MaxAttempts times
// with exponentially growing delays starting at Delay.
type Policy struct {
	Kind        string        `mapstructure:"policy"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

func (p Policy) Validate() error {
	switch p.Kind {
	case PolicyFixed, PolicyCount, PolicyNone, "":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, p.Kind)
	}
	if p.Delay < 0 || p.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative delay or attempts", ErrUnknownPolicy)
	}
	return nil
}

func (p Policy) delay() time.Duration {
	if p.Delay <= 0 {
		return DefaultDelay
	}
	return p.Delay
}

// BackOff builds a fresh backoff for one retried operation.
func (p Policy) BackOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	switch p.Kind {
	case PolicyNone:
		b = &backoff.StopBackOff{}
	case PolicyCount:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.delay()
		exp.MaxElapsedTime = 0
		attempts := p.MaxAttempts
		if attempts == 0 {
			attempts = DefaultMaxAttempts
		}
		b = backoff.WithMaxRetries(exp, uint64(attempts-1))
	default:
		b = backoff.NewConstantBackOff(p.delay())
		if p.MaxAttempts > 0 {
			b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
		}
	}
	return backoff.WithContext(b, ctx)
}

// Do runs op until it succeeds, fails with an error retryable rejects, or the backoff gives up.
// A nil retryable retries every error.
func Do(ctx context.Context, b backoff.BackOff, op func() error, retryable func(error) bool) error {
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// Conflicts is a short exponential backoff used to rerun transactions that lost a race.
func Conflicts(ctx context.Context) backoff.BackOff {
	const (
		initialInterval = 5 * time.Millisecond
		maxInterval     = 200 * time.Millisecond
		maxRetries      = 20
	)
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, maxRetries), ctx)
}
