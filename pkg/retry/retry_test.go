package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/treeverse/commitgraph/pkg/retry"
)

var errTransient = errors.New("transient")

func countAttempts(t *testing.T, p retry.Policy, failures int) (int, error) {
	t.Helper()
	ctx := context.Background()
	attempts := 0
	err := retry.Do(ctx, p.BackOff(ctx), func() error {
		attempts++
		if attempts <= failures {
			return errTransient
		}
		return nil
	}, nil)
	return attempts, err
}

func TestPolicies(t *testing.T) {
	cases := []struct {
		name             string
		policy           retry.Policy
		failures         int
		expectedAttempts int
		expectedErr      error
	}{
		{name: "none_success", policy: retry.Policy{Kind: retry.PolicyNone}, failures: 0, expectedAttempts: 1},
		{name: "none_failure", policy: retry.Policy{Kind: retry.PolicyNone}, failures: 1, expectedAttempts: 1, expectedErr: errTransient},
		{name: "fixed_recovers", policy: retry.Policy{Kind: retry.PolicyFixed, Delay: time.Millisecond, MaxAttempts: 5}, failures: 3, expectedAttempts: 4},
		{name: "fixed_gives_up", policy: retry.Policy{Kind: retry.PolicyFixed, Delay: time.Millisecond, MaxAttempts: 2}, failures: 5, expectedAttempts: 2, expectedErr: errTransient},
		{name: "count_recovers", policy: retry.Policy{Kind: retry.PolicyCount, Delay: time.Millisecond, MaxAttempts: 3}, failures: 2, expectedAttempts: 3},
		{name: "count_gives_up", policy: retry.Policy{Kind: retry.PolicyCount, Delay: time.Millisecond, MaxAttempts: 3}, failures: 10, expectedAttempts: 3, expectedErr: errTransient},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			attempts, err := countAttempts(t, tt.policy, tt.failures)
			require.Equal(t, tt.expectedAttempts, attempts)
			if tt.expectedErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.expectedErr)
			}
		})
	}
}

func TestDoNotRetryable(t *testing.T) {
	ctx := context.Background()
	errFatal := errors.New("fatal")
	attempts := 0
	p := retry.Policy{Kind: retry.PolicyFixed, Delay: time.Millisecond, MaxAttempts: 5}
	err := retry.Do(ctx, p.BackOff(ctx), func() error {
		attempts++
		return errFatal
	}, func(err error) bool { return errors.Is(err, errTransient) })
	require.ErrorIs(t, err, errFatal)
	require.Equal(t, 1, attempts)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := retry.Policy{Kind: retry.PolicyFixed, Delay: time.Millisecond}
	err := retry.Do(ctx, p.BackOff(ctx), func() error { return errTransient }, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, retry.Policy{Kind: retry.PolicyCount, MaxAttempts: 2}.Validate())
	require.ErrorIs(t, retry.Policy{Kind: "sometimes"}.Validate(), retry.ErrUnknownPolicy)
	require.ErrorIs(t, retry.Policy{Kind: retry.PolicyFixed, Delay: -time.Second}.Validate(), retry.ErrUnknownPolicy)
}
