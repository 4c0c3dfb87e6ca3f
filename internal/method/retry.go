package method

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"
)

const (
	// DefaultRetryAttempts bounds how many times a single token-endpoint call
	// is attempted before the transient failure is surfaced.
	DefaultRetryAttempts = 3

	// DefaultRetryBaseDelay is the initial backoff interval between attempts.
	DefaultRetryBaseDelay = time.Second

	// DefaultAttemptTimeout bounds the total wall time of one token-endpoint
	// operation, independent of the attempt count.
	DefaultAttemptTimeout = 30 * time.Second
)

// RetryPolicy bounds retries of token-endpoint calls. The attempt count
// limits retries; the per-attempt deadline (set by the caller on the context)
// limits wall time. Whichever triggers first aborts the operation.
type RetryPolicy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultRetryAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = DefaultRetryBaseDelay
	}
	return p
}

// retryToken runs a token-endpoint operation under the retry policy with
// jittered exponential backoff. Only failures classified as transient are
// retried; everything else aborts immediately as permanent.
func retryToken(ctx context.Context, methodID string, policy RetryPolicy, op func() (*oauth2.Token, error)) (*oauth2.Token, error) {
	policy = policy.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5

	tok, err := backoff.Retry(ctx, func() (*oauth2.Token, error) {
		tok, err := op()
		if err != nil {
			classified := Classify(methodID, err)
			if !classified.Kind.Retryable() {
				return nil, backoff.Permanent(classified)
			}
			return nil, classified
		}
		return tok, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(policy.MaxAttempts))
	if err != nil {
		return nil, Classify(methodID, err)
	}
	return tok, nil
}
