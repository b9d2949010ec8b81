// Package retry runs "start and confirm" calls a bounded number of times.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation. Attempts counts every call, including
// the first. A Multiplier above 1 grows the delay after each failure.
type Policy struct {
	Attempts   int
	Delay      time.Duration
	Multiplier float64
}

// Do calls op until it succeeds, returns a Permanent error, the attempts are
// used up, or ctx is done. It returns the last error seen.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	var b backoff.BackOff
	if p.Multiplier > 1 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		eb.Multiplier = p.Multiplier
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Delay)
	}
	retries := uint64(0)
	if p.Attempts > 1 {
		retries = uint64(p.Attempts - 1)
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
	return backoff.Retry(func() error {
		return op(ctx)
	}, b)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
