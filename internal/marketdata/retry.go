package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls retries of external calls
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy is five attempts starting at one second and doubling
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, InitialInterval: time.Second, Multiplier: 2}

var errEmpty = errors.New("empty response")

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = p.InitialInterval * time.Duration(1<<uint(max(p.Attempts, 1)))
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// retry runs op under the policy. errEmpty is retried like any transient
// error; backoff.Permanent errors stop immediately.
func (p RetryPolicy) retry(ctx context.Context, op func() error, notify func(error, time.Duration)) error {
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}
