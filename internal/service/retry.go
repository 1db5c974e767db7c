package service

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds optimistic-lock retries of stock updates.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy: 3 attempts, waiting 0.2s then 0.4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		Multiplier:      2,
	}
}

func (p RetryPolicy) attempts() uint {
	if p.MaxAttempts == 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.InitialInterval <= 0 {
		return &backoff.ZeroBackOff{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.RandomizationFactor = 0
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.MaxInterval = time.Minute
	return b
}
