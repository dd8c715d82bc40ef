package nl2sql

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    Translator
	limiter *rate.Limiter
}

// RateLimited waits for a limiter token before each call. A wait that cannot
// finish before the request context ends fails with ErrRateLimited.
func RateLimited(next Translator, limiter *rate.Limiter) Translator {
	if limiter == nil {
		return next
	}
	return &rateLimited{next: next, limiter: limiter}
}

func (r *rateLimited) Translate(ctx context.Context, req Request) (Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return r.next.Translate(ctx, req)
}
