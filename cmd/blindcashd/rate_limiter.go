// rate_limiter.go - Per-merchant deposit rate limiting
package main

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MerchantRateLimiter hands each merchant its own token bucket for deposits.
type MerchantRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	burst    int
	limit    rate.Limit
}

// NewMerchantRateLimiter allows burst deposits per merchant, refilled by
// refillRate tokens every refillPeriod.
func NewMerchantRateLimiter(burst int, refillRate int, refillPeriod time.Duration) *MerchantRateLimiter {
	return &MerchantRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		burst:    burst,
		limit:    rate.Limit(float64(refillRate) / refillPeriod.Seconds()),
	}
}

func (mrl *MerchantRateLimiter) limiter(merchant string) *rate.Limiter {
	mrl.mu.Lock()
	defer mrl.mu.Unlock()
	l, ok := mrl.limiters[merchant]
	if !ok {
		l = rate.NewLimiter(mrl.limit, mrl.burst)
		mrl.limiters[merchant] = l
	}
	return l
}

// Allow reports whether merchant may deposit now and consumes a token if so.
func (mrl *MerchantRateLimiter) Allow(merchant string) bool {
	return mrl.limiter(merchant).Allow()
}

// Tokens returns the deposits merchant could make right now.
func (mrl *MerchantRateLimiter) Tokens(merchant string) int {
	mrl.mu.Lock()
	l, ok := mrl.limiters[merchant]
	mrl.mu.Unlock()
	if !ok {
		return mrl.burst
	}
	return int(l.Tokens())
}

// Reset forgets merchant's history.
func (mrl *MerchantRateLimiter) Reset(merchant string) {
	mrl.mu.Lock()
	delete(mrl.limiters, merchant)
	mrl.mu.Unlock()
}
