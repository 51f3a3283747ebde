package ratelimit

import (
	"context"
	"fmt"

	"github.com/newsmint/kiosk/internal/config"
	"go.uber.org/zap"
)

// CallbackLimiter throttles the carrier callback endpoint per tenant.
// Without redis it admits everything, which matches single-instance
// development setups.
type CallbackLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger
	rate   float64
	burst  int
}

func NewCallbackLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *CallbackLimiter {
	return &CallbackLimiter{
		bucket: bucket,
		log:    log.Named("ratelimit.callback"),
		rate:   cfg.CallbackRatePerSecond,
		burst:  cfg.CallbackBurst,
	}
}

// Allow reports whether one more callback for the tenant may proceed.
func (c *CallbackLimiter) Allow(ctx context.Context, tenantID int64) (*Result, error) {
	if c == nil || c.bucket == nil {
		return &Result{Allowed: true}, nil
	}

	key := fmt.Sprintf("kiosk:callback:%d", tenantID)
	res, err := c.bucket.Allow(ctx, key, c.rate, c.burst)
	if err != nil {
		// Fail open when redis is unavailable.
		c.log.Warn("rate limit check failed, admitting", zap.Error(err))
		return &Result{Allowed: true}, nil
	}
	return res, nil
}
