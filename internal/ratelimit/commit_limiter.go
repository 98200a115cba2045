package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payforms/internal/config"
)

const keyCommitIngress = "payforms:commit:%s:%s"

// CommitLimiter throttles gateway callbacks per tenant and payform.
type CommitLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewCommitLimiter(cfg config.Config, client redis.UniversalClient) *CommitLimiter {
	if client == nil || cfg.CommitRateLimit.Rate <= 0 || cfg.CommitRateLimit.Burst <= 0 {
		return &CommitLimiter{}
	}
	return &CommitLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.CommitRateLimit.Rate,
		burst:  cfg.CommitRateLimit.Burst,
	}
}

func (l *CommitLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow reports whether another commit may proceed and, if not, when to retry.
func (l *CommitLimiter) Allow(ctx context.Context, tenantID, payformID string) (bool, time.Duration, error) {
	if !l.Enabled() {
		return true, 0, nil
	}
	res, err := l.bucket.Allow(ctx, commitKey(tenantID, payformID), l.rate, l.burst)
	if err != nil {
		return true, 0, err
	}
	return res.Allowed, res.RetryAfter, nil
}

func commitKey(tenantID, payformID string) string {
	return fmt.Sprintf(keyCommitIngress, strings.TrimSpace(tenantID), strings.ToLower(strings.TrimSpace(payformID)))
}
