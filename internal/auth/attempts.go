package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

const attemptKeyPrefix = "auth:attempts:"

// AttemptLimiter counts failed credential checks per identifier in redis.
// A nil limiter allows everything.
type AttemptLimiter struct {
	client redis.Cmdable
	max    int
	window time.Duration
}

// NewAttemptLimiter builds a limiter allowing max failures per window.
func NewAttemptLimiter(client redis.Cmdable, max int, window time.Duration) *AttemptLimiter {
	if client == nil || max <= 0 {
		return nil
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &AttemptLimiter{client: client, max: max, window: window}
}

func attemptKey(scope, identifier string) string {
	return attemptKeyPrefix + scope + ":" + strings.ToLower(strings.TrimSpace(identifier))
}

// Check returns a TooManyRequests error once the identifier reached the limit.
func (l *AttemptLimiter) Check(ctx context.Context, scope, identifier string) error {
	if l == nil {
		return nil
	}
	count, err := l.client.Get(ctx, attemptKey(scope, identifier)).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if count >= l.max {
		return apperrors.NewTooManyRequests("too many failed attempts, try again later")
	}
	return nil
}

// Fail records one failed attempt. The window starts at the first failure.
func (l *AttemptLimiter) Fail(ctx context.Context, scope, identifier string) error {
	if l == nil {
		return nil
	}
	key := attemptKey(scope, identifier)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return l.client.Expire(ctx, key, l.window).Err()
	}
	return nil
}

// Reset clears the counter after a successful attempt.
func (l *AttemptLimiter) Reset(ctx context.Context, scope, identifier string) error {
	if l == nil {
		return nil
	}
	return l.client.Del(ctx, attemptKey(scope, identifier)).Err()
}
