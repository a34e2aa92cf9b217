package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const throttleKeyPrefix = "auth:login:fail:"

// LoginThrottle counts failed logins per username in Redis. Once the limit
// is reached within the window, further attempts are locked out until the
// counter expires.
type LoginThrottle struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewLoginThrottle constructs a LoginThrottle.
func NewLoginThrottle(client *redis.Client, maxAttempts int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{client: client, maxAttempts: maxAttempts, window: window}
}

// Locked reports whether the username is currently locked out and, if so,
// for how much longer.
func (t *LoginThrottle) Locked(ctx context.Context, username string) (bool, time.Duration, error) {
	if t == nil || t.client == nil {
		return false, 0, nil
	}
	key := throttleKeyPrefix + username
	count, err := t.client.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return false, 0, nil
		}
		return false, 0, err
	}
	if count < t.maxAttempts {
		return false, 0, nil
	}
	ttl, err := t.client.TTL(ctx, key).Result()
	if err != nil {
		return true, t.window, nil
	}
	return true, ttl, nil
}

// RegisterFailure increments the failure counter and refreshes the lock
// window in one round trip, so the counter can never outlive its TTL.
func (t *LoginThrottle) RegisterFailure(ctx context.Context, username string) error {
	if t == nil || t.client == nil {
		return nil
	}
	key := throttleKeyPrefix + username
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.window)
	_, err := pipe.Exec(ctx)
	return err
}

// Reset clears the failure counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, username string) error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Del(ctx, throttleKeyPrefix+username).Err()
}
