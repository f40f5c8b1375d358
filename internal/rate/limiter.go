package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters. Zero limits take the defaults.
type Config struct {
	Prefix            string
	MaxSignInAttempts int
	SignInCooldown    time.Duration
	// PerIP adds a per-address sign-in budget next to the per-account one.
	PerIP        bool
	MaxSignUps   int
	SignUpWindow time.Duration
}

// Limiter enforces sign-in and sign-up budgets with Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "goblog"
	}
	if cfg.MaxSignInAttempts <= 0 {
		cfg.MaxSignInAttempts = 5
	}
	if cfg.SignInCooldown <= 0 {
		cfg.SignInCooldown = 15 * time.Minute
	}
	if cfg.MaxSignUps <= 0 {
		cfg.MaxSignUps = 10
	}
	if cfg.SignUpWindow <= 0 {
		cfg.SignUpWindow = time.Hour
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckSignIn reports ErrRateLimited once email (or ip, with PerIP) has used
// its failure budget. It does not count the attempt.
func (l *Limiter) CheckSignIn(ctx context.Context, email, ip string) error {
	for _, key := range l.signInKeys(email, ip) {
		if err := l.checkCounter(ctx, key, l.config.MaxSignInAttempts); err != nil {
			return err
		}
	}
	return nil
}

// FailSignIn records a failed sign-in. It returns ErrRateLimited when this
// failure exhausts the budget.
func (l *Limiter) FailSignIn(ctx context.Context, email, ip string) error {
	var limited []string
	for _, key := range l.signInKeys(email, ip) {
		count, err := l.incrementWithTTL(ctx, key, l.config.SignInCooldown)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxSignInAttempts) {
			limited = append(limited, key)
		}
	}
	if len(limited) > 0 {
		return l.limited(ctx, limited...)
	}
	return nil
}

// ResetSignIn clears the per-account failure counter after a successful
// sign-in. The per-address counter keeps running.
func (l *Limiter) ResetSignIn(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.key("signin", email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowSignUp counts one account creation from ip and reports ErrRateLimited
// beyond the window budget. An empty ip is not limited.
func (l *Limiter) AllowSignUp(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	key := l.key("signup-ip", ip)
	count, err := l.incrementWithTTL(ctx, key, l.config.SignUpWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSignUps) {
		return l.limited(ctx, key)
	}
	return nil
}

// SignInFailures returns the current failure count for email. Missing keys
// return zero and do not reveal account existence.
func (l *Limiter) SignInFailures(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.key("signin", email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) signInKeys(email, ip string) []string {
	keys := []string{l.key("signin", email)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, l.key("signin-ip", ip))
	}
	return keys
}

func (l *Limiter) key(kind, id string) string {
	return l.config.Prefix + ":rl:" + kind + ":" + strings.ToLower(strings.TrimSpace(id))
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(maxAttempts) {
		return l.limited(ctx, key)
	}
	return nil
}

// limited builds the over-budget error, waiting out the longest of keys. A TTL
// lookup failure leaves RetryAfter unset rather than hiding the limit.
func (l *Limiter) limited(ctx context.Context, keys ...string) error {
	e := &LimitError{}
	for _, key := range keys {
		ttl, err := l.redis.TTL(ctx, key).Result()
		if err != nil {
			continue
		}
		if ttl > e.RetryAfter {
			e.RetryAfter = ttl
		}
	}
	return e
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set on the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
