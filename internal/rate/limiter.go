package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	EnableIPThrottle      bool
	EnableRefreshThrottle bool
	MaxLoginAttempts      int
	LoginWindow           time.Duration
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
	MaxTicketAttempts     int
	TicketWindow          time.Duration
}

// Limiter enforces per-email and per-IP login budgets, per-chain refresh
// budgets, and per-IP registration-ticket budgets with Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "ak"
	}
	return &Limiter{redis: redisClient, prefix: prefix, config: cfg}
}

func (l *Limiter) loginEmailKey(email string) string {
	return l.prefix + ":rl:le:" + email
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.prefix + ":rl:li:" + ip
}

func (l *Limiter) refreshChainKey(chainID string) string {
	return l.prefix + ":rl:rc:" + chainID
}

func (l *Limiter) ticketIPKey(ip string) string {
	return l.prefix + ":rl:ti:" + ip
}

// CheckLogin reports whether the email+IP pair still has login attempts
// left in the current window.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if err := l.checkCounter(ctx, l.loginEmailKey(email), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the email+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	count, err := l.incrementWithTTL(ctx, l.loginEmailKey(email), l.config.LoginWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the failed-login counters for the email+IP pair.
// Called after a successful login or a password change.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	keys := []string{l.loginEmailKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.loginIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// CheckRefresh counts one refresh attempt against the chain's window
// and fails when the budget is exhausted. The counter is keyed by chain,
// not session, so rotating does not reset it.
func (l *Limiter) CheckRefresh(ctx context.Context, chainID string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshChainKey(chainID), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

// CheckTicket counts one registration-ticket redemption attempt for the
// IP and fails when the budget is exhausted.
func (l *Limiter) CheckTicket(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.ticketIPKey(ip), l.config.TicketWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxTicketAttempts) {
		return ErrRateLimited
	}

	return nil
}

// LoginAttempts returns the current counter for an email. Missing keys
// return zero and do not reveal account existence.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginEmailKey(email)).Int64()
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

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count > int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only on the first hit of the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
