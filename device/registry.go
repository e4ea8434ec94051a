package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrDeviceNotFound is returned when the (account, fingerprint) pair has
// no row.
var ErrDeviceNotFound = errors.New("device not found")

// Device is one tracked (account, fingerprint) pair.
type Device struct {
	Fingerprint string
	AccountID   string
	Trusted     bool
	UserAgent   string
	FirstSeenAt int64
	LastSeenAt  int64
}

// Registry persists device rows in Redis: one hash per device plus a
// per-account fingerprint index.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRegistry creates a device [Registry]. ttl bounds how long an unseen
// device row survives; every RecordSeen renews it.
func NewRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *Registry {
	if prefix == "" {
		prefix = "ak"
	}
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &Registry{redis: client, prefix: prefix, ttl: ttl}
}

func (r *Registry) deviceKey(accountID, fp string) string {
	return r.prefix + ":d:" + accountID + ":" + fp
}

func (r *Registry) indexKey(accountID string) string {
	return r.prefix + ":di:" + accountID
}

// RecordSeen upserts the device row and refreshes last-seen state. It is
// called on every successful login and refresh and must not fail the
// caller; storage errors are returned for logging only.
func (r *Registry) RecordSeen(ctx context.Context, accountID, fp, userAgent string) error {
	now := time.Now().Unix()
	key := r.deviceKey(accountID, fp)

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "first_seen", strconv.FormatInt(now, 10))
		pipe.HSetNX(ctx, key, "trusted", "0")
		pipe.HSet(ctx, key,
			"last_seen", strconv.FormatInt(now, 10),
			"user_agent", userAgent,
		)
		pipe.Expire(ctx, key, r.ttl)
		pipe.SAdd(ctx, r.indexKey(accountID), fp)
		pipe.Expire(ctx, r.indexKey(accountID), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Known reports whether the fingerprint has been seen for the account.
func (r *Registry) Known(ctx context.Context, accountID, fp string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.deviceKey(accountID, fp)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// SetTrusted flips the trust flag on an existing device row.
func (r *Registry) SetTrusted(ctx context.Context, accountID, fp string, trusted bool) error {
	key := r.deviceKey(accountID, fp)

	n, err := r.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}

	val := "0"
	if trusted {
		val = "1"
	}
	if err := r.redis.HSet(ctx, key, "trusted", val).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches one device row.
func (r *Registry) Get(ctx context.Context, accountID, fp string) (*Device, error) {
	fields, err := r.redis.HGetAll(ctx, r.deviceKey(accountID, fp)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrDeviceNotFound
	}
	return decodeDevice(accountID, fp, fields), nil
}

// List returns every tracked device for the account. Index entries whose
// rows have expired are skipped and pruned.
func (r *Registry) List(ctx context.Context, accountID string) ([]*Device, error) {
	fps, err := r.redis.SMembers(ctx, r.indexKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Device{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	devices := make([]*Device, 0, len(fps))
	for _, fp := range fps {
		fields, err := r.redis.HGetAll(ctx, r.deviceKey(accountID, fp)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(fields) == 0 {
			_ = r.redis.SRem(ctx, r.indexKey(accountID), fp).Err()
			continue
		}
		devices = append(devices, decodeDevice(accountID, fp, fields))
	}
	return devices, nil
}

// Remove deletes the device row and its index entry. Session revocation
// for the fingerprint is the session store's job; the engine sequences
// revocation first so a racing refresh cannot resurrect the chain.
func (r *Registry) Remove(ctx context.Context, accountID, fp string) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.deviceKey(accountID, fp))
		pipe.SRem(ctx, r.indexKey(accountID), fp)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RemoveAll deletes every device row for the account except, optionally,
// one fingerprint to spare.
func (r *Registry) RemoveAll(ctx context.Context, accountID, exceptFP string) error {
	fps, err := r.redis.SMembers(ctx, r.indexKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	for _, fp := range fps {
		if exceptFP != "" && fp == exceptFP {
			continue
		}
		if err := r.Remove(ctx, accountID, fp); err != nil {
			return err
		}
	}
	return nil
}

func decodeDevice(accountID, fp string, fields map[string]string) *Device {
	first, _ := strconv.ParseInt(fields["first_seen"], 10, 64)
	last, _ := strconv.ParseInt(fields["last_seen"], 10, 64)
	return &Device{
		Fingerprint: fp,
		AccountID:   accountID,
		Trusted:     fields["trusted"] == "1",
		UserAgent:   fields["user_agent"],
		FirstSeenAt: first,
		LastSeenAt:  last,
	}
}
