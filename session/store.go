package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures. Callers retry
// a bounded number of times; the store never retries internally.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when a session row does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionSuperseded is returned by Rotate when the row exists but is
// no longer the active leaf (rotated or revoked). This is the reuse
// signal: the caller revokes the whole chain.
var ErrSessionSuperseded = errors.New("session superseded")

// ErrSessionExpired is returned by Rotate when the row's stored expiry
// has passed.
var ErrSessionExpired = errors.New("session expired")

// ErrRefreshHashMismatch is returned by Rotate when the presented secret
// does not match the stored hash. Treated as reuse-adjacent.
var ErrRefreshHashMismatch = errors.New("refresh hash mismatch")

// ErrChainTooLong is returned by Rotate when the chain set has reached
// the configured cap. Bounds the reuse-revocation walk.
var ErrChainTooLong = errors.New("refresh chain too long")

const (
	rotateStatusNotFound   int64 = 0
	rotateStatusSuperseded int64 = 1
	rotateStatusExpired    int64 = 2
	rotateStatusMismatch   int64 = 3
	rotateStatusRotated    int64 = 4
	rotateStatusChainFull  int64 = 5
)

// rotateScript is the single atomic step of the rotation state machine:
// check-then-mutate on the leaf row plus creation of its successor. Two
// concurrent refreshes on the same leaf produce exactly one winner; the
// loser observes state "rotated" and surfaces as reuse.
const rotateScript = `
local vals = redis.call("HMGET", KEYS[1],
  "state", "refresh_hash", "expires_at", "account_id", "chain_id",
  "device_fp", "role_mask", "email", "impersonated_by")
if not vals[1] then
  return {0}
end

local chain = vals[5]
local account = vals[4]
local chainKey = ARGV[1] .. chain

if vals[1] ~= "active" then
  return {1, chain, account}
end

local now = tonumber(ARGV[4])
if tonumber(vals[3]) <= now then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", chainKey, ARGV[7])
  return {2}
end

if vals[2] ~= ARGV[2] then
  return {3, chain, account}
end

local maxChain = tonumber(ARGV[9])
if maxChain > 0 and redis.call("SCARD", chainKey) >= maxChain then
  return {5, chain, account}
end

redis.call("HSET", KEYS[1], "state", "rotated", "rotated_to", ARGV[8])
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[6]))

local imp = vals[9]
if not imp then
  imp = ""
end
local expires = now + math.floor(tonumber(ARGV[5]) / 1000)
redis.call("HSET", KEYS[2],
  "state", "active",
  "account_id", account,
  "chain_id", chain,
  "device_fp", vals[6],
  "role_mask", vals[7],
  "email", vals[8],
  "impersonated_by", imp,
  "rotated_from", ARGV[7],
  "refresh_hash", ARGV[3],
  "created_at", now,
  "expires_at", expires)
redis.call("PEXPIRE", KEYS[2], tonumber(ARGV[5]))
redis.call("SADD", chainKey, ARGV[8])
redis.call("PEXPIRE", chainKey, tonumber(ARGV[5]) + tonumber(ARGV[6]))

return {4, account, chain, vals[6], vals[7], vals[8], imp, now, expires}
`

var rotateLua = redis.NewScript(rotateScript)

// revokeChainScript marks every row in a chain revoked and pins the
// tombstone TTL. Also used for logout, which shares revocation semantics
// with reuse response.
const revokeChainScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for i = 1, #ids do
  local key = ARGV[1] .. ids[i]
  local state = redis.call("HGET", key, "state")
  if state and state ~= "revoked" then
    redis.call("HSET", key, "state", "revoked")
    redis.call("PEXPIRE", key, tonumber(ARGV[2]))
    n = n + 1
  end
end
if #ids > 0 then
  redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[2]))
end
return n
`

var revokeChainLua = redis.NewScript(revokeChainScript)

// Config tunes store key layout and bounds.
type Config struct {
	Prefix         string
	MaxChainLength int
}

// Store persists refresh chains in Redis. All leaf mutations go through
// Lua scripts so that check-then-mutate sequences are atomic and
// revocation is linearizable with respect to concurrent refreshes.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	maxLen int
}

// NewStore creates a chain [Store] on the given Redis client.
func NewStore(client redis.UniversalClient, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ak"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		maxLen: cfg.MaxChainLength,
	}
}

func (s *Store) sessKey(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) sessPrefix() string {
	return s.prefix + ":s:"
}

func (s *Store) chainKey(chainID string) string {
	return s.prefix + ":c:" + chainID
}

func (s *Store) chainPrefix() string {
	return s.prefix + ":c:"
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + ":a:" + accountID
}

func (s *Store) deviceChainKey(accountID, fp string) string {
	return s.prefix + ":dc:" + accountID + ":" + fp
}

func (s *Store) reauthKey(accountID string) string {
	return s.prefix + ":ra:" + accountID
}

// Create persists a new chain root (or nothing else touches it). The row,
// chain set, account index, and device index are written in one MULTI.
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess.State == "" {
		sess.State = StateActive
	}

	indexTTL := ttl + ttl/2

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.sessKey(sess.SessionID),
			"state", sess.State,
			"account_id", sess.AccountID,
			"chain_id", sess.ChainID,
			"device_fp", sess.DeviceFP,
			"role_mask", strconv.FormatUint(sess.RoleMask, 10),
			"email", sess.Email,
			"impersonated_by", sess.ImpersonatedBy,
			"rotated_from", sess.RotatedFrom,
			"refresh_hash", string(sess.RefreshHash[:]),
			"created_at", strconv.FormatInt(sess.CreatedAt, 10),
			"expires_at", strconv.FormatInt(sess.ExpiresAt, 10),
		)
		pipe.PExpire(ctx, s.sessKey(sess.SessionID), ttl)
		pipe.SAdd(ctx, s.chainKey(sess.ChainID), sess.SessionID)
		pipe.PExpire(ctx, s.chainKey(sess.ChainID), indexTTL)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.ChainID)
		pipe.PExpire(ctx, s.accountKey(sess.AccountID), indexTTL)
		if sess.DeviceFP != "" {
			pipe.SAdd(ctx, s.deviceChainKey(sess.AccountID, sess.DeviceFP), sess.ChainID)
			pipe.PExpire(ctx, s.deviceChainKey(sess.AccountID, sess.DeviceFP), indexTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches a session row without mutating any state.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	return decodeFields(sessionID, fields)
}

// Rotate performs the refresh transition: verify the presented hash
// against the ACTIVE leaf and atomically supersede it with a new row.
// The returned session is the new leaf. Sentinel errors classify every
// failure so the engine can map reuse signals to chain revocation.
func (s *Store) Rotate(
	ctx context.Context,
	oldID, newID string,
	providedHash, nextHash [32]byte,
	ttl, tombstone time.Duration,
) (*Session, error) {
	now := time.Now().Unix()
	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.sessKey(oldID), s.sessKey(newID)},
		s.chainPrefix(),
		string(providedHash[:]),
		string(nextHash[:]),
		now,
		ttl.Milliseconds(),
		tombstone.Milliseconds(),
		oldID,
		newID,
		s.maxLen,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrSessionNotFound
	case rotateStatusSuperseded:
		return supersededSession(oldID, parts), ErrSessionSuperseded
	case rotateStatusExpired:
		return nil, ErrSessionExpired
	case rotateStatusMismatch:
		return supersededSession(oldID, parts), ErrRefreshHashMismatch
	case rotateStatusChainFull:
		return supersededSession(oldID, parts), ErrChainTooLong
	case rotateStatusRotated:
		if len(parts) < 9 {
			return nil, fmt.Errorf("%w: short rotate script response", ErrRedisUnavailable)
		}
		mask, _ := strconv.ParseUint(luaString(parts[4]), 10, 64)
		created, _ := luaInt(parts[7])
		expires, _ := luaInt(parts[8])
		return &Session{
			SessionID:      newID,
			AccountID:      luaString(parts[1]),
			ChainID:        luaString(parts[2]),
			DeviceFP:       luaString(parts[3]),
			RoleMask:       mask,
			Email:          luaString(parts[5]),
			ImpersonatedBy: luaString(parts[6]),
			State:          StateActive,
			RotatedFrom:    oldID,
			RefreshHash:    nextHash,
			CreatedAt:      created,
			ExpiresAt:      expires,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// RevokeChain marks every row in the chain revoked. Returns the number of
// rows transitioned. Idempotent.
func (s *Store) RevokeChain(ctx context.Context, chainID string, tombstone time.Duration) (int, error) {
	n, err := revokeChainLua.Run(
		ctx,
		s.redis,
		[]string{s.chainKey(chainID)},
		s.sessPrefix(),
		tombstone.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// RevokeAccount revokes every chain for the account, optionally sparing
// one chain (logout-all-but-current).
func (s *Store) RevokeAccount(ctx context.Context, accountID, exceptChainID string, tombstone time.Duration) (int, error) {
	chains, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	total := 0
	for _, chainID := range chains {
		if exceptChainID != "" && chainID == exceptChainID {
			continue
		}
		n, err := s.RevokeChain(ctx, chainID, tombstone)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// RevokeDevice revokes every chain bound to the (account, fingerprint)
// pair and drops the device-chain index.
func (s *Store) RevokeDevice(ctx context.Context, accountID, fp string, tombstone time.Duration) (int, error) {
	key := s.deviceChainKey(accountID, fp)
	chains, err := s.redis.SMembers(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	total := 0
	for _, chainID := range chains {
		n, err := s.RevokeChain(ctx, chainID, tombstone)
		if err != nil {
			return total, err
		}
		total += n
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return total, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return total, nil
}

// ChainIDs lists the account's known chain IDs, including revoked ones
// still inside the tombstone window.
func (s *Store) ChainIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// MarkReauthRequired flags the account after reuse detection. The flag
// lives as long as any stolen refresh token could.
func (s *Store) MarkReauthRequired(ctx context.Context, accountID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.reauthKey(accountID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ReauthRequired reports whether the account is flagged for
// re-authentication on all devices.
func (s *Store) ReauthRequired(ctx context.Context, accountID string) (bool, error) {
	_, err := s.redis.Get(ctx, s.reauthKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return true, nil
}

// ClearReauth removes the re-authentication flag. Called after a fresh
// password login.
func (s *Store) ClearReauth(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.reauthKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns Redis availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeFields(sessionID string, fields map[string]string) (*Session, error) {
	mask, err := strconv.ParseUint(fields["role_mask"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session row %s: %v", sessionID, err)
	}
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	expires, _ := strconv.ParseInt(fields["expires_at"], 10, 64)

	sess := &Session{
		SessionID:      sessionID,
		ChainID:        fields["chain_id"],
		AccountID:      fields["account_id"],
		Email:          fields["email"],
		RoleMask:       mask,
		DeviceFP:       fields["device_fp"],
		ImpersonatedBy: fields["impersonated_by"],
		State:          fields["state"],
		RotatedFrom:    fields["rotated_from"],
		CreatedAt:      created,
		ExpiresAt:      expires,
	}
	copy(sess.RefreshHash[:], fields["refresh_hash"])
	return sess, nil
}

// supersededSession carries chain/account identity out of failed rotate
// calls so the engine can target revocation without a second read.
func supersededSession(sessionID string, parts []interface{}) *Session {
	sess := &Session{SessionID: sessionID}
	if len(parts) >= 3 {
		sess.ChainID = luaString(parts[1])
		sess.AccountID = luaString(parts[2])
	}
	return sess
}

func luaString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func luaInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
