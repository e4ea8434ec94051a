package stores

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrTicketNotFound covers expired, already-redeemed, and never-issued
	// tickets alike so a caller cannot probe which one it was.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrTicketSecretMismatch means the ticket row exists but the
	// presented secret does not match. The row is deleted on mismatch.
	ErrTicketSecretMismatch = errors.New("ticket secret mismatch")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Ticket is the pending-registration record issued after a successful
// external-provider handshake for an email with no local account. It
// carries the verified identity forward into CompleteRegistration.
type Ticket struct {
	Provider   string
	ExternalID string
	Email      string
	Name       string
	IssuedAt   int64
}

// redeemScript deletes the ticket row in the same step that validates
// the secret, so a ticket can be redeemed at most once even under
// concurrent presentation. A wrong secret also burns the row.
var redeemScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'secret_hash', 'provider', 'external_id', 'email', 'name', 'issued_at')
if not f[1] then
  return {0}
end
redis.call('DEL', KEYS[1])
if f[1] ~= ARGV[1] then
  return {1}
end
return {2, f[2], f[3], f[4], f[5], f[6]}
`)

// TicketStore persists registration tickets in Redis, one hash per
// ticket, expiring with the ticket TTL.
type TicketStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTicketStore creates a [TicketStore].
func NewTicketStore(client redis.UniversalClient, prefix string) *TicketStore {
	if prefix == "" {
		prefix = "ak"
	}
	return &TicketStore{redis: client, prefix: prefix}
}

func (s *TicketStore) key(ticketID string) string {
	return s.prefix + ":t:" + ticketID
}

// Save writes the ticket row under the given ID with the SHA-256 of the
// ticket secret. The row expires after ttl.
func (s *TicketStore) Save(ctx context.Context, ticketID string, secretHash [32]byte, t *Ticket, ttl time.Duration) error {
	key := s.key(ticketID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"secret_hash", hex.EncodeToString(secretHash[:]),
			"provider", t.Provider,
			"external_id", t.ExternalID,
			"email", t.Email,
			"name", t.Name,
			"issued_at", strconv.FormatInt(t.IssuedAt, 10),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Redeem validates the secret and deletes the ticket atomically. The
// ticket is gone afterwards whether the secret matched or not.
func (s *TicketStore) Redeem(ctx context.Context, ticketID string, providedHash [32]byte) (*Ticket, error) {
	res, err := redeemScript.Run(ctx, s.redis,
		[]string{s.key(ticketID)},
		hex.EncodeToString(providedHash[:]),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) == 0 {
		return nil, fmt.Errorf("%w: unexpected redeem reply", ErrRedisUnavailable)
	}

	code, _ := reply[0].(int64)
	switch code {
	case 0:
		return nil, ErrTicketNotFound
	case 1:
		return nil, ErrTicketSecretMismatch
	case 2:
		if len(reply) < 6 {
			return nil, fmt.Errorf("%w: truncated redeem reply", ErrRedisUnavailable)
		}
		issuedAt, _ := strconv.ParseInt(replyString(reply[5]), 10, 64)
		return &Ticket{
			Provider:   replyString(reply[1]),
			ExternalID: replyString(reply[2]),
			Email:      replyString(reply[3]),
			Name:       replyString(reply[4]),
			IssuedAt:   issuedAt,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown redeem code %d", ErrRedisUnavailable, code)
	}
}

func replyString(v interface{}) string {
	s, _ := v.(string)
	return s
}
