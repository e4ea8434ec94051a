package federation

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

const (
	stateNonceLen = 16
	stateMACLen   = 16
	stateRawLen   = stateNonceLen + 8 + stateMACLen
)

// ErrBadState means the callback state failed signature or expiry
// checks. It covers tampering, truncation, and staleness alike.
var ErrBadState = errors.New("invalid oauth state")

// StateSigner mints and verifies the opaque state parameter carried
// through the provider redirect. States are stateless: a random nonce
// and an expiry bound by an HMAC, so no server-side storage is needed
// to reject forged or replay-stale callbacks.
type StateSigner struct {
	key []byte
	ttl time.Duration
}

// NewStateSigner creates a [StateSigner]. The key must be secret and
// stable across the engine's replicas.
func NewStateSigner(key []byte, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateSigner{key: key, ttl: ttl}
}

// Mint produces a fresh signed state.
func (s *StateSigner) Mint() (string, error) {
	raw := make([]byte, stateRawLen)
	if _, err := rand.Read(raw[:stateNonceLen]); err != nil {
		return "", err
	}

	expiry := time.Now().Add(s.ttl).Unix()
	binary.BigEndian.PutUint64(raw[stateNonceLen:stateNonceLen+8], uint64(expiry))

	mac := s.mac(raw[:stateNonceLen+8])
	copy(raw[stateNonceLen+8:], mac[:stateMACLen])

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Verify checks the state's signature and expiry.
func (s *StateSigner) Verify(state string) error {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil || len(raw) != stateRawLen {
		return ErrBadState
	}

	mac := s.mac(raw[:stateNonceLen+8])
	if !hmac.Equal(mac[:stateMACLen], raw[stateNonceLen+8:]) {
		return ErrBadState
	}

	expiry := int64(binary.BigEndian.Uint64(raw[stateNonceLen : stateNonceLen+8]))
	if time.Now().Unix() > expiry {
		return ErrBadState
	}

	return nil
}

func (s *StateSigner) mac(payload []byte) [sha256.Size]byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(payload)
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
