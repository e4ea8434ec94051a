package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SessionID is 16 bytes of CSPRNG output, rendered as unpadded base64url.
type SessionID [16]byte

const (
	secretSize       = 32
	opaqueTokenBytes = 16 + secretSize
)

// ErrMalformedToken is returned when an opaque token fails to decode.
var ErrMalformedToken = errors.New("malformed opaque token")

// NewSessionID returns a fresh random session identifier.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes the base64url form back into a SessionID.
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, ErrMalformedToken
	}
	if len(raw) != len(sid) {
		return sid, ErrMalformedToken
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewSecret returns 32 bytes of CSPRNG output. Used for refresh-token and
// registration-ticket secrets.
func NewSecret() ([secretSize]byte, error) {
	var secret [secretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the stored form of a secret. Only the hash is persisted;
// presenting the preimage proves possession.
func HashSecret(secret [secretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeOpaqueToken packs an ID and its secret into one opaque string.
// Refresh tokens and registration tickets share this wire format.
func EncodeOpaqueToken(id string, secret [secretSize]byte) (string, error) {
	sid, err := ParseSessionID(id)
	if err != nil {
		return "", err
	}

	var raw [opaqueTokenBytes]byte
	copy(raw[:len(sid)], sid[:])
	copy(raw[len(sid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeOpaqueToken splits an opaque token back into ID and secret.
func DecodeOpaqueToken(token string) (string, [secretSize]byte, error) {
	var secret [secretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, ErrMalformedToken
	}
	if len(raw) != opaqueTokenBytes {
		return "", secret, ErrMalformedToken
	}

	var sid SessionID
	copy(sid[:], raw[:len(sid)])
	copy(secret[:], raw[len(sid):])

	return sid.String(), secret, nil
}
