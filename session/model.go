// Package session implements the Redis-backed refresh-chain store. Each
// login opens a chain; every refresh atomically supersedes the chain's
// leaf. Superseded and revoked rows are kept as tombstones for the
// reuse-detection window so that presenting a stale refresh token is
// distinguishable from presenting garbage.
package session

// Session states. A chain has exactly one ACTIVE leaf; ROTATED rows are
// historical; REVOKED is terminal and reachable from any state.
const (
	StateActive  = "active"
	StateRotated = "rotated"
	StateRevoked = "revoked"
)

// Session is one row of a refresh chain.
type Session struct {
	SessionID      string
	ChainID        string
	AccountID      string
	Email          string
	RoleMask       uint64
	DeviceFP       string
	ImpersonatedBy string
	State          string
	RotatedFrom    string
	RefreshHash    [32]byte
	CreatedAt      int64
	ExpiresAt      int64
}

// Active reports whether the row is the live leaf of its chain at the
// given unix time.
func (s *Session) Active(nowUnix int64) bool {
	return s.State == StateActive && s.ExpiresAt > nowUnix
}
