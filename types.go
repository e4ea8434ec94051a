package authkit

import (
	"context"

	"github.com/tradeyard/authkit/role"
)

// AccountStatus is the lifecycle state of an account record.
type AccountStatus string

const (
	// StatusActive accounts may log in.
	StatusActive AccountStatus = "active"
	// StatusDisabled accounts keep their data but cannot authenticate.
	StatusDisabled AccountStatus = "disabled"
)

// AccountRecord is the engine's view of a stored account. Version
// advances on every mutation and backs optimistic concurrency on role
// changes.
type AccountRecord struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	RoleMask        uint64
	ProfileComplete bool
	Status          AccountStatus
	Version         uint64
	CreatedAt       int64
	UpdatedAt       int64
}

// ExternalIdentity is one (provider, subject) pair linked to an account.
type ExternalIdentity struct {
	Provider   string
	ExternalID string
}

// AccountStore is the host application's account persistence. The
// engine owns credentials and sessions; the host owns the account rows.
// Implementations must be safe for concurrent use.
//
// Emails arrive already normalized (trimmed, lowercased). CreateAccount
// must fail with [ErrDuplicateEmail] on an email collision, and the
// versioned updates must fail with [ErrConflict] when the stored
// version differs from the caller's.
type AccountStore interface {
	CreateAccount(ctx context.Context, rec *AccountRecord) error
	GetAccountByID(ctx context.Context, id string) (*AccountRecord, error)
	GetAccountByEmail(ctx context.Context, email string) (*AccountRecord, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, version uint64) error
	UpdateRoleMask(ctx context.Context, id string, mask uint64, version uint64) error
	SetProfileComplete(ctx context.Context, id string, complete bool, version uint64) error
	SetStatus(ctx context.Context, id string, status AccountStatus, version uint64) error
	LinkExternalIdentity(ctx context.Context, id string, ident ExternalIdentity) error
	GetAccountByExternalIdentity(ctx context.Context, ident ExternalIdentity) (*AccountRecord, error)
}

// Claims is the validated identity attached to a request after
// Authenticate succeeds.
type Claims struct {
	AccountID      string
	Email          string
	RoleMask       role.Mask
	SessionID      string
	ImpersonatedBy string
	ExpiresAt      int64
}

// Impersonated reports whether the session acts on behalf of another
// identity.
func (c *Claims) Impersonated() bool {
	return c != nil && c.ImpersonatedBy != ""
}

// TokenTriple is the credential set issued by login and refresh.
type TokenTriple struct {
	AccessToken      string
	RefreshToken     string
	SessionToken     string
	AccessExpiresAt  int64
	RefreshExpiresAt int64
}

// LoginResult describes a successful credential issuance.
type LoginResult struct {
	Tokens    TokenTriple
	AccountID string
	SessionID string
	ChainID   string
	RoleMask  role.Mask
	NewDevice bool
}

// RegisterInput is the payload for password registration.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Roles    []string
}

// TicketResult is returned when federation finds no local account: the
// caller must complete registration with the ticket before tokens are
// issued.
type TicketResult struct {
	Ticket   string
	Email    string
	Name     string
	Provider string
}

// FederationResult is the outcome of an OAuth callback. Exactly one of
// Login and Ticket is set.
type FederationResult struct {
	Login  *LoginResult
	Ticket *TicketResult
}
