// Package accountmem is an in-memory [authkit.AccountStore] for tests
// and examples. Not for production use; rows vanish with the process.
package accountmem

import (
	"context"
	"strings"
	"sync"
	"time"

	authkit "github.com/tradeyard/authkit"
)

// Store keeps account rows in maps guarded by one RWMutex.
type Store struct {
	mu        sync.RWMutex
	byID      map[string]*authkit.AccountRecord
	byEmail   map[string]string
	byExtern  map[string]string
	externals map[string][]authkit.ExternalIdentity
}

// New creates an empty [Store].
func New() *Store {
	return &Store{
		byID:      make(map[string]*authkit.AccountRecord),
		byEmail:   make(map[string]string),
		byExtern:  make(map[string]string),
		externals: make(map[string][]authkit.ExternalIdentity),
	}
}

func externKey(ident authkit.ExternalIdentity) string {
	return ident.Provider + "\x00" + ident.ExternalID
}

func cloneRecord(rec *authkit.AccountRecord) *authkit.AccountRecord {
	out := *rec
	return &out
}

// CreateAccount implements [authkit.AccountStore].
func (s *Store) CreateAccount(ctx context.Context, rec *authkit.AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(rec.Email)
	if _, exists := s.byEmail[email]; exists {
		return authkit.ErrDuplicateEmail
	}

	stored := cloneRecord(rec)
	stored.Email = email
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return nil
}

// GetAccountByID implements [authkit.AccountStore].
func (s *Store) GetAccountByID(ctx context.Context, id string) (*authkit.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, authkit.ErrAccountNotFound
	}
	return cloneRecord(rec), nil
}

// GetAccountByEmail implements [authkit.AccountStore].
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*authkit.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, authkit.ErrAccountNotFound
	}
	return cloneRecord(s.byID[id]), nil
}

// UpdatePasswordHash implements [authkit.AccountStore].
func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string, version uint64) error {
	return s.update(id, version, func(rec *authkit.AccountRecord) {
		rec.PasswordHash = passwordHash
	})
}

// UpdateRoleMask implements [authkit.AccountStore].
func (s *Store) UpdateRoleMask(ctx context.Context, id string, mask uint64, version uint64) error {
	return s.update(id, version, func(rec *authkit.AccountRecord) {
		rec.RoleMask = mask
	})
}

// SetProfileComplete implements [authkit.AccountStore].
func (s *Store) SetProfileComplete(ctx context.Context, id string, complete bool, version uint64) error {
	return s.update(id, version, func(rec *authkit.AccountRecord) {
		rec.ProfileComplete = complete
	})
}

// SetStatus implements [authkit.AccountStore].
func (s *Store) SetStatus(ctx context.Context, id string, status authkit.AccountStatus, version uint64) error {
	return s.update(id, version, func(rec *authkit.AccountRecord) {
		rec.Status = status
	})
}

// LinkExternalIdentity implements [authkit.AccountStore].
func (s *Store) LinkExternalIdentity(ctx context.Context, id string, ident authkit.ExternalIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return authkit.ErrAccountNotFound
	}

	key := externKey(ident)
	if owner, exists := s.byExtern[key]; exists && owner != id {
		return authkit.ErrConflict
	}
	s.byExtern[key] = id
	s.externals[id] = append(s.externals[id], ident)
	return nil
}

// GetAccountByExternalIdentity implements [authkit.AccountStore].
func (s *Store) GetAccountByExternalIdentity(ctx context.Context, ident authkit.ExternalIdentity) (*authkit.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExtern[externKey(ident)]
	if !ok {
		return nil, authkit.ErrAccountNotFound
	}
	return cloneRecord(s.byID[id]), nil
}

func (s *Store) update(id string, version uint64, mutate func(*authkit.AccountRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return authkit.ErrAccountNotFound
	}
	if rec.Version != version {
		return authkit.ErrConflict
	}

	mutate(rec)
	rec.Version++
	rec.UpdatedAt = time.Now().Unix()
	return nil
}
