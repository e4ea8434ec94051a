package authkit

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradeyard/authkit/internal/rate"
	"github.com/tradeyard/authkit/password"
)

// Register creates a password account and logs it in. The email must be
// unused; requested roles must exist in the registry. The base-user
// role is granted regardless of the request.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	mask, err := e.roles.MaskFor(input.Roles...)
	if err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return nil, ErrPasswordPolicy
		}
		return nil, err
	}

	now := time.Now().Unix()
	acct := &AccountRecord{
		ID:              uuid.New().String(),
		Email:           email,
		Name:            strings.TrimSpace(input.Name),
		PasswordHash:    hash,
		RoleMask:        uint64(mask),
		ProfileComplete: true,
		Status:          StatusActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.accounts.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metrics.Inc(MetricAccountDuplicate)
			e.emitAudit(ctx, AuditEvent{
				EventType: "account.register",
				Success:   false,
				Error:     ErrDuplicateEmail.Error(),
			})
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	e.metrics.Inc(MetricAccountCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: "account.register",
		AccountID: acct.ID,
		Success:   true,
	})

	return e.issueSession(ctx, acct, "", e.config.Session.RefreshTTL)
}

// Login verifies a password credential and opens a new refresh chain.
// Unknown email and wrong password are indistinguishable to the caller
// and burn comparable CPU.
func (e *Engine) Login(ctx context.Context, emailInput, pass string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(emailInput)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	ip := clientIPFromContext(ctx)

	if err := e.limiter.CheckLogin(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metrics.Inc(MetricLoginRateLimited)
			e.emitAudit(ctx, AuditEvent{
				EventType: "login",
				Success:   false,
				Error:     ErrLoginRateLimited.Error(),
			})
			return nil, ErrLoginRateLimited
		}
		return nil, err
	}

	acct, err := e.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.hasher.DummyVerify(pass)
			return nil, e.failLogin(ctx, email, ip, "")
		}
		e.logger.WithError(err).Error("account lookup failed")
		return nil, err
	}

	// Status first: a disabled account never confirms whether the
	// candidate password was right.
	if acct.Status != StatusActive {
		e.hasher.DummyVerify(pass)
		e.emitAudit(ctx, AuditEvent{
			EventType: "login",
			AccountID: acct.ID,
			Success:   false,
			Error:     ErrAccountDisabled.Error(),
		})
		return nil, ErrAccountDisabled
	}

	// Federated accounts carry no hash. They fail like a wrong password,
	// burning the same CPU, so the error shape does not mark them.
	if acct.PasswordHash == "" {
		e.hasher.DummyVerify(pass)
		return nil, e.failLogin(ctx, email, ip, acct.ID)
	}

	ok, err := e.hasher.Verify(pass, acct.PasswordHash)
	if err != nil {
		e.logger.WithError(err).WithField("account_id", acct.ID).Error("password verify failed")
		return nil, err
	}
	if !ok {
		return nil, e.failLogin(ctx, email, ip, acct.ID)
	}

	if needs, _ := e.hasher.NeedsRehash(acct.PasswordHash); needs {
		if newHash, hashErr := e.hasher.Hash(pass); hashErr == nil {
			if upErr := e.accounts.UpdatePasswordHash(ctx, acct.ID, newHash, acct.Version); upErr != nil {
				e.logger.WithError(upErr).WithField("account_id", acct.ID).Warn("rehash update skipped")
			}
		}
	}

	if err := e.sessions.ClearReauth(ctx, acct.ID); err != nil {
		e.logger.WithError(err).Warn("reauth clear failed")
	}
	if err := e.limiter.ResetLogin(ctx, email, ip); err != nil {
		e.logger.WithError(err).Warn("login counter reset failed")
	}

	result, err := e.issueSession(ctx, acct, "", e.config.Session.RefreshTTL)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: "login",
		AccountID: acct.ID,
		SessionID: result.SessionID,
		ChainID:   result.ChainID,
		DeviceFP:  e.fingerprint(ctx),
		Success:   true,
		Metadata:  map[string]string{"new_device": boolString(result.NewDevice)},
	})

	return result, nil
}

// ChangePassword verifies the current password, swaps the hash, and
// revokes every other chain. Impersonated sessions may not call this.
func (e *Engine) ChangePassword(ctx context.Context, claims *Claims, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireMutable(claims); err != nil {
		return err
	}

	acct, err := e.accounts.GetAccountByID(ctx, claims.AccountID)
	if err != nil {
		return err
	}

	ok := false
	if acct.PasswordHash == "" {
		e.hasher.DummyVerify(current)
	} else {
		var verifyErr error
		ok, verifyErr = e.hasher.Verify(current, acct.PasswordHash)
		if verifyErr != nil {
			return verifyErr
		}
	}
	if !ok {
		e.metrics.Inc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, AuditEvent{
			EventType: "password.change",
			AccountID: acct.ID,
			Success:   false,
			Error:     ErrInvalidCredentials.Error(),
		})
		return ErrInvalidCredentials
	}

	newHash, err := e.hasher.Hash(next)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return ErrPasswordPolicy
		}
		return err
	}

	if err := e.accounts.UpdatePasswordHash(ctx, acct.ID, newHash, acct.Version); err != nil {
		return err
	}

	// Keep the chain behind the caller's session alive, drop the rest.
	currentChain := ""
	if sess, sessErr := e.sessions.Get(ctx, claims.SessionID); sessErr == nil {
		currentChain = sess.ChainID
	}
	if _, err := e.sessions.RevokeAccount(ctx, acct.ID, currentChain, e.config.Session.TombstoneTTL); err != nil {
		e.logger.WithError(err).WithField("account_id", acct.ID).Error("post-change revocation failed")
	}
	if err := e.limiter.ResetLogin(ctx, acct.Email, clientIPFromContext(ctx)); err != nil {
		e.logger.WithError(err).Warn("login counter reset failed")
	}

	e.metrics.Inc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: "password.change",
		AccountID: acct.ID,
		SessionID: claims.SessionID,
		Success:   true,
	})

	return nil
}

// failLogin records a failed attempt and returns the uniform
// credential error.
func (e *Engine) failLogin(ctx context.Context, email, ip, accountID string) error {
	if err := e.limiter.IncrementLogin(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.logger.WithError(err).Warn("login counter increment failed")
	}
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{
		EventType: "login",
		AccountID: accountID,
		Success:   false,
		Error:     ErrInvalidCredentials.Error(),
	})
	return ErrInvalidCredentials
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidCredentials
	}
	return email, nil
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
