package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradeyard/authkit/federation"
	"github.com/tradeyard/authkit/internal"
	"github.com/tradeyard/authkit/internal/rate"
	"github.com/tradeyard/authkit/internal/stores"
	"github.com/tradeyard/authkit/password"
)

// CompleteRegistrationInput finishes a ticketed registration. Password
// is optional; without one the account can only log in through its
// linked provider.
type CompleteRegistrationInput struct {
	Ticket   string
	Name     string
	Password string
	Roles    []string
}

// BeginFederation returns the provider redirect URL with a signed state
// parameter.
func (e *Engine) BeginFederation(ctx context.Context, providerName string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if e.providers == nil {
		return "", ErrFederationFailed
	}

	provider, err := e.providers.Get(providerName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFederationFailed, err)
	}

	state, err := e.state.Mint()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFederationFailed, err)
	}

	return provider.AuthCodeURL(state), nil
}

// CompleteFederation handles the provider callback. A linked identity
// logs straight in; a verified email matching a local account links and
// logs in; an unknown identity yields a single-use registration ticket
// instead of tokens.
func (e *Engine) CompleteFederation(ctx context.Context, providerName, code, state string) (*FederationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.providers == nil {
		return nil, ErrFederationFailed
	}

	if err := e.state.Verify(state); err != nil {
		e.metrics.Inc(MetricFederationFailure)
		return nil, ErrFederationFailed
	}

	provider, err := e.providers.Get(providerName)
	if err != nil {
		e.metrics.Inc(MetricFederationFailure)
		return nil, ErrFederationFailed
	}

	token, err := provider.Exchange(ctx, code)
	if err != nil {
		e.metrics.Inc(MetricFederationFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: "federation.callback",
			Success:   false,
			Error:     err.Error(),
			Metadata:  map[string]string{"provider": providerName},
		})
		return nil, ErrFederationFailed
	}

	profile, err := provider.FetchProfile(ctx, token)
	if err != nil {
		e.metrics.Inc(MetricFederationFailure)
		return nil, ErrFederationFailed
	}

	ident := ExternalIdentity{Provider: profile.Provider, ExternalID: profile.ExternalID}

	acct, err := e.accounts.GetAccountByExternalIdentity(ctx, ident)
	switch {
	case err == nil:
		return e.federatedLogin(ctx, acct, ident)
	case errors.Is(err, ErrAccountNotFound):
	default:
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(profile.Email))
	acct, err = e.accounts.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		// Provider-verified email matches a local account: link once,
		// then log in.
		if linkErr := e.accounts.LinkExternalIdentity(ctx, acct.ID, ident); linkErr != nil {
			return nil, linkErr
		}
		return e.federatedLogin(ctx, acct, ident)
	case errors.Is(err, ErrAccountNotFound):
		return e.issueTicket(ctx, profile, email)
	default:
		return nil, err
	}
}

// CompleteRegistration redeems a registration ticket into a new account
// and logs it in. The ticket is consumed whether or not the call
// succeeds past redemption.
func (e *Engine) CompleteRegistration(ctx context.Context, input CompleteRegistrationInput) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := e.limiter.CheckTicket(ctx, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metrics.Inc(MetricTicketInvalid)
			return nil, ErrLoginRateLimited
		}
		return nil, err
	}

	ticketID, secret, err := internal.DecodeOpaqueToken(input.Ticket)
	if err != nil {
		e.metrics.Inc(MetricTicketInvalid)
		return nil, ErrTicketInvalid
	}

	ticket, err := e.tickets.Redeem(ctx, ticketID, internal.HashSecret(secret))
	if err != nil {
		if errors.Is(err, stores.ErrTicketNotFound) || errors.Is(err, stores.ErrTicketSecretMismatch) {
			e.metrics.Inc(MetricTicketInvalid)
			e.emitAudit(ctx, AuditEvent{
				EventType: "federation.ticket",
				Success:   false,
				Error:     ErrTicketInvalid.Error(),
			})
			return nil, ErrTicketInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	mask, err := e.roles.MaskFor(input.Roles...)
	if err != nil {
		return nil, err
	}

	hash := ""
	if input.Password != "" {
		hash, err = e.hasher.Hash(input.Password)
		if err != nil {
			if errors.Is(err, password.ErrPasswordTooShort) {
				return nil, ErrPasswordPolicy
			}
			return nil, err
		}
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = ticket.Name
	}

	now := time.Now().Unix()
	acct := &AccountRecord{
		ID:              uuid.New().String(),
		Email:           ticket.Email,
		Name:            name,
		PasswordHash:    hash,
		RoleMask:        uint64(mask),
		ProfileComplete: true,
		Status:          StatusActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.accounts.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	ident := ExternalIdentity{Provider: ticket.Provider, ExternalID: ticket.ExternalID}
	if err := e.accounts.LinkExternalIdentity(ctx, acct.ID, ident); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricTicketRedeemed)
	e.metrics.Inc(MetricAccountCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: "federation.ticket",
		AccountID: acct.ID,
		Success:   true,
		Metadata:  map[string]string{"provider": ticket.Provider},
	})

	return e.issueSession(ctx, acct, "", e.config.Session.RefreshTTL)
}

func (e *Engine) federatedLogin(ctx context.Context, acct *AccountRecord, ident ExternalIdentity) (*FederationResult, error) {
	if acct.Status != StatusActive {
		return nil, ErrAccountDisabled
	}

	if err := e.sessions.ClearReauth(ctx, acct.ID); err != nil {
		e.logger.WithError(err).Warn("reauth clear failed")
	}

	result, err := e.issueSession(ctx, acct, "", e.config.Session.RefreshTTL)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: "federation.login",
		AccountID: acct.ID,
		SessionID: result.SessionID,
		ChainID:   result.ChainID,
		Success:   true,
		Metadata:  map[string]string{"provider": ident.Provider},
	})

	return &FederationResult{Login: result}, nil
}

func (e *Engine) issueTicket(ctx context.Context, profile *federation.Profile, email string) (*FederationResult, error) {
	tid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ticketID := tid.String()
	ticketToken, err := internal.EncodeOpaqueToken(ticketID, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	err = e.tickets.Save(ctx, ticketID, internal.HashSecret(secret), &stores.Ticket{
		Provider:   profile.Provider,
		ExternalID: profile.ExternalID,
		Email:      email,
		Name:       profile.Name,
		IssuedAt:   time.Now().Unix(),
	}, e.config.Federation.TicketTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricTicketIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType: "federation.ticket_issued",
		Success:   true,
		Metadata:  map[string]string{"provider": profile.Provider},
	})

	return &FederationResult{
		Ticket: &TicketResult{
			Ticket:   ticketToken,
			Email:    email,
			Name:     profile.Name,
			Provider: profile.Provider,
		},
	}, nil
}
