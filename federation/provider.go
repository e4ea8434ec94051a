// Package federation implements the external identity-provider side of
// login: OAuth authorization-code handshakes, profile fetching, and
// signed state tokens. The engine consumes the verified profile; account
// linking and ticket issuance stay in the engine.
package federation

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

var (
	// ErrProviderUnavailable wraps transport failures talking to the
	// external provider.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProfileIncomplete means the provider returned no verified email,
	// so the identity cannot anchor an account.
	ErrProfileIncomplete = errors.New("provider profile incomplete")
	// ErrUnknownProvider means no provider is registered under the name.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Profile is the identity a provider vouches for after a successful
// handshake.
type Profile struct {
	Provider      string
	ExternalID    string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}

// Provider is one configured external identity provider.
type Provider interface {
	// Name returns the registry key, e.g. "google".
	Name() string
	// AuthCodeURL builds the authorization redirect for the given
	// signed state.
	AuthCodeURL(state string) string
	// Exchange swaps the callback code for a provider token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// FetchProfile loads the identity behind the token.
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// Registry maps provider names to configured providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a provider [Registry].
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
