package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider performs the Google OAuth handshake and reads the
// OpenID userinfo endpoint.
type GoogleProvider struct {
	config *oauth2.Config
	client *http.Client
}

// NewGoogle configures a [GoogleProvider]. httpClient may be nil, in
// which case http.DefaultClient is used.
func NewGoogle(clientID, clientSecret, redirectURL string, httpClient *http.Client) *GoogleProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		client: httpClient,
	}
}

// Name implements [Provider].
func (p *GoogleProvider) Name() string { return "google" }

// AuthCodeURL implements [Provider].
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange implements [Provider].
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return token, nil
}

// FetchProfile implements [Provider]. Google marks email verification
// explicitly; unverified emails fail with [ErrProfileIncomplete].
func (p *GoogleProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	client := p.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if info.Sub == "" || info.Email == "" || !info.EmailVerified {
		return nil, ErrProfileIncomplete
	}

	return &Profile{
		Provider:      p.Name(),
		ExternalID:    info.Sub,
		Email:         info.Email,
		EmailVerified: true,
		Name:          info.Name,
		AvatarURL:     info.Picture,
	}, nil
}
