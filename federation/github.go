package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubProvider performs the GitHub OAuth handshake. GitHub profiles
// may hide the account email, so the primary verified address is read
// from the emails endpoint when the profile omits it.
type GitHubProvider struct {
	config *oauth2.Config
	client *http.Client
}

// NewGitHub configures a [GitHubProvider]. httpClient may be nil, in
// which case http.DefaultClient is used.
func NewGitHub(clientID, clientSecret, redirectURL string, httpClient *http.Client) *GitHubProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		client: httpClient,
	}
}

// Name implements [Provider].
func (p *GitHubProvider) Name() string { return "github" }

// AuthCodeURL implements [Provider].
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange implements [Provider].
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return token, nil
}

// FetchProfile implements [Provider].
func (p *GitHubProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	client := p.config.Client(ctx, token)

	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := p.getJSON(ctx, client, githubUserURL, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, ErrProfileIncomplete
	}

	email := user.Email
	verified := email != ""
	if email == "" {
		var err error
		email, err = p.primaryVerifiedEmail(ctx, client)
		if err != nil {
			return nil, err
		}
		verified = email != ""
	}
	if !verified {
		return nil, ErrProfileIncomplete
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &Profile{
		Provider:      p.Name(),
		ExternalID:    strconv.FormatInt(user.ID, 10),
		Email:         email,
		EmailVerified: true,
		Name:          name,
		AvatarURL:     user.AvatarURL,
	}, nil
}

func (p *GitHubProvider) primaryVerifiedEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.getJSON(ctx, client, githubEmailsURL, &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s status %d", ErrProviderUnavailable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}
