package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/saltyorg/guestbook/internal/config"
)

// Provider talks to an Auth0 tenant using the authorization code flow
type Provider struct {
	baseURL    string
	clientID   string
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewProvider creates a provider for cfg. httpClient is used for the token
// exchange and userinfo calls; nil means http.DefaultClient.
func NewProvider(cfg config.AuthConfig, httpClient *http.Client) *Provider {
	baseURL := cfg.Domain
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Provider{
		baseURL:  baseURL,
		clientID: cfg.ClientID,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/authorize",
				TokenURL:  baseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"openid", "profile", "email"},
		},
		httpClient: httpClient,
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthCodeURL returns the URL to send the browser to for login
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.oauth.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// UserInfo fetches the profile of the token's owner
func (p *Provider) UserInfo(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	client := p.oauth.Client(p.clientContext(ctx), token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if profile.Subject == "" {
		return nil, fmt.Errorf("userinfo response has no subject")
	}
	return &profile, nil
}

// LogoutURL returns the tenant logout URL that sends the browser back to returnTo
func (p *Provider) LogoutURL(returnTo string) string {
	q := url.Values{}
	q.Set("returnTo", returnTo)
	q.Set("client_id", p.clientID)
	return p.baseURL + "/v2/logout?" + q.Encode()
}

// HomeURL is the site root derived from the callback URL, used as the
// post-logout return address.
func (p *Provider) HomeURL() string {
	u, err := url.Parse(p.oauth.RedirectURL)
	if err != nil || u.Host == "" {
		return "/"
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}
