package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Provider names.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

const (
	googleProfileURL    = "https://www.googleapis.com/oauth2/v3/userinfo"
	microsoftProfileURL = "https://graph.microsoft.com/v1.0/me"
	maxProfileBytes     = 1 << 20
)

var (
	// ErrUnknownProvider is returned for a provider name that is not configured.
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrStateMismatch is returned when the OAuth state does not match the cookie.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrIncompleteProfile is returned when the provider profile has no subject.
	ErrIncompleteProfile = errors.New("provider profile has no subject")
)

// Profile is what a provider tells us about the person who signed in.
type Profile struct {
	Provider    string
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Provider is an external identity provider using the authorization code flow.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Profile, error)
}

// OAuthProvider implements Provider on top of golang.org/x/oauth2 and a
// profile endpoint.
type OAuthProvider struct {
	name       string
	conf       *oauth2.Config
	profileURL string
	authOpts   []oauth2.AuthCodeOption
	parse      func(body []byte) Profile
	httpClient *http.Client
}

// NewGoogleProvider returns the Google provider.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		name: ProviderGoogle,
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "profile", "email"},
		},
		profileURL: googleProfileURL,
		parse:      parseGoogleProfile,
	}
}

// NewMicrosoftProvider returns the Microsoft provider for the given tenant
// ("common" accepts personal and work accounts).
func NewMicrosoftProvider(clientID, clientSecret, callbackURL, tenant string) *OAuthProvider {
	if tenant == "" {
		tenant = "common"
	}
	return &OAuthProvider{
		name: ProviderMicrosoft,
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     endpoints.AzureAD(tenant),
			Scopes:       []string{"user.read"},
		},
		profileURL: microsoftProfileURL,
		authOpts:   []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "select_account")},
		parse:      parseMicrosoftProfile,
	}
}

// Name implements Provider.
func (p *OAuthProvider) Name() string { return p.name }

// AuthCodeURL implements Provider.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state, p.authOpts...)
}

// Exchange implements Provider: it trades the code for a token and fetches
// the profile with it.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%s code exchange: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%s profile request: %w", p.name, err)
	}
	resp, err := p.conf.Client(ctx, token).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%s profile fetch: %w", p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return Profile{}, fmt.Errorf("%s profile read: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%s profile fetch: status %d", p.name, resp.StatusCode)
	}

	profile := p.parse(body)
	profile.Provider = p.name
	if profile.Subject == "" {
		return Profile{}, fmt.Errorf("%s: %w", p.name, ErrIncompleteProfile)
	}
	return profile, nil
}

func parseGoogleProfile(body []byte) Profile {
	res := gjson.ParseBytes(body)
	return Profile{
		Subject:     res.Get("sub").String(),
		Email:       strings.TrimSpace(res.Get("email").String()),
		DisplayName: res.Get("name").String(),
		AvatarURL:   res.Get("picture").String(),
	}
}

// Microsoft accounts do not always expose mail; fall back to the UPN.
func parseMicrosoftProfile(body []byte) Profile {
	res := gjson.ParseBytes(body)
	email := strings.TrimSpace(res.Get("mail").String())
	if email == "" {
		email = strings.TrimSpace(res.Get("userPrincipalName").String())
	}
	return Profile{
		Subject:     res.Get("id").String(),
		Email:       email,
		DisplayName: res.Get("displayName").String(),
	}
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

// Len returns the number of configured providers.
func (r *Registry) Len() int { return len(r.providers) }
