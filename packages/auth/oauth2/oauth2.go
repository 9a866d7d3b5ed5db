// Package oauth2 fetches bearer tokens for backends that sit behind an
// OAuth2 authorization server.
package oauth2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/statusprobe/packages/http"
)

type GrantType string

const (
	ClientCredentials GrantType = "client_credentials"
	Password          GrantType = "password"
	RefreshToken      GrantType = "refresh_token"
)

// expirySkew is taken off a token's lifetime to allow for clock skew.
const expirySkew = 30 * time.Second

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Username     string // password grant only
	Password     string // password grant only
	GrantType    GrantType
}

// ParseGrantType accepts an empty string as client_credentials.
func ParseGrantType(s string) (GrantType, error) {
	switch GrantType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClientCredentials:
		return ClientCredentials, nil
	case Password:
		return Password, nil
	}
	return "", fmt.Errorf("unsupported OAuth2 grant type %q (use client_credentials or password)", s)
}

func (c *Config) Validate() error {
	if c.TokenURL == "" {
		return fmt.Errorf("oauth2 token URL is required")
	}
	if err := http.ValidateURL(c.TokenURL); err != nil {
		return fmt.Errorf("oauth2 token URL: %w", err)
	}
	if c.ClientID == "" {
		return fmt.Errorf("oauth2 client ID is required")
	}
	if c.GrantType == Password && c.Username == "" {
		return fmt.Errorf("oauth2 password grant requires a username")
	}
	return nil
}

type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"-"`
}

// IsExpired reports whether the token is expired or about to be. A token
// without a lifetime never expires.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(expirySkew).After(t.ExpiresAt)
}

// Provider fetches tokens and caches them until they expire. It is safe for
// concurrent use.
type Provider struct {
	config *Config
	client *http.Client
	cache  *TokenCache
}

type Option func(*Provider)

func WithClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

func WithCache(c *TokenCache) Option {
	return func(p *Provider) {
		p.cache = c
	}
}

func NewProvider(config *Config, opts ...Option) *Provider {
	p := &Provider{config: config}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = http.NewClient(http.WithTimeout(30 * time.Second))
	}
	if p.cache == nil {
		p.cache = NewTokenCache()
	}
	return p
}

// Token returns an access token, fetching a new one when the cached one is
// missing or expired. An expired token with a refresh token is refreshed
// first.
func (p *Provider) Token(ctx context.Context) (string, error) {
	tok, err := p.GetToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (p *Provider) GetToken(ctx context.Context) (*Token, error) {
	key := p.cacheKey()
	cached := p.cache.Get(key)
	if cached != nil && !cached.IsExpired() {
		return cached, nil
	}

	var (
		tok *Token
		err error
	)
	if cached != nil && cached.RefreshToken != "" {
		tok, err = p.RefreshAccessToken(ctx, cached.RefreshToken)
	}
	if tok == nil || err != nil {
		tok, err = p.fetchToken(ctx)
		if err != nil {
			p.cache.Delete(key)
			return nil, err
		}
	}

	p.cache.Set(key, tok)
	return tok, nil
}

func (p *Provider) cacheKey() string {
	return fmt.Sprintf("%s:%s:%s:%s", p.config.TokenURL, p.config.ClientID, p.config.Username, strings.Join(p.config.Scopes, ","))
}

func (p *Provider) fetchToken(ctx context.Context) (*Token, error) {
	data := url.Values{}
	switch p.config.GrantType {
	case Password:
		data.Set("grant_type", string(Password))
		data.Set("username", p.config.Username)
		data.Set("password", p.config.Password)
	default:
		data.Set("grant_type", string(ClientCredentials))
	}
	if len(p.config.Scopes) > 0 {
		data.Set("scope", strings.Join(p.config.Scopes, " "))
	}
	return p.doTokenRequest(ctx, data)
}

// RefreshAccessToken exchanges a refresh token for a new access token.
func (p *Provider) RefreshAccessToken(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", string(RefreshToken))
	data.Set("refresh_token", refreshToken)
	return p.doTokenRequest(ctx, data)
}

func (p *Provider) doTokenRequest(ctx context.Context, data url.Values) (*Token, error) {
	req := http.NewRequest("POST", p.config.TokenURL).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Accept", "application/json").
		SetBody(data.Encode())

	if p.config.ClientID != "" && p.config.ClientSecret != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(p.config.ClientID + ":" + p.config.ClientSecret))
		req.SetHeader("Authorization", "Basic "+auth)
	}

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	if resp.StatusCode != 200 {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(resp.Body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("token request failed: %s - %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, resp.Excerpt(200))
	}

	var tok Token
	if err := json.Unmarshal(resp.Body, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	if tok.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return &tok, nil
}
