// Package google connects to Gmail for sending and to Google Sheets for lead
// imports, authenticated with a stored OAuth token.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"
)

// Scopes are the permissions requested during authorization.
var Scopes = []string{
	gmail.GmailSendScope,
	gmail.GmailReadonlyScope,
	sheets.SpreadsheetsReadonlyScope,
}

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("google account not connected; run `outreach auth google`")

// OAuthSettings are the client credentials of the Google Cloud OAuth app.
type OAuthSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewOAuthConfig creates the OAuth2 config for Gmail and Sheets.
func NewOAuthConfig(s OAuthSettings) *oauth2.Config {
	redirect := s.RedirectURL
	if redirect == "" {
		redirect = "urn:ietf:wg:oauth:2.0:oob"
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// TokenPath returns where the OAuth token is stored under dataDir.
func TokenPath(dataDir string) string {
	return filepath.Join(dataDir, "google-token.json")
}

// SaveToken writes token to path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}

// LoadToken reads a token written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("opening token file: %w", err)
	}
	defer f.Close()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &token, nil
}

// AuthURL returns the consent page URL. Offline access yields a refresh token.
func AuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it at path.
func Exchange(ctx context.Context, cfg *oauth2.Config, code, path string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := SaveToken(path, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Credentials is a token source that persists refreshed tokens and can be
// forced to refresh after the API rejects a token it still believes valid.
type Credentials struct {
	ctx  context.Context
	cfg  *oauth2.Config
	path string

	mu   sync.Mutex
	tok  *oauth2.Token
	base oauth2.TokenSource
}

// NewCredentials loads the stored token from path.
func NewCredentials(ctx context.Context, cfg *oauth2.Config, path string) (*Credentials, error) {
	tok, err := LoadToken(path)
	if err != nil {
		return nil, err
	}
	return &Credentials{ctx: ctx, cfg: cfg, path: path, tok: tok, base: cfg.TokenSource(ctx, tok)}, nil
}

// Token implements oauth2.TokenSource.
func (c *Credentials) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, err := c.base.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing google token: %w", err)
	}
	if tok.AccessToken != c.tok.AccessToken {
		if tok.RefreshToken == "" {
			tok.RefreshToken = c.tok.RefreshToken
		}
		c.tok = tok
		if err := SaveToken(c.path, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

// ForceRefresh discards the cached access token so the next Token call uses
// the refresh token.
func (c *Credentials) ForceRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.cfg.TokenSource(c.ctx, &oauth2.Token{RefreshToken: c.tok.RefreshToken})
}

// HTTPClient returns a client that authorizes every request with c.
func (c *Credentials) HTTPClient() *http.Client {
	return &http.Client{Transport: &oauth2.Transport{Source: c}}
}
