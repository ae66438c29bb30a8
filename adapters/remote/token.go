package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource yields the full Authorization header value for a request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed Authorization header value, sent verbatim.
type StaticToken string

// Token returns the static value.
func (t StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", fmt.Errorf("empty token")
	}
	return string(t), nil
}

// UAAConfig holds OAuth2 client credentials for a foundation's UAA.
type UAAConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuth2Token fetches and caches access tokens with the client credentials grant.
// Token requests run under the caller's context so its deadline bounds them.
type OAuth2Token struct {
	cfg *clientcredentials.Config

	mu  sync.Mutex
	tok *oauth2.Token
}

// NewOAuth2Token creates a token source for cfg. Tokens are refreshed shortly
// before they expire.
func NewOAuth2Token(cfg UAAConfig) *OAuth2Token {
	return &OAuth2Token{cfg: &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}}
}

// Token returns "<type> <access token>".
func (t *OAuth2Token) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tok.Valid() {
		tok, err := t.cfg.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("fetch uaa token: %w", err)
		}
		t.tok = tok
	}
	return t.tok.Type() + " " + t.tok.AccessToken, nil
}

var (
	_ TokenSource = StaticToken("")
	_ TokenSource = (*OAuth2Token)(nil)
)
