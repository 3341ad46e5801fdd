package generator

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthOptions holds client-credentials settings for the LLM gateway.
type OAuthOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuthHTTPClient returns a client that attaches client-credentials tokens to
// every request, refreshing them as they expire. Token fetches use base.
func OAuthHTTPClient(ctx context.Context, opts OAuthOptions, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	cc := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		Scopes:       opts.Scopes,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return cc.Client(ctx)
}
