package reddit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenURL is the Reddit token endpoint.
const TokenURL = "https://www.reddit.com/api/v1/access_token"

// Credentials identify a Reddit "script" or "web" application.
type Credentials struct {
	ClientID     string
	ClientSecret string

	// TokenURL overrides the token endpoint; empty selects TokenURL.
	TokenURL string
}

// AppTokenSource returns an application-only token source (client
// credentials grant). Tokens are cached and re-fetched on expiry. ctx must
// outlive the source.
func AppTokenSource(ctx context.Context, creds Credentials, httpClient *http.Client, userAgent string, logger *slog.Logger) (TokenSource, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, ErrNoCredentials
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = TokenURL
	}

	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	// The token endpoint also rejects generic user agents.
	withUA := &http.Client{
		Timeout:   httpClient.Timeout,
		Transport: userAgentTransport{ua: userAgent, base: httpClient.Transport},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, withUA)

	return &tokenBridge{src: cfg.TokenSource(ctx), logger: logger}, nil
}

type userAgentTransport struct {
	ua   string
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)

	return base.RoundTrip(r)
}

type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("reddit token request failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("reddit: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}
