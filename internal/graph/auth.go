package graph

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/Akhilkandikonda/pipedream/internal/tokenfile"
)

// DefaultClientID is the public Azure AD application used when the config
// does not name one.
const DefaultClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"

// Read-only access is enough to discover new files.
var defaultScopes = []string{"offline_access", "Files.Read.All", "User.Read"}

// DeviceAuth is what the user needs to finish a device-code sign-in.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
	Expires         time.Time
}

// OAuthConfig returns the device-code configuration for clientID (empty
// selects DefaultClientID).
func OAuthConfig(clientID string) *oauth2.Config {
	if clientID == "" {
		clientID = DefaultClientID
	}

	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   defaultScopes,
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}

// Credentials is the OneDrive sign-in of one account, persisted as a token
// file.
type Credentials struct {
	OAuth  *oauth2.Config
	Path   string
	Logger *slog.Logger
}

func NewCredentials(clientID, tokenPath string, logger *slog.Logger) *Credentials {
	return &Credentials{OAuth: OAuthConfig(clientID), Path: tokenPath, Logger: logger}
}

// Login runs the device-code flow. prompt is called once with the code to
// show; Login then blocks until the user approves, ctx ends or the code
// expires. The token is saved before the source is returned.
func (c *Credentials) Login(ctx context.Context, prompt func(DeviceAuth)) (TokenSource, error) {
	c.Logger.Info("requesting device code", slog.String("client_id", c.OAuth.ClientID))

	resp, err := c.OAuth.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: requesting device code: %w", err)
	}

	prompt(DeviceAuth{
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		Expires:         resp.Expiry,
	})

	tok, err := c.OAuth.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("graph: waiting for device approval: %w", err)
	}

	if err := tokenfile.Save(c.Path, tok, nil); err != nil {
		return nil, fmt.Errorf("graph: saving token: %w", err)
	}

	c.Logger.Info("signed in", slog.String("path", c.Path), slog.Time("expiry", tok.Expiry))

	return c.bridge(ctx, tok, nil), nil
}

// Source returns a refreshing token source over the saved token, or
// ErrNotLoggedIn when there is none. Refreshed tokens are written back.
// ctx bounds every refresh, so long-lived callers pass context.Background().
func (c *Credentials) Source(ctx context.Context) (TokenSource, error) {
	tok, meta, err := tokenfile.Load(c.Path)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	if !tok.Expiry.IsZero() && time.Now().After(tok.Expiry) {
		c.Logger.Debug("saved access token expired, refreshing on first use", slog.String("path", c.Path))
	}

	return c.bridge(ctx, tok, meta), nil
}

// Logout deletes the token file. A missing file is not an error.
func (c *Credentials) Logout() error {
	switch err := os.Remove(c.Path); {
	case err == nil:
		c.Logger.Info("removed token file", slog.String("path", c.Path))
	case errors.Is(err, fs.ErrNotExist):
		c.Logger.Info("already logged out", slog.String("path", c.Path))
	default:
		return fmt.Errorf("graph: removing token: %w", err)
	}

	return nil
}

func (c *Credentials) bridge(ctx context.Context, tok *oauth2.Token, meta map[string]string) *tokenBridge {
	saving := tokenfile.NewSavingSource(c.Path, meta, c.OAuth.TokenSource(ctx, tok), tok, c.Logger)

	return &tokenBridge{src: oauth2.ReuseTokenSource(tok, saving), logger: c.Logger}
}

// tokenBridge exposes an oauth2.TokenSource as a bearer-string TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token refresh failed", slog.String("error", err.Error()))

		return "", fmt.Errorf("graph: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}
