package repository

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/noah-isme/arena-booking-api/pkg/config"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

// OAuthAuthority runs the Google authorization-code grant for calendar access.
type OAuthAuthority struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuthAuthority builds an authority against Google's OAuth endpoint.
func NewOAuthAuthority(cfg config.GoogleConfig, client *http.Client) *OAuthAuthority {
	return NewOAuthAuthorityWithEndpoint(cfg, google.Endpoint, client)
}

// NewOAuthAuthorityWithEndpoint builds an authority against a custom endpoint.
func NewOAuthAuthorityWithEndpoint(cfg config.GoogleConfig, endpoint oauth2.Endpoint, client *http.Client) *OAuthAuthority {
	return &OAuthAuthority{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		client: client,
	}
}

// AuthCodeURL returns the consent page URL. Offline access is requested so the session can be renewed.
func (a *OAuthAuthority) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token.
func (a *OAuthAuthority) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "authorization code is required")
	}
	token, err := a.config.Exchange(a.context(ctx), code)
	if err != nil {
		return nil, mapOAuthError(err, "authorization code rejected")
	}
	return token, nil
}

// Refresh obtains a new access token from the refresh token. The refresh token is kept when the
// server does not rotate it.
func (a *OAuthAuthority) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || token.RefreshToken == "" {
		return nil, appErrors.Clone(appErrors.ErrCalendarAuth, "calendar session cannot be renewed")
	}
	renewed, err := a.config.TokenSource(a.context(ctx), &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	if err != nil {
		return nil, mapOAuthError(err, "calendar session renewal rejected")
	}
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = token.RefreshToken
	}
	return renewed, nil
}

func (a *OAuthAuthority) context(ctx context.Context) context.Context {
	if a.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.client)
}

func mapOAuthError(err error, message string) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil && retrieve.Response.StatusCode < http.StatusInternalServerError {
		return appErrors.Wrap(err, appErrors.ErrCalendarAuth.Code, appErrors.ErrCalendarAuth.Status, message)
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "oauth server unavailable")
}
