// Package googleauth resolves Google API credentials for the Sheets mirror
// and the Drive blob store.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Credentials lists the supported sources, in order of preference: a
// service account (inline JSON or file), then an installed-app OAuth client
// plus a saved token (as produced by cmd/oauth-init).
type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientJSON    string
	OAuthClientFile    string
	OAuthTokenJSON     string
	OAuthTokenFile     string
}

// FromEnv reads credentials from the environment. GOOGLE_APPLICATION_CREDENTIALS
// is used as the service account file when nothing else is set.
func FromEnv() Credentials {
	c := Credentials{
		ServiceAccountJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		ServiceAccountFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
		OAuthClientJSON:    strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")),
		OAuthClientFile:    strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")),
		OAuthTokenJSON:     strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")),
		OAuthTokenFile:     strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")),
	}
	if c.ServiceAccountJSON == "" && c.ServiceAccountFile == "" && !c.hasOAuth() {
		c.ServiceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return c
}

func (c Credentials) hasServiceAccount() bool {
	return c.ServiceAccountJSON != "" || c.ServiceAccountFile != ""
}

func (c Credentials) hasOAuth() bool {
	return (c.OAuthClientJSON != "" || c.OAuthClientFile != "") &&
		(c.OAuthTokenJSON != "" || c.OAuthTokenFile != "")
}

// Configured reports whether any credential source is present.
func (c Credentials) Configured() bool {
	return c.hasServiceAccount() || c.hasOAuth()
}

// ClientOptions builds the API client options for scopes.
func (c Credentials) ClientOptions(ctx context.Context, scopes ...string) ([]option.ClientOption, error) {
	switch {
	case c.hasServiceAccount():
		b, err := readInlineOrFile(c.ServiceAccountJSON, c.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account: %w", err)
		}
		return []option.ClientOption{
			option.WithCredentialsJSON(b),
			option.WithScopes(scopes...),
		}, nil

	case c.hasOAuth():
		clientJSON, err := readInlineOrFile(c.OAuthClientJSON, c.OAuthClientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client: %w", err)
		}
		cfg, err := google.ConfigFromJSON(clientJSON, scopes...)
		if err != nil {
			return nil, fmt.Errorf("oauth config: %w", err)
		}
		tokenJSON, err := readInlineOrFile(c.OAuthTokenJSON, c.OAuthTokenFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth token: %w", err)
		}
		var tok oauth2.Token
		if err := json.Unmarshal(tokenJSON, &tok); err != nil {
			return nil, fmt.Errorf("parse oauth token: %w", err)
		}
		base := context.WithValue(ctx, oauth2.HTTPClient, NewHTTPClient())
		return []option.ClientOption{option.WithHTTPClient(cfg.Client(base, &tok))}, nil

	default:
		return nil, errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or an OAuth client and token)")
	}
}

// OAuthClientConfig loads the installed-app OAuth client for scopes. It is
// what cmd/oauth-init exchanges an authorization code with.
func (c Credentials) OAuthClientConfig(scopes ...string) (*oauth2.Config, error) {
	if c.OAuthClientJSON == "" && c.OAuthClientFile == "" {
		return nil, errors.New("missing OAuth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	clientJSON, err := readInlineOrFile(c.OAuthClientJSON, c.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	cfg, err := google.ConfigFromJSON(clientJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	return os.ReadFile(path)
}

// NewHTTPClient returns an HTTP client tuned for Google APIs with
// connection pooling, keep-alive and bounded timeouts.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}
