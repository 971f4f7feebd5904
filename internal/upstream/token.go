// Package upstream implements the client for the paginated job-offers API:
// OAuth2 client-credentials authentication, range-cursor search requests and
// the rate-limited paged collector.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout is the default HTTP request timeout. Timeouts apply per
// call, not to a whole collection run.
const DefaultTimeout = 30 * time.Second

// expirySlack is subtracted from the advertised token lifetime so a token is
// never presented moments before it lapses.
const expirySlack = 30 * time.Second

// TokenProvider obtains and caches a bearer token via the client-credentials
// exchange. It owns its own expiry-aware cache; callers share one provider by
// reference instead of any process-wide state.
type TokenProvider struct {
	endpoint     string
	clientID     string
	clientSecret string
	scope        string
	client       *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenProvider creates a provider for the given token endpoint.
func NewTokenProvider(endpoint, clientID, clientSecret, scope string) *TokenProvider {
	return &TokenProvider{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		client:       &http.Client{Timeout: DefaultTimeout},
	}
}

// Token returns a cached bearer token, fetching a fresh one when the cache is
// empty or expired.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expiresAt) {
		return p.token, nil
	}

	token, ttl, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}

	p.token = token
	p.expiresAt = time.Now().Add(ttl - expirySlack)
	return p.token, nil
}

// Invalidate drops the cached token so the next Token call re-authenticates.
// Called when the API answers 401 with a token that should still be valid.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()
}

func (p *TokenProvider) fetch(ctx context.Context) (string, time.Duration, error) {
	if p.clientID == "" || p.clientSecret == "" {
		return "", 0, &AuthError{Message: "client id and client secret must be configured"}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	if p.scope != "" {
		form.Set("scope", p.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &AuthError{Message: "failed to build token request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, &AuthError{Message: "token request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &AuthError{Status: resp.StatusCode, Message: "failed to read token response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := "token endpoint rejected the request"
		var details struct {
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &details) == nil && details.ErrorDescription != "" {
			msg = details.ErrorDescription
		}
		return "", 0, &AuthError{Status: resp.StatusCode, Message: msg}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, &AuthError{Status: resp.StatusCode, Message: "malformed token response", Cause: err}
	}
	if payload.AccessToken == "" {
		return "", 0, &AuthError{Status: resp.StatusCode, Message: "token response carries no access_token"}
	}

	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if ttl <= expirySlack {
		ttl = 5 * time.Minute
	}
	return payload.AccessToken, ttl, nil
}

func (p *TokenProvider) String() string {
	return fmt.Sprintf("TokenProvider(%s)", p.endpoint)
}
