package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTokenServer(t *testing.T, hits *int, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		if r.Method != http.MethodPost {
			t.Errorf("token request method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %s, want form-encoded", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestTokenProvider_CachesToken(t *testing.T) {
	hits := 0
	srv := newTokenServer(t, &hits, http.StatusOK, map[string]any{
		"access_token": "tok-1",
		"expires_in":   3600,
	})
	defer srv.Close()

	p := NewTokenProvider(srv.URL, "client", "secret", "api_offresdemploiv2")

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() error: %v", err)
		}
		if tok != "tok-1" {
			t.Errorf("Token() = %q, want tok-1", tok)
		}
	}
	if hits != 1 {
		t.Errorf("token endpoint hit %d times, want 1 (cached)", hits)
	}
}

func TestTokenProvider_InvalidateForcesRefetch(t *testing.T) {
	hits := 0
	srv := newTokenServer(t, &hits, http.StatusOK, map[string]any{
		"access_token": "tok",
		"expires_in":   3600,
	})
	defer srv.Close()

	p := NewTokenProvider(srv.URL, "client", "secret", "")
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	p.Invalidate()
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token() after invalidate error: %v", err)
	}
	if hits != 2 {
		t.Errorf("token endpoint hit %d times, want 2", hits)
	}
}

func TestTokenProvider_MissingCredentials(t *testing.T) {
	p := NewTokenProvider("http://unused", "", "", "")
	_, err := p.Token(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
}

func TestTokenProvider_RejectedCredentials(t *testing.T) {
	hits := 0
	srv := newTokenServer(t, &hits, http.StatusBadRequest, map[string]any{
		"error":             "invalid_client",
		"error_description": "client authentication failed",
	})
	defer srv.Close()

	p := NewTokenProvider(srv.URL, "client", "wrong", "")
	_, err := p.Token(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if authErr.Status != http.StatusBadRequest {
		t.Errorf("AuthError.Status = %d, want 400", authErr.Status)
	}
}

func TestTokenProvider_EmptyAccessToken(t *testing.T) {
	hits := 0
	srv := newTokenServer(t, &hits, http.StatusOK, map[string]any{"expires_in": 60})
	defer srv.Close()

	p := NewTokenProvider(srv.URL, "client", "secret", "")
	_, err := p.Token(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
}
