package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	subject string
	err     error
}

type fakeClaims struct {
	subject string
}

func (c *fakeClaims) GetSubject() string { return c.subject }

func (v *fakeValidator) ValidateToken(string) (SubjectGetter, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &fakeClaims{subject: v.subject}, nil
}

func protected(t *testing.T, validator TokenValidator) http.Handler {
	t.Helper()
	return AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := GetSubject(r)
		require.NoError(t, err)
		fmt.Fprint(w, subject)
	}))
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	handler := protected(t, &fakeValidator{subject: "admin"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())
}

func TestAuthMiddleware_CaseInsensitiveBearer(t *testing.T) {
	handler := protected(t, &fakeValidator{subject: "admin"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "bearer some-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		validator TokenValidator
	}{
		{"missing header", "", &fakeValidator{subject: "admin"}},
		{"not bearer", "Basic dXNlcjpwYXNz", &fakeValidator{subject: "admin"}},
		{"bearer without token", "Bearer", &fakeValidator{subject: "admin"}},
		{"invalid token", "Bearer bad-token", &fakeValidator{err: fmt.Errorf("invalid token")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(tt.validator)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				t.Error("handler should not be reached")
			}))

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestGetSubject_MissingContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := GetSubject(req)
	assert.Error(t, err)
}
