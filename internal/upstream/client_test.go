package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testAPI wires a fake token endpoint and search endpoint together.
type testAPI struct {
	tokenHits   int
	searchHits  int
	searchFunc  http.HandlerFunc
	tokenServer *httptest.Server
	apiServer   *httptest.Server
}

func newTestAPI(t *testing.T, search http.HandlerFunc) *testAPI {
	t.Helper()
	api := &testAPI{searchFunc: search}

	api.tokenServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		api.tokenHits++
		fmt.Fprintf(w, `{"access_token": "tok-%d", "expires_in": 3600}`, api.tokenHits)
	}))
	api.apiServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.searchHits++
		api.searchFunc(w, r)
	}))

	t.Cleanup(api.tokenServer.Close)
	t.Cleanup(api.apiServer.Close)
	return api
}

func (api *testAPI) client() *Client {
	tokens := NewTokenProvider(api.tokenServer.URL, "id", "secret", "scope")
	return NewClient(api.apiServer.URL, tokens, nil)
}

func TestClient_SearchParsesPageAndTotal(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("range"); got != "0-1" {
			t.Errorf("range param = %q, want 0-1", got)
		}
		if got := r.URL.Query().Get("codeROME"); got != "M1805" {
			t.Errorf("codeROME param = %q, want M1805", got)
		}
		w.Header().Set("Content-Range", "offres 0-1/663")
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprint(w, `{"resultats": [{"id": "a"}, {"id": "b"}]}`)
	})

	page, err := api.client().Search(context.Background(), map[string]string{"codeROME": "M1805"}, 0, 1)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Records) != 2 {
		t.Errorf("got %d records, want 2", len(page.Records))
	}
	if page.Total != 663 {
		t.Errorf("Total = %d, want 663", page.Total)
	}
}

func TestClient_RetriesOnceOn401(t *testing.T) {
	api := newTestAPI(t, nil)
	api.searchFunc = func(w http.ResponseWriter, r *http.Request) {
		// First bearer token is rejected; the refreshed one is accepted.
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Range", "offres 0-0/1")
		fmt.Fprint(w, `{"resultats": [{"id": "a"}]}`)
	}

	page, err := api.client().Search(context.Background(), nil, 0, 0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Records) != 1 {
		t.Errorf("got %d records, want 1", len(page.Records))
	}
	if api.tokenHits != 2 {
		t.Errorf("token fetched %d times, want 2 (invalidate + re-auth)", api.tokenHits)
	}
}

func TestClient_SecondUnauthorizedIsFatal(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := api.client().Search(context.Background(), nil, 0, 0)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if api.searchHits != 2 {
		t.Errorf("search hit %d times, want 2 (one retry)", api.searchHits)
	}
}

func TestClient_NonSuccessIsPageError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := api.client().Search(context.Background(), nil, 0, 0)
	var pageErr *PageError
	if !errors.As(err, &pageErr) {
		t.Fatalf("expected *PageError, got %v", err)
	}
	if pageErr.Status != http.StatusBadGateway {
		t.Errorf("PageError.Status = %d, want 502", pageErr.Status)
	}
}

func TestClient_TotalCountProbesZeroWidth(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("range"); got != "0-0" {
			t.Errorf("probe range = %q, want 0-0", got)
		}
		w.Header().Set("Content-Range", "offres 0-0/3210")
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprint(w, `{"resultats": [{"id": "x"}]}`)
	})

	total, err := api.client().TotalCount(context.Background(), nil)
	if err != nil {
		t.Fatalf("TotalCount() error: %v", err)
	}
	if total != 3210 {
		t.Errorf("TotalCount() = %d, want 3210", total)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header  string
		total   int
		wantErr bool
	}{
		{"offres 0-149/663", 663, false},
		{"items 0-0/0", 0, false},
		{"", 0, true},
		{"offres 0-149", 0, true},
		{"offres 0-149/abc", 0, true},
		{"offres 0-149/", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			total, err := parseContentRange(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseContentRange(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if total != tt.total {
				t.Errorf("parseContentRange(%q) = %d, want %d", tt.header, total, tt.total)
			}
		})
	}
}
