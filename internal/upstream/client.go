package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultUserAgent identifies the harvester to the upstream API.
const DefaultUserAgent = "JobHarvester/1.0"

// MaxPageSize is the largest range the search endpoint accepts per request.
const MaxPageSize = 150

// SearchPage is one page of raw records plus the upstream total taken from
// the Content-Range header.
type SearchPage struct {
	Records []json.RawMessage
	Total   int
	Status  int
}

// Client issues authenticated search requests against the offers API.
type Client struct {
	baseURL   string
	tokens    *TokenProvider
	http      *http.Client
	userAgent string
}

// ClientOptions configures optional client behavior.
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// NewClient creates an API client using the given token provider.
func NewClient(baseURL string, tokens *TokenProvider, opts *ClientOptions) *Client {
	timeout := DefaultTimeout
	userAgent := DefaultUserAgent
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.UserAgent != "" {
			userAgent = opts.UserAgent
		}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokens:    tokens,
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Search fetches records in the half-open range cursor "start-end"
// (inclusive indexes, upstream convention). Both 200 and 206 are success:
// the API answers 206 Partial Content for every paginated slice.
// A 401 is retried once after invalidating the token cache; a second 401 is
// terminal.
func (c *Client) Search(ctx context.Context, params map[string]string, start, end int) (*SearchPage, error) {
	page, err := c.searchOnce(ctx, params, start, end)
	if err == nil && page.Status == http.StatusUnauthorized {
		c.tokens.Invalidate()
		page, err = c.searchOnce(ctx, params, start, end)
	}
	if err != nil {
		return nil, err
	}

	switch page.Status {
	case http.StatusOK, http.StatusPartialContent:
		return page, nil
	case http.StatusUnauthorized:
		return nil, &AuthError{Status: page.Status, Message: "search rejected bearer token twice"}
	default:
		return nil, &PageError{Status: page.Status}
	}
}

// TotalCount issues a zero-width probe (range "0-0") and returns the total
// advertised by the Content-Range header.
func (c *Client) TotalCount(ctx context.Context, params map[string]string) (int, error) {
	page, err := c.Search(ctx, params, 0, 0)
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

func (c *Client) searchOnce(ctx context.Context, params map[string]string, start, end int) (*SearchPage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	values.Set("range", fmt.Sprintf("%d-%d", start, end))

	endpoint := c.baseURL + "/offres/search?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &PageError{Cause: fmt.Errorf("failed to build search request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &PageError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	page := &SearchPage{Status: resp.StatusCode}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		// Drain so the caller decides how to classify the status.
		_, _ = io.Copy(io.Discard, resp.Body)
		return page, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &PageError{Status: resp.StatusCode, Cause: fmt.Errorf("failed to read search response: %w", err)}
	}

	var payload struct {
		Resultats []json.RawMessage `json:"resultats"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &PageError{Status: resp.StatusCode, Cause: fmt.Errorf("malformed search response: %w", err)}
	}
	page.Records = payload.Resultats

	if total, err := parseContentRange(resp.Header.Get("Content-Range")); err == nil {
		page.Total = total
	} else {
		page.Total = len(page.Records)
	}
	return page, nil
}

// parseContentRange extracts the total from a header like "offres 0-149/3210".
func parseContentRange(header string) (int, error) {
	if header == "" {
		return 0, fmt.Errorf("missing Content-Range header")
	}
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, fmt.Errorf("invalid Content-Range header: %q", header)
	}
	total, err := strconv.Atoi(header[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Range total: %q", header)
	}
	return total, nil
}
