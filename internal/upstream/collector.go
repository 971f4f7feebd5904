package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Query describes one collection request. RomeCode selects the occupation
// family; Params carries optional upstream filters (department, commune...).
// A query with filters must not drive closures: absence from a narrow fetch
// does not mean a posting is gone.
type Query struct {
	RomeCode string
	Params   map[string]string
}

// Values returns the flattened query parameters for the search endpoint.
func (q Query) Values() map[string]string {
	values := make(map[string]string, len(q.Params)+1)
	for k, v := range q.Params {
		values[k] = v
	}
	if q.RomeCode != "" {
		values["codeROME"] = q.RomeCode
	}
	return values
}

// Filtered reports whether the query narrows the fetch beyond the full
// source. The orchestrator refuses to close records from filtered fetches.
func (q Query) Filtered() bool {
	return len(q.Params) > 0
}

// Result is the outcome of one paged collection. Records may be fewer than
// TotalUpstream when pages failed; that is reported, not fatal.
type Result struct {
	Records       []json.RawMessage
	TotalUpstream int
	PagesFetched  int
	FailedPages   []int
	Warnings      []string
}

// Partial reports whether any page failed during the collection.
func (r *Result) Partial() bool {
	return len(r.FailedPages) > 0
}

// Collector walks the search endpoint page by page. Pages are fetched
// strictly sequentially with an inter-request delay to respect upstream rate
// limits; this is a deliberate blocking point.
type Collector struct {
	client   *Client
	limiter  *rate.Limiter
	pageSize int

	// Logf receives page-level progress and warnings. Defaults to a no-op.
	Logf func(format string, args ...any)
}

// NewCollector creates a collector fetching pageSize records per request
// (clamped to MaxPageSize) and sleeping interval between page requests.
func NewCollector(client *Client, pageSize int, interval time.Duration) *Collector {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if interval <= 0 {
		interval = 120 * time.Millisecond
	}
	return &Collector{
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		pageSize: pageSize,
		Logf:     func(string, ...any) {},
	}
}

// Collect fetches all records matching the query, up to maxRecords when
// positive. A failed page is recorded and skipped; authentication failures
// abort the whole collection.
func (c *Collector) Collect(ctx context.Context, query Query, maxRecords int) (*Result, error) {
	params := query.Values()

	total, err := c.client.TotalCount(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to probe total count: %w", err)
	}

	target := total
	if maxRecords > 0 && maxRecords < target {
		target = maxRecords
	}

	result := &Result{TotalUpstream: total}
	if target == 0 {
		return result, nil
	}

	pages := (target + c.pageSize - 1) / c.pageSize
	c.Logf("collecting %d of %d records in %d pages of %d", target, total, pages, c.pageSize)

	for page := 0; page < pages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return result, err
		}

		start := page * c.pageSize
		end := start + c.pageSize - 1
		if end > target-1 {
			end = target - 1
		}

		sp, err := c.client.Search(ctx, params, start, end)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return result, err
			}
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			// The client does not know which page it served; stamp the
			// index here so the recorded warning names the right one.
			var pageErr *PageError
			if errors.As(err, &pageErr) {
				pageErr.Page = page
			}
			result.FailedPages = append(result.FailedPages, page)
			result.Warnings = append(result.Warnings, fmt.Sprintf("page %d skipped: %v", page, err))
			c.Logf("page %d/%d failed, continuing: %v", page+1, pages, err)
			continue
		}

		result.Records = append(result.Records, sp.Records...)
		result.PagesFetched++
		c.Logf("page %d/%d: %d records (total %d)", page+1, pages, len(sp.Records), len(result.Records))

		if len(result.Records) >= target {
			break
		}
	}

	if len(result.Records) > target {
		result.Records = result.Records[:target]
	}
	return result, nil
}
