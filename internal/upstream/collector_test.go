package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

// pagedAPI serves total records of the form {"id": "job-N"} honoring the
// range query param, with optional per-page failures injected by range value.
func pagedAPI(t *testing.T, total int, failRanges map[string]int) *testAPI {
	t.Helper()
	return newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		rng := r.URL.Query().Get("range")
		if status, ok := failRanges[rng]; ok {
			w.WriteHeader(status)
			return
		}
		var start, end int
		if _, err := fmt.Sscanf(rng, "%d-%d", &start, &end); err != nil {
			t.Errorf("bad range param %q: %v", rng, err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if end >= total {
			end = total - 1
		}
		var records []string
		for i := start; i <= end && i < total; i++ {
			records = append(records, fmt.Sprintf(`{"id": "job-%d"}`, i))
		}
		w.Header().Set("Content-Range", fmt.Sprintf("offres %d-%d/%d", start, end, total))
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprintf(w, `{"resultats": [%s]}`, strings.Join(records, ","))
	})
}

func collectorFor(api *testAPI, pageSize int) *Collector {
	return NewCollector(api.client(), pageSize, time.Millisecond)
}

func TestCollector_FetchesAllPages(t *testing.T) {
	api := pagedAPI(t, 25, nil)
	c := collectorFor(api, 10)

	res, err := c.Collect(context.Background(), Query{RomeCode: "M1805"}, 0)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(res.Records) != 25 {
		t.Errorf("got %d records, want 25", len(res.Records))
	}
	if res.TotalUpstream != 25 {
		t.Errorf("TotalUpstream = %d, want 25", res.TotalUpstream)
	}
	if res.PagesFetched != 3 {
		t.Errorf("PagesFetched = %d, want 3", res.PagesFetched)
	}
	if res.Partial() {
		t.Error("Partial() = true, want false")
	}
}

func TestCollector_SkipsFailedPageAndContinues(t *testing.T) {
	// Middle page fails with a server error; the surrounding pages survive.
	api := pagedAPI(t, 30, map[string]int{"10-19": http.StatusBadGateway})
	c := collectorFor(api, 10)

	res, err := c.Collect(context.Background(), Query{RomeCode: "M1805"}, 0)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(res.Records) != 20 {
		t.Errorf("got %d records, want 20 (two surviving pages)", len(res.Records))
	}
	if len(res.FailedPages) != 1 || res.FailedPages[0] != 1 {
		t.Errorf("FailedPages = %v, want [1]", res.FailedPages)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one entry", res.Warnings)
	}
	// The embedded page error names the failing page, not a zero value.
	if !strings.Contains(res.Warnings[0], "page 1 failed") {
		t.Errorf("Warnings[0] = %q, want the page error to name page 1", res.Warnings[0])
	}
	if !res.Partial() {
		t.Error("Partial() = false, want true")
	}
}

func TestCollector_AuthErrorAborts(t *testing.T) {
	api := pagedAPI(t, 30, nil)
	c := collectorFor(api, 10)
	// After the probe the token endpoint starts handing out tokens the
	// search endpoint rejects, so every page turns into a 401.
	base := api.searchFunc
	probed := false
	api.searchFunc = func(w http.ResponseWriter, r *http.Request) {
		if probed {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		probed = true
		base(w, r)
	}

	_, err := c.Collect(context.Background(), Query{RomeCode: "M1805"}, 0)
	if err == nil {
		t.Fatal("Collect() error = nil, want auth failure")
	}
}

func TestCollector_MaxRecordsStopsEarly(t *testing.T) {
	api := pagedAPI(t, 100, nil)
	c := collectorFor(api, 10)

	res, err := c.Collect(context.Background(), Query{RomeCode: "M1805"}, 15)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(res.Records) != 15 {
		t.Errorf("got %d records, want 15", len(res.Records))
	}
	if res.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, want 2", res.PagesFetched)
	}
	if res.TotalUpstream != 100 {
		t.Errorf("TotalUpstream = %d, want 100", res.TotalUpstream)
	}
}

func TestCollector_ZeroTotal(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Range", "offres 0-0/0")
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprint(w, `{"resultats": []}`)
	})
	c := collectorFor(api, 10)

	res, err := c.Collect(context.Background(), Query{RomeCode: "M1805"}, 0)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("got %d records, want 0", len(res.Records))
	}
	if res.PagesFetched != 0 {
		t.Errorf("PagesFetched = %d, want 0", res.PagesFetched)
	}
}

func TestQuery_Filtered(t *testing.T) {
	if (Query{RomeCode: "M1805"}).Filtered() {
		t.Error("query without extra params reported as filtered")
	}
	if !(Query{RomeCode: "M1805", Params: map[string]string{"departement": "75"}}).Filtered() {
		t.Error("query with extra params not reported as filtered")
	}
}
