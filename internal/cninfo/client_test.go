package cninfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shanehull/filingscraper/internal/retry"
	"github.com/shanehull/filingscraper/internal/types"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// flakyTransport fails the first n round trips with a timeout.
type flakyTransport struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, timeoutErr{}
	}
	return http.DefaultTransport.RoundTrip(req)
}

type registry struct {
	mu    sync.Mutex
	forms []url.Values
	pages [][]rawAnnouncement
}

func (r *registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.forms = append(r.forms, req.PostForm)
	r.mu.Unlock()

	var page int
	fmt.Sscan(req.PostForm.Get("pageNum"), &page)

	resp := queryResponse{}
	if page >= 1 && page <= len(r.pages) {
		resp.Announcements = r.pages[page-1]
		resp.HasMore = page < len(r.pages)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func fastPolicy() retry.Policy {
	p := retry.Default()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}

func newTestClient(t *testing.T, srv *httptest.Server, transport http.RoundTripper) *Client {
	t.Helper()
	hc := &http.Client{Transport: transport, Timeout: 5 * time.Second}
	return NewClient(hc, Options{
		QueryURL:  srv.URL,
		StaticURL: "http://static.example",
		Retry:     fastPolicy(),
	}, zaptest.NewLogger(t))
}

var moutai = types.StockRecord{Code: "600519", DisplayName: "贵州茅台", OrgID: "gssh0600519", Market: types.MarketAShare}
var tencent = types.StockRecord{Code: "00700", DisplayName: "腾讯控股", OrgID: "gshk0000700", Market: types.MarketHongKong}

func annualFilter() types.FilingFilter {
	return types.FilingFilter{
		TargetCode:   "600519",
		CategoryTags: []string{"category_ndbg_szsh", "category_extra"},
		SearchTerm:   "2023年年度报告",
		Start:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestQueryMainlandPayload(t *testing.T) {
	reg := &registry{pages: [][]rawAnnouncement{{{
		SecCode: "600519", SecName: "贵州茅台", AnnouncementID: "1219",
		AnnouncementTitle: "2023年年度报告", AnnouncementTime: 1711900800000,
		AdjunctURL: "finalpage/2024-04-02/1219.PDF", AdjunctType: "PDF",
	}}}}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	anns, err := newTestClient(t, srv, http.DefaultTransport).Query(context.Background(), moutai, annualFilter())
	require.NoError(t, err)
	require.Len(t, anns, 1)

	form := reg.forms[0]
	assert.Equal(t, "1", form.Get("pageNum"))
	assert.Equal(t, "30", form.Get("pageSize"))
	assert.Equal(t, "szse", form.Get("column"))
	assert.Equal(t, "600519,gssh0600519", form.Get("stock"))
	assert.Equal(t, "category_ndbg_szsh;category_extra", form.Get("category"))
	assert.Equal(t, "2023年年度报告", form.Get("searchkey"))
	assert.Equal(t, "2024-01-01~2024-06-30", form.Get("seDate"))
	assert.Equal(t, "false", form.Get("isHLtitle"))

	a := anns[0]
	assert.Equal(t, "http://static.example/finalpage/2024-04-02/1219.PDF", a.DocumentURL)
	assert.Equal(t, types.DocumentPDF, a.DocumentType)
	assert.Equal(t, int64(1711900800000), a.PublishedAt.UnixMilli())
}

func TestQueryHongKongOmitsCategoryAndSearchKey(t *testing.T) {
	reg := &registry{pages: [][]rawAnnouncement{{}}}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	_, err := newTestClient(t, srv, http.DefaultTransport).Query(context.Background(), tencent, annualFilter())
	require.NoError(t, err)

	form := reg.forms[0]
	assert.Equal(t, "hke", form.Get("column"))
	assert.Equal(t, "00700,gshk0000700", form.Get("stock"))
	assert.Empty(t, form.Get("category"))
	assert.Empty(t, form.Get("searchkey"))
	assert.Equal(t, "2024-01-01~2024-06-30", form.Get("seDate"))
}

func TestQueryPaginates(t *testing.T) {
	reg := &registry{pages: [][]rawAnnouncement{
		{{AnnouncementID: "1"}, {AnnouncementID: "2"}},
		{{AnnouncementID: "3"}},
		{{AnnouncementID: "4"}},
	}}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	anns, err := newTestClient(t, srv, http.DefaultTransport).Query(context.Background(), moutai, annualFilter())
	require.NoError(t, err)

	var ids []string
	for _, a := range anns {
		ids = append(ids, a.AnnouncementID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
	assert.Len(t, reg.forms, 3)
}

func TestQueryStopsAtPageCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(queryResponse{HasMore: true, Announcements: []rawAnnouncement{{AnnouncementID: "x"}}})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Options{QueryURL: srv.URL, MaxPages: 4, Retry: fastPolicy()}, zaptest.NewLogger(t))
	anns, err := c.Query(context.Background(), moutai, annualFilter())
	require.NoError(t, err)
	assert.Len(t, anns, 4)
}

func TestQueryRetriesTransientErrors(t *testing.T) {
	reg := &registry{pages: [][]rawAnnouncement{{{AnnouncementID: "1"}}}}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	transport := &flakyTransport{failures: 2}
	anns, err := newTestClient(t, srv, transport).Query(context.Background(), moutai, annualFilter())
	require.NoError(t, err)
	assert.Len(t, anns, 1)
	assert.Equal(t, int32(3), transport.calls.Load())
}

func TestQueryReturnsEmptyAfterRetryExhaustion(t *testing.T) {
	reg := &registry{pages: [][]rawAnnouncement{{{AnnouncementID: "1"}}}}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	transport := &flakyTransport{failures: 3}
	anns, err := newTestClient(t, srv, transport).Query(context.Background(), moutai, annualFilter())
	assert.Error(t, err)
	assert.Empty(t, anns)
	assert.Equal(t, int32(3), transport.calls.Load())
}

func TestQueryKeepsPartialResults(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(queryResponse{HasMore: true, Announcements: []rawAnnouncement{{AnnouncementID: "1"}}})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Options{QueryURL: srv.URL, Retry: fastPolicy()}, zaptest.NewLogger(t))
	anns, err := c.Query(context.Background(), moutai, annualFilter())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Len(t, anns, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueryRejectsUSListings(t *testing.T) {
	c := NewClient(http.DefaultClient, Options{}, zaptest.NewLogger(t))
	_, err := c.Query(context.Background(), types.StockRecord{Code: "AAPL", Market: types.MarketUS}, types.FilingFilter{})
	assert.Error(t, err)
}

func TestNewHTTPClientHasCookieJar(t *testing.T) {
	hc, err := NewHTTPClient(time.Second)
	require.NoError(t, err)
	assert.NotNil(t, hc.Jar)
	assert.Equal(t, time.Second, hc.Timeout)
}
