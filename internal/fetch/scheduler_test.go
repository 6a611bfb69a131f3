package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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

// flakyTransport fails requests whose path contains "flaky" a fixed number of times.
type flakyTransport struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.Contains(req.URL.Path, "flaky") && f.calls.Add(1) <= f.failures {
		return nil, timeoutErr{}
	}
	return http.DefaultTransport.RoundTrip(req)
}

type docServer struct {
	hits atomic.Int32
	ua   atomic.Value
}

func (d *docServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.hits.Add(1)
	d.ua.Store(r.Header.Get("User-Agent"))
	switch {
	case strings.HasPrefix(r.URL.Path, "/missing"):
		http.NotFound(w, r)
	case strings.HasPrefix(r.URL.Path, "/broken"):
		w.WriteHeader(http.StatusInternalServerError)
	case strings.HasPrefix(r.URL.Path, "/html"):
		_, _ = w.Write([]byte("<html>error page</html>"))
	default:
		_, _ = w.Write([]byte("%PDF-1.7 " + r.URL.Path))
	}
}

func newTestScheduler(t *testing.T, transport http.RoundTripper) *Scheduler {
	t.Helper()
	p := retry.Default()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return NewScheduler(&http.Client{Transport: transport}, Options{
		Workers:   3,
		UserAgent: "filingscraper-test",
		Retry:     p,
	}, zaptest.NewLogger(t))
}

func task(dir, base, path string) types.RetrievalTask {
	return types.RetrievalTask{
		Announcement: types.Announcement{
			Title:        path,
			DocumentURL:  base + path,
			DocumentType: types.DocumentPDF,
		},
		Destination: filepath.Join(dir, strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")+".pdf"),
	}
}

func TestFetchAllDownloadsInTaskOrder(t *testing.T) {
	srv := &docServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	dir := t.TempDir()

	tasks := []types.RetrievalTask{
		task(dir, ts.URL, "/a"),
		task(dir, ts.URL, "/b"),
		task(dir, ts.URL, "/c"),
		task(dir, ts.URL, "/d"),
	}

	got := newTestScheduler(t, http.DefaultTransport).FetchAll(context.Background(), tasks)

	require.Len(t, got, 4)
	for i, tk := range tasks {
		assert.Equal(t, tk.Destination, got[i])
		data, err := os.ReadFile(tk.Destination)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "%PDF"))
	}
	assert.Equal(t, "filingscraper-test", srv.ua.Load())
}

func TestFetchAllSkipsFailuresWithoutAbortingBatch(t *testing.T) {
	srv := &docServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	dir := t.TempDir()

	tasks := []types.RetrievalTask{
		task(dir, ts.URL, "/missing"),
		task(dir, ts.URL, "/ok"),
		task(dir, ts.URL, "/broken"),
		task(dir, ts.URL, "/html"),
	}

	got := newTestScheduler(t, http.DefaultTransport).FetchAll(context.Background(), tasks)

	assert.Equal(t, []string{tasks[1].Destination}, got)
	// 4xx, 5xx and malformed bodies are not retried.
	assert.Equal(t, int32(4), srv.hits.Load())
	for _, i := range []int{0, 2, 3} {
		assert.NoFileExists(t, tasks[i].Destination)
	}
}

func TestFetchAllRetriesTransientErrors(t *testing.T) {
	ts := httptest.NewServer(&docServer{})
	defer ts.Close()
	dir := t.TempDir()

	transport := &flakyTransport{failures: 2}
	got := newTestScheduler(t, transport).FetchAll(context.Background(), []types.RetrievalTask{task(dir, ts.URL, "/flaky")})

	assert.Len(t, got, 1)
	assert.Equal(t, int32(3), transport.calls.Load())
}

func TestFetchAllGivesUpAfterRetryExhaustion(t *testing.T) {
	ts := httptest.NewServer(&docServer{})
	defer ts.Close()
	dir := t.TempDir()

	transport := &flakyTransport{failures: 10}
	tasks := []types.RetrievalTask{task(dir, ts.URL, "/flaky"), task(dir, ts.URL, "/fine")}
	got := newTestScheduler(t, transport).FetchAll(context.Background(), tasks)

	assert.Equal(t, []string{tasks[1].Destination}, got)
	assert.Equal(t, int32(3), transport.calls.Load())
}

func TestFetchAllIsIdempotent(t *testing.T) {
	srv := &docServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	dir := t.TempDir()

	tasks := []types.RetrievalTask{task(dir, ts.URL, "/a"), task(dir, ts.URL, "/b")}
	s := newTestScheduler(t, http.DefaultTransport)

	first := s.FetchAll(context.Background(), tasks)
	hits := srv.hits.Load()
	second := s.FetchAll(context.Background(), tasks)

	assert.Equal(t, first, second)
	assert.Equal(t, hits, srv.hits.Load())
}

func TestFetchAllDedupesDestinations(t *testing.T) {
	srv := &docServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	dir := t.TempDir()

	a := task(dir, ts.URL, "/a")
	got := newTestScheduler(t, http.DefaultTransport).FetchAll(context.Background(), []types.RetrievalTask{a, a, a})

	assert.Equal(t, []string{a.Destination}, got)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestFetchAllEmpty(t *testing.T) {
	assert.Empty(t, newTestScheduler(t, http.DefaultTransport).FetchAll(context.Background(), nil))
}

func TestFetchAllLeavesNoTempFiles(t *testing.T) {
	ts := httptest.NewServer(&docServer{})
	defer ts.Close()
	dir := t.TempDir()

	newTestScheduler(t, http.DefaultTransport).FetchAll(context.Background(), []types.RetrievalTask{task(dir, ts.URL, "/a")})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileName(t *testing.T) {
	a := types.Announcement{
		SecurityCode:   "600519",
		SecurityName:   "*ST茅台",
		Title:          "2023年年度报告 (修订/更新)",
		AnnouncementID: "1219",
		DocumentType:   types.DocumentPDF,
	}
	assert.Equal(t, "600519_sST茅台_2023年年度报告修订-更新_1219.pdf", FileName(a))
	assert.Equal(t, FileName(a), FileName(a))

	a.DocumentType = types.DocumentHTML
	assert.True(t, strings.HasSuffix(FileName(a), ".html"))
}

func TestTasksSkipsNonPDF(t *testing.T) {
	anns := []types.Announcement{
		{SecurityCode: "1", AnnouncementID: "a", DocumentType: types.DocumentPDF},
		{SecurityCode: "1", AnnouncementID: "b", DocumentType: "DOC"},
	}
	tasks := Tasks("/out", anns)
	require.Len(t, tasks, 1)
	assert.Equal(t, filepath.Join("/out", "1___a.pdf"), tasks[0].Destination)
}

// arrivals records when each request reached the server.
type arrivals struct {
	mu    sync.Mutex
	times []time.Time
}

func (a *arrivals) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.times = append(a.times, time.Now())
	a.mu.Unlock()
	_, _ = w.Write([]byte("%PDF-1.7"))
}

func (a *arrivals) gap() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.times) < 2 {
		return 0
	}
	return a.times[1].Sub(a.times[0])
}

func newPacedScheduler(t *testing.T, opts Options) *Scheduler {
	t.Helper()
	opts.Retry = retry.Default()
	return NewScheduler(http.DefaultClient, opts, zaptest.NewLogger(t))
}

func TestFetchAllBoundsInFlightRequests(t *testing.T) {
	var inFlight, peak atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer ts.Close()
	dir := t.TempDir()

	var tasks []types.RetrievalTask
	for i := 0; i < 12; i++ {
		tasks = append(tasks, task(dir, ts.URL, fmt.Sprintf("/doc%d", i)))
	}

	s := newPacedScheduler(t, Options{Workers: 3})
	got := s.FetchAll(context.Background(), tasks)

	require.Len(t, got, 12)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(2))
}

func TestFetchAllPacesRequestsPerHost(t *testing.T) {
	srv := &arrivals{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	dir := t.TempDir()

	// Two workers, so only the limiter can hold the second request back.
	s := newPacedScheduler(t, Options{Workers: 2, HostRate: 5})
	got := s.FetchAll(context.Background(), []types.RetrievalTask{
		task(dir, ts.URL, "/a"),
		task(dir, ts.URL, "/b"),
	})

	require.Len(t, got, 2)
	assert.GreaterOrEqual(t, srv.gap(), 150*time.Millisecond)
}

func TestFetchAllPausesBetweenDownloads(t *testing.T) {
	srv := &arrivals{}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	dir := t.TempDir()

	s := newPacedScheduler(t, Options{Workers: 1, MinDelay: 80 * time.Millisecond, MaxDelay: 80 * time.Millisecond})
	got := s.FetchAll(context.Background(), []types.RetrievalTask{
		task(dir, ts.URL, "/a"),
		task(dir, ts.URL, "/b"),
	})

	require.Len(t, got, 2)
	assert.GreaterOrEqual(t, srv.gap(), 80*time.Millisecond)
}
