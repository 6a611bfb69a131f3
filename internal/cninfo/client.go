/*
Package cninfo queries the cninfo disclosure registry for mainland and Hong
Kong listed companies.
*/
package cninfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/shanehull/filingscraper/internal/retry"
	"github.com/shanehull/filingscraper/internal/types"
)

const (
	DefaultQueryURL  = "http://www.cninfo.com.cn/new/hisAnnouncement/query"
	DefaultStaticURL = "http://static.cninfo.com.cn"
	DefaultPageSize  = 30
	DefaultMaxPages  = 100

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:110.0) Gecko/20100101 Firefox/110.0"
	origin    = "http://www.cninfo.com.cn"
	referer   = "http://www.cninfo.com.cn/new/commonUrl/pageOfSearch?url=disclosure/list/search&lastPage=index"
)

// StatusError is a non-2xx registry response. It is never retried.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received non-OK status code %d from %s", e.StatusCode, e.URL)
}

type Options struct {
	QueryURL  string
	StaticURL string
	PageSize  int
	MaxPages  int
	// Requests per second against the registry; zero disables limiting.
	RateLimit float64
	Retry     retry.Policy
}

type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPClient returns a client with a cookie jar so the registry session
// cookie set on the first response is replayed on later pages.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

func NewClient(httpClient *http.Client, opts Options, logger *zap.Logger) *Client {
	if opts.QueryURL == "" {
		opts.QueryURL = DefaultQueryURL
	}
	if opts.StaticURL == "" {
		opts.StaticURL = DefaultStaticURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default()
	}

	c := &Client{
		http:   httpClient,
		opts:   opts,
		logger: logger,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

type queryResponse struct {
	HasMore           bool              `json:"hasMore"`
	TotalAnnouncement int               `json:"totalAnnouncement"`
	Announcements     []rawAnnouncement `json:"announcements"`
}

type rawAnnouncement struct {
	SecCode           string `json:"secCode"`
	SecName           string `json:"secName"`
	OrgID             string `json:"orgId"`
	AnnouncementID    string `json:"announcementId"`
	AnnouncementTitle string `json:"announcementTitle"`
	AnnouncementTime  int64  `json:"announcementTime"`
	AdjunctURL        string `json:"adjunctUrl"`
	AdjunctType       string `json:"adjunctType"`
	AdjunctSize       int64  `json:"adjunctSize"`
}

func (c *Client) toAnnouncement(r rawAnnouncement) types.Announcement {
	docType := types.DocumentType(strings.ToUpper(r.AdjunctType))
	var published time.Time
	if r.AnnouncementTime > 0 {
		published = time.UnixMilli(r.AnnouncementTime)
	}
	return types.Announcement{
		SecurityCode:   r.SecCode,
		SecurityName:   r.SecName,
		Title:          r.AnnouncementTitle,
		DocumentURL:    strings.TrimRight(c.opts.StaticURL, "/") + "/" + strings.TrimLeft(r.AdjunctURL, "/"),
		AnnouncementID: r.AnnouncementID,
		DocumentType:   docType,
		PublishedAt:    published,
	}
}

// Query pages through every announcement matching filter. A page that keeps
// failing after retries ends the query early; whatever was collected before
// it is returned together with the error.
func (c *Client) Query(ctx context.Context, stock types.StockRecord, filter types.FilingFilter) ([]types.Announcement, error) {
	if stock.Market == types.MarketUS {
		return nil, fmt.Errorf("registry has no listings for US security %s", stock.Code)
	}

	req := newQueryRequest(stock, filter, c.opts.PageSize)
	var announcements []types.Announcement

	for page := 1; page <= c.opts.MaxPages; page++ {
		resp, err := c.fetchPage(ctx, req, page)
		if err != nil {
			c.logger.Warn("registry query aborted",
				zap.String("stock", stock.Code),
				zap.String("se_date", filter.DateRange()),
				zap.Int("page", page),
				zap.Int("collected", len(announcements)),
				zap.Error(err))
			return announcements, fmt.Errorf("failed to query page %d for %s: %w", page, stock.Code, err)
		}

		for _, r := range resp.Announcements {
			announcements = append(announcements, c.toAnnouncement(r))
		}

		if !resp.HasMore || len(resp.Announcements) == 0 {
			break
		}
		if page == c.opts.MaxPages {
			c.logger.Warn("registry page cap reached",
				zap.String("stock", stock.Code),
				zap.Int("max_pages", c.opts.MaxPages))
		}
	}

	c.logger.Debug("registry query complete",
		zap.String("stock", stock.Code),
		zap.String("se_date", filter.DateRange()),
		zap.String("search_key", filter.SearchTerm),
		zap.Int("announcements", len(announcements)))

	return announcements, nil
}

func (c *Client) fetchPage(ctx context.Context, req queryRequest, page int) (*queryResponse, error) {
	var out *queryResponse

	err := c.opts.Retry.Do(ctx, c.logger, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		resp, err := c.post(ctx, req, page)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})

	return out, err
}

func (c *Client) post(ctx context.Context, q queryRequest, page int) (*queryResponse, error) {
	body := q.form(page).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.QueryURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", referer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close registry response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: c.opts.QueryURL}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out queryResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}
	return &out, nil
}
