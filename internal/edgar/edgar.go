/*
Package edgar locates 10-K and 10-Q filings for US tickers through the SEC
EDGAR JSON endpoints.
*/
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shanehull/filingscraper/internal/retry"
	"github.com/shanehull/filingscraper/internal/types"
)

const (
	DefaultTickersURL     = "https://www.sec.gov/files/company_tickers.json"
	DefaultSubmissionsURL = "https://data.sec.gov/submissions"
	DefaultArchivesURL    = "https://www.sec.gov/Archives/edgar/data"

	// Base for resolving relative links when converting filings to Markdown.
	SiteURL = "https://www.sec.gov"

	FormAnnual    = "10-K"
	FormQuarterly = "10-Q"
)

type Options struct {
	TickersURL     string
	SubmissionsURL string
	ArchivesURL    string
	// SEC rejects requests without a descriptive User-Agent.
	UserAgent string
	Retry     retry.Policy
}

type Client struct {
	http   *http.Client
	opts   Options
	logger *zap.Logger
}

func NewClient(httpClient *http.Client, opts Options, logger *zap.Logger) *Client {
	if opts.TickersURL == "" {
		opts.TickersURL = DefaultTickersURL
	}
	if opts.SubmissionsURL == "" {
		opts.SubmissionsURL = DefaultSubmissionsURL
	}
	if opts.ArchivesURL == "" {
		opts.ArchivesURL = DefaultArchivesURL
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default()
	}
	return &Client{http: httpClient, opts: opts, logger: logger}
}

type Company struct {
	CIK    string
	Ticker string
	Title  string
}

type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// Submissions is the subset of the submissions index the retriever needs.
type Submissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent FilingArrays `json:"recent"`
	} `json:"filings"`
}

// FilingArrays holds the index as parallel arrays, one entry per filing.
type FilingArrays struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
	PrimaryDocDesc  []string `json:"primaryDocDescription"`
}

type Filing struct {
	AccessionNumber string
	FilingDate      string
	ReportDate      string
	Form            string
	PrimaryDocument string
	Description     string
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// Filings zips the parallel arrays, keeping index order (newest first).
func (a FilingArrays) Filings() []Filing {
	out := make([]Filing, 0, len(a.Form))
	for i := range a.Form {
		out = append(out, Filing{
			AccessionNumber: at(a.AccessionNumber, i),
			FilingDate:      at(a.FilingDate, i),
			ReportDate:      at(a.ReportDate, i),
			Form:            a.Form[i],
			PrimaryDocument: at(a.PrimaryDocument, i),
			Description:     at(a.PrimaryDocDesc, i),
		})
	}
	return out
}

// Select keeps the first limits[form] filings of each requested form.
func Select(filings []Filing, limits map[string]int) []Filing {
	counts := make(map[string]int, len(limits))
	var out []Filing
	for _, f := range filings {
		limit, ok := limits[f.Form]
		if !ok || counts[f.Form] >= limit {
			continue
		}
		counts[f.Form]++
		out = append(out, f)
	}
	return out
}

// LookupCompany maps a ticker to its CIK (zero padded to 10 digits).
func (c *Client) LookupCompany(ctx context.Context, ticker string) (Company, error) {
	var entries map[string]tickerEntry
	if err := c.getJSON(ctx, c.opts.TickersURL, &entries); err != nil {
		return Company{}, fmt.Errorf("failed to load SEC ticker map: %w", err)
	}

	ticker = strings.ToUpper(ticker)
	for _, e := range entries {
		if strings.ToUpper(e.Ticker) == ticker {
			return Company{
				CIK:    fmt.Sprintf("%010d", e.CIK),
				Ticker: ticker,
				Title:  e.Title,
			}, nil
		}
	}
	return Company{}, fmt.Errorf("could not find CIK for ticker %s", ticker)
}

func (c *Client) Submissions(ctx context.Context, cik string) (*Submissions, error) {
	var subs Submissions
	u := strings.TrimRight(c.opts.SubmissionsURL, "/") + "/CIK" + cik + ".json"
	if err := c.getJSON(ctx, u, &subs); err != nil {
		return nil, fmt.Errorf("failed to load submissions for CIK %s: %w", cik, err)
	}
	return &subs, nil
}

// DocumentURL is the archive location of a filing's primary document.
func (c *Client) DocumentURL(cik string, f Filing) string {
	n, err := strconv.ParseInt(cik, 10, 64)
	trimmed := strings.TrimLeft(cik, "0")
	if err == nil {
		trimmed = strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%s/%s/%s/%s",
		strings.TrimRight(c.opts.ArchivesURL, "/"),
		trimmed,
		strings.ReplaceAll(f.AccessionNumber, "-", ""),
		f.PrimaryDocument)
}

// Announcement describes a filing in the same shape as registry disclosures
// so it can flow through the scheduler and the digest.
func (c *Client) Announcement(company Company, f Filing) types.Announcement {
	published, _ := time.Parse("2006-01-02", f.FilingDate)
	title := f.Form
	if f.ReportDate != "" {
		title += " " + f.ReportDate
	}
	if f.Description != "" && f.Description != f.Form {
		title += " " + f.Description
	}
	return types.Announcement{
		SecurityCode:   company.Ticker,
		SecurityName:   company.Title,
		Title:          title,
		DocumentURL:    c.DocumentURL(company.CIK, f),
		AnnouncementID: f.AccessionNumber,
		DocumentType:   types.DocumentHTML,
		PublishedAt:    published,
	}
}

// FileName is <TICKER>_<form>_<reportDate>.html.
func FileName(ticker string, f Filing) string {
	date := f.ReportDate
	if date == "" {
		date = f.FilingDate
	}
	return fmt.Sprintf("%s_%s_%s.html", strings.ToUpper(ticker), f.Form, date)
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	return c.opts.Retry.Do(ctx, c.logger, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("SEC returned status %d for %s", resp.StatusCode, u)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s: %w", u, err)
		}
		return nil
	})
}
