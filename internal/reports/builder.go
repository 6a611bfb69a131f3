/*
Package reports assembles the annual, periodic and recent filings for one
security into a ReportSet.
*/
package reports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/shanehull/filingscraper/internal/classify"
	"github.com/shanehull/filingscraper/internal/edgar"
	"github.com/shanehull/filingscraper/internal/fetch"
	"github.com/shanehull/filingscraper/internal/stocks"
	"github.com/shanehull/filingscraper/internal/types"
)

// ErrNoFiles means a build finished without retrieving a single filing.
var ErrNoFiles = errors.New("no filings were retrieved")

type Phase string

const (
	PhaseResolve  Phase = "resolve"
	PhaseAnnual   Phase = "annual"
	PhasePeriodic Phase = "periodic"
	PhaseRecent   Phase = "recent"
	PhaseDone     Phase = "done"
)

// Event is a progress update emitted while a build runs.
type Event struct {
	Phase   Phase
	Message string
}

type Registry interface {
	Query(ctx context.Context, stock types.StockRecord, filter types.FilingFilter) ([]types.Announcement, error)
}

type Fetcher interface {
	FetchAll(ctx context.Context, tasks []types.RetrievalTask) []string
}

type DigestRenderer interface {
	Render(ctx context.Context, dir, stockName string, anns []types.Announcement) (string, error)
}

type SEC interface {
	LookupCompany(ctx context.Context, ticker string) (edgar.Company, error)
	Submissions(ctx context.Context, cik string) (*edgar.Submissions, error)
	Announcement(company edgar.Company, f edgar.Filing) types.Announcement
}

type Options struct {
	OutputRoot      string
	AnnualYears     int
	RecentDays      int
	RecentDownloads int
	USAnnual        int
	USQuarterly     int
	Location        *time.Location
}

func DefaultOptions() Options {
	return Options{
		OutputRoot:      "reports",
		AnnualYears:     5,
		RecentDays:      180,
		RecentDownloads: 5,
		USAnnual:        5,
		USQuarterly:     3,
		Location:        time.FixedZone("CST", 8*60*60),
	}
}

type Builder struct {
	Directory *stocks.Directory
	Registry  Registry
	Fetcher   Fetcher
	Digest    DigestRenderer

	// SEC and SECFetcher serve US tickers. SECFetcher defaults to Fetcher.
	SEC        SEC
	SECFetcher Fetcher

	Options  Options
	Now      func() time.Time
	Progress func(Event)
	Logger   *zap.Logger
}

func (b *Builder) now() time.Time {
	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	if b.Options.Location != nil {
		now = now.In(b.Options.Location)
	}
	return now
}

func (b *Builder) location() *time.Location {
	if b.Options.Location != nil {
		return b.Options.Location
	}
	return time.Local
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func (b *Builder) report(phase Phase, format string, args ...any) {
	if b.Progress != nil {
		b.Progress(Event{Phase: phase, Message: fmt.Sprintf(format, args...)})
	}
}

// OutputDir is where a stock's filings are stored. It carries no date so a
// later run finds every earlier download; only the digest name is dated.
func OutputDir(root string, stock types.StockRecord) string {
	return filepath.Join(root, fetch.SanitizeFileName(stock.Code+"_"+stock.DisplayName))
}

// Build resolves identifier and retrieves its filings. Only a resolution
// failure or an empty result is fatal; every other failure shrinks the set.
func (b *Builder) Build(ctx context.Context, identifier string) (*types.ReportSet, error) {
	b.report(PhaseResolve, "Resolving %s", identifier)
	stock, err := b.Directory.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	now := b.now()
	set := &types.ReportSet{
		Stock:     stock,
		OutputDir: OutputDir(b.Options.OutputRoot, stock),
	}
	if err := os.MkdirAll(set.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", set.OutputDir, err)
	}

	log := b.logger().With(
		zap.String("code", stock.Code),
		zap.String("name", stock.DisplayName),
		zap.String("market", string(stock.Market)))
	log.Info("building report set", zap.String("output_dir", set.OutputDir))
	b.report(PhaseResolve, "%s %s (%s)", stock.Code, stock.DisplayName, stock.Market)

	if stock.Market == types.MarketUS {
		if err := b.buildUS(ctx, set, log); err != nil {
			return nil, err
		}
	} else {
		b.buildRegistry(ctx, set, now, log)
	}

	return b.finish(set, log)
}

func (b *Builder) buildRegistry(ctx context.Context, set *types.ReportSet, now time.Time, log *zap.Logger) {
	set.Annual = b.annual(ctx, set, now.Year(), log)
	set.Periodic = b.periodic(ctx, set, now.Year(), log)
	set.Recent, set.RecentDigest = b.recent(ctx, set, now, log)
}

func (b *Builder) annual(ctx context.Context, set *types.ReportSet, currentYear int, log *zap.Logger) []string {
	first := currentYear - b.Options.AnnualYears
	b.report(PhaseAnnual, "Searching annual reports %d-%d", first, currentYear-1)

	var picks []types.Announcement
	for year := first; year < currentYear; year++ {
		anns := b.query(ctx, set.Stock, annualFilter(set.Stock, year, b.location()), log)
		a, ok := classify.FirstAnnual(anns, year, set.Stock.Market)
		if !ok {
			b.report(PhaseAnnual, "No %d annual report found", year)
			continue
		}
		b.report(PhaseAnnual, "Found %d annual report: %s", year, a.Title)
		picks = append(picks, a)
	}

	paths := b.Fetcher.FetchAll(ctx, fetch.Tasks(set.OutputDir, picks))
	b.report(PhaseAnnual, "Retrieved %d annual reports", len(paths))
	return paths
}

func (b *Builder) periodicPicks(ctx context.Context, stock types.StockRecord, year int, log *zap.Logger) []types.Announcement {
	var picks []types.Announcement
	for _, kind := range periodicKinds {
		anns := b.query(ctx, stock, periodicFilter(stock, kind, year, b.location()), log)
		if a, ok := classify.FirstPeriodic(anns, kind); ok {
			b.report(PhasePeriodic, "Found %d %s report: %s", year, kind, a.Title)
			picks = append(picks, a)
		}
	}
	return picks
}

// periodic falls back to the prior year when nothing for the current year is
// out yet, and tops up from the prior year when only part of it is.
func (b *Builder) periodic(ctx context.Context, set *types.ReportSet, year int, log *zap.Logger) []string {
	b.report(PhasePeriodic, "Searching %d periodic reports", year)
	picks := b.periodicPicks(ctx, set.Stock, year, log)

	switch {
	case len(picks) == 0:
		b.report(PhasePeriodic, "No %d periodic reports published yet, using %d", year, year-1)
		picks = b.periodicPicks(ctx, set.Stock, year-1, log)
	case len(picks) < len(periodicKinds):
		b.report(PhasePeriodic, "Only %d of %d periodic reports for %d, adding %d", len(picks), len(periodicKinds), year, year-1)
		picks = append(picks, b.periodicPicks(ctx, set.Stock, year-1, log)...)
	}

	paths := b.Fetcher.FetchAll(ctx, fetch.Tasks(set.OutputDir, picks))
	b.report(PhasePeriodic, "Retrieved %d periodic reports", len(paths))
	return paths
}

func (b *Builder) recent(ctx context.Context, set *types.ReportSet, now time.Time, log *zap.Logger) ([]string, string) {
	b.report(PhaseRecent, "Fetching disclosures from the last %d days", b.Options.RecentDays)
	anns := b.query(ctx, set.Stock, recentFilter(set.Stock, now, b.Options.RecentDays), log)

	top := anns
	if len(top) > b.Options.RecentDownloads {
		top = top[:b.Options.RecentDownloads]
	}
	paths := b.Fetcher.FetchAll(ctx, fetch.Tasks(set.OutputDir, top))
	b.report(PhaseRecent, "Retrieved %d of %d recent disclosures", len(paths), len(anns))

	return paths, b.renderDigest(ctx, set, anns, log)
}

func (b *Builder) renderDigest(ctx context.Context, set *types.ReportSet, anns []types.Announcement, log *zap.Logger) string {
	if b.Digest == nil {
		return ""
	}
	path, err := b.Digest.Render(ctx, set.OutputDir, set.Stock.DisplayName, anns)
	if err != nil {
		log.Warn("failed to render digest", zap.Error(err))
		return ""
	}
	b.report(PhaseRecent, "Digest written: %s", filepath.Base(path))
	return path
}

// query treats a failed query as a short one: whatever came back before the
// failure is still classified.
func (b *Builder) query(ctx context.Context, stock types.StockRecord, filter types.FilingFilter, log *zap.Logger) []types.Announcement {
	anns, err := b.Registry.Query(ctx, stock, filter)
	if err != nil {
		log.Warn("registry query incomplete",
			zap.Strings("category", filter.CategoryTags),
			zap.String("date_range", filter.DateRange()),
			zap.Int("kept", len(anns)),
			zap.Error(err))
	}
	if !classify.IsNewestFirst(anns) {
		log.Warn("registry results are not newest first",
			zap.Strings("category", filter.CategoryTags),
			zap.String("date_range", filter.DateRange()))
	}
	return anns
}

// finish unions every retrieved path into set.Files, keeping first-seen order.
func (b *Builder) finish(set *types.ReportSet, log *zap.Logger) (*types.ReportSet, error) {
	seen := make(map[string]bool)
	documents := 0
	for _, group := range [][]string{set.Annual, set.Periodic, set.Recent} {
		for _, p := range group {
			if seen[p] {
				continue
			}
			seen[p] = true
			documents++
			set.Files = append(set.Files, p)
		}
	}
	if set.RecentDigest != "" && !seen[set.RecentDigest] {
		set.Files = append(set.Files, set.RecentDigest)
	}

	if documents == 0 {
		b.report(PhaseDone, "No filings retrieved for %s", set.Stock.DisplayName)
		return nil, fmt.Errorf("%w for %s (%s)", ErrNoFiles, set.Stock.Code, set.Stock.DisplayName)
	}

	log.Info("report set complete",
		zap.Int("annual", len(set.Annual)),
		zap.Int("periodic", len(set.Periodic)),
		zap.Int("recent", len(set.Recent)),
		zap.Int("files", len(set.Files)))
	b.report(PhaseDone, "%d files ready in %s", len(set.Files), set.OutputDir)
	return set, nil
}
