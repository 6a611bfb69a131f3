package reports

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shanehull/filingscraper/internal/edgar"
	"github.com/shanehull/filingscraper/internal/stocks"
	"github.com/shanehull/filingscraper/internal/types"
)

func (b *Builder) secFetcher() Fetcher {
	if b.SECFetcher != nil {
		return b.SECFetcher
	}
	return b.Fetcher
}

// buildUS takes 10-K and 10-Q filings from EDGAR instead of the registry. An
// unknown ticker is a resolution failure; anything later only shrinks the set.
func (b *Builder) buildUS(ctx context.Context, set *types.ReportSet, log *zap.Logger) error {
	if b.SEC == nil {
		return fmt.Errorf("no US filings source configured for %s", set.Stock.Code)
	}

	b.report(PhaseAnnual, "Looking up %s on SEC EDGAR", set.Stock.Code)
	company, err := b.SEC.LookupCompany(ctx, set.Stock.Code)
	if err != nil {
		return fmt.Errorf("%w: %v", stocks.ErrNotFound, err)
	}

	subs, err := b.SEC.Submissions(ctx, company.CIK)
	if err != nil {
		log.Warn("failed to load SEC submissions", zap.String("cik", company.CIK), zap.Error(err))
		return nil
	}
	filings := subs.Filings.Recent.Filings()

	selected := edgar.Select(filings, map[string]int{
		edgar.FormAnnual:    b.Options.USAnnual,
		edgar.FormQuarterly: b.Options.USQuarterly,
	})

	// EDGAR lists newest first; the set keeps the oldest first.
	var annual, quarterly []types.RetrievalTask
	for i := len(selected) - 1; i >= 0; i-- {
		f := selected[i]
		task := types.RetrievalTask{
			Announcement: b.SEC.Announcement(company, f),
			Destination:  filepath.Join(set.OutputDir, edgar.FileName(company.Ticker, f)),
		}
		if f.Form == edgar.FormAnnual {
			annual = append(annual, task)
		} else {
			quarterly = append(quarterly, task)
		}
	}

	b.report(PhaseAnnual, "Downloading %d %s filings", len(annual), edgar.FormAnnual)
	set.Annual = b.withMarkdown(b.secFetcher().FetchAll(ctx, annual), log)

	b.report(PhasePeriodic, "Downloading %d %s filings", len(quarterly), edgar.FormQuarterly)
	set.Periodic = b.withMarkdown(b.secFetcher().FetchAll(ctx, quarterly), log)

	b.report(PhaseRecent, "Summarising recent SEC submissions")
	recent := make([]types.Announcement, 0, len(filings))
	for _, f := range filings {
		recent = append(recent, b.SEC.Announcement(company, f))
	}
	set.RecentDigest = b.renderDigest(ctx, set, recent, log)

	return nil
}

// withMarkdown follows each HTML filing with its Markdown conversion. A failed
// conversion drops only the Markdown copy.
func (b *Builder) withMarkdown(paths []string, log *zap.Logger) []string {
	out := make([]string, 0, 2*len(paths))
	for _, p := range paths {
		out = append(out, p)
		md, err := edgar.ConvertFile(p, edgar.SiteURL)
		if err != nil {
			log.Warn("markdown conversion failed", zap.String("file", filepath.Base(p)), zap.Error(err))
			continue
		}
		out = append(out, md)
	}
	return out
}
