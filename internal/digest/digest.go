/*
Package digest renders the recent-disclosure summary that accompanies each
report set.
*/
package digest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"github.com/shanehull/filingscraper/internal/fetch"
	"github.com/shanehull/filingscraper/internal/types"
)

const (
	DefaultLimit = 15

	// FileMarker appears in every digest file name.
	FileMarker = "_recent_disclosures_"
)

// China Standard Time; registry timestamps are rendered in exchange-local dates.
var DefaultLocation = time.FixedZone("CST", 8*60*60)

// Summarizer produces a few overview bullets for a list of disclosures.
type Summarizer interface {
	Overview(ctx context.Context, stockName string, anns []types.Announcement) ([]string, error)
}

type Renderer struct {
	Limit      int
	Location   *time.Location
	Now        func() time.Time
	Summarizer Summarizer
	Logger     *zap.Logger
}

func (r *Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Renderer) location() *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return DefaultLocation
}

// FileName is the digest name for a stock on the given day.
func FileName(stockName string, day time.Time) string {
	return fetch.SanitizeFileName(stockName) + FileMarker + day.Format("20060102") + ".md"
}

// Render writes the digest for stockName into dir and returns its path. A
// digest already written for the same day is left untouched.
func (r *Renderer) Render(ctx context.Context, dir, stockName string, anns []types.Announcement) (string, error) {
	now := r.now().In(r.location())
	path := filepath.Join(dir, FileName(stockName, now))

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	limit := r.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(anns) > limit {
		anns = anns[:limit]
	}

	var overview []string
	if r.Summarizer != nil && len(anns) > 0 {
		bullets, err := r.Summarizer.Overview(ctx, stockName, anns)
		if err != nil && r.Logger != nil {
			r.Logger.Warn("digest overview unavailable", zap.String("stock", stockName), zap.Error(err))
		}
		overview = bullets
	}

	content := r.markdown(stockName, now, overview, anns)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create digest directory %s: %w", dir, err)
	}
	if err := renameio.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write digest %s: %w", path, err)
	}
	return path, nil
}

func (r *Renderer) markdown(stockName string, now time.Time, overview []string, anns []types.Announcement) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s: recent disclosures\n\n", stockName))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format("2006-01-02 15:04:05")))

	if len(overview) > 0 {
		sb.WriteString("## Overview\n\n")
		for _, b := range overview {
			sb.WriteString(fmt.Sprintf("- %s\n", b))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Latest announcements\n\n")
	if len(anns) == 0 {
		sb.WriteString("No disclosures in the last six months.\n")
	}
	for _, a := range anns {
		title := a.Title
		if title == "" {
			title = "(untitled)"
		}
		date := ""
		if !a.PublishedAt.IsZero() {
			date = a.PublishedAt.In(r.location()).Format("2006-01-02")
		}
		sb.WriteString(fmt.Sprintf("- **[%s]** %s\n  [link](%s)\n", date, title, a.DocumentURL))
	}

	sb.WriteString("\n---\n*Generated automatically to accompany the downloaded filings.*\n")
	return sb.String()
}
