/*
Package notify hands finished report sets to their destination: the console,
a NotebookLM notebook or an email inbox.
*/
package notify

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shanehull/filingscraper/internal/types"
)

// UploadResult lists per file whether the sink accepted it.
type UploadResult struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// Sink accepts a titled batch of files.
type Sink interface {
	Upload(ctx context.Context, title string, files []string) (UploadResult, error)
}

// Title is the notebook (or email subject) title for a stock.
func Title(stockName string) string {
	return stockName + " 财务报告"
}

func writeSection(w io.Writer, name string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", name, len(paths))
	for _, p := range paths {
		fmt.Fprintf(w, "\t- %s\n", filepath.Base(p))
	}
}

// ReportSet prints a finished set to w.
func ReportSet(w io.Writer, set *types.ReportSet) {
	fmt.Fprintln(w, "\n===========================================")
	fmt.Fprintf(w, "✅ %s %s (%s): %d FILES\n", set.Stock.Code, set.Stock.DisplayName, set.Stock.Market, len(set.Files))
	fmt.Fprintln(w, "===========================================")

	writeSection(w, "Annual reports", set.Annual)
	writeSection(w, "Periodic reports", set.Periodic)
	writeSection(w, "Recent disclosures", set.Recent)
	if set.RecentDigest != "" {
		fmt.Fprintf(w, "Digest: %s\n", filepath.Base(set.RecentDigest))
	}

	fmt.Fprintf(w, "\nOutput directory: %s\n", set.OutputDir)
}

// Result prints an upload outcome to w.
func Result(w io.Writer, title string, res UploadResult) {
	fmt.Fprintln(w, "\n-------------------------------------------")
	fmt.Fprintf(w, "Upload \"%s\": %d succeeded, %d failed\n", title, len(res.Succeeded), len(res.Failed))
	if len(res.Failed) > 0 {
		names := make([]string, len(res.Failed))
		for i, f := range res.Failed {
			names[i] = filepath.Base(f)
		}
		fmt.Fprintf(w, "Failed: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintln(w, "-------------------------------------------")
}
