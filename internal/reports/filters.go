package reports

import (
	"fmt"
	"time"

	"github.com/shanehull/filingscraper/internal/types"
)

const (
	categoryAnnual = "category_ndbg_szsh"
	categoryQ1     = "category_yjdbg_szsh"
	categorySemi   = "category_bndbg_szsh"
	categoryQ3     = "category_sjdbg_szsh"
)

var periodicKinds = []types.ReportKind{types.KindQ1, types.KindSemi, types.KindQ3}

type periodicWindow struct {
	category   string
	searchTerm string
	startMonth time.Month
	endMonth   time.Month
}

var periodicWindows = map[types.ReportKind]periodicWindow{
	types.KindQ1:   {categoryQ1, "一季度报告", time.April, time.May},
	types.KindSemi: {categorySemi, "半年度报告", time.August, time.September},
	types.KindQ3:   {categoryQ3, "三季度报告", time.October, time.November},
}

func date(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// lastDay returns the last day of month in year.
func lastDay(year int, month time.Month, loc *time.Location) time.Time {
	return date(year, month+1, 1, loc).AddDate(0, 0, -1)
}

// annualFilter searches the months an annual report for fiscalYear is
// published in. Hong Kong issuers with non-calendar fiscal years can publish
// inside the fiscal year itself, so their window starts a year earlier.
func annualFilter(stock types.StockRecord, fiscalYear int, loc *time.Location) types.FilingFilter {
	if stock.Market == types.MarketHongKong {
		return types.FilingFilter{
			TargetCode: stock.Code,
			Start:      date(fiscalYear, time.January, 1, loc),
			End:        lastDay(fiscalYear+1, time.June, loc),
		}
	}
	return types.FilingFilter{
		TargetCode:   stock.Code,
		CategoryTags: []string{categoryAnnual},
		SearchTerm:   fmt.Sprintf("%d年年度报告", fiscalYear),
		Start:        date(fiscalYear+1, time.January, 1, loc),
		End:          lastDay(fiscalYear+1, time.June, loc),
	}
}

func periodicFilter(stock types.StockRecord, kind types.ReportKind, year int, loc *time.Location) types.FilingFilter {
	w := periodicWindows[kind]
	f := types.FilingFilter{
		TargetCode: stock.Code,
		Start:      date(year, w.startMonth, 1, loc),
		End:        lastDay(year, w.endMonth, loc),
	}
	if stock.Market != types.MarketHongKong {
		f.CategoryTags = []string{w.category}
		f.SearchTerm = w.searchTerm
	}
	return f
}

func recentFilter(stock types.StockRecord, now time.Time, days int) types.FilingFilter {
	return types.FilingFilter{
		TargetCode: stock.Code,
		Start:      now.AddDate(0, 0, -days),
		End:        now,
	}
}
