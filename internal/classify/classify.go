/*
Package classify decides whether a filing title is the canonical full-text
report for a period, as opposed to a summary, translation or correction.
*/
package classify

import (
	"fmt"
	"strings"

	"github.com/shanehull/filingscraper/internal/types"
)

// Markers that disqualify a title regardless of the period it names:
// summaries, English editions, corrections and revisions.
var exclusionMarkers = []string{"摘要", "summary", "英文", "english", "更正", "修订", "修訂"}

// Hong Kong filers write "annual report" in simplified or traditional script.
var hkAnnualMarkers = []string{"年度报告", "年报", "年度報告", "年報"}

var hkPeriodicMarkers = []string{"季度", "半年度", "中期"}

var periodicMarkers = map[types.ReportKind][]string{
	types.KindQ1:   {"一季度", "第一季度"},
	types.KindSemi: {"半年度报告", "中期报告"},
	types.KindQ3:   {"三季度", "第三季度"},
}

var chineseDigits = map[rune]string{
	'0': "零", '1': "一", '2': "二", '3': "三", '4': "四",
	'5': "五", '6': "六", '7': "七", '8': "八", '9': "九",
}

// ChineseYear spells a year digit by digit in Chinese numerals (2023 -> 二零二三).
func ChineseYear(year int) string {
	var sb strings.Builder
	for _, r := range fmt.Sprint(year) {
		sb.WriteString(chineseDigits[r])
	}
	return sb.String()
}

func isExcluded(title string) bool {
	lower := strings.ToLower(title)
	for _, m := range exclusionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// IsPrimaryAnnual reports whether title is the full annual report for fiscalYear.
func IsPrimaryAnnual(title string, fiscalYear int, market types.Market) bool {
	if isExcluded(title) {
		return false
	}

	if market == types.MarketHongKong {
		return isHKAnnual(title, fiscalYear)
	}

	year := fmt.Sprint(fiscalYear)
	return strings.Contains(title, year+"年年度报告") || strings.Contains(title, year+"年年报")
}

// Hong Kong titles vary between numeric and Chinese-numeral years and several
// phrasings of "annual report", so any combination is accepted.
func isHKAnnual(title string, fiscalYear int) bool {
	chinese := ChineseYear(fiscalYear)
	years := []string{fmt.Sprint(fiscalYear), chinese, strings.ReplaceAll(chinese, "零", "〇")}
	if !containsAny(title, years) {
		return false
	}

	isAnnual := strings.Contains(strings.ToLower(title), "annual report") ||
		containsAny(title, hkAnnualMarkers)
	if !isAnnual {
		return false
	}

	return !containsAny(title, hkPeriodicMarkers)
}

// IsPrimaryPeriodic reports whether title is the full Q1, semi-annual or Q3 report.
func IsPrimaryPeriodic(title string, kind types.ReportKind) bool {
	if isExcluded(title) {
		return false
	}
	markers, ok := periodicMarkers[kind]
	if !ok {
		return false
	}
	return containsAny(title, markers)
}

// FirstAnnual returns the first announcement that is the primary annual
// report for fiscalYear. Registry order is newest first, so a later re-filing
// for the same period wins over the original.
func FirstAnnual(anns []types.Announcement, fiscalYear int, market types.Market) (types.Announcement, bool) {
	for _, a := range anns {
		if IsPrimaryAnnual(a.Title, fiscalYear, market) {
			return a, true
		}
	}
	return types.Announcement{}, false
}

// FirstPeriodic is FirstAnnual for periodic reports.
func FirstPeriodic(anns []types.Announcement, kind types.ReportKind) (types.Announcement, bool) {
	for _, a := range anns {
		if IsPrimaryPeriodic(a.Title, kind) {
			return a, true
		}
	}
	return types.Announcement{}, false
}

// IsNewestFirst reports whether anns are ordered by non-increasing publish
// time. Entries without a timestamp are ignored.
func IsNewestFirst(anns []types.Announcement) bool {
	var prev types.Announcement
	havePrev := false
	for _, a := range anns {
		if a.PublishedAt.IsZero() {
			continue
		}
		if havePrev && a.PublishedAt.After(prev.PublishedAt) {
			return false
		}
		prev, havePrev = a, true
	}
	return true
}
