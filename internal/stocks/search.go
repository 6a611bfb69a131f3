package stocks

import (
	"sort"
	"strings"

	"github.com/shanehull/filingscraper/internal/types"
)

const (
	scoreExactCode    = 1000
	scoreCodePrefix   = 500
	scoreNameContains = 300
	scoreNamePrefix   = 100
	scorePhoneticFull = 400
	scorePhoneticPre  = 200
)

type Candidate struct {
	Record types.StockRecord
	Score  int
}

type usListing struct {
	ticker string
	name   string
}

// Common US listings offered by search even though their filings come from a
// different source than the registry.
var usListings = []usListing{
	{"AAPL", "苹果公司"},
	{"MSFT", "微软"},
	{"GOOGL", "谷歌A"},
	{"GOOG", "谷歌C"},
	{"AMZN", "亚马逊"},
	{"TSLA", "特斯拉"},
	{"META", "Meta Platforms"},
	{"NVDA", "英伟达"},
	{"NFLX", "奈飞"},
	{"AMD", "超威半导体"},
	{"INTC", "英特尔"},
	{"CRM", "Salesforce"},
	{"ADBE", "Adobe"},
	{"PYPL", "PayPal"},
	{"UBER", "Uber"},
	{"COIN", "Coinbase"},
	{"BABA", "阿里巴巴"},
	{"JD", "京东集团"},
	{"BIDU", "百度"},
	{"NIO", "蔚来"},
	{"PDD", "拼多多"},
	{"TME", "腾讯音乐"},
	{"LI", "理想汽车"},
	{"XPEV", "小鹏汽车"},
	{"BEKE", "贝壳"},
	{"ZH", "知乎"},
	{"WB", "微博"},
	{"YY", "欢聚时代"},
}

var usNames = func() map[string]string {
	m := make(map[string]string, len(usListings))
	for _, l := range usListings {
		m[l.ticker] = l.name
	}
	return m
}()

// Relevance scores a record against query. Higher is better.
func Relevance(query string, rec types.StockRecord) int {
	if rec.Code == query {
		return scoreExactCode
	}

	q := strings.ToLower(query)
	name := strings.ToLower(rec.DisplayName)
	phonetic := strings.ToLower(rec.PhoneticKey)
	score := 0

	if strings.HasPrefix(rec.Code, query) {
		score += scoreCodePrefix - len(rec.Code)
	}

	if strings.Contains(name, q) {
		score += scoreNameContains
		if strings.HasPrefix(name, q) {
			score += scoreNamePrefix
		}
	}

	if phonetic != "" {
		if phonetic == q {
			score += scorePhoneticFull
		} else if strings.HasPrefix(phonetic, q) {
			score += scorePhoneticPre
		}
	}

	return score
}

func matches(query string, rec types.StockRecord) bool {
	q := strings.ToLower(query)
	return strings.HasPrefix(rec.Code, query) ||
		strings.Contains(strings.ToLower(rec.DisplayName), q) ||
		(rec.PhoneticKey != "" && strings.HasPrefix(strings.ToLower(rec.PhoneticKey), q))
}

// Search returns up to limit candidates ranked by relevance. Registry matches
// come first, ties keep directory order, and known US listings are appended.
func (d *Directory) Search(query string, limit int) []Candidate {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil
	}

	var found []Candidate
	for _, rec := range d.records {
		if matches(query, rec) {
			found = append(found, Candidate{Record: rec, Score: Relevance(query, rec)})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Score > found[j].Score
	})
	if len(found) > limit {
		found = found[:limit]
	}

	seen := make(map[string]struct{}, len(found))
	for _, c := range found {
		seen[c.Record.Code] = struct{}{}
	}

	upper := strings.ToUpper(query)
	lower := strings.ToLower(query)
	for _, l := range usListings {
		if !strings.HasPrefix(l.ticker, upper) && !strings.Contains(strings.ToLower(l.name), lower) {
			continue
		}
		if _, dup := seen[l.ticker]; dup {
			continue
		}
		seen[l.ticker] = struct{}{}
		found = append(found, Candidate{
			Record: types.StockRecord{Code: l.ticker, DisplayName: l.name, Market: types.MarketUS},
		})
	}

	if len(found) > limit {
		found = found[:limit]
	}
	return found
}
