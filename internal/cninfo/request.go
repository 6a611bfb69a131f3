package cninfo

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shanehull/filingscraper/internal/types"
)

// queryRequest is one market's variant of the registry search form.
type queryRequest interface {
	form(page int) url.Values
}

// mainlandQuery supports category tags and a free-text search key.
type mainlandQuery struct {
	pageSize  int
	stock     string
	category  []string
	searchKey string
	dateRange string
}

// hkQuery carries no category or search key; the registry ignores both for
// the Hong Kong column, so filtering happens in the classifier instead.
type hkQuery struct {
	pageSize  int
	stock     string
	dateRange string
}

func newQueryRequest(stock types.StockRecord, filter types.FilingFilter, pageSize int) queryRequest {
	key := stock.Code + "," + stock.OrgID
	if stock.Market == types.MarketHongKong {
		return hkQuery{pageSize: pageSize, stock: key, dateRange: filter.DateRange()}
	}
	return mainlandQuery{
		pageSize:  pageSize,
		stock:     key,
		category:  filter.CategoryTags,
		searchKey: filter.SearchTerm,
		dateRange: filter.DateRange(),
	}
}

func baseForm(page, pageSize int, column, stock, dateRange string) url.Values {
	return url.Values{
		"pageNum":   {strconv.Itoa(page)},
		"pageSize":  {strconv.Itoa(pageSize)},
		"column":    {column},
		"tabName":   {"fulltext"},
		"plate":     {""},
		"stock":     {stock},
		"secid":     {""},
		"trade":     {""},
		"seDate":    {dateRange},
		"sortName":  {""},
		"sortType":  {""},
		"isHLtitle": {"false"},
	}
}

func (q mainlandQuery) form(page int) url.Values {
	v := baseForm(page, q.pageSize, types.MarketAShare.Column(), q.stock, q.dateRange)
	v.Set("category", strings.Join(q.category, ";"))
	v.Set("searchkey", q.searchKey)
	return v
}

func (q hkQuery) form(page int) url.Values {
	v := baseForm(page, q.pageSize, types.MarketHongKong.Column(), q.stock, q.dateRange)
	v.Set("category", "")
	v.Set("searchkey", "")
	return v
}
