/*
Package stocks loads the static security directory and answers code, name and
fuzzy lookups against it.
*/
package stocks

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shanehull/filingscraper/internal/types"
)

//go:embed stocks.json
var defaultDirectory []byte

var ErrNotFound = errors.New("stock not found")

var usTickerPattern = regexp.MustCompile(`^[A-Za-z]{1,5}$`)

// Directory is an immutable view over the security list. Records keep the
// order in which they appear in the source document.
type Directory struct {
	records []types.StockRecord
	byCode  map[string]int
	byName  map[string]int
}

// Load reads a directory from path, or the embedded default when path is empty.
func Load(path string) (*Directory, error) {
	data := defaultDirectory
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read stock directory %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a directory from the {market: {code: {zwjc, pinyin, orgId}}}
// document published by the registry.
func Parse(data []byte) (*Directory, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("stock directory is not valid JSON")
	}

	d := &Directory{
		byCode: make(map[string]int),
		byName: make(map[string]int),
	}

	gjson.ParseBytes(data).ForEach(func(marketKey, stocks gjson.Result) bool {
		market := marketFromKey(marketKey.String())
		stocks.ForEach(func(code, info gjson.Result) bool {
			d.add(types.StockRecord{
				Code:        code.String(),
				DisplayName: info.Get("zwjc").String(),
				PhoneticKey: info.Get("pinyin").String(),
				OrgID:       info.Get("orgId").String(),
				Market:      market,
			})
			return true
		})
		return true
	})

	if len(d.records) == 0 {
		return nil, fmt.Errorf("stock directory is empty")
	}
	return d, nil
}

func (d *Directory) add(rec types.StockRecord) {
	if _, dup := d.byCode[rec.Code]; dup {
		return
	}
	idx := len(d.records)
	d.records = append(d.records, rec)
	d.byCode[rec.Code] = idx
	if _, dup := d.byName[rec.DisplayName]; !dup && rec.DisplayName != "" {
		d.byName[rec.DisplayName] = idx
	}
}

func marketFromKey(key string) types.Market {
	if key == "hke" {
		return types.MarketHongKong
	}
	return types.MarketAShare
}

func (d *Directory) Len() int {
	return len(d.records)
}

// Lookup returns the registry record for an exact code or display name.
func (d *Directory) Lookup(identifier string) (types.StockRecord, bool) {
	if idx, ok := d.byCode[identifier]; ok {
		return d.records[idx], true
	}
	if idx, ok := d.byName[identifier]; ok {
		return d.records[idx], true
	}
	return types.StockRecord{}, false
}

// Resolve maps an identifier to a security. Registry codes win over names;
// anything else shaped like a US ticker resolves to a US record.
func (d *Directory) Resolve(identifier string) (types.StockRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if rec, ok := d.Lookup(identifier); ok {
		return rec, nil
	}

	if IsUSTicker(identifier) {
		ticker := strings.ToUpper(identifier)
		name := ticker
		if n, ok := usNames[ticker]; ok {
			name = n
		}
		return types.StockRecord{Code: ticker, DisplayName: name, Market: types.MarketUS}, nil
	}

	return types.StockRecord{}, fmt.Errorf("%w: %s", ErrNotFound, identifier)
}

// IsUSTicker reports whether s looks like a US ticker (1-5 letters).
func IsUSTicker(s string) bool {
	return usTickerPattern.MatchString(s)
}
