package stocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/shanehull/filingscraper/internal/retry"
)

// Stock lists the registry publishes for its search box.
const (
	DefaultSZSEListURL = "http://www.cninfo.com.cn/new/data/szse_stock.json"
	DefaultHKEListURL  = "http://www.cninfo.com.cn/new/data/hke_stock.json"
)

// ListSource is one published stock list and the market key its entries are
// filed under in the directory document.
type ListSource struct {
	Market string
	URL    string
}

func DefaultSources() []ListSource {
	return []ListSource{
		{Market: "szse", URL: DefaultSZSEListURL},
		{Market: "hke", URL: DefaultHKEListURL},
	}
}

// Refresher rebuilds the directory document from the registry's stock lists.
type Refresher struct {
	HTTP      *http.Client
	Sources   []ListSource
	UserAgent string
	Retry     retry.Policy
	Logger    *zap.Logger
}

type listEntry struct {
	Code     string `json:"code"`
	Name     string `json:"zwjc"`
	Pinyin   string `json:"pinyin"`
	OrgID    string `json:"orgId"`
	Category string `json:"category"`
}

func (r *Refresher) sources() []ListSource {
	if len(r.Sources) == 0 {
		return DefaultSources()
	}
	return r.Sources
}

func (r *Refresher) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Fetch downloads every list and returns a document Parse accepts. Entries
// keep the order the registry lists them in. Any failed list fails the whole
// refresh so a partial directory never replaces a complete one.
func (r *Refresher) Fetch(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, src := range r.sources() {
		data, err := r.get(ctx, src.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s stock list: %w", src.Market, err)
		}
		list := gjson.GetBytes(data, "stockList")
		if !list.IsArray() {
			return nil, fmt.Errorf("%s stock list from %s has no stockList array", src.Market, src.URL)
		}

		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(src.Market)
		buf.Write(key)
		buf.WriteString(":{")

		seen := make(map[string]bool)
		count := 0
		for _, item := range list.Array() {
			e := listEntry{
				Code:     item.Get("code").String(),
				Name:     item.Get("zwjc").String(),
				Pinyin:   item.Get("pinyin").String(),
				OrgID:    item.Get("orgId").String(),
				Category: item.Get("category").String(),
			}
			if e.Code == "" || seen[e.Code] {
				continue
			}
			seen[e.Code] = true

			code, _ := json.Marshal(e.Code)
			value, err := json.Marshal(e)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s: %w", e.Code, err)
			}
			if count > 0 {
				buf.WriteByte(',')
			}
			buf.Write(code)
			buf.WriteByte(':')
			buf.Write(value)
			count++
		}
		buf.WriteByte('}')

		if count == 0 {
			return nil, fmt.Errorf("%s stock list from %s is empty", src.Market, src.URL)
		}
		r.logger().Info("stock list fetched", zap.String("market", src.Market), zap.Int("records", count))
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Refresh fetches the lists and atomically replaces the directory at path.
func (r *Refresher) Refresh(ctx context.Context, path string) (*Directory, error) {
	data, err := r.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write stock directory %s: %w", path, err)
	}
	return dir, nil
}

func (r *Refresher) get(ctx context.Context, u string) ([]byte, error) {
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	var body []byte
	err := r.Retry.Do(ctx, r.Logger, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		if r.UserAgent != "" {
			req.Header.Set("User-Agent", r.UserAgent)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("registry returned status %d for %s", resp.StatusCode, u)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}
