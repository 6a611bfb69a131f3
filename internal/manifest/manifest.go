/*
Package manifest records what a build produced so that a later run can upload
the same directory without rebuilding it.
*/
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/shanehull/filingscraper/internal/types"
)

const FileName = "manifest.json"

type Manifest struct {
	StockCode   string    `json:"stock_code"`
	StockName   string    `json:"stock_name"`
	Market      string    `json:"market"`
	OutputDir   string    `json:"output_dir"`
	Files       []string  `json:"files"`
	Annual      []string  `json:"annual"`
	Periodic    []string  `json:"periodic"`
	Recent      []string  `json:"recent"`
	Digest      string    `json:"digest,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

func New(set *types.ReportSet, generatedAt time.Time) Manifest {
	return Manifest{
		StockCode:   set.Stock.Code,
		StockName:   set.Stock.DisplayName,
		Market:      string(set.Stock.Market),
		OutputDir:   set.OutputDir,
		Files:       nonNil(set.Files),
		Annual:      nonNil(set.Annual),
		Periodic:    nonNil(set.Periodic),
		Recent:      nonNil(set.Recent),
		Digest:      set.RecentDigest,
		GeneratedAt: generatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ReportSet rebuilds the set the manifest was written from. Phonetic key and
// org id are not recorded.
func (m Manifest) ReportSet() *types.ReportSet {
	return &types.ReportSet{
		Stock: types.StockRecord{
			Code:        m.StockCode,
			DisplayName: m.StockName,
			Market:      types.Market(m.Market),
		},
		OutputDir:    m.OutputDir,
		Annual:       m.Annual,
		Periodic:     m.Periodic,
		Recent:       m.Recent,
		RecentDigest: m.Digest,
		Files:        m.Files,
	}
}

func (m Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Write stores m as manifest.json in its output directory.
func Write(m Manifest) (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := filepath.Join(m.OutputDir, FileName)
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return path, nil
}

func Read(dir string) (Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.OutputDir == "" {
		m.OutputDir = dir
	}
	return m, nil
}
