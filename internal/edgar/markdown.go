package edgar

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/google/renameio/v2"
)

// Elements that carry no reading content: scripts, styles and the hidden
// inline-XBRL header block.
const noiseSelector = `script, style, ix\:header, [style*="display:none"], [style*="display: none"]`

// ToMarkdown converts a filing's HTML into Markdown.
func ToMarkdown(html []byte, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse filing HTML: %w", err)
	}
	doc.Find(noiseSelector).Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render cleaned HTML: %w", err)
	}

	converter := md.NewConverter(baseURL, true, nil)
	out, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to convert filing to markdown: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("markdown conversion produced no content")
	}
	return out, nil
}

// ConvertFile writes a .md sibling next to an .html filing unless one exists.
func ConvertFile(htmlPath, baseURL string) (string, error) {
	mdPath := strings.TrimSuffix(htmlPath, ".html") + ".md"
	if _, err := os.Stat(mdPath); err == nil {
		return mdPath, nil
	}

	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", htmlPath, err)
	}

	out, err := ToMarkdown(data, baseURL)
	if err != nil {
		return "", err
	}

	if err := renameio.WriteFile(mdPath, []byte(out), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", mdPath, err)
	}
	return mdPath, nil
}
