package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// NotificationData is what an upload email shows.
type NotificationData struct {
	Title       string
	Files       []string
	Generated   time.Time
	DigestText  string
	DigestHTML  template.HTML
	MissingNote string
}

type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

// HTMLEmailRenderer renders notifications as HTML emails with a plain text fallback.
type HTMLEmailRenderer struct {
	tmpl     *template.Template
	markdown goldmark.Markdown
}

// NewHTMLEmailRenderer creates a renderer with the default email template.
func NewHTMLEmailRenderer() *HTMLEmailRenderer {
	t := template.Must(template.New("email").Funcs(template.FuncMap{
		"base": filepath.Base,
	}).Parse(emailHTMLTemplate))
	return &HTMLEmailRenderer{
		tmpl:     t,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Render produces an HTML email with plain text alternative. The digest, when
// present, is Markdown and becomes the body of the message.
func (r *HTMLEmailRenderer) Render(data NotificationData) (*RenderedMessage, error) {
	if data.DigestText != "" {
		var digest bytes.Buffer
		if err := r.markdown.Convert([]byte(data.DigestText), &digest); err != nil {
			return nil, fmt.Errorf("failed to render digest markdown: %w", err)
		}
		data.DigestHTML = template.HTML(digest.String())
	}

	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &RenderedMessage{
		Subject: data.Title,
		Text:    renderPlainText(data),
		HTML:    htmlBuf.String(),
	}, nil
}

// renderPlainText produces a readable plain text version for email clients that don't support HTML.
func renderPlainText(data NotificationData) string {
	var sb strings.Builder

	sb.WriteString(data.Title + "\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", data.Generated.Format("2006-01-02 15:04")))

	sb.WriteString(fmt.Sprintf("ATTACHED FILES (%d)\n", len(data.Files)))
	sb.WriteString(strings.Repeat("-", 20) + "\n")
	for _, f := range data.Files {
		sb.WriteString(fmt.Sprintf("• %s\n", filepath.Base(f)))
	}
	sb.WriteString("\n")

	if data.MissingNote != "" {
		sb.WriteString(data.MissingNote + "\n\n")
	}

	if data.DigestText != "" {
		sb.WriteString(data.DigestText)
		if !strings.HasSuffix(data.DigestText, "\n") {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
