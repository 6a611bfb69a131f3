package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shanehull/filingscraper/internal/digest"
)

// EmailSink mails every file of a batch as attachments of one message. The
// digest, when part of the batch, doubles as the message body.
type EmailSink struct {
	Sender   *EmailSender
	Renderer *HTMLEmailRenderer
	Now      func() time.Time
	Logger   *zap.Logger
}

func NewEmailSink(cfg EmailConfig, logger *zap.Logger) *EmailSink {
	return &EmailSink{
		Sender:   NewEmailSender(cfg, logger),
		Renderer: NewHTMLEmailRenderer(),
		Now:      time.Now,
		Logger:   logger,
	}
}

func (s *EmailSink) Upload(_ context.Context, title string, files []string) (UploadResult, error) {
	var present, missing []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			missing = append(missing, f)
			continue
		}
		present = append(present, f)
	}
	if len(present) == 0 {
		return UploadResult{Failed: files}, fmt.Errorf("none of the %d files exist", len(files))
	}

	data := NotificationData{
		Title:     title,
		Files:     present,
		Generated: s.Now(),
	}
	if len(missing) > 0 {
		data.MissingNote = fmt.Sprintf("%d files could not be attached because they no longer exist.", len(missing))
	}
	for _, f := range present {
		if !strings.Contains(filepath.Base(f), digest.FileMarker) {
			continue
		}
		text, err := os.ReadFile(f)
		if err != nil {
			s.Logger.Warn("failed to read digest for email body", zap.String("file", f), zap.Error(err))
			break
		}
		data.DigestText = string(text)
		break
	}

	msg, err := s.Renderer.Render(data)
	if err != nil {
		return UploadResult{Failed: files}, err
	}
	if err := s.Sender.Send(msg, present); err != nil {
		return UploadResult{Failed: files}, fmt.Errorf("failed to email %q: %w", title, err)
	}

	return UploadResult{Succeeded: present, Failed: missing}, nil
}
