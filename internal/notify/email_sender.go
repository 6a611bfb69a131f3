package notify

import (
	"time"

	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"
)

// EmailConfig holds SMTP configuration for sending emails.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	ToEmail    string
	Enabled    bool
}

// EmailSender delivers messages via SMTP.
type EmailSender struct {
	cfg     EmailConfig
	logger  *zap.Logger
	deliver func(*gomail.Message) error
}

// NewEmailSender creates a sender with the given SMTP configuration.
func NewEmailSender(cfg EmailConfig, logger *zap.Logger) *EmailSender {
	s := &EmailSender{cfg: cfg, logger: logger}
	s.deliver = s.dialAndSend
	return s
}

func (s *EmailSender) dialAndSend(m *gomail.Message) error {
	dialer := gomail.NewDialer(s.cfg.SMTPServer, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second
	return dialer.DialAndSend(m)
}

// Send delivers an email with HTML body, plain text fallback and the given
// files attached.
func (s *EmailSender) Send(msg *RenderedMessage, attachments []string) error {
	if !s.cfg.Enabled {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.FromEmail)
	m.SetHeader("To", s.cfg.ToEmail)
	m.SetHeader("Subject", msg.Subject)

	if msg.HTML != "" && msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
	} else {
		m.SetBody("text/plain", msg.Text)
	}

	for _, a := range attachments {
		m.Attach(a)
	}

	if err := s.deliver(m); err != nil {
		s.logger.Error("failed to send email",
			zap.String("to", s.cfg.ToEmail),
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return err
	}

	s.logger.Info("email sent", zap.String("subject", msg.Subject), zap.Int("attachments", len(attachments)))
	return nil
}
