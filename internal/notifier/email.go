package notifier

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/pauljones0/zdm-deals-bot/internal/config"
)

// EmailNotifier delivers the digest as an HTML mail over SMTP with
// STARTTLS (net/smtp upgrades the connection when the server offers it).
type EmailNotifier struct {
	cfg config.EmailConfig

	// sendMail is a seam so tests don't need an SMTP server.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (n *EmailNotifier) Name() string { return "email" }

// Notify sends the digest to every configured recipient in one message.
func (n *EmailNotifier) Notify(ctx context.Context, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	msg, err := buildMIMEMessage(n.cfg.From, n.cfg.To, subject, htmlBody)
	if err != nil {
		return err
	}

	if err := n.sendMail(addr, auth, n.cfg.From, n.cfg.To, msg); err != nil {
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}
	slog.Info("Email digest sent", "recipients", len(n.cfg.To))
	return nil
}

// buildMIMEMessage assembles a multipart/alternative mail carrying the
// digest as an HTML part. The subject is RFC 2047 encoded since it
// usually carries CJK text.
func buildMIMEMessage(from string, to []string, subject, htmlBody string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/html; charset="UTF-8"`},
	})
	if err != nil {
		return nil, fmt.Errorf("build mail body: %w", err)
	}
	if _, err := part.Write([]byte(htmlBody)); err != nil {
		return nil, fmt.Errorf("build mail body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build mail body: %w", err)
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(`Content-Type: multipart/alternative; boundary="` + mw.Boundary() + `"` + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body.String())
	return []byte(b.String()), nil
}
