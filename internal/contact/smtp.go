package contact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the relay credentials and the inbox that receives
// contact messages.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	To       string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP delivers contact messages through an SMTP relay.
type SMTP struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

var contactMailTemplate = template.Must(template.New("contact").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>New contact message</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2>New contact form submission from your portfolio</h2>
  <p><strong>Name:</strong> {{.FromName}}</p>
  <p><strong>Email:</strong> {{.ReplyTo}}</p>
  <p><strong>Subject:</strong> {{.Subject}}</p>
  <div style="border-left: 4px solid #f97316; padding: 12px; background: #fafafa; white-space: pre-wrap;">{{.Message}}</div>
  <p style="color: #888; font-size: 12px;">Sent from your portfolio contact form. Reply to {{.ReplyTo}}.</p>
</body>
</html>`))

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("smtp: credentials not configured")
	}
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if cfg.To == "" {
		cfg.To = cfg.Username
	}
	return &SMTP{cfg: cfg, sendMail: smtp.SendMail}, nil
}

// Send relays one message. net/smtp has no context support, so ctx is only
// checked before the connection is made.
func (s *SMTP) Send(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.compose(p)
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.Username, []string{s.cfg.To}, msg); err != nil {
		return fmt.Errorf("smtp: sending mail: %w", err)
	}
	return nil
}

func (s *SMTP) compose(p Payload) ([]byte, error) {
	var body bytes.Buffer
	if err := contactMailTemplate.Execute(&body, p); err != nil {
		return nil, fmt.Errorf("smtp: rendering body: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.Username)
	fmt.Fprintf(&msg, "To: %s\r\n", s.cfg.To)
	fmt.Fprintf(&msg, "Reply-To: %s\r\n", headerValue(p.ReplyTo))
	fmt.Fprintf(&msg, "Subject: Portfolio Contact: %s\r\n", headerValue(p.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())
	msg.WriteString("\r\n")
	return msg.Bytes(), nil
}

// headerValue strips line breaks so visitor input cannot inject headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
