// Package mail delivers HTML messages.  The service layer depends only on
// the Sender interface; the SMTP implementation lives behind it so tests
// can substitute an in-memory sink.
package mail

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Sender delivers a single HTML message.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

// SMTPSender sends mail through a plain SMTP relay.  AUTH is used only
// when a username is configured.
type SMTPSender struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

// NewSMTPSender builds a sender for the given relay.
func NewSMTPSender(host, port, user, pass, from string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, User: user, Pass: pass, From: from}
}

// Send composes a MIME message with an HTML body and hands it to the relay.
func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}
	addr := s.Host + ":" + s.Port
	if err := smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
