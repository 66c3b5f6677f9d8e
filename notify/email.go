package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
)

// SMTPEmailSender delivers the email leg of subscriber notifications over
// plain net/smtp, the one notify channel built on the standard library
// rather than a third-party client.
type SMTPEmailSender struct {
	host, port, username, password, from string
}

func NewSMTPEmailSender(host string, port int, username, password, from string) *SMTPEmailSender {
	if host == "" {
		log.Println("notify: no smtp host configured, email notifications disabled")
		return &SMTPEmailSender{}
	}
	return &SMTPEmailSender{
		host:     host,
		port:     fmt.Sprintf("%d", port),
		username: username,
		password: password,
		from:     from,
	}
}

func (s *SMTPEmailSender) Name() string { return "email" }

func (s *SMTPEmailSender) Send(ctx context.Context, recipient string, msg Message) error {
	if s.host == "" {
		return nil
	}
	addr := s.host + ":" + s.port
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	body := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", recipient, msg.Title, msg.Body)
	if err := smtp.SendMail(addr, auth, s.from, []string{recipient}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
