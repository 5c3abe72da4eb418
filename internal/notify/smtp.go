package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/shaiso/scops/internal/domain"
)

// SendMailFunc — сигнатура smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier отправляет письмо через SMTP-релей.
type SMTPNotifier struct {
	Addr     string
	From     string
	Username string
	Password string

	// SendMail подменяется в тестах; nil — smtp.SendMail.
	SendMail SendMailFunc
}

// Send отправляет письмо.
func (s SMTPNotifier) Send(ctx context.Context, n domain.Notification) error {
	if n.Recipient == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body := Render(n)
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + n.Recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if s.Username != "" {
		host, _, err := net.SplitHostPort(s.Addr)
		if err != nil {
			return fmt.Errorf("smtp addr: %w", err)
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}

	send := s.SendMail
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(s.Addr, auth, s.From, []string{n.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
