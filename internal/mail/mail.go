// Package mail delivers generated outreach over SMTP.
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"bdr-engine/internal/config"
)

// Sender delivers one message and returns a delivery ID for the ledger.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (deliveryID string, err error)
}

// SMTPSender sends plain-text mail through one SMTP account. The from
// address doubles as the login username, which is how Gmail-style accounts
// authenticate. Sends are paced so the provider does not flag the account.
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
	pace   *rate.Limiter
}

func NewSMTP(cfg config.Mail, password string) *SMTPSender {
	delay := time.Duration(cfg.SendDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.From, password),
		pace:   rate.NewLimiter(rate.Every(delay), 1),
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	if err := s.pace.Wait(ctx); err != nil {
		return "", err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", to, err)
	}

	// SMTP gives us no message ID back; mint one for the ledger.
	return uuid.NewString(), nil
}
