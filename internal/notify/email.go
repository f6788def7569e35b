// Package notify delivers outbound notifications: email via SES or the log,
// and JSON webhooks.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Email is a plain-text message to one recipient.
type Email struct {
	To      string
	Subject string
	Body    string
}

// EmailSender delivers emails.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

type logSender struct {
	logger *zap.Logger
}

// NewLogSender returns a sender that only logs, used when SES is disabled.
func NewLogSender(logger *zap.Logger) EmailSender {
	return &logSender{logger: logger}
}

func (s *logSender) Send(_ context.Context, email Email) error {
	s.logger.Info("email suppressed, SES disabled",
		zap.String("to", email.To),
		zap.String("subject", email.Subject))
	return nil
}
