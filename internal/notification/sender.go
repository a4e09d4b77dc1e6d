// Package notification delivers outbound client email.
package notification

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Email is one outbound HTML message.
type Email struct {
	To       string
	Subject  string
	HTMLBody string
}

// Validate checks the message has everything a mail relay needs.
func (e Email) Validate() error {
	if strings.TrimSpace(e.To) == "" {
		return errors.New("email recipient is required")
	}
	if strings.TrimSpace(e.Subject) == "" {
		return errors.New("email subject is required")
	}
	if strings.TrimSpace(e.HTMLBody) == "" {
		return errors.New("email body is required")
	}
	return nil
}

// Sender delivers an Email. Failures are reported, never retried here.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	s.logger.Info("email not delivered; sender disabled",
		zap.String("to", email.To),
		zap.String("subject", email.Subject))
	return nil
}
