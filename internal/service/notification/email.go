package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogEmailSender stands in for the real mail provider.
// TODO: wire the marketplace's transactional mail provider (SendGrid).
type LogEmailSender struct {
	logger *zap.Logger
}

func NewLogEmailSender(logger *zap.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Info("Sending email notification",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
