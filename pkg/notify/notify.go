// Package notify delivers operator notifications. Delivery failures are
// logged and swallowed: a notification can never fail a job or a batch.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Sender delivers one text message to the operator channel.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Notifier wraps a Sender so that delivery errors never reach the caller.
type Notifier struct {
	sender Sender
	logger *logrus.Logger
}

// NewNotifier creates a Notifier. A nil sender only logs.
func NewNotifier(sender Sender, logger *logrus.Logger) *Notifier {
	if logger == nil {
		logger = logrus.New()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	return &Notifier{sender: sender, logger: logger}
}

// Notify sends text, logging instead of returning any delivery failure.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if err := n.sender.Send(ctx, text); err != nil {
		n.logger.WithError(err).WithField("message", text).Error("Failed to deliver notification")
	}
}

// LogSender is the Sender used when no messaging service is configured.
// It writes each message to the log.
type LogSender struct {
	Logger *logrus.Logger
}

func (s LogSender) Send(_ context.Context, text string) error {
	if s.Logger != nil {
		s.Logger.WithField("message", text).Info("Notification")
	}
	return nil
}
