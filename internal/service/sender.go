// internal/service/sender.go
package service

import (
	"context"

	"go.uber.org/zap"
)

// Delivery is what a Sender needs to deliver one message.
type Delivery struct {
	MessageID   int64
	MailingID   int64
	PhoneNumber string
	Text        string
}

type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// LogSender stands in for a real SMS gateway: it only logs the delivery.
type LogSender struct {
	Log *zap.Logger
}

func (s *LogSender) Send(_ context.Context, d Delivery) error {
	s.Log.Info("sending message",
		zap.Int64("message_id", d.MessageID),
		zap.Int64("mailing_id", d.MailingID),
		zap.String("phone_number", d.PhoneNumber),
		zap.String("text", d.Text),
	)
	return nil
}
