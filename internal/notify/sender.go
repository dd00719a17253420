package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Sender delivers a notification to its recipient (push, in-app, ...).
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender is the default Sender; it only records the delivery.
type LogSender struct {
	Log log.FieldLogger
}

func (s LogSender) Send(ctx context.Context, n Notification) error {
	s.Log.WithFields(log.Fields{
		"notification_id": n.NotificationID,
		"recipient_id":    n.RecipientID,
		"recipient_role":  n.RecipientRole,
		"event":           n.Event,
		"title":           n.Title,
	}).Info("notification delivered")
	return nil
}
