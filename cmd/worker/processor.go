package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/laundry-payflow/internal/idempotency"
	"github.com/imrishuroy/laundry-payflow/internal/notify"
)

// Deliveries guards each notification against being delivered twice.
type Deliveries interface {
	Claim(ctx context.Context, key, subject string) (bool, error)
	MarkDone(ctx context.Context, key string) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Processor delivers notifications relayed from the outbox.
type Processor struct {
	deliveries Deliveries
	sender     notify.Sender
	log        log.FieldLogger
}

// NewProcessor creates a new worker processor with its dependencies injected.
func NewProcessor(deliveries Deliveries, sender notify.Sender, logger log.FieldLogger) *Processor {
	return &Processor{deliveries: deliveries, sender: sender, log: logger}
}

// Handle processes an SQS batch. Only the messages that failed are reported
// back, so the rest of the batch is not redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.WithError(err).WithField("message_id", rec.MessageId).Error("delivery failed")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var n notify.Notification
	if err := json.Unmarshal([]byte(rec.Body), &n); err != nil || n.NotificationID == "" {
		// redelivering a body we cannot read never helps
		p.log.WithField("message_id", rec.MessageId).Warn("dropping unreadable message")
		return nil
	}
	entry := p.log.WithFields(log.Fields{"notification_id": n.NotificationID, "event": n.Event, "recipient_id": n.RecipientID})

	claimed, err := p.deliveries.Claim(ctx, n.NotificationID, string(n.Event))
	if errors.Is(err, idempotency.ErrClaimHeld) {
		// redelivered after the visibility timeout, by when the holder has
		// finished or its lease has run out
		return fmt.Errorf("delivery %s in progress elsewhere: %w", n.NotificationID, err)
	}
	if err != nil {
		return fmt.Errorf("claim %s: %w", n.NotificationID, err)
	}
	if !claimed {
		entry.Info("duplicate delivery skipped")
		return nil
	}

	if err := p.sender.Send(ctx, n); err != nil {
		if merr := p.deliveries.MarkFailed(ctx, n.NotificationID, err.Error()); merr != nil {
			entry.WithError(merr).Warn("could not record failed delivery")
		}
		return fmt.Errorf("send %s: %w", n.NotificationID, err)
	}
	if err := p.deliveries.MarkDone(ctx, n.NotificationID); err != nil {
		// already sent; a retry would only resend
		entry.WithError(err).Warn("could not record delivery")
	}
	entry.Info("notification delivered")
	return nil
}
