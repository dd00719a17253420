package notify

import (
	"context"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"
)

// Outbox is the subset of Store the relay uses.
type Outbox interface {
	ListPending(ctx context.Context, limit int32) ([]Notification, error)
	MarkDispatched(ctx context.Context, id string) error
	IncrementAttempts(ctx context.Context, id string) (int, error)
	MarkFailed(ctx context.Context, id string) error
}

// Publisher sends one message to the delivery queue.
type Publisher interface {
	Publish(ctx context.Context, body string, attributes map[string]string) (string, error)
}

// Relay moves pending outbox rows onto the queue. Publishing is at least once:
// a crash between publish and MarkDispatched republishes, and the worker's
// delivery record absorbs the duplicate.
type Relay struct {
	outbox      Outbox
	pub         Publisher
	maxAttempts int
	log         log.FieldLogger
}

// NewRelay builds a relay that parks a row as FAILED once maxAttempts
// publishes of it have failed.
func NewRelay(outbox Outbox, pub Publisher, maxAttempts int, logger log.FieldLogger) *Relay {
	return &Relay{outbox: outbox, pub: pub, maxAttempts: maxAttempts, log: logger}
}

type RelayResult struct {
	Published int
	Failed    int
	// Parked counts failed rows that hit the attempt cap on this run.
	Parked int
}

// RunOnce relays up to batch rows. Per-row publish failures are counted and
// left pending until the attempt cap; only a failure to read the outbox is
// returned.
func (r *Relay) RunOnce(ctx context.Context, batch int32) (RelayResult, error) {
	var res RelayResult
	pending, err := r.outbox.ListPending(ctx, batch)
	if err != nil {
		return res, err
	}

	for _, n := range pending {
		entry := r.log.WithFields(log.Fields{
			"notification_id": n.NotificationID,
			"event":           n.Event,
		})

		body, err := json.Marshal(n)
		if err != nil {
			entry.WithError(err).Error("marshal notification")
			res.Failed++
			continue
		}
		msgID, err := r.pub.Publish(ctx, string(body), map[string]string{
			"notification_id": n.NotificationID,
			"event":           string(n.Event),
			"recipient_role":  string(n.RecipientRole),
		})
		if err != nil {
			entry.WithError(err).Warn("publish notification failed")
			res.Failed++
			if r.park(ctx, n, entry) {
				res.Parked++
			}
			continue
		}

		if err := r.outbox.MarkDispatched(ctx, n.NotificationID); err != nil {
			if errors.Is(err, ErrNotPending) {
				entry.Debug("notification already dispatched")
			} else {
				entry.WithError(err).Warn("mark dispatched failed")
			}
		}
		res.Published++
		entry.WithField("message_id", msgID).Debug("notification relayed")
	}
	return res, nil
}

// park records a failed publish and gives up on the row at the attempt cap.
func (r *Relay) park(ctx context.Context, n Notification, entry log.FieldLogger) bool {
	attempts, err := r.outbox.IncrementAttempts(ctx, n.NotificationID)
	if err != nil {
		entry.WithError(err).Warn("increment attempts failed")
		return false
	}
	if attempts < r.maxAttempts {
		return false
	}
	if err := r.outbox.MarkFailed(ctx, n.NotificationID); err != nil {
		if !errors.Is(err, ErrNotPending) {
			entry.WithError(err).Warn("park notification failed")
		}
		return false
	}
	entry.WithField("attempts", attempts).Error("notification parked after repeated publish failures")
	return true
}
