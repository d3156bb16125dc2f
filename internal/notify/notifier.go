package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// Event types emitted by the ledger and redemption engine.
const (
	EventPointsCredited      = "points_credited"
	EventRedemptionCreated   = "redemption_created"
	EventRedemptionDelivered = "redemption_delivered"
	EventRedemptionCancelled = "redemption_cancelled"
)

// Notifier delivers best-effort event payloads to an account. Delivery
// failures never roll back the originating ledger operation; they are only
// logged.
type Notifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, eventType string, payload any)
}

// InsertNotificationFunc enqueues a send_notification job. Provided by main
// using river.Client.Insert.
type InsertNotificationFunc func(ctx context.Context, args SendNotificationArgs) error

// QueueNotifier implements Notifier by enqueueing a background delivery job.
type QueueNotifier struct {
	insert InsertNotificationFunc
	log    *slog.Logger
}

func NewQueueNotifier(insert InsertNotificationFunc, log *slog.Logger) *QueueNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &QueueNotifier{insert: insert, log: log}
}

var _ Notifier = (*QueueNotifier)(nil)

func (n *QueueNotifier) Notify(ctx context.Context, accountID uuid.UUID, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Warn("notification payload not serializable", "event", eventType, "error", err)
		return
	}
	err = n.insert(ctx, SendNotificationArgs{
		AccountID: accountID,
		EventType: eventType,
		Payload:   body,
	})
	if err != nil {
		n.log.Warn("notification enqueue failed", "event", eventType, "account_id", accountID, "error", err)
	}
}
