package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/pointcard/backend/internal/models"
)

type SendNotificationArgs struct {
	AccountID uuid.UUID       `json:"account_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func (SendNotificationArgs) Kind() string { return "send_notification" }

// AccountGetter resolves the target account's webhook URL.
type AccountGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// SendNotificationWorker POSTs the event envelope to the account's webhook.
// Delivery is best-effort: a failed POST is logged and the job completes, so
// River never retries on behalf of the ledger.
type SendNotificationWorker struct {
	river.WorkerDefaults[SendNotificationArgs]
	accounts   AccountGetter
	httpClient *http.Client
	log        *slog.Logger
}

func NewSendNotificationWorker(accounts AccountGetter, log *slog.Logger) *SendNotificationWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SendNotificationWorker{
		accounts:   accounts,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

type notificationEnvelope struct {
	AccountID uuid.UUID       `json:"account_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	SentAt    time.Time       `json:"sent_at"`
}

func (w *SendNotificationWorker) Work(ctx context.Context, job *river.Job[SendNotificationArgs]) error {
	args := job.Args

	acc, err := w.accounts.GetByID(ctx, args.AccountID)
	if err != nil {
		return err
	}
	if acc == nil || acc.WebhookURL == nil || *acc.WebhookURL == "" {
		w.log.Debug("no webhook registered, dropping notification", "account_id", args.AccountID, "event", args.EventType)
		return nil
	}

	body, err := json.Marshal(notificationEnvelope{
		AccountID: args.AccountID,
		EventType: args.EventType,
		Payload:   args.Payload,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *acc.WebhookURL, bytes.NewReader(body))
	if err != nil {
		w.log.Warn("notification request build failed", "event", args.EventType, "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.Warn("notification delivery failed", "event", args.EventType, "account_id", args.AccountID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	delivered := resp.StatusCode >= 200 && resp.StatusCode < 300
	w.log.Info("notification sent", "event", args.EventType, "account_id", args.AccountID, "delivered", delivered, "status", resp.StatusCode)
	return nil
}
