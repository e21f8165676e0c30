package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arnavshah/shift-offer-api/pkg/models"
)

// Sender is a channel adapter: it performs one delivery attempt and reports
// success or failure. Real gateways (push service, mail relay, SMS provider)
// live behind this interface.
type Sender interface {
	Send(ctx context.Context, job *models.NotificationJob) error
}

// WebhookSender posts the job as JSON to a gateway endpoint. Push delivery
// in deployments rides the hospital's existing webhook relay.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

// NewWebhookSender builds a sender with a bounded request timeout.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookSender) Send(ctx context.Context, job *models.NotificationJob) error {
	body, err := json.Marshal(map[string]string{
		"recipient": job.Recipient,
		"event":     job.Event,
		"message":   job.Payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook send: gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes the message to the log instead of a gateway. It stands in
// for email and SMS in environments without provider credentials.
type LogSender struct {
	Logger *zap.Logger
}

func (l *LogSender) Send(_ context.Context, job *models.NotificationJob) error {
	l.Logger.Info("notification delivered (log channel)",
		zap.String("channel", string(job.Channel)),
		zap.String("recipient", job.Recipient),
		zap.String("event", job.Event),
		zap.String("message", job.Payload))
	return nil
}
