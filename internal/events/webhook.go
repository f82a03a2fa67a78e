package events

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/prodimport/internal/config"
	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/logger"
)

// SecretHeader carries a webhook's shared secret.
const SecretHeader = "X-Webhook-Secret"

// WebhookLister returns the subscribers of an event.
type WebhookLister interface {
	ListActiveByEvent(ctx context.Context, event domain.EventType) ([]domain.Webhook, error)
}

// DeliveryResult describes one POST to one webhook.
type DeliveryResult struct {
	WebhookID    uint          `json:"webhook_id"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseTime time.Duration `json:"-"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}

// WebhookDispatcher delivers events to subscribed webhooks in the background.
type WebhookDispatcher struct {
	hooks  WebhookLister
	client *resty.Client
	slots  chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewWebhookDispatcher creates a dispatcher with the configured timeout and
// concurrency limit.
func NewWebhookDispatcher(hooks WebhookLister, cfg config.WebhookConfig) *WebhookDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &WebhookDispatcher{
		hooks:  hooks,
		client: client,
		slots:  make(chan struct{}, workers),
		now:    time.Now,
	}
}

// Publish fans the event out to every active subscriber asynchronously.
func (d *WebhookDispatcher) Publish(ctx context.Context, event domain.EventType, data interface{}) {
	ctx = logger.SetComponent(context.WithoutCancel(ctx), "webhook")
	envelope := Envelope{Event: event, Timestamp: d.now().UTC(), Data: data}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		hooks, err := d.hooks.ListActiveByEvent(ctx, event)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Errorf("Failed to load webhooks for %s", event)
			return
		}

		var wg sync.WaitGroup
		for _, hook := range hooks {
			d.slots <- struct{}{}
			wg.Add(1)
			go func() {
				defer func() {
					<-d.slots
					wg.Done()
				}()
				d.Deliver(ctx, hook, envelope)
			}()
		}
		wg.Wait()
	}()
}

// Deliver POSTs body to hook synchronously and logs the outcome.
func (d *WebhookDispatcher) Deliver(ctx context.Context, hook domain.Webhook, body interface{}) DeliveryResult {
	req := d.client.R().SetContext(ctx).SetBody(body)
	if hook.SecretKey != "" {
		req.SetHeader(SecretHeader, hook.SecretKey)
	}

	start := time.Now()
	resp, err := req.Post(hook.URL)
	result := DeliveryResult{WebhookID: hook.ID, ResponseTime: time.Since(start)}

	entry := logger.With(logger.Fields{"webhook_id": hook.ID, "url": hook.URL}).WithDuration(start)
	if err != nil {
		result.Error = err.Error()
		entry.Error(ctx, "Failed to send webhook: %v", err)
		return result
	}

	result.StatusCode = resp.StatusCode()
	result.Success = isSuccess(result.StatusCode)
	entry = entry.With(logger.Fields{logger.FieldStatus: result.StatusCode})
	if result.Success {
		entry.Info(ctx, "Webhook sent")
	} else {
		entry.Warn(ctx, "Webhook rejected with status %d", result.StatusCode)
	}
	return result
}

// SendTest delivers a test envelope to hook and waits for the response.
func (d *WebhookDispatcher) SendTest(ctx context.Context, hook domain.Webhook) (DeliveryResult, error) {
	result := d.Deliver(ctx, hook, map[string]interface{}{
		"event":     "test",
		"message":   "This is a test webhook",
		"timestamp": d.now().UTC().Format(time.RFC3339),
	})
	if result.Error != "" {
		return result, fmt.Errorf("webhook test failed: %s", result.Error)
	}
	return result, nil
}

// Wait blocks until all in-flight deliveries finish.
func (d *WebhookDispatcher) Wait() {
	d.wg.Wait()
}

func isSuccess(code int) bool {
	switch code {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return true
	}
	return false
}
