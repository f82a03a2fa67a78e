package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/events"
	"github.com/timmy/prodimport/internal/repository"
)

// WebhookInput is the writable part of a webhook subscription.
type WebhookInput struct {
	URL       string           `json:"url"`
	EventType domain.EventType `json:"event_type"`
	IsActive  *bool            `json:"is_active"`
	SecretKey string           `json:"secret_key"`
}

func (in WebhookInput) validate() error {
	u, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidInput)
	}
	if len(in.URL) > 500 {
		return fmt.Errorf("%w: url must be at most 500 characters", ErrInvalidInput)
	}
	if !in.EventType.IsValid() {
		return fmt.Errorf("%w: unknown event_type %q", ErrInvalidInput, in.EventType)
	}
	if len(in.SecretKey) > 100 {
		return fmt.Errorf("%w: secret_key must be at most 100 characters", ErrInvalidInput)
	}
	return nil
}

// WebhookTester sends a synchronous test delivery.
type WebhookTester interface {
	SendTest(ctx context.Context, hook domain.Webhook) (events.DeliveryResult, error)
}

// WebhookService manages webhook subscriptions.
type WebhookService struct {
	hooks  *repository.WebhookRepository
	tester WebhookTester
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(hooks *repository.WebhookRepository, tester WebhookTester) *WebhookService {
	return &WebhookService{hooks: hooks, tester: tester}
}

func (s *WebhookService) List(ctx context.Context) ([]domain.Webhook, error) {
	return s.hooks.List(ctx)
}

func (s *WebhookService) Get(ctx context.Context, id uint) (*domain.Webhook, error) {
	hook, err := s.hooks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return hook, nil
}

func (s *WebhookService) Create(ctx context.Context, in WebhookInput) (*domain.Webhook, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	hook := &domain.Webhook{
		URL:       strings.TrimSpace(in.URL),
		EventType: in.EventType,
		IsActive:  in.IsActive == nil || *in.IsActive,
		SecretKey: in.SecretKey,
	}
	if err := s.hooks.Create(ctx, hook); err != nil {
		return nil, err
	}
	return hook, nil
}

func (s *WebhookService) Update(ctx context.Context, id uint, in WebhookInput) (*domain.Webhook, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	hook, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	hook.URL = strings.TrimSpace(in.URL)
	hook.EventType = in.EventType
	hook.SecretKey = in.SecretKey
	if in.IsActive != nil {
		hook.IsActive = *in.IsActive
	}
	if err := s.hooks.Update(ctx, hook); err != nil {
		return nil, err
	}
	return hook, nil
}

func (s *WebhookService) Delete(ctx context.Context, id uint) error {
	if err := s.hooks.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Test sends a test payload to the webhook and reports the response.
func (s *WebhookService) Test(ctx context.Context, id uint) (events.DeliveryResult, error) {
	hook, err := s.Get(ctx, id)
	if err != nil {
		return events.DeliveryResult{}, err
	}
	return s.tester.SendTest(ctx, *hook)
}
