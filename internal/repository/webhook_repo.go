package repository

import (
	"context"
	"fmt"

	"github.com/timmy/prodimport/internal/domain"
	"gorm.io/gorm"
)

// WebhookRepository handles webhook subscription persistence.
type WebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new WebhookRepository.
func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create inserts a new webhook.
func (r *WebhookRepository) Create(ctx context.Context, hook *domain.Webhook) error {
	if err := r.db.WithContext(ctx).Create(hook).Error; err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// Get retrieves a webhook by ID.
func (r *WebhookRepository) Get(ctx context.Context, id uint) (*domain.Webhook, error) {
	var hook domain.Webhook
	if err := r.db.WithContext(ctx).First(&hook, id).Error; err != nil {
		return nil, translate(err)
	}
	return &hook, nil
}

// List returns all webhooks ordered by ID.
func (r *WebhookRepository) List(ctx context.Context) ([]domain.Webhook, error) {
	var hooks []domain.Webhook
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return hooks, nil
}

// Update saves all fields of an existing webhook.
func (r *WebhookRepository) Update(ctx context.Context, hook *domain.Webhook) error {
	return r.db.WithContext(ctx).Save(hook).Error
}

// Delete removes a webhook by ID.
func (r *WebhookRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.Webhook{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveByEvent returns active webhooks subscribed to event.
func (r *WebhookRepository) ListActiveByEvent(ctx context.Context, event domain.EventType) ([]domain.Webhook, error) {
	var hooks []domain.Webhook
	if err := r.db.WithContext(ctx).
		Where("event_type = ? AND is_active = ?", event, true).
		Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("failed to list webhooks for %s: %w", event, err)
	}
	return hooks, nil
}
