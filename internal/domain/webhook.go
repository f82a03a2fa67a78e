package domain

import "time"

// EventType names an outbound notification.
type EventType string

const (
	EventProductImported    EventType = "product_imported"
	EventProductCreated     EventType = "product_created"
	EventProductUpdated     EventType = "product_updated"
	EventProductDeleted     EventType = "product_deleted"
	EventAllProductsDeleted EventType = "all_products_deleted"
)

// EventTypes lists every event a webhook may subscribe to.
var EventTypes = []EventType{
	EventProductImported,
	EventProductCreated,
	EventProductUpdated,
	EventProductDeleted,
	EventAllProductsDeleted,
}

// IsValid reports whether e is a known event type.
func (e EventType) IsValid() bool {
	for _, known := range EventTypes {
		if e == known {
			return true
		}
	}
	return false
}

// Webhook is a subscriber endpoint for one event type.
type Webhook struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	URL       string    `gorm:"type:varchar(500);not null" json:"url"`
	EventType EventType `gorm:"type:varchar(50);not null;index:idx_webhooks_event_type" json:"event_type"`
	IsActive  bool      `gorm:"not null;index:idx_webhooks_is_active" json:"is_active"`
	SecretKey string    `gorm:"type:varchar(100)" json:"secret_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Webhook.
func (Webhook) TableName() string {
	return "webhooks"
}
