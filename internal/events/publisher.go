package events

import (
	"context"
	"time"

	"github.com/timmy/prodimport/internal/domain"
)

// Publisher announces catalog events. Publish never blocks on delivery and
// never reports delivery failures to the caller.
type Publisher interface {
	Publish(ctx context.Context, event domain.EventType, data interface{})
}

// Envelope is the JSON body posted to subscribers.
type Envelope struct {
	Event     domain.EventType `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
	Data      interface{}      `json:"data,omitempty"`
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, domain.EventType, interface{}) {}
