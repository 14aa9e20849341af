package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/clearance"
)

// Event types.
const (
	EventMessageCreated  = "message.created"
	EventChannelCreated  = "channel.created"
	EventModuleActivated = "module.activated"
	EventMemberJoined    = "member.joined"
)

// Event is one notification fanned out to a tenant's connected clients.
//
// Recipients narrows delivery to specific users (a channel's members).
// Empty means every connected member at or above MinClearance.
type Event struct {
	Type         string          `json:"type"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	MinClearance clearance.Level `json:"min_clearance"`
	Recipients   []uuid.UUID     `json:"recipients,omitempty"`
	Data         json.RawMessage `json:"data"`
}

// NewEvent marshals data into an Event.
func NewEvent(eventType string, tenantID uuid.UUID, minLevel clearance.Level, recipients []uuid.UUID, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event{
		Type:         eventType,
		TenantID:     tenantID,
		MinClearance: minLevel,
		Recipients:   recipients,
		Data:         raw,
	}, nil
}

// Publisher sends events. Publishing is best-effort: callers publish
// after their transaction commits and log failures.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus is a Publisher that connected clients can also listen to.
type Bus interface {
	Publisher
	// Subscribe streams a tenant's events until ctx is cancelled, then
	// closes the channel.
	Subscribe(ctx context.Context, tenantID uuid.UUID) (<-chan Event, error)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Subscriber is one connected client.
type Subscriber struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Level    clearance.Level
}

// Allowed reports whether ev may be delivered to s.
func (s Subscriber) Allowed(ev Event) bool {
	if ev.TenantID != s.TenantID {
		return false
	}
	if !clearance.HasAccess(s.Level, ev.MinClearance) {
		return false
	}
	if len(ev.Recipients) > 0 && !slices.Contains(ev.Recipients, s.UserID) {
		return false
	}
	return true
}

// ChannelName is the Redis pub/sub channel for a tenant.
func ChannelName(tenantID uuid.UUID) string {
	return "festivo:tenant:" + tenantID.String()
}
