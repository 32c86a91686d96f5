// Package events carries lifecycle notifications from the dispatch service
// to connected subscribers of the same tenant.
//
// Delivery is best effort everywhere: publishers never block the request that
// produced the event and never report delivery failure to it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle event.
type Type string

const (
	OrderCreated   Type = "order:created"
	OrderUpdated   Type = "order:updated"
	DriverCreated  Type = "driver:created"
	DriverUpdated  Type = "driver:updated"
	VehicleCreated Type = "vehicle:created"
	VehicleUpdated Type = "vehicle:updated"
	DriverLocation Type = "driver:location"
)

// Event is one notification. Payload is the JSON of the full resource.
type Event struct {
	Type       Type            `json:"type"`
	TenantID   uuid.UUID       `json:"tenantId"`
	Payload    json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// New builds an event for tenantID carrying resource as its payload.
func New(t Type, tenantID uuid.UUID, resource interface{}) (Event, error) {
	payload, err := json.Marshal(resource)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		Type:       t,
		TenantID:   tenantID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// Publisher delivers events. Implementations must not block on slow
// consumers; an error only reports that the event could not be handed off.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
