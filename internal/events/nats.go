package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Subject returns the NATS subject carrying tenantID's events.
func Subject(prefix string, tenantID uuid.UUID) string {
	return fmt.Sprintf("%s.%s.events", prefix, tenantID)
}

// NATSPublisher publishes events to NATS so every server replica can relay
// them to its own subscribers.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a NATS publisher
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Publish publishes e on the tenant's subject. The client buffers the
// message, so this does not wait for the server.
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(Subject(p.prefix, e.TenantID), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// NATSRelay subscribes to every tenant's event subject and feeds the local
// publisher, normally the Hub.
type NATSRelay struct {
	nc     *nats.Conn
	prefix string
	local  Publisher
	sub    *nats.Subscription
}

// NewNATSRelay creates a NATS relay
func NewNATSRelay(nc *nats.Conn, prefix string, local Publisher) *NATSRelay {
	return &NATSRelay{nc: nc, prefix: prefix, local: local}
}

// Start subscribes and blocks until ctx is done.
func (r *NATSRelay) Start(ctx context.Context) error {
	sub, err := r.nc.Subscribe(r.prefix+".*.events", r.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	r.sub = sub

	log.Info().
		Str("subject", sub.Subject).
		Msg("NATS event relay started")

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		log.Warn().Err(err).Msg("Failed to unsubscribe event relay")
	}
	return nil
}

// handleEvent handles one relayed event. The tenant in the subject wins over
// the one in the body.
func (r *NATSRelay) handleEvent(msg *nats.Msg) {
	parts := strings.Split(msg.Subject, ".")
	if len(parts) < 3 {
		return
	}
	tenantID, err := uuid.Parse(parts[len(parts)-2])
	if err != nil {
		log.Warn().Str("subject", msg.Subject).Msg("Event subject has no tenant id")
		return
	}

	var e Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal event")
		return
	}
	e.TenantID = tenantID

	if err := r.local.Publish(context.Background(), e); err != nil {
		log.Warn().Err(err).Str("type", string(e.Type)).Msg("Failed to relay event")
	}
}
