package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	dropped     atomic.Int64
	subscribers atomic.Int64
}

func (m *countingMetrics) EventDropped()                { m.dropped.Add(1) }
func (m *countingMetrics) SubscribersChanged(delta int) { m.subscribers.Add(int64(delta)) }

func mustEvent(t *testing.T, typ Type, tenantID uuid.UUID) Event {
	t.Helper()
	e, err := New(typ, tenantID, map[string]string{"orderNumber": "ORD-2026-0001"})
	require.NoError(t, err)
	return e
}

func TestHubDeliversToTenantOnly(t *testing.T) {
	t.Parallel()

	hub := NewHub(4, nil)
	t1, t2 := uuid.New(), uuid.New()

	a := hub.Subscribe(t1)
	defer a.Close()
	b := hub.Subscribe(t2)
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), mustEvent(t, OrderCreated, t1)))

	select {
	case e := <-a.C:
		assert.Equal(t, OrderCreated, e.Type)
		assert.JSONEq(t, `{"orderNumber":"ORD-2026-0001"}`, string(e.Payload))
	default:
		t.Fatal("subscriber of the event's tenant got nothing")
	}

	select {
	case e := <-b.C:
		t.Fatalf("subscriber of another tenant received %s", e.Type)
	default:
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	metrics := &countingMetrics{}
	hub := NewHub(1, metrics)
	tenantID := uuid.New()
	sub := hub.Subscribe(tenantID)
	defer sub.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(context.Background(), mustEvent(t, OrderUpdated, tenantID)))
	}

	assert.Len(t, sub.C, 1)
	assert.Equal(t, int64(2), metrics.dropped.Load())
}

func TestSubscriptionClose(t *testing.T) {
	t.Parallel()

	metrics := &countingMetrics{}
	hub := NewHub(2, metrics)
	tenantID := uuid.New()

	sub := hub.Subscribe(tenantID)
	assert.Equal(t, 1, hub.Subscribers(tenantID))
	assert.Equal(t, int64(1), metrics.subscribers.Load())

	sub.Close()
	sub.Close()

	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers(tenantID))
	assert.Equal(t, int64(0), metrics.subscribers.Load())

	// Publishing after close must not panic on the closed channel.
	require.NoError(t, hub.Publish(context.Background(), mustEvent(t, DriverUpdated, tenantID)))
}

func TestMultiPublisher(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ok := PublisherFunc(func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})
	boom := errors.New("broker down")
	failing := PublisherFunc(func(context.Context, Event) error {
		calls.Add(1)
		return boom
	})

	m := Multi(failing, nil, ok)
	assert.Len(t, m, 2)

	err := m.Publish(context.Background(), mustEvent(t, VehicleCreated, uuid.New()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNATSRelayHandleEvent(t *testing.T) {
	t.Parallel()

	hub := NewHub(4, nil)
	tenantID := uuid.New()
	sub := hub.Subscribe(tenantID)
	defer sub.Close()

	relay := NewNATSRelay(nil, "fleet", hub)

	e := mustEvent(t, OrderUpdated, uuid.New())
	data, err := json.Marshal(e)
	require.NoError(t, err)

	relay.handleEvent(&nats.Msg{Subject: Subject("fleet", tenantID), Data: data})

	select {
	case got := <-sub.C:
		assert.Equal(t, tenantID, got.TenantID)
		assert.Equal(t, OrderUpdated, got.Type)
	default:
		t.Fatal("relayed event not delivered")
	}

	// Garbage is logged and dropped.
	relay.handleEvent(&nats.Msg{Subject: "fleet.not-a-uuid.events", Data: data})
	relay.handleEvent(&nats.Msg{Subject: Subject("fleet", tenantID), Data: []byte("{")})
	assert.Len(t, sub.C, 0)
}

func TestSubject(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("2f1c4a4e-8d0e-4b8e-9a57-3f6f1d2c9b10")
	assert.Equal(t, "fleet.2f1c4a4e-8d0e-4b8e-9a57-3f6f1d2c9b10.events", Subject("fleet", id))
}
