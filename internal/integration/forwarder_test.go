package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
)

type doneToken struct{ done chan struct{} }

func newDoneToken() *doneToken {
	ch := make(chan struct{})
	close(ch)
	return &doneToken{done: ch}
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return nil }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newDoneToken()
}

func (c *fakeClient) IsConnectionOpen() bool { return c.connected }
func (c *fakeClient) Disconnect(uint)        { c.connected = false }

func TestTopic(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("0b7d1c1e-5f3a-4a57-9e43-6a3c2f3c1d20")
	tests := []struct {
		typ  events.Type
		want string
	}{
		{events.OrderCreated, "fleet/0b7d1c1e-5f3a-4a57-9e43-6a3c2f3c1d20/order/created"},
		{events.DriverLocation, "fleet/0b7d1c1e-5f3a-4a57-9e43-6a3c2f3c1d20/driver/location"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Topic("fleet", id, tt.typ))
	}
}

func TestForwarderPublish(t *testing.T) {
	t.Parallel()

	client := &fakeClient{connected: true}
	f := newMQTTForwarder(client, config.MQTTConfig{TopicPrefix: "/acme/", QoS: 1})

	tenantID := uuid.New()
	e, err := events.New(events.VehicleUpdated, tenantID, map[string]string{"plateNumber": "12345-A-6"})
	require.NoError(t, err)

	require.NoError(t, f.Publish(context.Background(), e))

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, Topic("acme", tenantID, events.VehicleUpdated), msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, "vehicle:updated", body["type"])
	assert.Equal(t, tenantID.String(), body["tenantId"])
}

func TestForwarderNotConnected(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	f := newMQTTForwarder(client, config.MQTTConfig{})

	e, err := events.New(events.OrderCreated, uuid.New(), struct{}{})
	require.NoError(t, err)

	assert.Error(t, f.Publish(context.Background(), e))
	assert.Empty(t, client.messages)
}
