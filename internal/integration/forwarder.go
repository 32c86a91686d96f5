package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
	"github.com/fleetdispatch/fleet-dispatch-server/pkg/crypto"
)

const publishTimeout = 5 * time.Second

// mqttClient is the part of mqtt.Client the forwarder uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// MQTTForwarder forwards lifecycle events to an external MQTT broker so
// customer systems can follow their fleet.
type MQTTForwarder struct {
	client mqttClient
	prefix string
	qos    byte
}

// Topic returns the topic an event is forwarded on, for example
// fleet/<tenant>/order/updated.
func Topic(prefix string, tenantID uuid.UUID, t events.Type) string {
	return fmt.Sprintf("%s/%s/%s", prefix, tenantID, strings.ReplaceAll(string(t), ":", "/"))
}

// NewMQTTForwarder creates the broker client and connects. The client keeps
// reconnecting in the background if the broker goes away later.
func NewMQTTForwarder(ctx context.Context, cfg config.MQTTConfig) (*MQTTForwarder, error) {
	suffix, err := crypto.GenerateRandomString(6)
	if err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID + "-" + suffix)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().
			Str("broker", cfg.BrokerURL).
			Msg("MQTT forwarder connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().
			Err(err).
			Str("broker", cfg.BrokerURL).
			Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect mqtt broker: %w", err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		log.Warn().
			Str("broker", cfg.BrokerURL).
			Msg("MQTT broker not reachable yet, retrying in background")
	}

	return newMQTTForwarder(client, cfg), nil
}

func newMQTTForwarder(client mqttClient, cfg config.MQTTConfig) *MQTTForwarder {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "fleet"
	}
	return &MQTTForwarder{client: client, prefix: prefix, qos: cfg.QoS}
}

// Publish hands the event to the MQTT client. The broker acknowledgement is
// awaited in the background and only logged.
func (f *MQTTForwarder) Publish(_ context.Context, e events.Event) error {
	if !f.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt forward %s: not connected", e.Type)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := Topic(f.prefix, e.TenantID, e.Type)
	token := f.client.Publish(topic, f.qos, false, data)

	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Error().
				Str("topic", topic).
				Msg("MQTT publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			log.Error().
				Err(err).
				Str("topic", topic).
				Msg("Failed to publish to MQTT")
			return
		}
		log.Debug().
			Str("topic", topic).
			Msg("Event forwarded to MQTT")
	}()

	return nil
}

// Close disconnects from the broker, giving in-flight messages 250ms.
func (f *MQTTForwarder) Close() {
	f.client.Disconnect(250)
	log.Info().Msg("MQTT forwarder disconnected")
}
