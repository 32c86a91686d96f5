// Package realtime streams a tenant's lifecycle events to WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
)

// Subscriber hands out per-tenant event subscriptions. *events.Hub
// implements it.
type Subscriber interface {
	Subscribe(tenantID uuid.UUID) *events.Subscription
}

// frame is the JSON sent for each event.
type frame struct {
	Type       events.Type     `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Handler upgrades authenticated requests to a WebSocket and streams the
// events of the caller's tenant. The principal must already be on the
// request context.
type Handler struct {
	hub            Subscriber
	writeTimeout   time.Duration
	pingInterval   time.Duration
	originPatterns []string
}

// NewHandler creates a realtime handler. Origins listed in allowedOrigins
// may connect from a browser; "*" allows any.
func NewHandler(hub Subscriber, cfg config.RealtimeConfig, allowedOrigins []string) *Handler {
	h := &Handler{
		hub:            hub,
		writeTimeout:   cfg.WriteTimeout,
		pingInterval:   cfg.PingInterval,
		originPatterns: originHosts(allowedOrigins),
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = 5 * time.Second
	}
	if h.pingInterval <= 0 {
		h.pingInterval = 30 * time.Second
	}
	return h
}

// originHosts turns CORS origins into the host patterns the upgrader
// matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o = strings.TrimSuffix(o, "/"); o != "" {
			hosts = append(hosts, o)
		}
	}
	return hosts
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"authentication required"}`))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	sub := h.hub.Subscribe(p.TenantID)
	defer sub.Close()

	logger := log.With().
		Str("tenant_id", p.TenantID.String()).
		Str("subject_id", p.SubjectID.String()).
		Str("subject_type", string(p.Type)).
		Logger()
	logger.Debug().Msg("Realtime subscriber connected")

	// Clients never send data; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	err = h.stream(ctx, conn, sub)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
	default:
		logger.Debug().Err(err).Msg("Realtime subscriber dropped")
		conn.Close(websocket.StatusPolicyViolation, "write failed")
	}
	logger.Debug().Msg("Realtime subscriber disconnected")
}

// stream writes events until ctx ends, the subscription closes or a write
// fails.
func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, sub *events.Subscription) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := wsjson.Write(writeCtx, conn, frame{Type: e.Type, Data: e.Payload, OccurredAt: e.OccurredAt})
			cancel()
			if err != nil {
				return err
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
