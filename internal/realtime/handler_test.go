package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
)

func withPrincipal(p auth.Principal, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func TestStreamsTenantEvents(t *testing.T) {
	t.Parallel()

	hub := events.NewHub(8, nil)
	tenantID := uuid.New()
	p := auth.Principal{SubjectID: uuid.New(), TenantID: tenantID, Type: auth.SubjectUser}

	h := NewHandler(hub, config.RealtimeConfig{WriteTimeout: time.Second, PingInterval: time.Minute}, nil)
	srv := httptest.NewServer(withPrincipal(p, h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.Subscribers(tenantID) == 1 }, 2*time.Second, 10*time.Millisecond)

	other, err := events.New(events.OrderCreated, uuid.New(), map[string]string{"orderNumber": "ORD-2026-0009"})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(ctx, other))

	e, err := events.New(events.OrderUpdated, tenantID, map[string]string{"status": "assigned"})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(ctx, e))

	var got struct {
		Type       string          `json:"type"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, "order:updated", got.Type)
	assert.JSONEq(t, `{"status":"assigned"}`, string(got.Data))
	assert.False(t, got.OccurredAt.IsZero())

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return hub.Subscribers(tenantID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRejectsAnonymous(t *testing.T) {
	t.Parallel()

	h := NewHandler(events.NewHub(1, nil), config.RealtimeConfig{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
}

func TestOriginHosts(t *testing.T) {
	t.Parallel()

	got := originHosts([]string{"https://app.example.com/", "http://localhost:3000", "*", ""})
	assert.Equal(t, []string{"app.example.com", "localhost:3000", "*"}, got)
}
