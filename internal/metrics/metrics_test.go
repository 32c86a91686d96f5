package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsRoutePattern(t *testing.T) {
	t.Parallel()

	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/orders/{id}", "404")))
}

func TestDomainCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.OrderTransitioned("assigned")
	m.OrderTransitioned("assigned")
	m.EventPublished("order:updated")
	m.EventDropped()
	m.SubscribersChanged(2)
	m.SubscribersChanged(-1)
	m.RecordAuthAttempt("user", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrderTransitions.WithLabelValues("assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("order:updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("user", "failure")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()

	m := New()
	m.EventDropped()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fleet_events_dropped_total 1"))
}
