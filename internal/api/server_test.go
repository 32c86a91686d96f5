package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/metrics"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage/storetest"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *storage.SQLStore
	hub     *events.Hub
}

func newTestServer(t *testing.T, configure func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.JWT.Secret = "test-secret"
	cfg.RateLimit.Enabled = false
	if configure != nil {
		configure(cfg)
	}

	store := storetest.NewStore(t)
	authSvc, err := auth.NewService(store, auth.NewJWTManager(&cfg.JWT))
	require.NoError(t, err)

	m := metrics.New()
	hub := events.NewHub(cfg.Realtime.SubscriberBuffer, m)
	svc := dispatch.NewService(store, hub, dispatch.Options{}, m)

	s := NewRESTServer(cfg, Deps{Store: store, Auth: authSvc, Dispatch: svc, Metrics: m})
	return &testServer{t: t, handler: s.Handler(), store: store, hub: hub}
}

func (ts *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func (ts *testServer) login(path string, body map[string]string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, path, "", body)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decodeBody(ts.t, rec)["token"].(string)
	require.NotEmpty(ts.t, token)
	return token
}

// staff creates a tenant with an admin and returns the admin's token.
func (ts *testServer) staff(subdomain string) (*models.Tenant, string) {
	ts.t.Helper()
	tenant := storetest.Tenant(ts.t, ts.store, subdomain)
	user := storetest.User(ts.t, ts.store, tenant.ID, "admin@"+subdomain+".com")
	return tenant, ts.login("/auth/login", map[string]string{"email": user.Email, "password": storetest.Password})
}

func (ts *testServer) createOrder(token string, tenant *models.Tenant) map[string]interface{} {
	ts.t.Helper()
	pickup := storetest.Location(ts.t, ts.store, tenant.ID, "Port of Casablanca")
	delivery := storetest.Location(ts.t, ts.store, tenant.ID, "Tangier Med")

	rec := ts.do(http.MethodPost, "/orders", token, map[string]interface{}{
		"pickupLocationId":   pickup.ID,
		"deliveryLocationId": delivery.ID,
		"notes":              "fragile",
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(ts.t, rec)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, nil)
	tenant := storetest.Tenant(t, ts.store, "marinemaroc")
	storetest.User(t, ts.store, tenant.ID, "admin@marinemaroc.com")

	t.Run("missing password", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "admin@marinemaroc.com"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Validation failed", body["error"])
		assert.NotEmpty(t, body["details"])
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "admin@marinemaroc.com",
			"password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid credentials", decodeBody(t, rec)["error"])
	})

	t.Run("success", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "admin@marinemaroc.com",
			"password": storetest.Password,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["token"])
		assert.Equal(t, "user", body["subjectType"])

		user := body["user"].(map[string]interface{})
		assert.Equal(t, "admin@marinemaroc.com", user["email"])
		assert.NotContains(t, user, "passwordHash")
		assert.NotContains(t, user, "password_hash")
	})
}

func TestMe(t *testing.T) {
	ts := newTestServer(t, nil)
	tenant, token := ts.staff("marinemaroc")

	rec := ts.do(http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decodeBody(t, rec)["error"])

	rec = ts.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "user", body["subjectType"])
	assert.Equal(t, tenant.ID.String(), body["tenantId"])
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	tenant, token := ts.staff("marinemaroc")
	driver := storetest.Driver(t, ts.store, tenant.ID, "Youssef", "+212600000001")
	vehicle := storetest.Vehicle(t, ts.store, tenant.ID, "12345-A-6")

	order := ts.createOrder(token, tenant)
	assert.Equal(t, "new", order["status"])
	assert.Regexp(t, `^ORD-\d{4}-\d{4}$`, order["orderNumber"])
	id := order["id"].(string)

	rec := ts.do(http.MethodPost, "/orders/"+id+"/assign", token, map[string]interface{}{
		"driverId":  driver.ID,
		"vehicleId": vehicle.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "assigned", decodeBody(t, rec)["status"])

	driverToken := ts.login("/auth/driver/login", map[string]string{
		"phone":    driver.Phone,
		"password": storetest.Password,
	})

	rec = ts.do(http.MethodPost, "/orders/"+id+"/start", driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in_progress", decodeBody(t, rec)["status"])

	rec = ts.do(http.MethodPost, "/orders/"+id+"/complete", driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "completed", body["status"])
	assert.NotNil(t, body["completedAt"])

	rec = ts.do(http.MethodGet, "/drivers/"+driver.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "available", decodeBody(t, rec)["status"])

	// starting a completed order is a conflict
	rec = ts.do(http.MethodPost, "/orders/"+id+"/start", driverToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTenantIsolationOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	tenantA, tokenA := ts.staff("marinemaroc")
	_, tokenB := ts.staff("atlas")

	order := ts.createOrder(tokenA, tenantA)
	path := "/orders/" + order["id"].(string)

	for _, tc := range []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, path, nil},
		{http.MethodPatch, path, map[string]string{"notes": "hijacked"}},
		{http.MethodDelete, path, nil},
		{http.MethodPost, path + "/cancel", nil},
	} {
		rec := ts.do(tc.method, tc.path, tokenB, tc.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec := ts.do(http.MethodGet, "/orders", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["data"])

	rec = ts.do(http.MethodGet, path, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fragile", decodeBody(t, rec)["notes"])
}

func TestDeletedOrderStaysAuditable(t *testing.T) {
	ts := newTestServer(t, nil)
	tenant, token := ts.staff("marinemaroc")
	order := ts.createOrder(token, tenant)
	path := "/orders/" + order["id"].(string)

	rec := ts.do(http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order deleted successfully", decodeBody(t, rec)["message"])

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, path, token, nil).Code)

	rec = ts.do(http.MethodGet, path+"/audit", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decodeBody(t, rec)["deletedAt"])
}

func TestTrackingPointsRequireDriver(t *testing.T) {
	ts := newTestServer(t, nil)
	tenant, token := ts.staff("marinemaroc")
	driver := storetest.Driver(t, ts.store, tenant.ID, "Youssef", "+212600000001")
	point := map[string]float64{"latitude": 33.5731, "longitude": -7.5898}

	rec := ts.do(http.MethodPost, "/tracking/points", token, point)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	driverToken := ts.login("/auth/login", map[string]string{
		"phone":    driver.Phone,
		"password": storetest.Password,
	})

	rec = ts.do(http.MethodPost, "/tracking/points", driverToken, map[string]float64{"latitude": 91, "longitude": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/tracking/points", driverToken, point)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// tracking reads are staff only
	rec = ts.do(http.MethodGet, "/tracking/vehicles/positions", driverToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/tracking/vehicles/"+driver.ID.String()+"/history?hours=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = ts.do(http.MethodGet, "/drivers/"+driver.ID.String()+"/location", driverToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decodeBody(t, rec)["data"])
}

func TestDriverCannotUseStaffRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	tenant, _ := ts.staff("marinemaroc")
	driver := storetest.Driver(t, ts.store, tenant.ID, "Youssef", "+212600000001")
	driverToken := ts.login("/auth/driver/login", map[string]string{
		"phone":    driver.Phone,
		"password": storetest.Password,
	})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/orders"},
		{http.MethodGet, "/drivers"},
		{http.MethodGet, "/vehicles"},
		{http.MethodPost, "/locations"},
	} {
		rec := ts.do(tc.method, tc.path, driverToken, map[string]string{})
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec := ts.do(http.MethodGet, "/locations", driverToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPagination(t *testing.T) {
	ts := newTestServer(t, nil)
	tenant, token := ts.staff("marinemaroc")
	for _, name := range []string{"A", "B", "C"} {
		storetest.Location(t, ts.store, tenant.ID, name)
	}

	rec := ts.do(http.MethodGet, "/locations?page=2&limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Len(t, body["data"], 1)

	page := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 2, page["page"])
	assert.EqualValues(t, 2, page["limit"])
	assert.EqualValues(t, 3, page["total"])
	assert.EqualValues(t, 2, page["totalPages"])
	assert.Equal(t, false, page["hasNext"])
	assert.Equal(t, true, page["hasPrev"])

	rec = ts.do(http.MethodGet, "/locations?limit=1000", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// a page whose offset would overflow is rejected, not wrapped to page one
	rec = ts.do(http.MethodGet, "/locations?page=9223372036854775807&limit=100", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodGet, "/locations?page="+strconv.Itoa(maxPage+1), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/locations?page="+strconv.Itoa(maxPage)+"&limit=100", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decodeBody(t, rec)["data"])
}

func TestValidationDetails(t *testing.T) {
	ts := newTestServer(t, nil)
	_, token := ts.staff("marinemaroc")

	rec := ts.do(http.MethodPost, "/locations", token, map[string]interface{}{
		"name":     "Dock 4",
		"latitude": 120,
		"type":     "lighthouse",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	fields := make([]string, 0, len(body.Details))
	for _, d := range body.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"latitude", "type"}, fields)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", decodeBody(t, rec)["error"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["database"])
}

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.Auth = config.RateRule{Requests: 2, Window: time.Minute}
	})
	creds := map[string]string{"email": "nobody@example.com", "password": "x"}

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/auth/login", "", creds).Code)
	}

	rec := ts.do(http.MethodPost, "/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other route classes have their own budget
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "", nil).Code)
}

func TestPanicRecovery(t *testing.T) {
	s := &RESTServer{config: config.Default()}

	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["error"])
}
