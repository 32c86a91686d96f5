package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

const defaultRequestTimeout = 30 * time.Second

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit(s.limits.auth, "too many login attempts, try again later"))
			r.Post("/login", s.HandleLogin)
			r.Post("/driver/login", s.HandleDriverLogin)
		})
		r.With(s.authMiddleware).Get("/me", s.HandleMe)
	})

	// Realtime stream. Long lived, so it is kept out of the request timeout.
	if s.realtime != nil {
		r.With(s.authenticate(true)).Method(http.MethodGet, "/realtime", s.realtime)
	}

	timeout := s.config.API.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.rateLimit(s.limits.api, "too many requests, try again later"))
		r.Use(middleware.Timeout(timeout))

		create := s.rateLimit(s.limits.create, "too many create requests, try again later")
		managers := s.requireStaff(models.RoleAdmin, models.RoleManager)
		staff := s.requireStaff()

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.HandleListOrders)
			r.With(staff, create).Post("/", s.HandleCreateOrder)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetOrder)
				r.With(managers).Get("/audit", s.HandleGetOrderAudit)
				r.With(staff).Put("/", s.HandleUpdateOrder)
				r.With(staff).Patch("/", s.HandleUpdateOrder)
				r.With(managers).Delete("/", s.HandleDeleteOrder)
				r.With(staff).Post("/assign", s.HandleAssignOrder)
				r.Post("/start", s.orderAction(startOrder))
				r.Post("/complete", s.orderAction(completeOrder))
				r.With(staff).Post("/cancel", s.orderAction(cancelOrder))
			})
		})

		// Drivers
		r.Route("/drivers", func(r chi.Router) {
			r.With(staff).Get("/", s.HandleListDrivers)
			r.With(staff, create).Post("/", s.HandleCreateDriver)
			r.With(staff).Get("/available", s.HandleListAvailableDrivers)
			r.Route("/{id}", func(r chi.Router) {
				r.With(staff).Get("/", s.HandleGetDriver)
				r.With(staff).Put("/", s.HandleUpdateDriver)
				r.With(staff).Patch("/", s.HandleUpdateDriver)
				r.With(managers).Delete("/", s.HandleDeleteDriver)
				r.Get("/location", s.HandleGetDriverLocation)
			})
		})

		// Vehicles
		r.Route("/vehicles", func(r chi.Router) {
			r.Use(staff)
			r.Get("/", s.HandleListVehicles)
			r.With(create).Post("/", s.HandleCreateVehicle)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetVehicle)
				r.Put("/", s.HandleUpdateVehicle)
				r.Patch("/", s.HandleUpdateVehicle)
				r.With(managers).Delete("/", s.HandleDeleteVehicle)
			})
		})

		// Locations
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", s.HandleListLocations)
			r.With(staff, create).Post("/", s.HandleCreateLocation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetLocation)
				r.With(staff).Put("/", s.HandleUpdateLocation)
				r.With(staff).Patch("/", s.HandleUpdateLocation)
				r.With(managers).Delete("/", s.HandleDeleteLocation)
			})
		})

		// Tracking
		r.Route("/tracking", func(r chi.Router) {
			r.With(s.requireDriver).Post("/points", s.HandleRecordTrackingPoint)
			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Get("/vehicles/positions", s.HandleVehiclePositions)
				r.Get("/vehicles/{id}/history", s.HandleTrackingHistory)
				r.Get("/orders/active", s.HandleActiveOrders)
			})
		})

		// Proof of delivery
		r.Route("/pod/orders/{orderId}", func(r chi.Router) {
			r.Get("/", s.HandleGetProofOfDelivery)
			r.Post("/", s.HandleSaveProofOfDelivery)
		})

		// Messages
		r.Route("/messages", func(r chi.Router) {
			r.Get("/orders/{orderId}", s.HandleListMessages)
			r.Post("/orders/{orderId}", s.HandleSendMessage)
			r.Put("/{id}/read", s.HandleMarkMessageRead)
		})
	})
}
