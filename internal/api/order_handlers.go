package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
)

// HandleListOrders lists orders newest first. status may repeat or hold a
// comma separated list.
func (s *RESTServer) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var filter storage.OrderFilter
	for _, v := range r.URL.Query()["status"] {
		for _, st := range strings.Split(v, ",") {
			if st = strings.TrimSpace(st); st != "" {
				filter.Statuses = append(filter.Statuses, models.OrderStatus(st))
			}
		}
	}
	if v := r.URL.Query().Get("driverId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, r, apperr.Invalid("driverId", "must be a valid id"))
			return
		}
		filter.DriverID = &id
	}

	orders, total, err := s.dispatch.ListOrders(r.Context(), principal(r), filter, page.storage())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondPage(w, orders, page, total)
}

type createOrderRequest struct {
	PickupLocationID   uuid.UUID              `json:"pickupLocationId" validate:"required"`
	DeliveryLocationID uuid.UUID              `json:"deliveryLocationId" validate:"required"`
	ScheduledAt        *time.Time             `json:"scheduledAt"`
	Notes              string                 `json:"notes" validate:"max=2000"`
	CustomerName       string                 `json:"customerName" validate:"max=255"`
	CustomerPhone      string                 `json:"customerPhone" validate:"max=32"`
	Metadata           map[string]interface{} `json:"metadata"`
}

// HandleCreateOrder creates an order
func (s *RESTServer) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	order, err := s.dispatch.CreateOrder(r.Context(), principal(r), dispatch.OrderInput{
		PickupLocationID:   req.PickupLocationID,
		DeliveryLocationID: req.DeliveryLocationID,
		ScheduledAt:        req.ScheduledAt,
		Notes:              req.Notes,
		CustomerName:       req.CustomerName,
		CustomerPhone:      req.CustomerPhone,
		Metadata:           req.Metadata,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, order)
}

// HandleGetOrder gets an order with its relations
func (s *RESTServer) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	order, err := s.dispatch.GetOrder(r.Context(), principal(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, order)
}

// HandleGetOrderAudit gets an order even after deletion
func (s *RESTServer) HandleGetOrderAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	order, err := s.dispatch.GetOrderForAudit(r.Context(), principal(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, order)
}

// updateOrderRequest distinguishes absent fields from explicit nulls for
// the nullable references.
type updateOrderRequest struct {
	PickupLocationID   *uuid.UUID             `json:"pickupLocationId"`
	DeliveryLocationID *uuid.UUID             `json:"deliveryLocationId"`
	DriverID           optionalID             `json:"driverId"`
	VehicleID          optionalID             `json:"vehicleId"`
	ScheduledAt        optionalTime           `json:"scheduledAt"`
	Notes              *string                `json:"notes" validate:"omitempty,max=2000"`
	CustomerName       *string                `json:"customerName" validate:"omitempty,max=255"`
	CustomerPhone      *string                `json:"customerPhone" validate:"omitempty,max=32"`
	Metadata           map[string]interface{} `json:"metadata"`
	Status             *models.OrderStatus    `json:"status" validate:"omitempty,oneof=new assigned in_progress completed cancelled"`
}

func (req updateOrderRequest) patch() models.OrderPatch {
	return models.OrderPatch{
		PickupLocationID:   req.PickupLocationID,
		DeliveryLocationID: req.DeliveryLocationID,
		DriverID:           req.DriverID.Value,
		ClearDriver:        req.DriverID.Set && req.DriverID.Value == nil,
		VehicleID:          req.VehicleID.Value,
		ClearVehicle:       req.VehicleID.Set && req.VehicleID.Value == nil,
		ScheduledAt:        req.ScheduledAt.Value,
		ClearScheduledAt:   req.ScheduledAt.Set && req.ScheduledAt.Value == nil,
		Notes:              req.Notes,
		CustomerName:       req.CustomerName,
		CustomerPhone:      req.CustomerPhone,
		Metadata:           req.Metadata,
		Status:             req.Status,
	}
}

// HandleUpdateOrder applies a partial update to an order
func (s *RESTServer) HandleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req updateOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	order, err := s.dispatch.UpdateOrder(r.Context(), principal(r), id, req.patch())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, order)
}

type assignOrderRequest struct {
	DriverID  uuid.UUID  `json:"driverId" validate:"required"`
	VehicleID *uuid.UUID `json:"vehicleId"`
}

// HandleAssignOrder assigns a driver and optionally a vehicle
func (s *RESTServer) HandleAssignOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req assignOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	order, err := s.dispatch.AssignOrder(r.Context(), principal(r), id, req.DriverID, req.VehicleID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, order)
}

// orderAction adapts a lifecycle step to a handler.
func (s *RESTServer) orderAction(step func(*RESTServer, *http.Request, uuid.UUID) (*models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		order, err := step(s, r, id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, order)
	}
}

func startOrder(s *RESTServer, r *http.Request, id uuid.UUID) (*models.Order, error) {
	return s.dispatch.StartOrder(r.Context(), principal(r), id)
}

func completeOrder(s *RESTServer, r *http.Request, id uuid.UUID) (*models.Order, error) {
	return s.dispatch.CompleteOrder(r.Context(), principal(r), id)
}

func cancelOrder(s *RESTServer, r *http.Request, id uuid.UUID) (*models.Order, error) {
	return s.dispatch.CancelOrder(r.Context(), principal(r), id)
}

// HandleDeleteOrder soft-deletes an order
func (s *RESTServer) HandleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.dispatch.DeleteOrder(r.Context(), principal(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Order deleted successfully"})
}
