package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
)

// HandleVehiclePositions returns the latest position of every driver with a
// vehicle
func (s *RESTServer) HandleVehiclePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.dispatch.VehiclePositions(r.Context(), principal(r).TenantID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, dataResponse{Data: positions})
}

// HandleTrackingHistory returns a driver's track over the last hours
func (s *RESTServer) HandleTrackingHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// out of range values are clamped by the service
	hours := dispatch.DefaultHistoryHours
	if v := r.URL.Query().Get("hours"); v != "" {
		if hours, err = strconv.Atoi(v); err != nil {
			s.respondError(w, r, apperr.Invalid("hours", "must be an integer"))
			return
		}
	}

	points, err := s.dispatch.History(r.Context(), principal(r).TenantID, id, hours)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, dataResponse{Data: points})
}

// HandleActiveOrders returns assigned and in-progress orders with positions
func (s *RESTServer) HandleActiveOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.dispatch.ActiveOrders(r.Context(), principal(r).TenantID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, dataResponse{Data: orders})
}

type trackingPointRequest struct {
	Latitude   *float64   `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude  *float64   `json:"longitude" validate:"required,gte=-180,lte=180"`
	Accuracy   *float64   `json:"accuracy" validate:"omitempty,gte=0"`
	Speed      *float64   `json:"speed" validate:"omitempty,gte=0"`
	Heading    *float64   `json:"heading" validate:"omitempty,gte=0,lte=360"`
	RecordedAt *time.Time `json:"recordedAt"`
}

// HandleRecordTrackingPoint stores a fix reported by the calling driver
func (s *RESTServer) HandleRecordTrackingPoint(w http.ResponseWriter, r *http.Request) {
	var req trackingPointRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	point, err := s.dispatch.RecordTrackingPoint(r.Context(), principal(r), dispatch.TrackingInput{
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		Accuracy:   req.Accuracy,
		Speed:      req.Speed,
		Heading:    req.Heading,
		RecordedAt: req.RecordedAt,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, point)
}
