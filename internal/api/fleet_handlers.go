package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
)

// ========== Driver handlers ==========

// HandleListDrivers lists drivers, optionally by status
func (s *RESTServer) HandleListDrivers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var filter storage.DriverFilter
	for _, v := range r.URL.Query()["status"] {
		for _, st := range strings.Split(v, ",") {
			if st = strings.TrimSpace(st); st != "" {
				filter.Statuses = append(filter.Statuses, models.DriverStatus(st))
			}
		}
	}

	drivers, total, err := s.dispatch.ListDrivers(r.Context(), principal(r).TenantID, filter, page.storage())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondPage(w, drivers, page, total)
}

// HandleListAvailableDrivers lists drivers that can take an order
func (s *RESTServer) HandleListAvailableDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.dispatch.ListAvailableDrivers(r.Context(), principal(r).TenantID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, dataResponse{Data: drivers})
}

type createDriverRequest struct {
	Name     string              `json:"name" validate:"required,max=255"`
	Phone    string              `json:"phone" validate:"required,max=32"`
	Email    string              `json:"email" validate:"omitempty,email"`
	Password string              `json:"password" validate:"omitempty,min=6"`
	Status   models.DriverStatus `json:"status" validate:"omitempty,oneof=available on_trip offline busy"`
}

// HandleCreateDriver creates a driver
func (s *RESTServer) HandleCreateDriver(w http.ResponseWriter, r *http.Request) {
	var req createDriverRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	driver, err := s.dispatch.CreateDriver(r.Context(), principal(r).TenantID, dispatch.DriverInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
		Status:   req.Status,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, driver)
}

// HandleGetDriver gets a driver with its vehicle
func (s *RESTServer) HandleGetDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	driver, err := s.dispatch.GetDriver(r.Context(), principal(r).TenantID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, driver)
}

type updateDriverRequest struct {
	Name     *string              `json:"name" validate:"omitempty,min=1,max=255"`
	Phone    *string              `json:"phone" validate:"omitempty,min=1,max=32"`
	Email    *string              `json:"email" validate:"omitempty,email"`
	Password *string              `json:"password" validate:"omitempty,min=6"`
	Status   *models.DriverStatus `json:"status" validate:"omitempty,oneof=available on_trip offline busy"`
}

// HandleUpdateDriver updates a driver
func (s *RESTServer) HandleUpdateDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req updateDriverRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	driver, err := s.dispatch.UpdateDriver(r.Context(), principal(r).TenantID, id, models.DriverPatch{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
		Status:   req.Status,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, driver)
}

// HandleDeleteDriver soft-deletes a driver
func (s *RESTServer) HandleDeleteDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.dispatch.DeleteDriver(r.Context(), principal(r).TenantID, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Driver deleted successfully"})
}

// HandleGetDriverLocation returns a driver's latest tracking point. Drivers
// may only ask for their own.
func (s *RESTServer) HandleGetDriverLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p := principal(r)
	if p.IsDriver() && p.SubjectID != id {
		s.respondError(w, r, errForbidden)
		return
	}

	point, err := s.dispatch.DriverLocation(r.Context(), p.TenantID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, dataResponse{Data: point})
}

// ========== Vehicle handlers ==========

// HandleListVehicles lists vehicles
func (s *RESTServer) HandleListVehicles(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	vehicles, total, err := s.dispatch.ListVehicles(r.Context(), principal(r).TenantID, page.storage())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondPage(w, vehicles, page, total)
}

type createVehicleRequest struct {
	PlateNumber string     `json:"plateNumber" validate:"required,max=20"`
	Make        string     `json:"make" validate:"max=100"`
	Model       string     `json:"model" validate:"max=100"`
	Year        *int       `json:"year" validate:"omitempty,gte=1990,lte=2030"`
	DriverID    *uuid.UUID `json:"driverId"`
}

// HandleCreateVehicle creates a vehicle
func (s *RESTServer) HandleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req createVehicleRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	vehicle, err := s.dispatch.CreateVehicle(r.Context(), principal(r).TenantID, dispatch.VehicleInput{
		PlateNumber: req.PlateNumber,
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		DriverID:    req.DriverID,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, vehicle)
}

// HandleGetVehicle gets a vehicle
func (s *RESTServer) HandleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	vehicle, err := s.dispatch.GetVehicle(r.Context(), principal(r).TenantID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, vehicle)
}

type updateVehicleRequest struct {
	PlateNumber *string    `json:"plateNumber" validate:"omitempty,min=1,max=20"`
	Make        *string    `json:"make" validate:"omitempty,max=100"`
	Model       *string    `json:"model" validate:"omitempty,max=100"`
	Year        *int       `json:"year" validate:"omitempty,gte=1990,lte=2030"`
	DriverID    optionalID `json:"driverId"`
}

// HandleUpdateVehicle updates a vehicle
func (s *RESTServer) HandleUpdateVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req updateVehicleRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	vehicle, err := s.dispatch.UpdateVehicle(r.Context(), principal(r).TenantID, id, models.VehiclePatch{
		PlateNumber: req.PlateNumber,
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		DriverID:    req.DriverID.Value,
		ClearDriver: req.DriverID.Set && req.DriverID.Value == nil,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, vehicle)
}

// HandleDeleteVehicle soft-deletes a vehicle
func (s *RESTServer) HandleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.dispatch.DeleteVehicle(r.Context(), principal(r).TenantID, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Vehicle deleted successfully"})
}

// ========== Location handlers ==========

// HandleListLocations lists locations, optionally of one type
func (s *RESTServer) HandleListLocations(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var filter storage.LocationFilter
	if v := r.URL.Query().Get("type"); v != "" {
		t := models.LocationType(v)
		filter.Type = &t
	}

	locations, total, err := s.dispatch.ListLocations(r.Context(), principal(r).TenantID, filter, page.storage())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondPage(w, locations, page, total)
}

type createLocationRequest struct {
	Name      string              `json:"name" validate:"required,max=255"`
	Address   string              `json:"address" validate:"max=500"`
	Latitude  *float64            `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64            `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Type      models.LocationType `json:"type" validate:"omitempty,oneof=warehouse port distribution_center customer"`
}

// HandleCreateLocation creates a location
func (s *RESTServer) HandleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	location, err := s.dispatch.CreateLocation(r.Context(), principal(r).TenantID, dispatch.LocationInput{
		Name:      req.Name,
		Address:   req.Address,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Type:      req.Type,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, location)
}

// HandleGetLocation gets a location
func (s *RESTServer) HandleGetLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	location, err := s.dispatch.GetLocation(r.Context(), principal(r).TenantID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, location)
}

type updateLocationRequest struct {
	Name      *string              `json:"name" validate:"omitempty,min=1,max=255"`
	Address   *string              `json:"address" validate:"omitempty,max=500"`
	Latitude  *float64             `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64             `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Type      *models.LocationType `json:"type" validate:"omitempty,oneof=warehouse port distribution_center customer"`
}

// HandleUpdateLocation updates a location
func (s *RESTServer) HandleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req updateLocationRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	location, err := s.dispatch.UpdateLocation(r.Context(), principal(r).TenantID, id, models.LocationPatch{
		Name:      req.Name,
		Address:   req.Address,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Type:      req.Type,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, location)
}

// HandleDeleteLocation soft-deletes a location
func (s *RESTServer) HandleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.dispatch.DeleteLocation(r.Context(), principal(r).TenantID, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Location deleted successfully"})
}
