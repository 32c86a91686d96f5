package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
)

// ========== Service handlers ==========

// HandleHealth reports whether the database answers.
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"database":  "connected",
		"version":   s.config.Server.Version,
	}
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		body["status"] = "unhealthy"
		body["database"] = "disconnected"
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, body)
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"health":  "/api/v1/health",
	})
}

// HandleNotFound answers unknown routes.
func (s *RESTServer) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
}

// HandleMethodNotAllowed answers known routes called with the wrong method.
func (s *RESTServer) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

// ========== Auth handlers ==========

type loginRequest struct {
	Email     string `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone     string `json:"phone" validate:"required_without=Email,omitempty,max=32"`
	Password  string `json:"password" validate:"required"`
	Subdomain string `json:"subdomain" validate:"omitempty,max=63"`
}

type loginResponse struct {
	Token       string           `json:"token"`
	ExpiresAt   time.Time        `json:"expiresAt"`
	SubjectType auth.SubjectType `json:"subjectType"`
	User        interface{}      `json:"user"`
}

// HandleLogin signs in a staff user by email or a driver by phone.
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.login(w, r, auth.Credentials{
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		Subdomain: req.Subdomain,
	})
}

type driverLoginRequest struct {
	Phone     string `json:"phone" validate:"required,max=32"`
	Password  string `json:"password" validate:"required"`
	Subdomain string `json:"subdomain" validate:"omitempty,max=63"`
}

// HandleDriverLogin signs in a driver by phone.
func (s *RESTServer) HandleDriverLogin(w http.ResponseWriter, r *http.Request) {
	var req driverLoginRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.login(w, r, auth.Credentials{Phone: req.Phone, Password: req.Password, Subdomain: req.Subdomain})
}

func (s *RESTServer) login(w http.ResponseWriter, r *http.Request, creds auth.Credentials) {
	subject := string(auth.SubjectUser)
	if creds.Email == "" {
		subject = string(auth.SubjectDriver)
	}

	session, err := s.auth.Authenticate(r.Context(), creds)
	if s.metrics != nil {
		s.metrics.RecordAuthAttempt(subject, err == nil)
	}
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.respondError(w, r, &apperr.Error{Code: apperr.EUnauthorized, Msg: "Invalid credentials"})
			return
		}
		s.respondError(w, r, apperr.Internal("api.login", err))
		return
	}

	resp := loginResponse{
		Token:       session.Token,
		ExpiresAt:   session.ExpiresAt,
		SubjectType: session.Principal.Type,
	}
	if session.User != nil {
		resp.User = session.User
	} else {
		resp.User = session.Driver
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// HandleMe returns the record of the authenticated principal.
func (s *RESTServer) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	var (
		record interface{}
		err    error
	)
	if p.IsDriver() {
		record, err = s.dispatch.GetDriver(r.Context(), p.TenantID, p.SubjectID)
	} else {
		record, err = s.store.GetUser(r.Context(), p.TenantID, p.SubjectID)
		if err != nil {
			err = apperr.Internal("api.HandleMe", err)
		}
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"subjectType": p.Type,
		"tenantId":    p.TenantID,
		"user":        record,
	})
}
