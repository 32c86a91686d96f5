package api

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// recoverer turns a panic into a 500 and logs it.
func (s *RESTServer) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			event := log.Error().
				Str("request_id", middleware.GetReqID(r.Context())).
				Interface("panic", rec)
			if !s.config.Server.IsProduction() {
				event = event.Bytes("stack", debug.Stack())
			}
			event.Msg("Recovered from panic")

			s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from the Authorization header. When
// allowQuery is set, a token query parameter is accepted too, for clients
// that cannot set headers on a WebSocket upgrade.
func bearerToken(r *http.Request, allowQuery bool) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if allowQuery {
			if token := r.URL.Query().Get("token"); token != "" {
				return token, nil
			}
		}
		return "", errors.New("missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}

func (s *RESTServer) authenticate(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r, allowQuery)
			if err != nil {
				s.respondError(w, r, &apperr.Error{Code: apperr.EUnauthorized, Msg: err.Error()})
				return
			}

			claims, err := s.auth.Tokens().ValidateToken(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "token expired"
				}
				s.respondError(w, r, &apperr.Error{Code: apperr.EUnauthorized, Msg: msg})
				return
			}

			p, err := s.auth.Resolve(r.Context(), claims)
			if err != nil {
				if errors.Is(err, auth.ErrTokenInvalid) {
					s.respondError(w, r, &apperr.Error{Code: apperr.EUnauthorized, Msg: "invalid token"})
					return
				}
				s.respondError(w, r, apperr.Internal("api.authenticate", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// authMiddleware requires a bearer token in the Authorization header.
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return s.authenticate(false)(next)
}

var errForbidden = &apperr.Error{Code: apperr.EForbidden, Msg: "insufficient permissions"}

// requireStaff admits staff users, optionally only those with one of roles.
func (s *RESTServer) requireStaff(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.FromContext(r.Context())
			if p.IsDriver() || (len(roles) > 0 && !p.HasRole(roles...)) {
				s.respondError(w, r, errForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireDriver admits driver principals only.
func (s *RESTServer) requireDriver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())
		if !p.IsDriver() {
			s.respondError(w, r, &apperr.Error{Code: apperr.EForbidden, Msg: "only drivers can use this endpoint"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principal returns the authenticated principal of r. Routes using it are
// always behind authMiddleware.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
