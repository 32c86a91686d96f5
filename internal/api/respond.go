package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
)

// Pagination bounds.
const (
	defaultLimit = 50
	maxLimit     = 100

	// keeps (page-1)*limit inside an int32 offset
	maxPage = math.MaxInt32 / maxLimit
)

type errorResponse struct {
	Error   string              `json:"error"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// pagination describes one page of a list response.
type pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type pagedResponse struct {
	Data       interface{} `json:"data"`
	Pagination pagination  `json:"pagination"`
}

type dataResponse struct {
	Data interface{} `json:"data"`
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError maps err onto a status and an error body. Internal errors
// are logged; their detail only reaches the client outside production.
func (s *RESTServer) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorResponse{Error: apperr.Message(err), Details: apperr.Details(err)}

	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		body.Error = "internal server error"
		if !s.config.Server.IsProduction() {
			body.Error = err.Error()
		}
	}

	s.respondJSON(w, status, body)
}

// respondPage writes a list page.
func (s *RESTServer) respondPage(w http.ResponseWriter, data interface{}, p pageParams, total int64) {
	pages := 0
	if total > 0 {
		pages = int((total + int64(p.limit) - 1) / int64(p.limit))
	}
	s.respondJSON(w, http.StatusOK, pagedResponse{
		Data: data,
		Pagination: pagination{
			Page:       p.page,
			Limit:      p.limit,
			Total:      total,
			TotalPages: pages,
			HasNext:    p.page < pages,
			HasPrev:    p.page > 1,
		},
	})
}

type pageParams struct {
	page  int
	limit int
}

func (p pageParams) storage() storage.Page {
	return storage.Page{Limit: p.limit, Offset: (p.page - 1) * p.limit}
}

// parsePage reads page and limit from the query string.
func parsePage(r *http.Request) (pageParams, error) {
	p := pageParams{page: 1, limit: defaultLimit}
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPage {
			return p, apperr.Invalid("page", "must be between 1 and "+strconv.Itoa(maxPage))
		}
		p.page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return p, apperr.Invalid("limit", "must be between 1 and "+strconv.Itoa(maxLimit))
		}
		p.limit = n
	}
	return p, nil
}

// decode reads a JSON body into dst and validates it.
func (s *RESTServer) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &apperr.Error{Code: apperr.EInvalid, Msg: "request body is required"}
		}
		return &apperr.Error{Code: apperr.EInvalid, Msg: "invalid request body", Err: err}
	}
	return s.validator.Validate(dst)
}

// pathID parses the UUID path parameter name.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Invalid(name, "must be a valid id")
	}
	return id, nil
}
