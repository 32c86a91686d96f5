// Package dispatch implements the tenant-scoped operations of the fleet:
// the order lifecycle with its driver and vehicle bookkeeping, fleet records,
// tracking, proofs of delivery and order messages.
//
// Every mutation runs in one store transaction and publishes its lifecycle
// events only after the commit. Publishing is best effort.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
)

// Recorder receives lifecycle counters. The metrics package implements it.
type Recorder interface {
	OrderTransitioned(status string)
	EventPublished(eventType string)
}

type nopRecorder struct{}

func (nopRecorder) OrderTransitioned(string) {}
func (nopRecorder) EventPublished(string)    {}

// Options tunes lifecycle rules.
type Options struct {
	// OrderNumberPrefix starts every order number, "ORD" by default.
	OrderNumberPrefix string
	// RequireProofOfDelivery refuses to complete orders without a POD.
	RequireProofOfDelivery bool
}

// Service is the dispatch service
type Service struct {
	store     storage.Store
	publisher events.Publisher
	recorder  Recorder
	opts      Options
	now       func() time.Time
}

// NewService creates a dispatch service publishing through publisher. A nil
// recorder disables lifecycle counters.
func NewService(store storage.Store, publisher events.Publisher, opts Options, recorder Recorder) *Service {
	if opts.OrderNumberPrefix == "" {
		opts.OrderNumberPrefix = "ORD"
	}
	if publisher == nil {
		publisher = events.Discard
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		recorder:  recorder,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// pending collects the events of a transaction until it commits.
type pending []events.Event

func (p *pending) add(t events.Type, tenantID uuid.UUID, resource interface{}) {
	e, err := events.New(t, tenantID, resource)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("Failed to build event")
		return
	}
	*p = append(*p, e)
}

// withTx runs fn in a transaction and publishes the events it queued once
// the transaction has committed.
func (s *Service) withTx(ctx context.Context, op string, fn func(tx storage.Store, out *pending) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return apperr.Internal(op, err)
	}
	defer tx.Rollback()

	var out pending
	if err := fn(tx, &out); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(op, "", err)
	}

	s.publish(ctx, out)
	return nil
}

func (s *Service) publish(ctx context.Context, out pending) {
	for _, e := range out {
		if err := s.publisher.Publish(ctx, e); err != nil {
			log.Warn().
				Err(err).
				Str("type", string(e.Type)).
				Str("tenant_id", e.TenantID.String()).
				Msg("Failed to publish event")
			continue
		}
		s.recorder.EventPublished(string(e.Type))
	}
}

// ErrTenantMismatch reports a referenced driver or vehicle that is not part
// of the caller's tenant.
var ErrTenantMismatch = errors.New("resource belongs to another tenant")

func tenantMismatch(field string) error {
	return &apperr.Error{
		Code:    apperr.EInvalid,
		Msg:     "Validation failed",
		Err:     ErrTenantMismatch,
		Details: []apperr.FieldError{{Field: field, Message: "does not belong to this tenant"}},
	}
}

// translate maps storage errors onto apperr codes. resource names the
// record in not-found and duplicate messages. Errors that already carry an
// apperr code pass through.
func translate(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var aerr *apperr.Error
	if errors.As(err, &aerr) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		if resource == "" {
			resource = "resource"
		}
		return &apperr.Error{Code: apperr.ENotFound, Msg: resource + " not found", Op: op, Err: err}
	case errors.Is(err, storage.ErrDuplicateKey):
		return &apperr.Error{Code: apperr.EConflict, Msg: duplicateMessage(resource), Op: op, Err: err}
	case errors.Is(err, storage.ErrConflict):
		return &apperr.Error{Code: apperr.EConflict, Msg: "the record was modified concurrently, retry", Op: op, Err: err}
	case errors.Is(err, storage.ErrInvalidData):
		return &apperr.Error{Code: apperr.EInvalid, Msg: "Validation failed", Op: op, Err: err}
	}
	return apperr.Internal(op, err)
}

func duplicateMessage(resource string) string {
	switch resource {
	case "driver":
		return "a driver with this phone already exists"
	case "vehicle":
		return "a vehicle with this plate number already exists"
	case "":
		return "duplicate record"
	}
	return fmt.Sprintf("duplicate %s", resource)
}
