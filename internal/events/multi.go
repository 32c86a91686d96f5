package events

import (
	"context"
	"errors"
)

// MultiPublisher publishes every event to each of its publishers in turn.
type MultiPublisher []Publisher

// Multi returns a publisher fanning out to the non-nil publishers given.
func Multi(publishers ...Publisher) MultiPublisher {
	m := make(MultiPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			m = append(m, p)
		}
	}
	return m
}

// Publish publishes e everywhere. One failing publisher does not stop the
// others; their errors are joined.
func (m MultiPublisher) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
