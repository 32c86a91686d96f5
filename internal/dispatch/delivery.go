package dispatch

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
)

// ProofInput is the hand-over record submitted for an order.
type ProofInput struct {
	RecipientName      string
	RecipientSignature string
	Photos             []string
	Notes              string
}

// SaveProofOfDelivery stores the proof of delivery of an order, replacing
// any earlier one, and completes the order in the same transaction.
func (s *Service) SaveProofOfDelivery(ctx context.Context, p auth.Principal, orderID uuid.UUID, in ProofInput) (*models.ProofOfDelivery, error) {
	const op = "dispatch.SaveProofOfDelivery"

	if strings.TrimSpace(in.RecipientName) == "" {
		return nil, apperr.Invalid("recipientName", "is required")
	}

	pod := &models.ProofOfDelivery{
		OrderID:            orderID,
		RecipientName:      strings.TrimSpace(in.RecipientName),
		RecipientSignature: in.RecipientSignature,
		Photos:             models.StringList(in.Photos),
		Notes:              in.Notes,
	}
	pod.TenantID = p.TenantID

	var changed bool
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		order, err := loadOrder(ctx, tx, op, p, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderCancelled {
			return apperr.Conflict("cannot deliver a cancelled order")
		}

		if err := tx.SaveProofOfDelivery(ctx, pod); err != nil {
			return translate(op, "proof of delivery", err)
		}
		changed, err = s.complete(ctx, tx, out, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recorder.OrderTransitioned(string(models.OrderCompleted))
	}
	return pod, nil
}

// GetProofOfDelivery returns the proof of delivery of an order visible to p.
func (s *Service) GetProofOfDelivery(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*models.ProofOfDelivery, error) {
	const op = "dispatch.GetProofOfDelivery"

	if _, err := loadOrder(ctx, s.store, op, p, orderID); err != nil {
		return nil, err
	}
	pod, err := s.store.GetProofOfDelivery(ctx, p.TenantID, orderID)
	if err != nil {
		return nil, translate(op, "proof of delivery", err)
	}
	return pod, nil
}

// ListMessages lists the messages of an order, newest first.
func (s *Service) ListMessages(ctx context.Context, p auth.Principal, orderID uuid.UUID) ([]*models.Message, error) {
	const op = "dispatch.ListMessages"

	if _, err := loadOrder(ctx, s.store, op, p, orderID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, p.TenantID, orderID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return msgs, nil
}

// MessageInput is a message about to be sent.
type MessageInput struct {
	Content string
	Type    models.MessageType
}

// SendMessage posts a message on an order on behalf of p. Drivers can only
// write on orders assigned to them.
func (s *Service) SendMessage(ctx context.Context, p auth.Principal, orderID uuid.UUID, in MessageInput) (*models.Message, error) {
	const op = "dispatch.SendMessage"

	content := strings.TrimSpace(in.Content)
	switch {
	case content == "":
		return nil, apperr.Invalid("content", "is required")
	case utf8.RuneCountInString(content) > 1000:
		return nil, apperr.Invalid("content", "must be at most 1000 characters")
	}
	switch in.Type {
	case "", models.MessageText, models.MessageVoice:
	default:
		return nil, apperr.Invalid("type", "must be one of: text voice")
	}

	if _, err := loadOrder(ctx, s.store, op, p, orderID); err != nil {
		return nil, err
	}

	msg := &models.Message{OrderID: orderID, Type: in.Type, Content: content}
	msg.TenantID = p.TenantID
	from := p.SubjectID
	if p.IsDriver() {
		msg.FromDriverID = &from
	} else {
		msg.FromUserID = &from
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, translate(op, "message", err)
	}
	return msg, nil
}

// MarkMessageRead marks a message read. The first read time is kept.
func (s *Service) MarkMessageRead(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Message, error) {
	msg, err := s.store.MarkMessageRead(ctx, p.TenantID, id, s.now())
	if err != nil {
		return nil, translate("dispatch.MarkMessageRead", "message", err)
	}
	return msg, nil
}
