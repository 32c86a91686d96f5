package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

var podColumns = []string{
	"id", "tenant_id", "order_id", "created_at", "updated_at", "recipient_name",
	"recipient_signature", "photos", "notes", "delivered_at",
}

var messageColumns = []string{
	"id", "tenant_id", "order_id", "created_at", "updated_at", "from_user_id",
	"from_driver_id", "type", "content", "read_at",
}

// SaveProofOfDelivery inserts the order's proof of delivery or replaces the
// existing one. pod is reloaded so ID and CreatedAt reflect the stored row.
func (s *SQLStore) SaveProofOfDelivery(ctx context.Context, pod *models.ProofOfDelivery) error {
	if pod.ID == uuid.Nil {
		pod.ID = uuid.New()
	}
	now := models.Now()
	pod.CreatedAt = now
	pod.UpdatedAt = now
	if pod.DeliveredAt.IsZero() {
		pod.DeliveredAt = now
	}
	if pod.Photos == nil {
		pod.Photos = models.StringList{}
	}

	_, err := s.exec(ctx, s.sb.Insert("proofs_of_delivery").
		Columns(podColumns...).
		Values(pod.ID, pod.TenantID, pod.OrderID, pod.CreatedAt, pod.UpdatedAt, pod.RecipientName,
			pod.RecipientSignature, pod.Photos, pod.Notes, pod.DeliveredAt).
		Suffix(`ON CONFLICT (order_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			recipient_name = excluded.recipient_name,
			recipient_signature = excluded.recipient_signature,
			photos = excluded.photos,
			notes = excluded.notes,
			delivered_at = excluded.delivered_at`))
	if err != nil {
		return err
	}

	stored, err := s.GetProofOfDelivery(ctx, pod.TenantID, pod.OrderID)
	if err != nil {
		return err
	}
	*pod = *stored
	return nil
}

// GetProofOfDelivery gets the proof of delivery of an order
func (s *SQLStore) GetProofOfDelivery(ctx context.Context, tenantID, orderID uuid.UUID) (*models.ProofOfDelivery, error) {
	pod := &models.ProofOfDelivery{}
	err := s.get(ctx, pod, s.sb.Select(podColumns...).From("proofs_of_delivery").
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID))
	if err != nil {
		return nil, err
	}
	return pod, nil
}

// CreateMessage stores a message about an order
func (s *SQLStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	now := models.Now()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.Type == "" {
		msg.Type = models.MessageText
	}

	_, err := s.exec(ctx, s.sb.Insert("messages").
		Columns(messageColumns...).
		Values(msg.ID, msg.TenantID, msg.OrderID, msg.CreatedAt, msg.UpdatedAt, msg.FromUserID,
			msg.FromDriverID, msg.Type, msg.Content, msg.ReadAt))
	return err
}

// ListMessages lists an order's messages, newest first
func (s *SQLStore) ListMessages(ctx context.Context, tenantID, orderID uuid.UUID) ([]*models.Message, error) {
	msgs := []*models.Message{}
	err := s.selectRows(ctx, &msgs, s.sb.Select(messageColumns...).From("messages").
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		OrderBy("created_at DESC"))
	return msgs, err
}

// MarkMessageRead sets read_at once and returns the message
func (s *SQLStore) MarkMessageRead(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (*models.Message, error) {
	_, err := s.exec(ctx, s.sb.Update("messages").
		Set("read_at", at).
		Set("updated_at", at).
		Where("tenant_id = ? AND id = ? AND read_at IS NULL", tenantID, id))
	if err != nil {
		return nil, err
	}

	msg := &models.Message{}
	err = s.get(ctx, msg, s.sb.Select(messageColumns...).From("messages").
		Where("tenant_id = ? AND id = ?", tenantID, id))
	if err != nil {
		return nil, err
	}
	return msg, nil
}
