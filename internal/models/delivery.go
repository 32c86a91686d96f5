package models

import (
	"time"

	"github.com/google/uuid"
)

// ProofOfDelivery records the hand-over of an order. One per order.
type ProofOfDelivery struct {
	TenantModel

	OrderID            uuid.UUID  `json:"orderId" db:"order_id"`
	RecipientName      string     `json:"recipientName" db:"recipient_name"`
	RecipientSignature string     `json:"recipientSignature,omitempty" db:"recipient_signature"`
	Photos             StringList `json:"photos" db:"photos"`
	Notes              string     `json:"notes,omitempty" db:"notes"`
	DeliveredAt        time.Time  `json:"deliveredAt" db:"delivered_at"`
}

// MessageType is the medium of an order message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
)

// Message is a note exchanged about an order. Exactly one of FromUserID and
// FromDriverID is set.
type Message struct {
	TenantModel

	OrderID      uuid.UUID   `json:"orderId" db:"order_id"`
	FromUserID   *uuid.UUID  `json:"fromUserId,omitempty" db:"from_user_id"`
	FromDriverID *uuid.UUID  `json:"fromDriverId,omitempty" db:"from_driver_id"`
	Type         MessageType `json:"type" db:"type"`
	Content      string      `json:"content" db:"content"`
	ReadAt       *time.Time  `json:"readAt,omitempty" db:"read_at"`
}
