package api

import (
	"net/http"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

// ========== Proof of delivery handlers ==========

// HandleGetProofOfDelivery gets the proof of delivery of an order
func (s *RESTServer) HandleGetProofOfDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderId")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	pod, err := s.dispatch.GetProofOfDelivery(r.Context(), principal(r), orderID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, pod)
}

type proofOfDeliveryRequest struct {
	RecipientName      string   `json:"recipientName" validate:"required,max=255"`
	RecipientSignature string   `json:"recipientSignature"`
	Photos             []string `json:"photos" validate:"max=20,dive,url"`
	Notes              string   `json:"notes" validate:"max=2000"`
}

// HandleSaveProofOfDelivery records the hand-over and completes the order
func (s *RESTServer) HandleSaveProofOfDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderId")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req proofOfDeliveryRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	pod, err := s.dispatch.SaveProofOfDelivery(r.Context(), principal(r), orderID, dispatch.ProofInput{
		RecipientName:      req.RecipientName,
		RecipientSignature: req.RecipientSignature,
		Photos:             req.Photos,
		Notes:              req.Notes,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, pod)
}

// ========== Message handlers ==========

// HandleListMessages lists the messages of an order
func (s *RESTServer) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderId")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	msgs, err := s.dispatch.ListMessages(r.Context(), principal(r), orderID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, dataResponse{Data: msgs})
}

type sendMessageRequest struct {
	Content string             `json:"content" validate:"required,min=1,max=1000"`
	Type    models.MessageType `json:"type" validate:"omitempty,oneof=text voice"`
}

// HandleSendMessage posts a message on an order
func (s *RESTServer) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderId")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req sendMessageRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	msg, err := s.dispatch.SendMessage(r.Context(), principal(r), orderID, dispatch.MessageInput{
		Content: req.Content,
		Type:    req.Type,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, msg)
}

// HandleMarkMessageRead marks a message read
func (s *RESTServer) HandleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	msg, err := s.dispatch.MarkMessageRead(r.Context(), principal(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, msg)
}
