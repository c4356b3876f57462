package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/authz"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/payment"
)

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID        uuid.UUID `json:"order_id"`
		Method         string    `json:"method"`
		Amount         string    `json:"amount"`
		IdempotencyKey *string   `json:"idempotency_key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid amount"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	intent, err := s.payS.CreateIntent(r.Context(), req.OrderID, models.PaymentMethod(req.Method), amount, actor.UserID, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (s *Server) handleCreateQRIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID        uuid.UUID `json:"order_id"`
		Amount         string    `json:"amount"`
		IdempotencyKey *string   `json:"idempotency_key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid amount"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	intent, err := s.payS.CreateIntent(r.Context(), req.OrderID, models.PaymentMethodQR, amount, actor.UserID, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (s *Server) handleProcessCash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntentID uuid.UUID `json:"intent_id"`
		ShiftID  uuid.UUID `json:"shift_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	p, err := s.payS.CompleteCash(r.Context(), req.IntentID, req.ShiftID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSplitPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID     uuid.UUID `json:"order_id"`
		Allocations []struct {
			Method string `json:"method"`
			Amount string `json:"amount"`
		} `json:"allocations"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	allocations := make([]payment.SplitAllocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		amount, err := decimal.NewFromString(a.Amount)
		if err != nil {
			writeError(w, apperr.New(apperr.KindValidation, "invalid allocation amount"))
			return
		}
		allocations = append(allocations, payment.SplitAllocation{Method: models.PaymentMethod(a.Method), Amount: amount})
	}
	actor, _ := authz.ActorFromContext(r.Context())
	payments, err := s.payS.CompleteSplit(r.Context(), req.OrderID, actor.UserID, allocations)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		ReasonCode string     `json:"reason_code"`
		Reason     string     `json:"reason"`
		ShiftID    *uuid.UUID `json:"shift_id"`
		ApprovedBy *uuid.UUID `json:"approved_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	refund, err := s.payS.RefundOne(r.Context(), id, models.RefundReasonCode(req.ReasonCode), req.Reason, actor.UserID, req.ShiftID, req.ApprovedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refund)
}

// handleWebhook ingests a provider delivery. Signature verification is
// spec 6.3's declared out-of-scope concern; this trusts the configured
// network boundary (reverse proxy allowlist) the way the caller's
// deployment enforces it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "unreadable body"))
		return
	}
	var req struct {
		ExternalReference string  `json:"external_reference"`
		Status            string  `json:"status"`
		TerminalRef       *string `json:"terminal_ref"`
		CardLast4         *string `json:"card_last4"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid webhook payload"))
		return
	}
	payload := payment.WebhookPayload{
		Provider: "mercadopago", ExternalReference: req.ExternalReference, Status: req.Status,
		TerminalRef: req.TerminalRef, CardLast4: req.CardLast4, RawBody: string(body),
	}
	if err := s.payS.IngestWebhook(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
