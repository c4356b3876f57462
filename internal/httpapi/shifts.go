package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/authz"
	"github.com/saborhub/ordercore/internal/models"
)

func (s *Server) handleOpenShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServerID       uuid.UUID `json:"server_id"`
		LocationID     uuid.UUID `json:"location_id"`
		OpeningBalance string    `json:"opening_balance"`
		Notes          *string   `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	balance, err := decimal.NewFromString(req.OpeningBalance)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid opening_balance"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	sh, err := s.shiftS.Open(r.Context(), req.ServerID, req.LocationID, actor.UserID, balance, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (s *Server) handleCloseShift(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		ExpectedVersion int64   `json:"expected_version"`
		CashCount       string  `json:"cash_count"`
		CardCount       string  `json:"card_count"`
		Notes           *string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	cashCount, err := decimal.NewFromString(req.CashCount)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid cash_count"))
		return
	}
	cardCount, err := decimal.NewFromString(req.CardCount)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid card_count"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	sh, err := s.shiftS.BeginClosing(r.Context(), id, req.ExpectedVersion, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	sh, err = s.shiftS.RecordCashCounts(r.Context(), sh.ID, sh.Version, actor.UserID, cashCount, cardCount, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) handleReconcileShift(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		ExpectedVersion int64   `json:"expected_version"`
		Notes           *string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	sh, err := s.shiftS.Reconcile(r.Context(), id, req.ExpectedVersion, actor.UserID, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) cashEvent(w http.ResponseWriter, r *http.Request, eventType models.CashDrawerEventType) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		Amount     string     `json:"amount"`
		Note       *string    `json:"note"`
		ApprovedBy *uuid.UUID `json:"approved_by"`
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
	ev, err := s.shiftS.AppendCashEvent(r.Context(), id, eventType, amount, actor.UserID, req.ApprovedBy, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleCashDrop(w http.ResponseWriter, r *http.Request) {
	s.cashEvent(w, r, models.CashEventCashDrop)
}

func (s *Server) handleTipPayout(w http.ResponseWriter, r *http.Request) {
	s.cashEvent(w, r, models.CashEventTipPayout)
}

func (s *Server) handleCashAdjustment(w http.ResponseWriter, r *http.Request) {
	s.cashEvent(w, r, models.CashEventCashAdjustment)
}
