package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/authz"
	"github.com/saborhub/ordercore/internal/draft"
)

type versionedRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableSessionID uuid.UUID `json:"table_session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	d, err := s.draftS.Create(r.Context(), req.TableSessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleSetLineItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		ExpectedVersion   int64  `json:"expected_version"`
		TaxRate           string `json:"tax_rate"`
		ServiceChargeRate string `json:"service_charge_rate"`
		LineItems         []struct {
			MenuItemID          uuid.UUID `json:"menu_item_id"`
			Name                string    `json:"name"`
			Quantity            int       `json:"quantity"`
			PriceAtOrder        string    `json:"price_at_order"`
			SpecialInstructions *string   `json:"special_instructions"`
			SortOrder           int       `json:"sort_order"`
		} `json:"line_items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	taxRate, _ := decimal.NewFromString(req.TaxRate)
	serviceRate, _ := decimal.NewFromString(req.ServiceChargeRate)

	items := make([]draft.LineItemInput, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		price, _ := decimal.NewFromString(li.PriceAtOrder)
		items = append(items, draft.LineItemInput{
			MenuItemID: li.MenuItemID, Name: li.Name, Quantity: li.Quantity,
			PriceAtOrder: price, SpecialInstructions: li.SpecialInstructions, SortOrder: li.SortOrder,
		})
	}
	d, err := s.draftS.SetLineItems(r.Context(), id, req.ExpectedVersion, items, taxRate, serviceRate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req versionedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	d, err := s.draftS.Submit(r.Context(), id, req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req versionedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	d, err := s.draftS.AcquireLock(r.Context(), id, req.ExpectedVersion, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleConfirmDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req versionedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	result, err := s.draftS.Confirm(r.Context(), id, req.ExpectedVersion, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRejectDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		ExpectedVersion int64  `json:"expected_version"`
		Reason          string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	d, err := s.draftS.Reject(r.Context(), id, req.ExpectedVersion, actor.UserID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleReassignDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		ExpectedVersion   int64     `json:"expected_version"`
		NewTableSessionID uuid.UUID `json:"new_table_session_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	d, err := s.draftS.Reassign(r.Context(), id, req.ExpectedVersion, actor.UserID, req.NewTableSessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
