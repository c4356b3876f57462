package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/authz"
	"github.com/saborhub/ordercore/internal/models"
)

func (s *Server) handleGenerateTickets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DraftID uuid.UUID `json:"draft_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	tickets, err := s.ticketS.GenerateForDraft(r.Context(), req.DraftID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tickets)
}

func (s *Server) handleFireTicket(w http.ResponseWriter, r *http.Request) {
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
	t, err := s.ticketS.Fire(r.Context(), id, req.ExpectedVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleHoldTicket(w http.ResponseWriter, r *http.Request) {
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
	t, err := s.ticketS.Hold(r.Context(), id, req.ExpectedVersion, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleBumpTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		ExpectedVersion int64               `json:"expected_version"`
		Status          models.TicketStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	t, err := s.ticketS.Bump(r.Context(), id, req.ExpectedVersion, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleVoidTicket(w http.ResponseWriter, r *http.Request) {
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
	t, err := s.ticketS.Void(r.Context(), id, req.ExpectedVersion, actor.UserID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleReassignTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req struct {
		ExpectedVersion int64     `json:"expected_version"`
		NewStationID    uuid.UUID `json:"new_station_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	t, err := s.ticketS.Reassign(r.Context(), id, req.ExpectedVersion, req.NewStationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleReprintTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	t, err := s.ticketS.Reprint(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleStationQueue(w http.ResponseWriter, r *http.Request) {
	stationID, err := uuid.Parse(r.URL.Query().Get("station_id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid station_id"))
		return
	}
	var status *models.TicketStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := models.TicketStatus(raw)
		status = &st
	}
	tickets, err := s.ticketS.StationQueue(r.Context(), stationID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}
