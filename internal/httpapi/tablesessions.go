package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/authz"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/tenancy"
)

func (s *Server) handleCreateTableSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableID    uuid.UUID `json:"table_id"`
		GuestCount int       `json:"guest_count"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	now := time.Now().UTC()
	ts := &models.TableSession{
		ID: uuid.New(), TenantID: actor.TenantID, TableID: req.TableID, GuestCount: req.GuestCount,
		ServerID: &actor.UserID, Status: models.TableSessionSeated, CreatedAt: now, UpdatedAt: now,
	}
	if err := tenancy.Scope(r.Context(), s.db).Create(ts).Error; err != nil {
		writeError(w, apperr.Wrap(apperr.KindInternal, "create table session", err))
		return
	}
	writeJSON(w, http.StatusCreated, ts)
}

func (s *Server) handleGetTableSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var ts models.TableSession
	if err := tenancy.Scope(r.Context(), s.db).First(&ts, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeError(w, apperr.ErrNotFound)
			return
		}
		writeError(w, apperr.Wrap(apperr.KindInternal, "load table session", err))
		return
	}
	writeJSON(w, http.StatusOK, ts)
}
