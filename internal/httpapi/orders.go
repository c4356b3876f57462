package httpapi

import (
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/tenancy"
)

// completeOrCancelOrder advances an order's terminal status directly:
// orders have no lock/version workflow of their own beyond the CAS
// version column, so this shares the draft/ticket CAS helper instead of
// standing up a dedicated order service for two transitions.
func (s *Server) completeOrCancelOrder(w http.ResponseWriter, r *http.Request, to models.OrderStatus) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id"))
		return
	}
	var req versionedRequest
	_ = decodeJSON(r, &req)

	var result *models.Order
	err = s.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		row, txErr := tenancy.CAS(r.Context(), tx, id, req.ExpectedVersion, func(o *models.Order) int64 { return o.Version }, func(o *models.Order) error {
			if o.Status == models.OrderStatusCancelled || o.Status == models.OrderStatusCompleted || o.Status == models.OrderStatusVoided {
				return apperr.ErrInvalidTransition
			}
			if to == models.OrderStatusCompleted {
				if o.Status != models.OrderStatusPaid {
					return apperr.ErrInvalidTransition
				}
				var tickets []models.Ticket
				if err := tenancy.Scope(r.Context(), tx).Where("draft_order_id = ?", o.DraftOrderID).Find(&tickets).Error; err != nil {
					return apperr.Wrap(apperr.KindInternal, "load order tickets", err)
				}
				for _, t := range tickets {
					if t.Status != models.TicketStatusCompleted && t.Status != models.TicketStatusVoided {
						return apperr.ErrInvalidTransition
					}
				}
			}
			o.Status = to
			o.UpdatedAt = time.Now().UTC()
			o.Version++
			return nil
		})
		result = row
		return txErr
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	s.completeOrCancelOrder(w, r, models.OrderStatusCompleted)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	s.completeOrCancelOrder(w, r, models.OrderStatusCancelled)
}
