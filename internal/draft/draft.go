// Package draft implements the draft coordinator of spec section 4.D:
// the collaborative-cart state machine, the lock/lease protocol, and
// TTL expiry. Grounded on the donor server's transitionInvoice CAS
// pattern (row lock + version check + mutate + append-event, all inside
// one transaction).
package draft

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/metrics"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/tenancy"
)

// allowedTransitions encodes the node graph of spec 4.D. Self-loops
// (pending -> pending for lock/edit/reassign operations) are handled by
// the individual operations, not by this table.
var allowedTransitions = map[models.DraftStatus][]models.DraftStatus{
	models.DraftStatusDraft:   {models.DraftStatusPending},
	models.DraftStatusPending: {models.DraftStatusConfirmed, models.DraftStatusRejected, models.DraftStatusExpired},
}

func validateTransition(current, next models.DraftStatus) error {
	if current == next {
		return nil
	}
	for _, allowed := range allowedTransitions[current] {
		if allowed == next {
			return nil
		}
	}
	return apperr.ErrInvalidTransition
}

type Service struct {
	db         *gorm.DB
	bus        *events.Bus
	lockTTL    time.Duration
	defaultTTL time.Duration
}

func NewService(db *gorm.DB, bus *events.Bus, lockTTL, defaultTTL time.Duration) *Service {
	return &Service{db: db, bus: bus, lockTTL: lockTTL, defaultTTL: defaultTTL}
}

func (s *Service) leaseActive(d *models.DraftOrder, now time.Time) bool {
	return d.LockedBy != nil && d.LockedAt != nil && now.Sub(*d.LockedAt) < s.lockTTL
}

// LineItemInput is the API-layer representation of one requested item.
type LineItemInput struct {
	MenuItemID          uuid.UUID
	Name                string
	Quantity            int
	PriceAtOrder        decimal.Decimal
	SpecialInstructions *string
	SortOrder           int
}

// Create starts a new draft for a table session (spec 3, DraftOrder).
func (s *Service) Create(ctx context.Context, tableSessionID uuid.UUID) (*models.DraftOrder, error) {
	tenantID, _ := tenancy.TenantFromContext(ctx)
	now := time.Now().UTC()
	d := &models.DraftOrder{
		ID:             uuid.New(),
		TenantID:       tenantID,
		TableSessionID: tableSessionID,
		Status:         models.DraftStatusDraft,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.defaultTTL),
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tenancy.Scope(ctx, tx).Create(d).Error
	}); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create draft", err)
	}
	s.bus.Publish(events.DraftCreated{DraftID: d.ID, TableSessionID: tableSessionID})
	metrics.DraftTransitions.WithLabelValues(string(d.Status)).Inc()
	return d, nil
}

// SetLineItems replaces the draft's line items wholesale and recomputes
// money snapshots. Only legal while status = draft (spec 3 invariant:
// "Line items are mutable only while status = draft").
func (s *Service) SetLineItems(ctx context.Context, draftID uuid.UUID, expectedVersion int64, items []LineItemInput, taxRate, serviceChargeRate decimal.Decimal) (*models.DraftOrder, error) {
	var result *models.DraftOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			if d.Status != models.DraftStatusDraft {
				return apperr.ErrDraftNotEditable
			}
			d.Version++
			d.UpdatedAt = time.Now().UTC()
			return nil
		})
		if err != nil {
			return err
		}
		result = row

		if err := tenancy.Scope(ctx, tx).Where("draft_order_id = ?", draftID).Delete(&models.DraftLineItem{}).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "clear line items", err)
		}

		subtotal := decimal.Zero
		for _, it := range items {
			lineTotal := it.PriceAtOrder.Mul(decimal.NewFromInt(int64(it.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			li := &models.DraftLineItem{
				ID:                  uuid.New(),
				TenantID:            result.TenantID,
				DraftOrderID:        draftID,
				MenuItemID:          it.MenuItemID,
				Name:                it.Name,
				Quantity:            it.Quantity,
				PriceAtOrder:        it.PriceAtOrder,
				LineTotal:           lineTotal,
				SpecialInstructions: it.SpecialInstructions,
				SortOrder:           it.SortOrder,
				CreatedAt:           time.Now().UTC(),
			}
			if err := tenancy.Scope(ctx, tx).Create(li).Error; err != nil {
				return apperr.Wrap(apperr.KindInternal, "create line item", err)
			}
		}

		tax := subtotal.Mul(taxRate).Round(2)
		serviceCharge := subtotal.Mul(serviceChargeRate).Round(2)
		total := subtotal.Add(tax).Add(serviceCharge).Add(result.TipAmount).Sub(result.DiscountAmount)

		result.Subtotal = subtotal
		result.TaxAmount = tax
		result.ServiceCharge = serviceCharge
		result.TotalAmount = total
		return tenancy.Scope(ctx, tx).Save(result).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Submit moves a guest-authored draft to pending (spec 4.D: draft -> pending : submit).
func (s *Service) Submit(ctx context.Context, draftID uuid.UUID, expectedVersion int64) (*models.DraftOrder, error) {
	var result *models.DraftOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			if err := validateTransition(d.Status, models.DraftStatusPending); err != nil {
				return err
			}
			d.Status = models.DraftStatusPending
			d.Version++
			d.UpdatedAt = time.Now().UTC()
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.DraftSubmitted{DraftID: result.ID, TableSessionID: result.TableSessionID})
	metrics.DraftTransitions.WithLabelValues(string(result.Status)).Inc()
	return result, nil
}

// AcquireLock implements the lease acquisition rules of spec 4.D.
func (s *Service) AcquireLock(ctx context.Context, draftID uuid.UUID, expectedVersion int64, userID uuid.UUID) (*models.DraftOrder, error) {
	var result *models.DraftOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			now := time.Now().UTC()
			if d.Status != models.DraftStatusPending {
				return apperr.ErrLockInvalidState
			}
			if d.LockedBy != nil {
				if s.leaseActive(d, now) {
					if *d.LockedBy != userID {
						return apperr.ErrLockConflict
					}
					// same user re-acquires: refresh, no-op success.
				}
			}
			d.LockedBy = &userID
			d.LockedAt = &now
			d.Version++
			d.UpdatedAt = now
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.DraftAcquired{DraftID: result.ID, TableSessionID: result.TableSessionID, LockedBy: userID})
	return result, nil
}

// ReleaseLock voluntarily drops the lease held by userID.
func (s *Service) ReleaseLock(ctx context.Context, draftID uuid.UUID, expectedVersion int64, userID uuid.UUID) (*models.DraftOrder, error) {
	var result *models.DraftOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			if d.LockedBy == nil || *d.LockedBy != userID {
				return apperr.ErrLockNotHeld
			}
			d.LockedBy = nil
			d.LockedAt = nil
			d.Version++
			d.UpdatedAt = time.Now().UTC()
			return nil
		})
		result = row
		return err
	})
	return result, err
}

// ConfirmResult carries enough of the new Order for the caller (spec
// 4.D events: DraftConfirmed{order_id, items, total}).
type ConfirmResult struct {
	Draft *models.DraftOrder
	Order *models.Order
}

// Confirm converts a locked pending draft into an immutable Order. It is
// idempotent: re-confirming an already-confirmed draft returns the same
// Order (spec property P3).
func (s *Service) Confirm(ctx context.Context, draftID uuid.UUID, expectedVersion int64, userID uuid.UUID) (*ConfirmResult, error) {
	var result ConfirmResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.DraftOrder
		if err := tenancy.Scope(ctx, tx).First(&existing, "id = ?", draftID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.ErrNotFound
			}
			return apperr.Wrap(apperr.KindInternal, "load draft", err)
		}
		if existing.Status == models.DraftStatusConfirmed && existing.OrderID != nil {
			var order models.Order
			if err := tenancy.Scope(ctx, tx).First(&order, "id = ?", *existing.OrderID).Error; err != nil {
				return apperr.Wrap(apperr.KindInternal, "load existing order", err)
			}
			result = ConfirmResult{Draft: &existing, Order: &order}
			return nil
		}

		var lineItems []models.DraftLineItem
		if err := tenancy.Scope(ctx, tx).Where("draft_order_id = ?", draftID).Find(&lineItems).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "load line items", err)
		}

		orderID := uuid.New()
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			if d.LockedBy == nil || *d.LockedBy != userID {
				return apperr.ErrLockNotHeld
			}
			if d.Status != models.DraftStatusPending {
				return apperr.ErrLockInvalidState
			}
			if err := validateTransition(d.Status, models.DraftStatusConfirmed); err != nil {
				return err
			}
			now := time.Now().UTC()
			d.Status = models.DraftStatusConfirmed
			d.ConfirmedBy = &userID
			d.ConfirmedAt = &now
			d.OrderID = &orderID
			d.LockedBy = nil
			d.LockedAt = nil
			d.Version++
			d.UpdatedAt = now
			return nil
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		order := &models.Order{
			ID:             orderID,
			TenantID:       row.TenantID,
			TableSessionID: row.TableSessionID,
			DraftOrderID:   row.ID,
			Status:         models.OrderStatusPending,
			Version:        1,
			Subtotal:       row.Subtotal,
			TaxAmount:      row.TaxAmount,
			DiscountAmount: row.DiscountAmount,
			ServiceCharge:  row.ServiceCharge,
			TipAmount:      row.TipAmount,
			TotalAmount:    row.TotalAmount,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tenancy.Scope(ctx, tx).Create(order).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "create order", err)
		}
		for _, li := range lineItems {
			oli := &models.OrderLineItem{
				ID:           uuid.New(),
				TenantID:     row.TenantID,
				OrderID:      order.ID,
				Name:         li.Name,
				Quantity:     li.Quantity,
				PriceAtOrder: li.PriceAtOrder,
				LineTotal:    li.LineTotal,
				Status:       models.OrderLineItemPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tenancy.Scope(ctx, tx).Create(oli).Error; err != nil {
				return apperr.Wrap(apperr.KindInternal, "create order line item", err)
			}
			order.LineItems = append(order.LineItems, *oli)
		}

		result = ConfirmResult{Draft: row, Order: order}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.DraftConfirmed{
		TenantID:       result.Draft.TenantID,
		DraftID:        result.Draft.ID,
		TableSessionID: result.Draft.TableSessionID,
		OrderID:        result.Order.ID,
		ItemCount:      len(result.Order.LineItems),
		Total:          result.Order.TotalAmount.StringFixed(2),
	})
	s.bus.Publish(events.OrderCreated{OrderID: result.Order.ID, TableSessionID: result.Draft.TableSessionID})
	metrics.DraftTransitions.WithLabelValues(string(result.Draft.Status)).Inc()
	return &result, nil
}

// Reject implements the waiter-reject transition.
func (s *Service) Reject(ctx context.Context, draftID uuid.UUID, expectedVersion int64, userID uuid.UUID, reason string) (*models.DraftOrder, error) {
	var result *models.DraftOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			if d.LockedBy == nil || *d.LockedBy != userID {
				return apperr.ErrLockNotHeld
			}
			if err := validateTransition(d.Status, models.DraftStatusRejected); err != nil {
				return err
			}
			now := time.Now().UTC()
			d.Status = models.DraftStatusRejected
			d.RejectedBy = &userID
			d.RejectedAt = &now
			d.RejectionReason = &reason
			d.LockedBy = nil
			d.LockedAt = nil
			d.Version++
			d.UpdatedAt = now
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.DraftRejected{DraftID: result.ID, TableSessionID: result.TableSessionID, Reason: reason})
	metrics.DraftTransitions.WithLabelValues(string(result.Status)).Inc()
	return result, nil
}

// Reassign moves a still-pending, lock-held draft to a different table
// session (spec 4.D: "waiter pending -> pending: reassign"). The
// reference mutates in place rather than creating a new draft (spec 9
// open question, resolved in DESIGN.md).
func (s *Service) Reassign(ctx context.Context, draftID uuid.UUID, expectedVersion int64, userID uuid.UUID, newTableSessionID uuid.UUID) (*models.DraftOrder, error) {
	var result *models.DraftOrder
	var oldSession uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			if d.LockedBy == nil || *d.LockedBy != userID {
				return apperr.ErrLockNotHeld
			}
			if d.Status != models.DraftStatusPending {
				return apperr.ErrLockInvalidState
			}
			oldSession = d.TableSessionID
			d.TableSessionID = newTableSessionID
			d.Version++
			d.UpdatedAt = time.Now().UTC()
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.DraftReassigned{DraftID: result.ID, OldSessionID: oldSession, NewSessionID: newTableSessionID})
	return result, nil
}

// ExpireOne transitions a single pending, expired draft to expired. It
// is the per-row unit of work the sweeper drives; callers supply a
// tenant-bound context for the draft's own tenant since the sweep
// itself runs across tenants.
func (s *Service) ExpireOne(ctx context.Context, draftID uuid.UUID, expectedVersion int64) (*models.DraftOrder, error) {
	var result *models.DraftOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			now := time.Now().UTC()
			if d.Status != models.DraftStatusPending || !d.ExpiresAt.Before(now) {
				return apperr.ErrInvalidTransition
			}
			d.Status = models.DraftStatusExpired
			d.LockedBy = nil
			d.LockedAt = nil
			d.Version++
			d.UpdatedAt = now
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.DraftTransitions.WithLabelValues(string(result.Status)).Inc()
	return result, nil
}

// ReleaseStaleLock clears a lease older than lockTTL regardless of the
// draft's own expiry, per spec 4.D's "second pass" sweep rule.
func (s *Service) ReleaseStaleLock(ctx context.Context, draftID uuid.UUID, expectedVersion int64) (*models.DraftOrder, error) {
	var result *models.DraftOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, draftID, expectedVersion, func(d *models.DraftOrder) int64 { return d.Version }, func(d *models.DraftOrder) error {
			now := time.Now().UTC()
			if d.LockedBy == nil || d.LockedAt == nil || now.Sub(*d.LockedAt) < s.lockTTL {
				return apperr.ErrInvalidTransition
			}
			d.LockedBy = nil
			d.LockedAt = nil
			d.Version++
			d.UpdatedAt = now
			return nil
		})
		result = row
		return err
	})
	return result, err
}

// PendingExpired returns the full DraftOrder row of every pending draft
// whose expiry has passed, across all tenants — used by the sweeper.
func (s *Service) PendingExpired(ctx context.Context, now time.Time) ([]models.DraftOrder, error) {
	var rows []models.DraftOrder
	err := s.db.WithContext(ctx).Where("status = ? AND expires_at < ?", models.DraftStatusPending, now).Find(&rows).Error
	return rows, err
}

// StaleLocks returns drafts whose lease has outlived lockTTL, across all
// tenants — used by the sweeper's second pass.
func (s *Service) StaleLocks(ctx context.Context, now time.Time) ([]models.DraftOrder, error) {
	var rows []models.DraftOrder
	cutoff := now.Add(-s.lockTTL)
	err := s.db.WithContext(ctx).Where("locked_by IS NOT NULL AND locked_at < ?", cutoff).Find(&rows).Error
	return rows, err
}
