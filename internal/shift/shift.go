// Package shift implements the shift and cash-ledger lifecycle of spec
// section 4.G: open/close/reconcile transitions and the append-only
// cash-drawer ledger, grounded on the donor's CAS transition pattern and
// the original's Shift model's break-time and variance helpers
// (supplemented feature per SPEC_FULL.md).
package shift

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/tenancy"
)

var allowedTransitions = map[models.ShiftStatus][]models.ShiftStatus{
	models.ShiftStatusOpening: {models.ShiftStatusActive},
	models.ShiftStatusActive:  {models.ShiftStatusClosing},
	models.ShiftStatusClosing: {models.ShiftStatusClosed},
	models.ShiftStatusClosed:  {models.ShiftStatusReconciled},
}

func validateTransition(current, next models.ShiftStatus) error {
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
	db  *gorm.DB
	bus *events.Bus
}

func NewService(db *gorm.DB, bus *events.Bus) *Service {
	return &Service{db: db, bus: bus}
}

// Open starts a shift for a server, enforcing at most one active shift
// per server (spec 4.G invariant).
func (s *Service) Open(ctx context.Context, serverID, locationID uuid.UUID, openedBy uuid.UUID, openingBalance decimal.Decimal, notes *string) (*models.Shift, error) {
	tenantID, _ := tenancy.TenantFromContext(ctx)
	var shift *models.Shift
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var activeCount int64
		if err := tenancy.Scope(ctx, tx).Model(&models.Shift{}).
			Where("server_id = ? AND status IN ?", serverID, []models.ShiftStatus{models.ShiftStatusOpening, models.ShiftStatusActive, models.ShiftStatusClosing}).
			Count(&activeCount).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "check active shift", err)
		}
		if activeCount > 0 {
			return apperr.ErrShiftAlreadyActive
		}

		now := time.Now().UTC()
		sh := &models.Shift{
			ID: uuid.New(), TenantID: tenantID, ServerID: serverID, LocationID: locationID,
			Status: models.ShiftStatusActive, Version: 1,
			OpenedAt: now, OpeningBalance: openingBalance, OpeningNotes: notes, OpenedBy: openedBy,
		}
		if err := tenancy.Scope(ctx, tx).Create(sh).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "create shift", err)
		}

		ev := &models.CashDrawerEvent{
			ID: uuid.New(), TenantID: tenantID, ShiftID: sh.ID, EventType: models.CashEventOpeningBalance,
			Amount: openingBalance, BalanceAfter: openingBalance, PerformedBy: openedBy, CreatedAt: now,
		}
		if err := tenancy.Scope(ctx, tx).Create(ev).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "record opening balance", err)
		}

		shift = sh
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.ShiftOpened{ShiftID: shift.ID, ServerID: serverID})
	return shift, nil
}

// AddBreakTime accumulates break duration on an active shift (feature
// supplemented from the original's add_break_time method).
func (s *Service) AddBreakTime(ctx context.Context, shiftID uuid.UUID, expectedVersion int64, minutes int) (*models.Shift, error) {
	var result *models.Shift
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, shiftID, expectedVersion, func(sh *models.Shift) int64 { return sh.Version }, func(sh *models.Shift) error {
			if sh.Status != models.ShiftStatusActive {
				return apperr.ErrShiftInvalidState
			}
			sh.TotalBreakTimeMinutes += minutes
			sh.BreakCount++
			sh.Version++
			return nil
		})
		result = row
		return err
	})
	return result, err
}

// BeginClosing moves an active shift into the closing state, where cash
// counts can be recorded. Payments completed by the shift's server and
// cash ledger events are still credited to a closing shift.
func (s *Service) BeginClosing(ctx context.Context, shiftID uuid.UUID, expectedVersion int64, closedBy uuid.UUID) (*models.Shift, error) {
	var result *models.Shift
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, shiftID, expectedVersion, func(sh *models.Shift) int64 { return sh.Version }, func(sh *models.Shift) error {
			if err := validateTransition(sh.Status, models.ShiftStatusClosing); err != nil {
				return err
			}
			sh.Status = models.ShiftStatusClosing
			sh.Version++
			return nil
		})
		result = row
		return err
	})
	return result, err
}

// RecordCashCounts captures the counted drawer totals at close-out and
// advances the shift to closed (spec 4.G "record_cash_counts").
func (s *Service) RecordCashCounts(ctx context.Context, shiftID uuid.UUID, expectedVersion int64, closedBy uuid.UUID, cashCount, cardCount decimal.Decimal, notes *string) (*models.Shift, error) {
	var result *models.Shift
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, shiftID, expectedVersion, func(sh *models.Shift) int64 { return sh.Version }, func(sh *models.Shift) error {
			if err := validateTransition(sh.Status, models.ShiftStatusClosed); err != nil {
				return err
			}
			now := time.Now().UTC()
			sh.ClosingCashCount = &cashCount
			sh.CardCount = &cardCount
			sh.ClosingNotes = notes
			sh.Status = models.ShiftStatusClosed
			sh.ClosedAt = &now
			sh.ClosedBy = &closedBy
			sh.Version++
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.ShiftClosed{ShiftID: result.ID, ServerID: result.ServerID})
	return result, nil
}

// Reconcile computes expected cash and variance (spec property P9:
// expected_cash = opening_balance + sum(cash-ledger deltas);
// cash_variance = closing_cash_count - expected_cash) and advances the
// shift to reconciled.
func (s *Service) Reconcile(ctx context.Context, shiftID uuid.UUID, expectedVersion int64, reconciledBy uuid.UUID, notes *string) (*models.Shift, error) {
	var result *models.Shift
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var shift models.Shift
		if err := tenancy.Scope(ctx, tx).First(&shift, "id = ?", shiftID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.ErrNotFound
			}
			return apperr.Wrap(apperr.KindInternal, "load shift", err)
		}
		if err := validateTransition(shift.Status, models.ShiftStatusReconciled); err != nil {
			return err
		}
		if shift.ClosingCashCount == nil {
			return apperr.ErrShiftInvalidState
		}
		if shift.Version != expectedVersion {
			return apperr.ErrVersionConflict
		}

		var deltaSum decimal.Decimal
		row := tx.Model(&models.CashDrawerEvent{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("shift_id = ? AND event_type != ?", shiftID, models.CashEventOpeningBalance).Row()
		var sumStr string
		if err := row.Scan(&sumStr); err == nil {
			if parsed, perr := decimal.NewFromString(sumStr); perr == nil {
				deltaSum = parsed
			}
		}
		expected := shift.OpeningBalance.Add(deltaSum)
		variance := shift.ClosingCashCount.Sub(expected)
		isOver := variance.GreaterThan(decimal.Zero)

		now := time.Now().UTC()
		shift.ExpectedCash = &expected
		shift.CashVariance = &variance
		shift.IsOver = &isOver
		shift.ReconciliationNotes = notes
		shift.Status = models.ShiftStatusReconciled
		shift.ReconciledAt = &now
		shift.ReconciledBy = &reconciledBy
		shift.Version++
		if err := tenancy.Scope(ctx, tx).Save(&shift).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "save reconciled shift", err)
		}
		result = &shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.ShiftReconciled{ShiftID: result.ID, ServerID: result.ServerID, CashVariance: result.CashVariance.StringFixed(2)})
	return result, nil
}

// AppendCashEvent records one append-only ledger entry, chaining
// balance_after from the shift's running total (spec property P10).
// Approval-requiring event types (cash_drop, cash_adjustment,
// cash_shortage) must supply approvedBy.
func (s *Service) AppendCashEvent(ctx context.Context, shiftID uuid.UUID, eventType models.CashDrawerEventType, amount decimal.Decimal, performedBy uuid.UUID, approvedBy *uuid.UUID, note *string) (*models.CashDrawerEvent, error) {
	if eventType.RequiresApproval() && approvedBy == nil {
		return nil, apperr.ErrApprovalRequired
	}
	tenantID, _ := tenancy.TenantFromContext(ctx)
	var created *models.CashDrawerEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var shift models.Shift
		if err := tenancy.Scope(ctx, tx).First(&shift, "id = ?", shiftID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.ErrNotFound
			}
			return apperr.Wrap(apperr.KindInternal, "load shift", err)
		}
		if shift.Status != models.ShiftStatusActive && shift.Status != models.ShiftStatusClosing {
			return apperr.ErrShiftInvalidState
		}

		var last models.CashDrawerEvent
		running := decimal.Zero
		err := tenancy.Scope(ctx, tx).Where("shift_id = ?", shiftID).Order("created_at DESC").First(&last).Error
		if err == nil {
			running = last.BalanceAfter
		} else if err != gorm.ErrRecordNotFound {
			return apperr.Wrap(apperr.KindInternal, "load last ledger entry", err)
		}

		ev := &models.CashDrawerEvent{
			ID: uuid.New(), TenantID: tenantID, ShiftID: shiftID, EventType: eventType,
			Amount: amount, BalanceAfter: running.Add(amount), PerformedBy: performedBy,
			ApprovedBy: approvedBy, Note: note, CreatedAt: time.Now().UTC(),
		}
		if err := tenancy.Scope(ctx, tx).Create(ev).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "create cash event", err)
		}
		created = ev
		return nil
	})
	return created, err
}

// Duration reports the elapsed wall-clock time of a shift, supplemented
// from the original's get_duration_hours.
func Duration(sh *models.Shift) time.Duration {
	end := time.Now().UTC()
	if sh.ClosedAt != nil {
		end = *sh.ClosedAt
	}
	return end.Sub(sh.OpenedAt)
}

// VarianceDescription renders a human-readable variance summary,
// supplemented from the original's get_variance_description.
func VarianceDescription(sh *models.Shift) string {
	if sh.CashVariance == nil {
		return "not yet reconciled"
	}
	if sh.CashVariance.IsZero() {
		return "balanced"
	}
	if sh.CashVariance.IsNegative() {
		return "short by " + sh.CashVariance.Abs().StringFixed(2)
	}
	return "over by " + sh.CashVariance.StringFixed(2)
}
