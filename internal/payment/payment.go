// Package payment implements the payment engine of spec section 4.F:
// the intent-to-payment pipeline, per-method handlers, order status
// coupling, and refunds. Grounded on the donor's swap-gateway order
// pipeline (create intent, external settle, reconcile via webhook).
package payment

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

// qrWindow bounds how long a generated QR code stays payable, matching
// the original's mercadopago integration default.
const qrWindow = 15 * time.Minute

type Service struct {
	db  *gorm.DB
	bus *events.Bus
}

func NewService(db *gorm.DB, bus *events.Bus) *Service {
	return &Service{db: db, bus: bus}
}

// CreateIntent opens a PaymentIntent for one payment method against an
// order (spec 4.F, "Intent creation"). The idempotency key, when
// supplied, lets a retried client request return the existing intent
// rather than create a duplicate.
func (s *Service) CreateIntent(ctx context.Context, orderID uuid.UUID, method models.PaymentMethod, amount decimal.Decimal, initiatedBy uuid.UUID, idempotencyKey *string) (*models.PaymentIntent, error) {
	tenantID, _ := tenancy.TenantFromContext(ctx)

	if idempotencyKey != nil {
		var existing models.PaymentIntent
		err := tenancy.Scope(ctx, s.db.WithContext(ctx)).First(&existing, "idempotency_key = ?", *idempotencyKey).Error
		if err == nil {
			return &existing, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, apperr.Wrap(apperr.KindInternal, "check idempotency key", err)
		}
	}

	now := time.Now().UTC()
	intent := &models.PaymentIntent{
		ID:                uuid.New(),
		TenantID:          tenantID,
		OrderID:           orderID,
		Method:            method,
		Amount:            amount,
		Currency:          "USD",
		Status:            models.PaymentIntentPending,
		Version:           1,
		InitiatedByUserID: initiatedBy,
		IdempotencyKey:    idempotencyKey,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if method == models.PaymentMethodQR {
		expires := now.Add(qrWindow)
		intent.QRExpiresAt = &expires
		intent.QRCode = qrPlaceholder(intent.ID)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tenancy.Scope(ctx, tx).Create(intent).Error
	}); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create payment intent", err)
	}
	return intent, nil
}

func qrPlaceholder(intentID uuid.UUID) *string {
	code := "qr:" + intentID.String()
	return &code
}

// CompleteCash settles a cash intent synchronously: it creates the
// Payment row, appends a payment_in cash-drawer event against the
// server's active shift, and updates order status — all in one
// transaction, matching spec 4.F's cash method handler.
func (s *Service) CompleteCash(ctx context.Context, intentID uuid.UUID, shiftID uuid.UUID) (*models.Payment, error) {
	var payment *models.Payment
	var orderID, tableSessionID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var intent models.PaymentIntent
		if err := tenancy.Scope(ctx, tx).First(&intent, "id = ?", intentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.ErrNotFound
			}
			return apperr.Wrap(apperr.KindInternal, "load intent", err)
		}
		if intent.Method != models.PaymentMethodCash {
			return apperr.ErrInvalidTransition
		}
		if intent.Status != models.PaymentIntentPending {
			return apperr.ErrInvalidTransition
		}
		orderID = intent.OrderID
		now := time.Now().UTC()

		p := &models.Payment{
			ID:              uuid.New(),
			TenantID:        intent.TenantID,
			PaymentIntentID: intent.ID,
			Method:          models.PaymentMethodCash,
			Amount:          intent.Amount,
			Status:          models.PaymentStatusCompleted,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tenancy.Scope(ctx, tx).Create(p).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "create payment", err)
		}

		intent.Status = models.PaymentIntentCompleted
		intent.ProcessedAt = &now
		intent.UpdatedAt = now
		intent.Version++
		if err := tenancy.Scope(ctx, tx).Save(&intent).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "update intent", err)
		}

		sh, err := appendCashEvent(ctx, tx, shiftID, intent.TenantID, models.CashEventPaymentIn, intent.Amount, &p.ID, &orderID, intent.InitiatedByUserID, nil)
		if err != nil {
			return err
		}
		if err := creditShiftSales(ctx, tx, sh, models.PaymentMethodCash, intent.Amount, decimal.Zero); err != nil {
			return apperr.Wrap(apperr.KindInternal, "update shift sales", err)
		}

		order, err := s.applyPaymentToOrder(ctx, tx, orderID, p.ID, p.Amount)
		if err != nil {
			return err
		}
		tableSessionID = order.TableSessionID

		payment = p
		return nil
	})
	if err != nil {
		metrics.PaymentOutcomes.WithLabelValues(string(models.PaymentMethodCash), "failed").Inc()
		return nil, err
	}
	metrics.PaymentOutcomes.WithLabelValues(string(models.PaymentMethodCash), "completed").Inc()
	s.bus.Publish(events.PaymentCompleted{PaymentID: payment.ID, OrderID: orderID, TableSessionID: tableSessionID})
	return payment, nil
}

// RecordAsyncStart moves a terminal/card/QR intent to in_progress once
// the external provider call has been dispatched (spec 4.F: the
// non-cash methods settle later, via webhook or explicit confirm).
func (s *Service) RecordAsyncStart(ctx context.Context, intentID uuid.UUID, expectedVersion int64) (*models.PaymentIntent, error) {
	var result *models.PaymentIntent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, intentID, expectedVersion, func(pi *models.PaymentIntent) int64 { return pi.Version }, func(pi *models.PaymentIntent) error {
			if pi.Status != models.PaymentIntentPending {
				return apperr.ErrInvalidTransition
			}
			pi.Status = models.PaymentIntentInProgress
			pi.Version++
			pi.UpdatedAt = time.Now().UTC()
			return nil
		})
		result = row
		return err
	})
	return result, err
}

// CompleteAsync finalizes a terminal/card/QR intent into a completed
// Payment, coupling the owning order's status. Called by the webhook
// handler once a provider reports success.
func (s *Service) CompleteAsync(ctx context.Context, intentID uuid.UUID, terminalRef, cardLast4 *string) (*models.Payment, error) {
	var payment *models.Payment
	var orderID, tableSessionID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var intent models.PaymentIntent
		if err := tenancy.Scope(ctx, tx).First(&intent, "id = ?", intentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.ErrNotFound
			}
			return apperr.Wrap(apperr.KindInternal, "load intent", err)
		}
		if intent.Status != models.PaymentIntentPending && intent.Status != models.PaymentIntentInProgress {
			return apperr.ErrInvalidTransition
		}
		orderID = intent.OrderID
		now := time.Now().UTC()

		p := &models.Payment{
			ID:                  uuid.New(),
			TenantID:            intent.TenantID,
			PaymentIntentID:     intent.ID,
			Method:              intent.Method,
			Amount:              intent.Amount,
			Status:              models.PaymentStatusCompleted,
			Version:             1,
			TerminalReferenceID: terminalRef,
			CardLast4:           cardLast4,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tenancy.Scope(ctx, tx).Create(p).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "create payment", err)
		}

		intent.Status = models.PaymentIntentCompleted
		intent.ProcessedAt = &now
		intent.UpdatedAt = now
		intent.Version++
		if err := tenancy.Scope(ctx, tx).Save(&intent).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "update intent", err)
		}

		if sh := activeShiftForServer(ctx, tx, intent.InitiatedByUserID); sh != nil {
			if err := creditShiftSales(ctx, tx, sh, intent.Method, intent.Amount, intent.TipAmount); err != nil {
				return apperr.Wrap(apperr.KindInternal, "update shift sales", err)
			}
		}

		order, err := s.applyPaymentToOrder(ctx, tx, orderID, p.ID, p.Amount)
		if err != nil {
			return err
		}
		tableSessionID = order.TableSessionID
		payment = p
		return nil
	})
	if err != nil {
		metrics.PaymentOutcomes.WithLabelValues("async", "failed").Inc()
		return nil, err
	}
	metrics.PaymentOutcomes.WithLabelValues(string(payment.Method), "completed").Inc()
	s.bus.Publish(events.PaymentCompleted{PaymentID: payment.ID, OrderID: orderID, TableSessionID: tableSessionID})
	return payment, nil
}

// FailIntent marks an intent failed without creating a Payment.
func (s *Service) FailIntent(ctx context.Context, intentID uuid.UUID, expectedVersion int64, reason string) (*models.PaymentIntent, error) {
	var result *models.PaymentIntent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, intentID, expectedVersion, func(pi *models.PaymentIntent) int64 { return pi.Version }, func(pi *models.PaymentIntent) error {
			if pi.Status == models.PaymentIntentCompleted || pi.Status == models.PaymentIntentCancelled {
				return apperr.ErrInvalidTransition
			}
			now := time.Now().UTC()
			pi.Status = models.PaymentIntentFailed
			pi.FailedReason = &reason
			pi.FailedAt = &now
			pi.Version++
			pi.UpdatedAt = now
			return nil
		})
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.PaymentOutcomes.WithLabelValues(string(result.Method), "failed").Inc()
	var order models.Order
	_ = tenancy.Scope(ctx, s.db.WithContext(ctx)).Select("table_session_id").First(&order, "id = ?", result.OrderID).Error
	s.bus.Publish(events.PaymentFailed{OrderID: result.OrderID, TableSessionID: order.TableSessionID, Reason: reason})
	return result, nil
}

// CancelIntent marks an intent cancelled and fails off any payment that
// was still pending or processing against it (spec 4.F's webhook
// "cancelled" handler: "cancel the intent and fail any pending
// payment").
func (s *Service) CancelIntent(ctx context.Context, intentID uuid.UUID, expectedVersion int64, reason string) (*models.PaymentIntent, error) {
	var result *models.PaymentIntent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := tenancy.CAS(ctx, tx, intentID, expectedVersion, func(pi *models.PaymentIntent) int64 { return pi.Version }, func(pi *models.PaymentIntent) error {
			if pi.Status == models.PaymentIntentCompleted {
				return apperr.ErrInvalidTransition
			}
			now := time.Now().UTC()
			pi.Status = models.PaymentIntentCancelled
			pi.CancelledReason = &reason
			pi.CancelledAt = &now
			pi.Version++
			pi.UpdatedAt = now
			return nil
		})
		if err != nil {
			return err
		}
		result = row

		var pending []models.Payment
		if err := tenancy.Scope(ctx, tx).Where("payment_intent_id = ? AND status IN ?", intentID, []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusProcessing}).Find(&pending).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "load pending payments", err)
		}
		for i := range pending {
			pending[i].Status = models.PaymentStatusFailed
			pending[i].Version++
			pending[i].UpdatedAt = time.Now().UTC()
			if err := tenancy.Scope(ctx, tx).Save(&pending[i]).Error; err != nil {
				return apperr.Wrap(apperr.KindInternal, "fail pending payment", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.PaymentOutcomes.WithLabelValues(string(result.Method), "cancelled").Inc()
	var order models.Order
	_ = tenancy.Scope(ctx, s.db.WithContext(ctx)).Select("table_session_id").First(&order, "id = ?", result.OrderID).Error
	s.bus.Publish(events.PaymentFailed{OrderID: result.OrderID, TableSessionID: order.TableSessionID, Reason: reason})
	return result, nil
}

// SplitAllocation is one (method, amount) pair of a split payment.
type SplitAllocation struct {
	Method models.PaymentMethod
	Amount decimal.Decimal
}

// splitTolerance is the 1-cent rounding slack spec 4.F allows when
// validating that split allocations sum to the order total.
var splitTolerance = decimal.NewFromFloat(0.01)

// CompleteSplit settles a split intent as several independent payments,
// each allocated against the order via OrderPayment, enforcing that the
// allocations sum to the order total within a penny.
func (s *Service) CompleteSplit(ctx context.Context, orderID uuid.UUID, initiatedBy uuid.UUID, allocations []SplitAllocation) ([]models.Payment, error) {
	var order models.Order
	if err := tenancy.Scope(ctx, s.db.WithContext(ctx)).First(&order, "id = ?", orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load order", err)
	}
	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(a.Amount)
	}
	if sum.Sub(order.TotalAmount).Abs().GreaterThan(splitTolerance) {
		return nil, apperr.New(apperr.KindValidation, "split allocations do not sum to order total")
	}

	var created []models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range allocations {
			now := time.Now().UTC()
			intent := &models.PaymentIntent{
				ID: uuid.New(), TenantID: order.TenantID, OrderID: orderID, Method: a.Method,
				Amount: a.Amount, Currency: "USD", Status: models.PaymentIntentCompleted, Version: 1,
				InitiatedByUserID: initiatedBy, CreatedAt: now, UpdatedAt: now, ProcessedAt: &now,
			}
			if err := tenancy.Scope(ctx, tx).Create(intent).Error; err != nil {
				return apperr.Wrap(apperr.KindInternal, "create split intent", err)
			}
			p := &models.Payment{
				ID: uuid.New(), TenantID: order.TenantID, PaymentIntentID: intent.ID, Method: a.Method,
				Amount: a.Amount, Status: models.PaymentStatusCompleted, Version: 1,
				CreatedAt: now, UpdatedAt: now,
			}
			if err := tenancy.Scope(ctx, tx).Create(p).Error; err != nil {
				return apperr.Wrap(apperr.KindInternal, "create split payment", err)
			}
			if sh := activeShiftForServer(ctx, tx, initiatedBy); sh != nil {
				if err := creditShiftSales(ctx, tx, sh, a.Method, a.Amount, decimal.Zero); err != nil {
					return apperr.Wrap(apperr.KindInternal, "update shift sales", err)
				}
			}
			if _, err := s.applyPaymentToOrder(ctx, tx, orderID, p.ID, p.Amount); err != nil {
				return err
			}
			created = append(created, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range created {
		metrics.PaymentOutcomes.WithLabelValues(string(p.Method), "completed").Inc()
		s.bus.Publish(events.PaymentCompleted{PaymentID: p.ID, OrderID: orderID, TableSessionID: order.TableSessionID})
	}
	return created, nil
}

// applyPaymentToOrder implements spec 4.F's order status coupling
// formula: paid_sum = sum(completed payments' allocated amounts);
// status becomes partially_paid if 0 < paid_sum < total, paid if
// paid_sum >= total.
func (s *Service) applyPaymentToOrder(ctx context.Context, tx *gorm.DB, orderID, paymentID uuid.UUID, amount decimal.Decimal) (*models.Order, error) {
	op := &models.OrderPayment{
		ID: uuid.New(), TenantID: mustTenant(ctx), OrderID: orderID, PaymentID: paymentID,
		AllocatedAmount: amount, CreatedAt: time.Now().UTC(),
	}
	if err := tenancy.Scope(ctx, tx).Create(op).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create order payment", err)
	}

	var order models.Order
	if err := tenancy.Scope(ctx, tx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load order", err)
	}
	var paidSum decimal.Decimal
	row := tx.Table("order_payments").
		Joins("JOIN payments ON payments.id = order_payments.payment_id").
		Where("order_payments.order_id = ? AND payments.status = ?", orderID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(order_payments.allocated_amount), 0)").Row()
	var sumStr string
	if err := row.Scan(&sumStr); err == nil {
		if parsed, perr := decimal.NewFromString(sumStr); perr == nil {
			paidSum = parsed
		}
	}

	switch {
	case paidSum.GreaterThanOrEqual(order.TotalAmount):
		order.Status = models.OrderStatusPaid
	case paidSum.GreaterThan(decimal.Zero):
		order.Status = models.OrderStatusPartiallyPaid
	}
	order.UpdatedAt = time.Now().UTC()
	if err := tenancy.Scope(ctx, tx).Save(&order).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "update order status", err)
	}
	return &order, nil
}

// recomputeOrderStatus re-derives an order's status from its still-
// completed payments, excluding any that have since been refunded
// (spec property P7: paid/completed requires completed-payment
// coverage at least equal to total). Used after a refund drops an
// order's coverage back below the threshold that earned it Paid.
func (s *Service) recomputeOrderStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := tenancy.Scope(ctx, tx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load order", err)
	}

	var paidSum decimal.Decimal
	row := tx.Table("order_payments").
		Joins("JOIN payments ON payments.id = order_payments.payment_id").
		Where("order_payments.order_id = ? AND payments.status = ?", orderID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(order_payments.allocated_amount), 0)").Row()
	var sumStr string
	if err := row.Scan(&sumStr); err == nil {
		if parsed, perr := decimal.NewFromString(sumStr); perr == nil {
			paidSum = parsed
		}
	}

	switch {
	case paidSum.GreaterThan(decimal.Zero) && paidSum.GreaterThanOrEqual(order.TotalAmount):
		order.Status = models.OrderStatusPaid
	case paidSum.GreaterThan(decimal.Zero):
		order.Status = models.OrderStatusPartiallyPaid
	case order.Status == models.OrderStatusPaid || order.Status == models.OrderStatusPartiallyPaid:
		order.Status = models.OrderStatusPending
	}
	order.UpdatedAt = time.Now().UTC()
	if err := tenancy.Scope(ctx, tx).Save(&order).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "update order status", err)
	}
	return &order, nil
}

func mustTenant(ctx context.Context) uuid.UUID {
	t, _ := tenancy.TenantFromContext(ctx)
	return t
}

// appendCashEvent writes one entry to the append-only cash ledger,
// chaining balance_after from the shift's running balance (spec
// property P10). approvedBy is required for event types that
// CashDrawerEventType.RequiresApproval(). The referenced shift must be
// active or closing, matching shift.Service.AppendCashEvent's own
// guard; it is returned so callers can update its rolling sales totals
// inside the same transaction.
func appendCashEvent(ctx context.Context, tx *gorm.DB, shiftID, tenantID uuid.UUID, eventType models.CashDrawerEventType, amount decimal.Decimal, paymentID, orderID *uuid.UUID, performedBy uuid.UUID, approvedBy *uuid.UUID) (*models.Shift, error) {
	if eventType.RequiresApproval() && approvedBy == nil {
		return nil, apperr.ErrApprovalRequired
	}
	var sh models.Shift
	if err := tenancy.Scope(ctx, tx).First(&sh, "id = ?", shiftID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load shift", err)
	}
	if sh.Status != models.ShiftStatusActive && sh.Status != models.ShiftStatusClosing {
		return nil, apperr.ErrShiftInvalidState
	}

	var last models.CashDrawerEvent
	running := decimal.Zero
	err := tenancy.Scope(ctx, tx).Where("shift_id = ?", shiftID).Order("created_at DESC").First(&last).Error
	if err == nil {
		running = last.BalanceAfter
	} else if err != gorm.ErrRecordNotFound {
		return nil, apperr.Wrap(apperr.KindInternal, "load last cash event", err)
	}
	ev := &models.CashDrawerEvent{
		ID: uuid.New(), TenantID: tenantID, ShiftID: shiftID, EventType: eventType,
		Amount: amount, BalanceAfter: running.Add(amount), PaymentID: paymentID, OrderID: orderID,
		PerformedBy: performedBy, ApprovedBy: approvedBy, CreatedAt: time.Now().UTC(),
	}
	if err := tenancy.Scope(ctx, tx).Create(ev).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "create cash event", err)
	}
	return &sh, nil
}

// creditShiftSales adds a completed payment's amount to the owning
// shift's rolling sales total (spec 4.F: "update shift.cash_sales"),
// routing by payment method. Tip amounts on the same intent accrue to
// tip_sales independently of the base method split.
func creditShiftSales(ctx context.Context, tx *gorm.DB, sh *models.Shift, method models.PaymentMethod, amount, tip decimal.Decimal) error {
	switch method {
	case models.PaymentMethodCash:
		sh.CashSales = sh.CashSales.Add(amount)
	default:
		sh.CardSales = sh.CardSales.Add(amount)
	}
	if tip.GreaterThan(decimal.Zero) {
		sh.TipSales = sh.TipSales.Add(tip)
	}
	return tenancy.Scope(ctx, tx).Save(sh).Error
}

// activeShiftForServer finds the server's currently open shift, used by
// async payment completion paths (webhook-driven) that are not handed
// an explicit shift id the way CompleteCash's synchronous caller is. A
// server with no active shift simply earns no rolling-sales credit;
// the payment itself still completes.
func activeShiftForServer(ctx context.Context, tx *gorm.DB, serverID uuid.UUID) *models.Shift {
	var sh models.Shift
	err := tenancy.Scope(ctx, tx).
		Where("server_id = ? AND status IN ?", serverID, []models.ShiftStatus{models.ShiftStatusActive, models.ShiftStatusClosing}).
		Order("opened_at DESC").First(&sh).Error
	if err != nil {
		return nil
	}
	return &sh
}

// RefundOne issues a refund against a completed payment. Spec 4.F
// allows at most one completed refund per payment (the full-refund-only
// Open Question resolved in DESIGN.md). A cash refund also appends a
// cash_shortage ledger event requiring approval to the shift named by
// shiftID; when shiftID is nil no ledger event is written.
func (s *Service) RefundOne(ctx context.Context, paymentID uuid.UUID, reasonCode models.RefundReasonCode, reason string, createdBy uuid.UUID, shiftID *uuid.UUID, approvedBy *uuid.UUID) (*models.Refund, error) {
	var refund *models.Refund
	var tableSessionID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := tenancy.Scope(ctx, tx).First(&payment, "id = ?", paymentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.ErrNotFound
			}
			return apperr.Wrap(apperr.KindInternal, "load payment", err)
		}
		if payment.Status != models.PaymentStatusCompleted {
			return apperr.ErrInvalidTransition
		}
		var existing int64
		if err := tenancy.Scope(ctx, tx).Model(&models.Refund{}).Where("payment_id = ? AND status = ?", paymentID, models.RefundStatusCompleted).Count(&existing).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "check existing refund", err)
		}
		if existing > 0 {
			return apperr.New(apperr.KindConflict, "payment already refunded")
		}

		now := time.Now().UTC()
		r := &models.Refund{
			ID: uuid.New(), TenantID: payment.TenantID, PaymentID: paymentID, Amount: payment.Amount,
			Status: models.RefundStatusRequested, ReasonCode: reasonCode, Reason: reason,
			CreatedBy: createdBy, CreatedAt: now,
		}
		if err := tenancy.Scope(ctx, tx).Create(r).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "create refund", err)
		}

		r.Status = models.RefundStatusProcessing
		if err := tenancy.Scope(ctx, tx).Save(r).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "advance refund to processing", err)
		}

		payment.Status = models.PaymentStatusRefunded
		payment.RefundedAt = &now
		payment.Version++
		payment.UpdatedAt = now
		if err := tenancy.Scope(ctx, tx).Save(&payment).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "update payment", err)
		}

		if payment.Method == models.PaymentMethodCash && shiftID != nil {
			if _, err := appendCashEvent(ctx, tx, *shiftID, payment.TenantID, models.CashEventCashShortage, payment.Amount.Neg(), &payment.ID, nil, createdBy, approvedBy); err != nil {
				return err
			}
		}

		var intent models.PaymentIntent
		if err := tenancy.Scope(ctx, tx).First(&intent, "id = ?", payment.PaymentIntentID).Error; err == nil {
			order, err := s.recomputeOrderStatus(ctx, tx, intent.OrderID)
			if err != nil {
				return err
			}
			tableSessionID = order.TableSessionID
		}

		completedAt := time.Now().UTC()
		r.Status = models.RefundStatusCompleted
		r.CompletedAt = &completedAt
		if err := tenancy.Scope(ctx, tx).Save(r).Error; err != nil {
			return apperr.Wrap(apperr.KindInternal, "complete refund", err)
		}

		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.RefundCreated{RefundID: refund.ID, PaymentID: paymentID, TableSessionID: tableSessionID})
	return refund, nil
}
