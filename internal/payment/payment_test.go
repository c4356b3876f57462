package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/payment"
	"github.com/saborhub/ordercore/internal/tenancy"
	"github.com/saborhub/ordercore/internal/testutil"
)

func TestCompleteCashSettlesAndOpensLedger(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := payment.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	now := time.Now().UTC()

	order := &models.Order{
		ID: uuid.New(), TenantID: tenantID, TableSessionID: uuid.New(), DraftOrderID: uuid.New(),
		Status: models.OrderStatusPending, Version: 1,
		Subtotal: decimal.NewFromInt(20), TotalAmount: decimal.NewFromInt(20),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(order).Error)

	shift := &models.Shift{
		ID: uuid.New(), TenantID: tenantID, ServerID: uuid.New(), LocationID: uuid.New(),
		Status: models.ShiftStatusActive, Version: 1, OpenedAt: now, OpenedBy: uuid.New(),
	}
	require.NoError(t, db.Create(shift).Error)

	server := uuid.New()
	intent, err := svc.CreateIntent(ctx, order.ID, models.PaymentMethodCash, decimal.NewFromInt(20), server, nil)
	require.NoError(t, err)

	p, err := svc.CompleteCash(ctx, intent.ID, shift.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, p.Status)

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	require.Equal(t, models.OrderStatusPaid, reloaded.Status)

	var ledgerCount int64
	db.Model(&models.CashDrawerEvent{}).Where("shift_id = ?", shift.ID).Count(&ledgerCount)
	require.EqualValues(t, 1, ledgerCount)
}

func TestSplitPaymentRejectsMismatchedSum(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := payment.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	now := time.Now().UTC()

	order := &models.Order{
		ID: uuid.New(), TenantID: tenantID, TableSessionID: uuid.New(), DraftOrderID: uuid.New(),
		Status: models.OrderStatusPending, Version: 1,
		Subtotal: decimal.NewFromInt(20), TotalAmount: decimal.NewFromInt(20),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(order).Error)

	_, err := svc.CompleteSplit(ctx, order.ID, uuid.New(), []payment.SplitAllocation{
		{Method: models.PaymentMethodCash, Amount: decimal.NewFromInt(5)},
		{Method: models.PaymentMethodCard, Amount: decimal.NewFromInt(5)},
	})
	require.Error(t, err)
}

func TestSplitPaymentWithinToleranceSucceeds(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := payment.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	now := time.Now().UTC()

	order := &models.Order{
		ID: uuid.New(), TenantID: tenantID, TableSessionID: uuid.New(), DraftOrderID: uuid.New(),
		Status: models.OrderStatusPending, Version: 1,
		Subtotal: decimal.NewFromInt(20), TotalAmount: decimal.NewFromInt(20),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(order).Error)

	payments, err := svc.CompleteSplit(ctx, order.ID, uuid.New(), []payment.SplitAllocation{
		{Method: models.PaymentMethodCash, Amount: decimal.NewFromFloat(10.00)},
		{Method: models.PaymentMethodCard, Amount: decimal.NewFromFloat(10.00)},
	})
	require.NoError(t, err)
	require.Len(t, payments, 2)

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	require.Equal(t, models.OrderStatusPaid, reloaded.Status)
}

func TestWebhookIdempotency(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := payment.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	now := time.Now().UTC()

	order := &models.Order{
		ID: uuid.New(), TenantID: tenantID, TableSessionID: uuid.New(), DraftOrderID: uuid.New(),
		Status: models.OrderStatusPending, Version: 1,
		Subtotal: decimal.NewFromInt(20), TotalAmount: decimal.NewFromInt(20),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(order).Error)

	idempotencyKey := "mp-ref-1"
	intent, err := svc.CreateIntent(ctx, order.ID, models.PaymentMethodQR, decimal.NewFromInt(20), uuid.New(), &idempotencyKey)
	require.NoError(t, err)

	payload := payment.WebhookPayload{
		Provider: "mercadopago", ExternalReference: idempotencyKey, Status: "approved",
	}
	require.NoError(t, svc.IngestWebhook(ctx, payload))

	var count int64
	db.Model(&models.Payment{}).Where("payment_intent_id = ?", intent.ID).Count(&count)
	require.EqualValues(t, 1, count)

	// Re-delivering the same webhook must not create a second payment.
	require.NoError(t, svc.IngestWebhook(ctx, payload))
	db.Model(&models.Payment{}).Where("payment_intent_id = ?", intent.ID).Count(&count)
	require.EqualValues(t, 1, count)
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := payment.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	now := time.Now().UTC()

	p := &models.Payment{
		ID: uuid.New(), TenantID: tenantID, PaymentIntentID: uuid.New(), Method: models.PaymentMethodCard,
		Amount: decimal.NewFromInt(10), Status: models.PaymentStatusPending, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(p).Error)

	_, err := svc.RefundOne(ctx, p.ID, models.RefundReasonCustomerRequest, "n/a", uuid.New(), nil, nil)
	require.Error(t, err)
}
