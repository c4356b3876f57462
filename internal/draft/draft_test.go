package draft_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/draft"
	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/tenancy"
	"github.com/saborhub/ordercore/internal/testutil"
)

func newSvc(t *testing.T) (*draft.Service, context.Context) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := draft.NewService(db, bus, 30*time.Minute, 2*time.Hour)
	ctx := tenancy.WithTenant(context.Background(), uuid.New())
	return svc, ctx
}

func TestCreateAndSubmit(t *testing.T) {
	svc, ctx := newSvc(t)
	session := uuid.New()

	d, err := svc.Create(ctx, session)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusDraft, d.Status)
	require.EqualValues(t, 1, d.Version)

	submitted, err := svc.Submit(ctx, d.ID, d.Version)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusPending, submitted.Status)
	require.EqualValues(t, 2, submitted.Version)
}

func TestSetLineItemsComputesTotals(t *testing.T) {
	svc, ctx := newSvc(t)
	d, err := svc.Create(ctx, uuid.New())
	require.NoError(t, err)

	items := []draft.LineItemInput{
		{MenuItemID: uuid.New(), Name: "Burger", Quantity: 2, PriceAtOrder: decimal.NewFromFloat(10.00)},
		{MenuItemID: uuid.New(), Name: "Fries", Quantity: 1, PriceAtOrder: decimal.NewFromFloat(4.50)},
	}
	updated, err := svc.SetLineItems(ctx, d.ID, d.Version, items, decimal.NewFromFloat(0.08), decimal.Zero)
	require.NoError(t, err)
	require.True(t, updated.Subtotal.Equal(decimal.NewFromFloat(24.50)))
	require.True(t, updated.TaxAmount.Equal(decimal.NewFromFloat(1.96)))
}

// TestLockConflict covers spec scenario S2: a second waiter's acquire
// fails while the first waiter's lease is still active.
func TestLockConflict(t *testing.T) {
	svc, ctx := newSvc(t)
	d, err := svc.Create(ctx, uuid.New())
	require.NoError(t, err)
	d, err = svc.Submit(ctx, d.ID, d.Version)
	require.NoError(t, err)

	waiterA := uuid.New()
	waiterB := uuid.New()

	locked, err := svc.AcquireLock(ctx, d.ID, d.Version, waiterA)
	require.NoError(t, err)

	_, err = svc.AcquireLock(ctx, d.ID, locked.Version, waiterB)
	require.ErrorIs(t, err, apperr.ErrLockConflict)
}

// TestVersionConflict covers spec scenario S3.
func TestVersionConflict(t *testing.T) {
	svc, ctx := newSvc(t)
	d, err := svc.Create(ctx, uuid.New())
	require.NoError(t, err)

	_, err = svc.Submit(ctx, d.ID, d.Version+1)
	require.ErrorIs(t, err, apperr.ErrVersionConflict)
}

// TestConfirmIsIdempotent covers spec property P3: re-confirming an
// already-confirmed draft returns the same order without creating a
// second one.
func TestConfirmIsIdempotent(t *testing.T) {
	svc, ctx := newSvc(t)
	d, err := svc.Create(ctx, uuid.New())
	require.NoError(t, err)
	d, err = svc.Submit(ctx, d.ID, d.Version)
	require.NoError(t, err)

	waiter := uuid.New()
	d, err = svc.AcquireLock(ctx, d.ID, d.Version, waiter)
	require.NoError(t, err)

	first, err := svc.Confirm(ctx, d.ID, d.Version, waiter)
	require.NoError(t, err)

	second, err := svc.Confirm(ctx, d.ID, first.Draft.Version, waiter)
	require.NoError(t, err)
	require.Equal(t, first.Order.ID, second.Order.ID)
}

// TestExpireOneRequiresPastExpiry covers spec scenario S4's guard.
func TestExpireOneRequiresPastExpiry(t *testing.T) {
	svc, ctx := newSvc(t)
	d, err := svc.Create(ctx, uuid.New())
	require.NoError(t, err)
	d, err = svc.Submit(ctx, d.ID, d.Version)
	require.NoError(t, err)

	_, err = svc.ExpireOne(ctx, d.ID, d.Version)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}
