package shift_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/shift"
	"github.com/saborhub/ordercore/internal/tenancy"
	"github.com/saborhub/ordercore/internal/testutil"
)

func newSvc(t *testing.T) (*shift.Service, context.Context) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	ctx := tenancy.WithTenant(context.Background(), uuid.New())
	return shift.NewService(db, bus), ctx
}

func TestOpenRejectsSecondActiveShiftForServer(t *testing.T) {
	svc, ctx := newSvc(t)
	server := uuid.New()
	location := uuid.New()

	_, err := svc.Open(ctx, server, location, uuid.New(), decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	_, err = svc.Open(ctx, server, location, uuid.New(), decimal.NewFromInt(50), nil)
	require.Error(t, err)
}

func TestFullLifecycle(t *testing.T) {
	svc, ctx := newSvc(t)

	sh, err := svc.Open(ctx, uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(100), nil)
	require.NoError(t, err)
	require.Equal(t, models.ShiftStatusActive, sh.Status)

	sh, err = svc.BeginClosing(ctx, sh.ID, sh.Version, uuid.New())
	require.NoError(t, err)
	require.Equal(t, models.ShiftStatusClosing, sh.Status)

	sh, err = svc.RecordCashCounts(ctx, sh.ID, sh.Version, uuid.New(), decimal.NewFromInt(150), decimal.NewFromInt(40), nil)
	require.NoError(t, err)
	require.Equal(t, models.ShiftStatusClosed, sh.Status)

	sh, err = svc.Reconcile(ctx, sh.ID, sh.Version, uuid.New(), nil)
	require.NoError(t, err)
	require.Equal(t, models.ShiftStatusReconciled, sh.Status)
	require.NotNil(t, sh.ExpectedCash)
	require.NotNil(t, sh.CashVariance)
}

func TestReconcileComputesExpectedCashAndVariance(t *testing.T) {
	svc, ctx := newSvc(t)

	sh, err := svc.Open(ctx, uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	// A sale drops cash in; a tip payout takes cash out.
	_, err = svc.AppendCashEvent(ctx, sh.ID, models.CashEventPaymentIn, decimal.NewFromInt(50), uuid.New(), nil, nil)
	require.NoError(t, err)
	_, err = svc.AppendCashEvent(ctx, sh.ID, models.CashEventTipPayout, decimal.NewFromInt(-10), uuid.New(), nil, nil)
	require.NoError(t, err)

	sh, err = svc.BeginClosing(ctx, sh.ID, sh.Version, uuid.New())
	require.NoError(t, err)
	sh, err = svc.RecordCashCounts(ctx, sh.ID, sh.Version, uuid.New(), decimal.NewFromInt(145), decimal.NewFromInt(0), nil)
	require.NoError(t, err)

	sh, err = svc.Reconcile(ctx, sh.ID, sh.Version, uuid.New(), nil)
	require.NoError(t, err)

	// expected = 100 (opening) + 50 - 10 = 140; variance = 145 - 140 = 5 (over)
	require.True(t, sh.ExpectedCash.Equal(decimal.NewFromInt(140)))
	require.True(t, sh.CashVariance.Equal(decimal.NewFromInt(5)))
	require.NotNil(t, sh.IsOver)
	require.True(t, *sh.IsOver)
}

func TestCashLedgerChainsBalanceAfter(t *testing.T) {
	svc, ctx := newSvc(t)

	sh, err := svc.Open(ctx, uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	ev1, err := svc.AppendCashEvent(ctx, sh.ID, models.CashEventPaymentIn, decimal.NewFromInt(30), uuid.New(), nil, nil)
	require.NoError(t, err)
	require.True(t, ev1.BalanceAfter.Equal(decimal.NewFromInt(130)))

	ev2, err := svc.AppendCashEvent(ctx, sh.ID, models.CashEventPaymentIn, decimal.NewFromInt(20), uuid.New(), nil, nil)
	require.NoError(t, err)
	require.True(t, ev2.BalanceAfter.Equal(decimal.NewFromInt(150)))
}

func TestCashDropRequiresApproval(t *testing.T) {
	svc, ctx := newSvc(t)

	sh, err := svc.Open(ctx, uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	_, err = svc.AppendCashEvent(ctx, sh.ID, models.CashEventCashDrop, decimal.NewFromInt(-50), uuid.New(), nil, nil)
	require.Error(t, err)

	approver := uuid.New()
	_, err = svc.AppendCashEvent(ctx, sh.ID, models.CashEventCashDrop, decimal.NewFromInt(-50), uuid.New(), &approver, nil)
	require.NoError(t, err)
}

func TestAddBreakTimeRequiresActiveShift(t *testing.T) {
	svc, ctx := newSvc(t)

	sh, err := svc.Open(ctx, uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	sh, err = svc.AddBreakTime(ctx, sh.ID, sh.Version, 15)
	require.NoError(t, err)
	require.Equal(t, 15, sh.TotalBreakTimeMinutes)
	require.Equal(t, 1, sh.BreakCount)

	sh, err = svc.BeginClosing(ctx, sh.ID, sh.Version, uuid.New())
	require.NoError(t, err)

	_, err = svc.AddBreakTime(ctx, sh.ID, sh.Version, 10)
	require.Error(t, err)
}
