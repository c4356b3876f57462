package ticket_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/tenancy"
	"github.com/saborhub/ordercore/internal/testutil"
	"github.com/saborhub/ordercore/internal/ticket"
)

func TestGenerateForDraft(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := ticket.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	now := time.Now().UTC()

	station := &models.MenuStation{ID: uuid.New(), TenantID: tenantID, Name: "Grill", CreatedAt: now}
	course := &models.KitchenCourse{ID: uuid.New(), TenantID: tenantID, Name: "Mains", CourseNumber: 1, AutoFireOnConfirm: true, CreatedAt: now}
	require.NoError(t, db.Create(station).Error)
	require.NoError(t, db.Create(course).Error)

	route := &models.MenuItemRoute{ID: uuid.New(), TenantID: tenantID, Name: "Steak", StationID: &station.ID, CourseID: &course.ID}
	require.NoError(t, db.Create(route).Error)

	draftOrder := &models.DraftOrder{
		ID: uuid.New(), TenantID: tenantID, TableSessionID: uuid.New(),
		Status: models.DraftStatusConfirmed, Version: 1,
		CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, db.Create(draftOrder).Error)

	li := &models.DraftLineItem{
		ID: uuid.New(), TenantID: tenantID, DraftOrderID: draftOrder.ID, MenuItemID: route.ID,
		Name: "Steak", Quantity: 1, PriceAtOrder: decimal.NewFromInt(20), LineTotal: decimal.NewFromInt(20),
		CreatedAt: now,
	}
	require.NoError(t, db.Create(li).Error)

	tickets, err := svc.GenerateForDraft(ctx, draftOrder.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, models.TicketStatusPending, tickets[0].Status)
	require.NotNil(t, tickets[0].FiredAt)

	// idempotent re-generation
	again, err := svc.GenerateForDraft(ctx, draftOrder.ID)
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.Equal(t, tickets[0].ID, again[0].ID)
}

func TestFireAndBump(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := ticket.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	now := time.Now().UTC()

	tk := &models.Ticket{
		ID: uuid.New(), TenantID: tenantID, DraftOrderID: uuid.New(), TableSessionID: uuid.New(),
		StationID: uuid.New(), Status: models.TicketStatusNew, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(tk).Error)

	fired, err := svc.Fire(ctx, tk.ID, tk.Version)
	require.NoError(t, err)
	require.Equal(t, models.TicketStatusPending, fired.Status)
	require.NotNil(t, fired.FiredAt)

	preparing, err := svc.Bump(ctx, tk.ID, fired.Version, models.TicketStatusPreparing)
	require.NoError(t, err)
	require.Equal(t, models.TicketStatusPreparing, preparing.Status)

	ready, err := svc.Bump(ctx, tk.ID, preparing.Version, models.TicketStatusReady)
	require.NoError(t, err)
	require.Equal(t, models.TicketStatusReady, ready.Status)
}

func TestVoidFromTerminalStateRejected(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := ticket.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	now := time.Now().UTC()

	tk := &models.Ticket{
		ID: uuid.New(), TenantID: tenantID, DraftOrderID: uuid.New(), TableSessionID: uuid.New(),
		StationID: uuid.New(), Status: models.TicketStatusCompleted, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(tk).Error)

	_, err := svc.Void(ctx, tk.ID, tk.Version, uuid.New(), "changed mind")
	require.Error(t, err)
}

func TestStationQueueOrdering(t *testing.T) {
	db := testutil.NewDB(t)
	bus := events.NewBus()
	svc := ticket.NewService(db, bus)

	tenantID := uuid.New()
	ctx := tenancy.WithTenant(context.Background(), tenantID)
	station := uuid.New()
	now := time.Now().UTC()

	low := &models.Ticket{
		ID: uuid.New(), TenantID: tenantID, DraftOrderID: uuid.New(), TableSessionID: uuid.New(),
		StationID: station, Status: models.TicketStatusPending, Version: 1,
		CourseNumber: 2, IsRush: false, CreatedAt: now, UpdatedAt: now,
	}
	rush := &models.Ticket{
		ID: uuid.New(), TenantID: tenantID, DraftOrderID: uuid.New(), TableSessionID: uuid.New(),
		StationID: station, Status: models.TicketStatusPending, Version: 1,
		CourseNumber: 3, IsRush: true, CreatedAt: now.Add(time.Minute), UpdatedAt: now,
	}
	require.NoError(t, db.Create(low).Error)
	require.NoError(t, db.Create(rush).Error)

	queue, err := svc.StationQueue(ctx, station, nil)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	require.Equal(t, rush.ID, queue[0].ID)
}
