// Package authz implements spec section 4.H: a fixed role → permission
// mapping and per-operation checks, adapted from the donor service's
// Role/RequireRole shape but rebuilt against the hospitality role set.
package authz

import (
	"context"

	"github.com/google/uuid"

	"github.com/saborhub/ordercore/internal/apperr"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleWaiter   Role = "waiter"
	RoleCashier  Role = "cashier"
	RoleKitchen  Role = "kitchen"
	RoleExpo     Role = "expo"
)

type Permission string

const (
	PermDraftWrite     Permission = "draft.write"
	PermDraftApprove   Permission = "draft.approve" // acquire/confirm/reject
	PermTicketWork     Permission = "ticket.work"   // bump/fire/hold
	PermTicketVoid     Permission = "ticket.void"
	PermTicketReprint  Permission = "ticket.reprint"
	PermPaymentProcess Permission = "payment.process"
	PermPaymentRefund  Permission = "payment.refund"
	PermShiftOpenClose Permission = "shift.open_close"
	PermShiftCashEvent Permission = "shift.cash_event" // drop/adjustment/tip_payout
)

var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermDraftWrite: true, PermDraftApprove: true, PermTicketWork: true,
		PermTicketVoid: true, PermTicketReprint: true, PermPaymentProcess: true,
		PermPaymentRefund: true, PermShiftOpenClose: true, PermShiftCashEvent: true,
	},
	RoleManager: {
		PermDraftWrite: true, PermDraftApprove: true, PermTicketWork: true,
		PermTicketVoid: true, PermTicketReprint: true, PermPaymentProcess: true,
		PermPaymentRefund: true, PermShiftOpenClose: true, PermShiftCashEvent: true,
	},
	RoleWaiter: {
		PermDraftWrite: true, PermDraftApprove: true, PermTicketReprint: true,
		PermPaymentProcess: true,
	},
	RoleCashier: {
		PermTicketReprint: true, PermPaymentProcess: true, PermShiftOpenClose: true,
	},
	RoleKitchen: {
		PermTicketWork: true, PermTicketReprint: true,
	},
	RoleExpo: {
		PermTicketWork: true, PermTicketReprint: true,
	},
}

// Actor is the authenticated caller bound into every request's context.
type Actor struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     Role
}

func (a Actor) Has(p Permission) bool {
	return rolePermissions[a.Role][p]
}

// Require returns apperr.ErrPermissionDenied unless actor holds p.
func Require(actor Actor, p Permission) error {
	if !actor.Has(p) {
		return apperr.ErrPermissionDenied
	}
	return nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
