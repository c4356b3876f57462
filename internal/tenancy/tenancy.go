// Package tenancy implements the persistence contract of spec section
// 4.A: tenant-scoped queries and version-CAS updates, grounded on the
// row-locking transaction pattern the donor service uses for its
// invoice state transitions.
package tenancy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saborhub/ordercore/internal/apperr"
)

// ctxKey is unexported to keep the tenant binding opaque outside this
// package, matching spec 4.A's "session_tenant(Tx, tenant_id)" contract.
type ctxKey struct{}

// WithTenant binds a tenant ID to ctx; Scope reads it back.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// TenantFromContext returns the bound tenant, or false if none is bound.
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	return v, ok
}

// Scope returns db filtered to the tenant bound in ctx. Every read and
// write in this service must route through Scope so that cross-tenant
// addressing is impossible at the storage layer, not merely by
// application discipline (spec section 5, "Multi-tenant isolation").
func Scope(ctx context.Context, db *gorm.DB) *gorm.DB {
	tenantID, ok := TenantFromContext(ctx)
	if !ok {
		// No tenant bound is a programmer error, not a recoverable one:
		// every authenticated request binds a tenant before touching
		// storage. Scope to a nil-matching value so the query returns
		// nothing rather than silently reading cross-tenant rows.
		return db.Where("tenant_id = ?", uuid.Nil)
	}
	return db.Where("tenant_id = ?", tenantID)
}

// Versioned is implemented by every entity that carries an optimistic
// concurrency version column.
type Versioned interface {
	GetVersion() int64
}

// CAS loads row by id with a row-level lock, checks it is still at
// expectedVersion, runs mutate (which must bump the version and leave
// the rest of the struct ready to persist), and saves it — all inside
// tx. A mismatch yields apperr.ErrVersionConflict. This mirrors the
// donor server's transitionInvoice: SELECT ... FOR UPDATE, validate,
// mutate, save, all inside one transaction.
func CAS[T any](ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int64, versionOf func(*T) int64, mutate func(*T) error) (*T, error) {
	var row T
	q := Scope(ctx, tx).Clauses(clause.Locking{Strength: "UPDATE"})
	if err := q.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load row", err)
	}
	if versionOf(&row) != expectedVersion {
		return nil, apperr.ErrVersionConflict
	}
	if err := mutate(&row); err != nil {
		return nil, err
	}
	if err := Scope(ctx, tx).Save(&row).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "save row", err)
	}
	return &row, nil
}
