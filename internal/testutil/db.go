// Package testutil provides the in-memory sqlite fixture shared by every
// domain package's tests, grounded on the donor repo's in-process test
// harness style (constructors returning ready-to-use fakes instead of
// global test state).
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/models"
)

// NewDB returns a fresh in-memory database with every table migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}
