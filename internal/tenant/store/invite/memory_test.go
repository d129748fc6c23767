package invite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "paperroom/pkg/domain"

	"paperroom/internal/tenant/models"
)

func TestInMemoryMigratesOnlyPendingForTenant(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	tenantA := id.TenantID(uuid.New())
	tenantB := id.TenantID(uuid.New())

	for _, email := range []string{"one@a.test", "two@a.test"} {
		inv, err := models.NewPendingInvite(id.InviteID(uuid.New()), tenantA, email, "member", now)
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, inv))
	}
	other, err := models.NewPendingInvite(id.InviteID(uuid.New()), tenantB, "b@b.test", "member", now)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, other))

	migrated, err := s.MarkMigratedByTenant(ctx, tenantA, now)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	pending, err := s.ListPendingByTenant(ctx, tenantA)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pendingB, err := s.ListPendingByTenant(ctx, tenantB)
	require.NoError(t, err)
	assert.Len(t, pendingB, 1)

	// Second migration run finds nothing to do.
	migrated, err = s.MarkMigratedByTenant(ctx, tenantA, now)
	require.NoError(t, err)
	assert.Zero(t, migrated)
}
