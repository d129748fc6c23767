package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "paperroom/pkg/domain"
	"paperroom/pkg/sentinel"

	"paperroom/internal/tenant/models"
)

func seedTenant(t *testing.T, s *InMemory) *models.Tenant {
	t.Helper()
	tenant, err := models.NewTenant(id.TenantID(uuid.New()), "acme", "Acme Inc", "owner@acme.test", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateIfSlugAvailable(context.Background(), tenant))
	return tenant
}

func TestInMemorySlugUniqueness(t *testing.T) {
	s := NewInMemory()
	seedTenant(t, s)

	dup, err := models.NewTenant(id.TenantID(uuid.New()), "ACME", "Other", "x@y.test", time.Now())
	require.NoError(t, err)
	err = s.CreateIfSlugAvailable(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrAlreadyUsed))
}

func TestInMemoryFindAndUpdate(t *testing.T) {
	s := NewInMemory()
	tenant := seedTenant(t, s)

	found, err := s.FindBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, found.ID)

	found.Provider = models.ProviderMock
	require.NoError(t, s.Update(context.Background(), found))

	again, err := s.FindByID(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderMock, again.Provider)

	_, err = s.FindByID(context.Background(), id.TenantID(uuid.New()))
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestInMemoryReturnsCopies(t *testing.T) {
	s := NewInMemory()
	tenant := seedTenant(t, s)

	found, err := s.FindByID(context.Background(), tenant.ID)
	require.NoError(t, err)
	found.Settings["use_case"] = "mutated"

	again, err := s.FindByID(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Settings["use_case"])
}

func TestInMemoryCount(t *testing.T) {
	s := NewInMemory()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	seedTenant(t, s)
	n, err = s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInMemoryUpdateStatusIf(t *testing.T) {
	s := NewInMemory()
	tenant := seedTenant(t, s)
	ctx := context.Background()
	now := time.Now()

	err := s.UpdateStatusIf(ctx, tenant.ID,
		[]models.TenantStatus{models.TenantStatusPending, models.TenantStatusSuspended},
		models.TenantStatusProvisioning, now)
	require.NoError(t, err)

	// Second CAS from pending must lose.
	err = s.UpdateStatusIf(ctx, tenant.ID,
		[]models.TenantStatus{models.TenantStatusPending},
		models.TenantStatusProvisioning, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrStatusConflict))

	err = s.UpdateStatusIf(ctx, id.TenantID(uuid.New()),
		[]models.TenantStatus{models.TenantStatusPending},
		models.TenantStatusProvisioning, now)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}
