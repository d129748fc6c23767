package tenant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	id "paperroom/pkg/domain"
	"paperroom/pkg/sentinel"

	"paperroom/internal/tenant/models"
)

// ErrNotFound is returned when a tenant is not found.
var ErrNotFound = sentinel.ErrNotFound

// InMemory stores tenants in memory for development and tests.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
	slugIdx map[string]string
}

// NewInMemory creates an in-memory tenant store.
func NewInMemory() *InMemory {
	return &InMemory{
		tenants: make(map[string]*models.Tenant),
		slugIdx: make(map[string]string),
	}
}

// CreateIfSlugAvailable atomically creates the tenant if the slug is not already taken.
func (s *InMemory) CreateIfSlugAvailable(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug := strings.ToLower(t.Slug)
	if _, exists := s.slugIdx[slug]; exists {
		return fmt.Errorf("tenant slug must be unique: %w", sentinel.ErrAlreadyUsed)
	}
	key := t.ID.String()
	s.tenants[key] = cloneTenant(t)
	s.slugIdx[slug] = key
	return nil
}

// FindByID retrieves a tenant by its UUID.
func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tenants[tenantID.String()]; ok {
		return cloneTenant(t), nil
	}
	return nil, ErrNotFound
}

// FindBySlug retrieves a tenant by slug.
func (s *InMemory) FindBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.slugIdx[strings.ToLower(slug)]; ok {
		return cloneTenant(s.tenants[key]), nil
	}
	return nil, ErrNotFound
}

// Update overwrites an existing tenant record.
func (s *InMemory) Update(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := t.ID.String()
	if _, ok := s.tenants[key]; !ok {
		return ErrNotFound
	}
	s.tenants[key] = cloneTenant(t)
	return nil
}

// UpdateStatusIf performs a conditional status transition. It succeeds only
// when the stored status matches one of the expected values, serializing
// concurrent provisioning triggers for the same tenant at the store.
func (s *InMemory) UpdateStatusIf(_ context.Context, tenantID id.TenantID, from []models.TenantStatus, to models.TenantStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID.String()]
	if !ok {
		return ErrNotFound
	}
	for _, f := range from {
		if t.Status == f {
			t.Status = to
			t.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("tenant status is %s: %w", t.Status, sentinel.ErrStatusConflict)
}

// Count returns the total number of tenants.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants), nil
}

func cloneTenant(t *models.Tenant) *models.Tenant {
	cp := *t
	if t.Settings != nil {
		cp.Settings = make(map[string]string, len(t.Settings))
		for k, v := range t.Settings {
			cp.Settings[k] = v
		}
	}
	return &cp
}
