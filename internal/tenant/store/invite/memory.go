package invite

import (
	"context"
	"sync"
	"time"

	id "paperroom/pkg/domain"
	"paperroom/pkg/sentinel"

	"paperroom/internal/tenant/models"
)

// InMemory stores pending invites in memory for development and tests.
type InMemory struct {
	mu      sync.RWMutex
	invites map[string]*models.PendingInvite
}

// NewInMemory creates an in-memory invite store.
func NewInMemory() *InMemory {
	return &InMemory{invites: make(map[string]*models.PendingInvite)}
}

// Create records a pending invitation.
func (s *InMemory) Create(_ context.Context, inv *models.PendingInvite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[inv.ID.String()] = cloneInvite(inv)
	return nil
}

// FindByID retrieves an invite.
func (s *InMemory) FindByID(_ context.Context, inviteID id.InviteID) (*models.PendingInvite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inv, ok := s.invites[inviteID.String()]; ok {
		return cloneInvite(inv), nil
	}
	return nil, sentinel.ErrNotFound
}

// ListPendingByTenant returns all pending invites for a tenant.
func (s *InMemory) ListPendingByTenant(_ context.Context, tenantID id.TenantID) ([]*models.PendingInvite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PendingInvite
	for _, inv := range s.invites {
		if inv.TenantID == tenantID && inv.Status == models.InviteStatusPending {
			out = append(out, cloneInvite(inv))
		}
	}
	return out, nil
}

// MarkMigratedByTenant flips every pending invite for the tenant to migrated.
// Returns the number of invites migrated.
func (s *InMemory) MarkMigratedByTenant(_ context.Context, tenantID id.TenantID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	migrated := 0
	for _, inv := range s.invites {
		if inv.TenantID == tenantID && inv.Status == models.InviteStatusPending {
			inv.MarkMigrated(now)
			migrated++
		}
	}
	return migrated, nil
}

func cloneInvite(inv *models.PendingInvite) *models.PendingInvite {
	cp := *inv
	return &cp
}
