package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"
)

func newTestTenant(t *testing.T) *Tenant {
	t.Helper()
	tenant, err := NewTenant(id.TenantID(uuid.New()), "acme", "Acme Inc", "owner@acme.test", time.Now())
	require.NoError(t, err)
	return tenant
}

func TestNewTenantValidation(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name  string
		slug  string
		tname string
		email string
		ok    bool
	}{
		{"valid", "acme", "Acme", "a@b.test", true},
		{"uppercase slug normalized", "ACME", "Acme", "a@b.test", true},
		{"empty slug", "", "Acme", "a@b.test", false},
		{"slug with spaces", "ac me", "Acme", "a@b.test", false},
		{"slug leading dash", "-acme", "Acme", "a@b.test", false},
		{"empty name", "acme", "", "a@b.test", false},
		{"bad email", "acme", "Acme", "nope", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tenant, err := NewTenant(id.TenantID(uuid.New()), tc.slug, tc.tname, tc.email, now)
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TenantStatusPending, tenant.Status)
			assert.Equal(t, "acme", tenant.Slug)
		})
	}
}

func TestTenantLifecycle(t *testing.T) {
	tenant := newTestTenant(t)
	now := time.Now()

	require.NoError(t, tenant.BeginProvisioning(now))
	assert.Equal(t, TenantStatusProvisioning, tenant.Status)

	// Activation requires stored connection material.
	err := tenant.Activate(now)
	require.Error(t, err)

	tenant.Provider = ProviderManaged
	tenant.EncryptedDatabaseURL = "v1:salt:payload"
	err = tenant.Activate(now)
	require.Error(t, err, "managed tenant needs a resource ref")

	tenant.ProjectRef = "proj_123"
	require.NoError(t, tenant.Activate(now))
	assert.True(t, tenant.IsProvisioned())

	// No regression back to provisioning once active.
	err = tenant.BeginProvisioning(now)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestMockTenantActivatesWithoutResourceRefs(t *testing.T) {
	tenant := newTestTenant(t)
	now := time.Now()

	require.NoError(t, tenant.BeginProvisioning(now))
	tenant.Provider = ProviderMock
	tenant.EncryptedDatabaseURL = "v1:salt:payload"

	require.NoError(t, tenant.Activate(now))
	assert.True(t, tenant.IsProvisioned())
}

func TestPendingInviteMigration(t *testing.T) {
	invite, err := NewPendingInvite(id.InviteID(uuid.New()), id.TenantID(uuid.New()), "Member@Acme.Test", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "member@acme.test", invite.Email)
	assert.Equal(t, "member", invite.Role)
	assert.Equal(t, InviteStatusPending, invite.Status)

	later := time.Now().Add(time.Minute)
	invite.MarkMigrated(later)
	assert.Equal(t, InviteStatusMigrated, invite.Status)
	assert.Equal(t, later, invite.UpdatedAt)

	// Idempotent.
	invite.MarkMigrated(later.Add(time.Minute))
	assert.Equal(t, later, invite.UpdatedAt)
}

func TestInviteTokenRoundTrip(t *testing.T) {
	invite, err := NewPendingInvite(id.InviteID(uuid.New()), id.TenantID(uuid.New()), "member@acme.test", "member", time.Now())
	require.NoError(t, err)

	key := []byte("invite-signing-secret")
	token, err := SignInviteToken(invite, key, 72*time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := ParseInviteToken(token, key)
	require.NoError(t, err)
	assert.Equal(t, invite.Email, claims.Email)
	assert.Equal(t, invite.TenantID.String(), claims.TenantID)

	_, err = ParseInviteToken(token, []byte("wrong-key"))
	assert.Error(t, err)
}
