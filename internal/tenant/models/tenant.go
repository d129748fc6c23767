package models

import (
	"regexp"
	"strings"
	"time"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"
)

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantStatusPending      TenantStatus = "pending"
	TenantStatusProvisioning TenantStatus = "provisioning"
	TenantStatusActive       TenantStatus = "active"
	TenantStatusSuspended    TenantStatus = "suspended"
	TenantStatusDeleted      TenantStatus = "deleted"
)

// ProviderKind identifies the backing infrastructure strategy used to
// provision a tenant's dedicated database.
type ProviderKind string

const (
	ProviderNone    ProviderKind = ""
	ProviderMock    ProviderKind = "mock"
	ProviderManaged ProviderKind = "managed"
	ProviderIaC     ProviderKind = "iac"
)

var validSlug = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// Tenant is one customer's isolated workspace. Mutable by the provisioning
// orchestrator only; admin suspension/deletion happens through separate flows.
type Tenant struct {
	ID     id.TenantID  `json:"id"`
	Slug   string       `json:"slug"`
	Name   string       `json:"name"`
	Email  string       `json:"email"`
	Status TenantStatus `json:"status"`

	// Provider and resource references are set during provisioning.
	Provider          ProviderKind `json:"provider"`
	ProjectRef        string       `json:"project_ref,omitempty"`
	InstanceRef       string       `json:"instance_ref,omitempty"`
	BucketRef         string       `json:"bucket_ref,omitempty"`
	ServiceAccountRef string       `json:"service_account_ref,omitempty"`

	// Connection material is encrypted before it reaches the store.
	EncryptedDatabaseURL string `json:"-"`
	EncryptedCredentials string `json:"-"`

	// Settings carries provider-specific and onboarding metadata
	// (e.g. the use-case classification selected during signup).
	Settings map[string]string `json:"settings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTenant validates identity fields and returns a pending tenant.
func NewTenant(tenantID id.TenantID, slug, name, email string, now time.Time) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if !validSlug.MatchString(slug) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant slug must be URL-safe (lowercase alphanumeric and dashes)")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	if !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant contact email is invalid")
	}

	return &Tenant{
		ID:        tenantID,
		Slug:      slug,
		Name:      name,
		Email:     email,
		Status:    TenantStatusPending,
		Settings:  map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// IsProvisioned reports whether the tenant has already gone through a
// successful provisioning run. This is the idempotency guard: an active
// tenant with a resource reference (or the mock marker) must never be
// provisioned again.
func (t *Tenant) IsProvisioned() bool {
	if t.Status != TenantStatusActive {
		return false
	}
	if t.Provider == ProviderMock {
		return true
	}
	return t.Provider != ProviderNone && t.hasResourceRef() && t.EncryptedDatabaseURL != ""
}

// BeginProvisioning transitions the tenant into the provisioning state.
// Active tenants never regress to provisioning through the normal flow.
func (t *Tenant) BeginProvisioning(now time.Time) error {
	switch t.Status {
	case TenantStatusActive:
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already active")
	case TenantStatusDeleted:
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is deleted")
	}
	t.Status = TenantStatusProvisioning
	t.UpdatedAt = now
	return nil
}

// Activate flips the tenant to active. The ordering invariant lives here:
// activation requires the encrypted database URL to already be persisted,
// and a real provider must have recorded at least one resource reference.
func (t *Tenant) Activate(now time.Time) error {
	if t.Status != TenantStatusProvisioning {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant must be provisioning before it can activate")
	}
	if t.EncryptedDatabaseURL == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant cannot activate without a stored database URL")
	}
	if t.Provider != ProviderMock && !t.hasResourceRef() {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant cannot activate without provider resources")
	}
	t.Status = TenantStatusActive
	t.UpdatedAt = now
	return nil
}

// Suspend transitions the tenant to suspended status (admin action).
func (t *Tenant) Suspend(now time.Time) error {
	if t.Status != TenantStatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "only active tenants can be suspended")
	}
	t.Status = TenantStatusSuspended
	t.UpdatedAt = now
	return nil
}

func (t *Tenant) hasResourceRef() bool {
	return t.ProjectRef != "" || t.InstanceRef != "" || t.BucketRef != "" || t.ServiceAccountRef != ""
}

// UseCase returns the use-case classification recorded during onboarding, if any.
func (t *Tenant) UseCase() string {
	return t.Settings["use_case"]
}
