// Package service contains the provisioning orchestrator: the single place
// that sequences provider dispatch, credential encryption, schema migration,
// data seeding, and activation for a tenant.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"
	"paperroom/pkg/sentinel"

	"paperroom/internal/onboarding"
	"paperroom/internal/provisioning/metrics"
	"paperroom/internal/provisioning/migrate"
	"paperroom/internal/provisioning/providers"
	"paperroom/internal/provisioning/seed"
	"paperroom/internal/provisioning/tracer"
	"paperroom/internal/tenant/models"
)

// TenantStore defines the persistence interface for tenants.
// Error Contract: Find methods return sentinel.ErrNotFound when the tenant
// doesn't exist; UpdateStatusIf returns sentinel.ErrStatusConflict when the
// stored status doesn't match.
type TenantStore interface {
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	UpdateStatusIf(ctx context.Context, tenantID id.TenantID, from []models.TenantStatus, to models.TenantStatus, now time.Time) error
}

// InviteStore defines the persistence interface for pending invites.
type InviteStore interface {
	Create(ctx context.Context, invite *models.PendingInvite) error
	MarkMigratedByTenant(ctx context.Context, tenantID id.TenantID, now time.Time) (int, error)
}

// OnboardingStore defines the persistence interface for onboarding sessions.
// Error Contract: FindByTenant returns sentinel.ErrNotFound when no session exists.
type OnboardingStore interface {
	Upsert(ctx context.Context, sess *onboarding.Session) error
	FindByTenant(ctx context.Context, tenantID id.TenantID) (*onboarding.Session, error)
}

// ProviderSource resolves provisioning strategies.
type ProviderSource interface {
	Select() providers.Provider
	Mock() providers.Provider
}

// Migrator applies the tenant schema.
type Migrator interface {
	ApplySchema(ctx context.Context, databaseURL, tenantSlug string) (migrate.Result, error)
}

// Seeder initializes a migrated tenant database.
type Seeder interface {
	Initialize(ctx context.Context, tenant *models.Tenant, databaseURL string) (seed.Seeded, error)
}

// Encryptor seals connection material before persistence.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
}

// Outcome is the result of a provisioning run.
type Outcome struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TenantSlug string `json:"tenant_slug"`
	// Warning carries the original provider failure when the run succeeded
	// only through the mock fallback.
	Warning string `json:"warning,omitempty"`
}

// Service orchestrates tenant provisioning.
type Service struct {
	tenants    TenantStore
	invites    InviteStore
	onboarding OnboardingStore
	providers  ProviderSource
	migrator   Migrator
	seeder     Seeder
	vault      Encryptor

	inviteSigningKey []byte
	inviteTTL        time.Duration

	group   singleflight.Group
	logger  *slog.Logger
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithInviteSigning configures the key and lifetime for invite acceptance
// tokens. Without a key, invites are recorded untokenized.
func WithInviteSigning(key []byte, ttl time.Duration) Option {
	return func(s *Service) {
		s.inviteSigningKey = key
		if ttl > 0 {
			s.inviteTTL = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService wires the orchestrator.
func NewService(
	tenants TenantStore,
	invites InviteStore,
	onboardingStore OnboardingStore,
	providerSource ProviderSource,
	migrator Migrator,
	seeder Seeder,
	vault Encryptor,
	opts ...Option,
) *Service {
	svc := &Service{
		tenants:    tenants,
		invites:    invites,
		onboarding: onboardingStore,
		providers:  providerSource,
		migrator:   migrator,
		seeder:     seeder,
		vault:      vault,
		inviteTTL:  7 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = tracer.NewNoop()
	}
	return svc
}

// beginnableStatuses are the stored statuses from which a provisioning run may
// start. Provisioning itself is included so an interrupted run can be retried;
// concurrent triggers in the same process are collapsed by singleflight first.
var beginnableStatuses = []models.TenantStatus{
	models.TenantStatusPending,
	models.TenantStatusProvisioning,
	models.TenantStatusSuspended,
}

// Provision provisions the tenant's dedicated infrastructure end to end.
// Calling it on an already provisioned tenant is a successful no-op.
// Concurrent calls for the same tenant share one flight.
func (s *Service) Provision(ctx context.Context, tenantID id.TenantID) (*Outcome, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant ID is required")
	}
	v, err, _ := s.group.Do(tenantID.String(), func() (any, error) {
		return s.provision(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

func (s *Service) provision(ctx context.Context, tenantID id.TenantID) (outcome *Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.provision",
		tracer.String("tenant.id", tenantID.String()))
	defer func() { span.End(err) }()

	start := s.now()

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load tenant")
	}
	span.SetAttributes(tracer.String("tenant.slug", tenant.Slug))

	if tenant.IsProvisioned() {
		s.logger.InfoContext(ctx, "tenant already provisioned, skipping",
			"tenant_id", tenant.ID.String(),
			"tenant_slug", tenant.Slug,
			"provider", string(tenant.Provider),
		)
		span.AddEvent("provisioning.skipped_idempotent")
		return &Outcome{Success: true, Message: "tenant already provisioned", TenantSlug: tenant.Slug}, nil
	}

	now := s.now()
	if err := s.tenants.UpdateStatusIf(ctx, tenantID, beginnableStatuses, models.TenantStatusProvisioning, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
		case errors.Is(err, sentinel.ErrStatusConflict):
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "tenant is not in a provisionable state")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not claim tenant for provisioning")
		}
	}
	tenant.Status = models.TenantStatusProvisioning
	tenant.UpdatedAt = now

	provider := s.providers.Select()
	span.SetAttributes(tracer.String("provisioning.provider", string(provider.Kind())))
	s.logger.InfoContext(ctx, "provisioning started",
		"tenant_id", tenant.ID.String(),
		"tenant_slug", tenant.Slug,
		"provider", string(provider.Kind()),
	)

	runErr := s.run(ctx, tenant, provider)
	warning := ""
	if runErr != nil {
		if provider.Kind() == models.ProviderMock {
			return nil, dErrors.Wrap(runErr, dErrors.CodeProvisioningFailed, "mock provisioning failed")
		}

		// Fallback: the tenant must come up even when the real provider is
		// broken. The original failure is preserved as a warning; any
		// resources the failed run created are left for manual cleanup.
		s.logger.ErrorContext(ctx, "provisioning failed, falling back to mock",
			"tenant_id", tenant.ID.String(),
			"tenant_slug", tenant.Slug,
			"provider", string(provider.Kind()),
			"error", runErr,
		)
		span.AddEvent("provisioning.fallback", tracer.String("from_provider", string(provider.Kind())))
		if s.metrics != nil {
			s.metrics.IncrementFallback(provider.Kind())
		}
		warning = runErr.Error()

		// The failed run may have advanced the in-memory copy past
		// provisioning (a persist failure after activation); the store
		// itself never saw that transition.
		tenant.Status = models.TenantStatusProvisioning

		if err := s.run(ctx, tenant, s.providers.Mock()); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "mock fallback failed after provider failure")
		}
	}

	s.finish(ctx, tenant)
	if s.metrics != nil {
		s.metrics.IncrementProvisioned(tenant.Provider)
		s.metrics.ObserveProvision(tenant.Provider, start)
	}
	s.logger.InfoContext(ctx, "provisioning completed",
		"tenant_id", tenant.ID.String(),
		"tenant_slug", tenant.Slug,
		"provider", string(tenant.Provider),
		"fallback", warning != "",
	)

	message := "tenant provisioned"
	if warning != "" {
		message = "tenant provisioned with mock fallback"
	}
	return &Outcome{Success: true, Message: message, TenantSlug: tenant.Slug, Warning: warning}, nil
}

// run executes one full provisioning flow with the given provider: dispatch,
// encrypt, persist, migrate, seed, activate. Every error propagates to the
// caller; the fallback decision is made there, never here.
func (s *Service) run(ctx context.Context, tenant *models.Tenant, provider providers.Provider) error {
	result, err := provider.Provision(ctx, tenant)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeProviderFailure, "provider "+string(provider.Kind())+" failed")
	}
	s.logger.InfoContext(ctx, "provider completed",
		"tenant_slug", tenant.Slug,
		"result", result.Redacted(),
	)

	encryptedURL, err := s.vault.Encrypt(result.DatabaseURL)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not encrypt database URL")
	}
	encryptedCreds := ""
	if len(result.Credentials) > 0 {
		bundle, err := json.Marshal(result.Credentials)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not encode credential bundle")
		}
		encryptedCreds, err = s.vault.Encrypt(string(bundle))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not encrypt credential bundle")
		}
	}

	// A fallback run overwrites everything a failed real run recorded.
	tenant.Provider = result.Provider
	tenant.ProjectRef = result.ProjectRef
	tenant.InstanceRef = result.InstanceRef
	tenant.BucketRef = result.BucketRef
	tenant.ServiceAccountRef = result.ServiceAccountRef
	tenant.EncryptedDatabaseURL = encryptedURL
	tenant.EncryptedCredentials = encryptedCreds
	tenant.UpdatedAt = s.now()

	// Persist before migrating: if the process dies mid-migration the
	// connection material is already durable and the run can be retried.
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not persist provisioned tenant")
	}

	if result.Provider != models.ProviderMock {
		migrateRes, err := s.migrator.ApplySchema(ctx, result.MigrationTarget(), tenant.Slug)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "tenant schema migration failed")
		}
		if migrateRes.Degraded {
			if s.metrics != nil {
				s.metrics.IncrementMigrationDegraded()
			}
			s.logger.WarnContext(ctx, "tenant provisioned without vector search",
				"tenant_slug", tenant.Slug,
			)
		}

		if _, err := s.seeder.Initialize(ctx, tenant, result.MigrationTarget()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "tenant data initialization failed")
		}
	}

	if err := tenant.Activate(s.now()); err != nil {
		return err
	}
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not persist active tenant")
	}
	return nil
}

// Invite records a pending invitation for a tenant whose database may not
// exist yet and mints its acceptance token. The invite is migrated into the
// tenant database by the provisioning run.
func (s *Service) Invite(ctx context.Context, tenantID id.TenantID, email, role string) (*models.PendingInvite, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant ID is required")
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load tenant")
	}
	if tenant.Status == models.TenantStatusDeleted {
		return nil, dErrors.New(dErrors.CodeConflict, "tenant is deleted")
	}

	now := s.now()
	invite, err := models.NewPendingInvite(id.InviteID(uuid.New()), tenant.ID, email, role, now)
	if err != nil {
		return nil, err
	}
	if len(s.inviteSigningKey) > 0 {
		token, err := models.SignInviteToken(invite, s.inviteSigningKey, s.inviteTTL, now)
		if err != nil {
			return nil, err
		}
		invite.Token = token
	}
	if err := s.invites.Create(ctx, invite); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist invite")
	}

	s.logger.InfoContext(ctx, "pending invite created",
		"tenant_slug", tenant.Slug,
		"invite_id", invite.ID.String(),
		"role", invite.Role,
	)
	return invite, nil
}

// OnboardingStatus reports where a tenant's onboarding stands and where the
// UI should resume it.
type OnboardingStatus struct {
	TenantSlug string           `json:"tenant_slug"`
	Stage      onboarding.Stage `json:"stage"`
	Redirect   string           `json:"redirect"`
}

// Onboarding resolves the onboarding status for a tenant slug. Tenants
// without a recorded session get a stage derived from their lifecycle status.
func (s *Service) Onboarding(ctx context.Context, slug string) (*OnboardingStatus, error) {
	if slug == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant slug is required")
	}
	tenant, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load tenant")
	}

	stage := onboarding.StageSignupStarted
	if tenant.IsActive() {
		stage = onboarding.StageActive
	}
	sess, err := s.onboarding.FindByTenant(ctx, tenant.ID)
	switch {
	case err == nil:
		stage = sess.CurrentStage
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load onboarding session")
	}

	return &OnboardingStatus{
		TenantSlug: tenant.Slug,
		Stage:      stage,
		Redirect:   onboarding.RedirectFor(stage, tenant.Slug),
	}, nil
}

// finish runs the post-activation bookkeeping: advance the onboarding session
// and migrate pending invites. Both are advisory; failures are logged and
// never undo a successful activation.
func (s *Service) finish(ctx context.Context, tenant *models.Tenant) {
	now := s.now()

	sess, err := s.onboarding.FindByTenant(ctx, tenant.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		sess = onboarding.NewSession(tenant.ID, now)
	case err != nil:
		s.logger.WarnContext(ctx, "could not load onboarding session",
			"tenant_slug", tenant.Slug, "error", err)
		sess = nil
	}
	if sess != nil {
		// Re-provisioned tenants may already be past these stages; Advance
		// rejecting a backwards move is expected then.
		_ = sess.Advance(onboarding.StageProvisioning, now)
		_ = sess.Advance(onboarding.StageActive, now)
		if err := s.onboarding.Upsert(ctx, sess); err != nil {
			s.logger.WarnContext(ctx, "could not persist onboarding session",
				"tenant_slug", tenant.Slug, "error", err)
		}
	}

	migrated, err := s.invites.MarkMigratedByTenant(ctx, tenant.ID, now)
	if err != nil {
		s.logger.WarnContext(ctx, "could not migrate pending invites",
			"tenant_slug", tenant.Slug, "error", err)
		return
	}
	if migrated > 0 {
		if s.metrics != nil {
			s.metrics.AddInvitesMigrated(migrated)
		}
		s.logger.InfoContext(ctx, "pending invites migrated",
			"tenant_slug", tenant.Slug, "count", migrated)
	}
}
