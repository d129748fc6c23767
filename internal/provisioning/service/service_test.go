package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"

	"paperroom/internal/onboarding"
	"paperroom/internal/provisioning/migrate"
	"paperroom/internal/provisioning/providers"
	"paperroom/internal/provisioning/seed"
	"paperroom/internal/tenant/models"
	inviteStore "paperroom/internal/tenant/store/invite"
	tenantStore "paperroom/internal/tenant/store/tenant"
)

// recorder collects the order of side effects across collaborators.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type recordingTenantStore struct {
	*tenantStore.InMemory
	rec *recorder
}

func (s *recordingTenantStore) Update(ctx context.Context, t *models.Tenant) error {
	s.rec.add("persist:" + string(t.Status))
	return s.InMemory.Update(ctx, t)
}

type fakeProvider struct {
	kind   models.ProviderKind
	result *providers.Result
	err    error
	calls  int
	rec    *recorder
}

func (p *fakeProvider) Kind() models.ProviderKind { return p.kind }

func (p *fakeProvider) Provision(_ context.Context, _ *models.Tenant) (*providers.Result, error) {
	p.calls++
	if p.rec != nil {
		p.rec.add("provision:" + string(p.kind))
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type fakeSource struct {
	selected providers.Provider
	mock     providers.Provider
}

func (f *fakeSource) Select() providers.Provider { return f.selected }
func (f *fakeSource) Mock() providers.Provider   { return f.mock }

type fakeMigrator struct {
	rec      *recorder
	err      error
	degraded bool
	lastURL  string
	calls    int
}

func (m *fakeMigrator) ApplySchema(_ context.Context, databaseURL, _ string) (migrate.Result, error) {
	m.calls++
	m.lastURL = databaseURL
	if m.rec != nil {
		m.rec.add("migrate")
	}
	if m.err != nil {
		return migrate.Result{Attempts: 1}, m.err
	}
	return migrate.Result{Attempts: 1, Degraded: m.degraded}, nil
}

type fakeSeeder struct {
	rec     *recorder
	err     error
	lastURL string
	calls   int
}

func (s *fakeSeeder) Initialize(_ context.Context, _ *models.Tenant, databaseURL string) (seed.Seeded, error) {
	s.calls++
	s.lastURL = databaseURL
	if s.rec != nil {
		s.rec.add("seed")
	}
	if s.err != nil {
		return seed.Seeded{}, s.err
	}
	return seed.Seeded{
		OwnerID:     id.UserID(uuid.New()),
		WorkspaceID: id.WorkspaceID(uuid.New()),
	}, nil
}

type stubVault struct{}

func (stubVault) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

type fixture struct {
	svc        *Service
	tenants    *recordingTenantStore
	invites    *inviteStore.InMemory
	onboarding *onboarding.InMemoryStore
	rec        *recorder
	tenant     *models.Tenant
}

func newFixture(t *testing.T, source ProviderSource, migrator Migrator, seeder Seeder, opts ...Option) *fixture {
	t.Helper()
	rec := &recorder{}
	tenants := &recordingTenantStore{InMemory: tenantStore.NewInMemory(), rec: rec}
	invites := inviteStore.NewInMemory()
	sessions := onboarding.NewInMemoryStore()

	tenant, err := models.NewTenant(id.TenantID(uuid.New()), "acme", "Acme Corp", "founder@acme.test", time.Now())
	require.NoError(t, err)
	require.NoError(t, tenants.CreateIfSlugAvailable(context.Background(), tenant))

	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}, opts...)
	svc := NewService(tenants, invites, sessions, source, migrator, seeder, stubVault{}, opts...)
	return &fixture{svc: svc, tenants: tenants, invites: invites, onboarding: sessions, rec: rec, tenant: tenant}
}

func managedResult() *providers.Result {
	return &providers.Result{
		Provider:     models.ProviderManaged,
		DatabaseURL:  "postgres://app:pw@pooler.example/tenant_acme",
		MigrationURL: "postgres://app:pw@session-pooler.example/tenant_acme",
		ProjectRef:   "proj-acme-1",
		Credentials:  map[string]string{"db_password": "pw"},
	}
}

func mockSource(rec *recorder) *fakeSource {
	mock := &fakeProvider{kind: models.ProviderMock, rec: rec, result: &providers.Result{
		Provider:    models.ProviderMock,
		DatabaseURL: "postgres://mock.invalid/acme",
		ProjectRef:  "mock-acme-1",
	}}
	return &fakeSource{selected: mock, mock: mock}
}

func TestProvisionWithMockProvider(t *testing.T) {
	migrator := &fakeMigrator{}
	seeder := &fakeSeeder{}
	f := newFixture(t, mockSource(nil), migrator, seeder)

	outcome, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "acme", outcome.TenantSlug)
	assert.Empty(t, outcome.Warning)

	stored, err := f.tenants.FindByID(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusActive, stored.Status)
	assert.Equal(t, models.ProviderMock, stored.Provider)
	assert.Equal(t, "enc:postgres://mock.invalid/acme", stored.EncryptedDatabaseURL)

	assert.Zero(t, migrator.calls, "mock tenants get no schema migration")
	assert.Zero(t, seeder.calls, "mock tenants get no data seeding")
}

func TestProvisionIsIdempotent(t *testing.T) {
	source := mockSource(nil)
	f := newFixture(t, source, &fakeMigrator{}, &fakeSeeder{})

	_, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)

	outcome, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Contains(t, outcome.Message, "already provisioned")

	provider := source.selected.(*fakeProvider)
	assert.Equal(t, 1, provider.calls, "second call must not reach the provider")
}

func TestProvisionOrdering(t *testing.T) {
	rec := &recorder{}
	selected := &fakeProvider{kind: models.ProviderManaged, rec: rec, result: managedResult()}
	migrator := &fakeMigrator{rec: rec}
	seeder := &fakeSeeder{rec: rec}
	f := newFixture(t, &fakeSource{selected: selected, mock: mockSource(rec).mock}, migrator, seeder)
	// fixture and source recorders must be the same instance
	f.tenants.rec = rec

	_, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"provision:managed",
		"persist:provisioning",
		"migrate",
		"seed",
		"persist:active",
	}, rec.all(), "credentials must be durable before migration, activation strictly last")

	assert.Equal(t, "postgres://app:pw@session-pooler.example/tenant_acme", migrator.lastURL,
		"migrations use the session-affinity URL")
	assert.Equal(t, migrator.lastURL, seeder.lastURL)
}

func TestProvisionFallsBackToMockOnProviderFailure(t *testing.T) {
	selected := &fakeProvider{kind: models.ProviderManaged, err: errors.New("quota exceeded")}
	source := mockSource(nil)
	f := newFixture(t, &fakeSource{selected: selected, mock: source.mock}, &fakeMigrator{}, &fakeSeeder{})

	outcome, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Contains(t, outcome.Message, "fallback")
	assert.Contains(t, outcome.Warning, "quota exceeded")

	stored, err := f.tenants.FindByID(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusActive, stored.Status)
	assert.Equal(t, models.ProviderMock, stored.Provider)
}

func TestProvisionFallsBackOnMigrationFailure(t *testing.T) {
	selected := &fakeProvider{kind: models.ProviderManaged, result: managedResult()}
	source := mockSource(nil)
	migrator := &fakeMigrator{err: errors.New("role \"tenant_acme\" does not exist")}
	f := newFixture(t, &fakeSource{selected: selected, mock: source.mock}, migrator, &fakeSeeder{})

	outcome, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.NotEmpty(t, outcome.Warning)

	stored, err := f.tenants.FindByID(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderMock, stored.Provider, "failed real refs are overwritten by the fallback")
	assert.Empty(t, stored.InstanceRef)
}

func TestProvisionMockFallbackFailureIsFatal(t *testing.T) {
	selected := &fakeProvider{kind: models.ProviderManaged, err: errors.New("quota exceeded")}
	mock := &fakeProvider{kind: models.ProviderMock, err: errors.New("mock broke")}
	f := newFixture(t, &fakeSource{selected: selected, mock: mock}, &fakeMigrator{}, &fakeSeeder{})

	_, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeProviderFailure))

	stored, findErr := f.tenants.FindByID(context.Background(), f.tenant.ID)
	require.NoError(t, findErr)
	assert.Equal(t, models.TenantStatusProvisioning, stored.Status, "failed runs stay retryable")
}

func TestProvisionTenantNotFound(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})
	_, err := f.svc.Provision(context.Background(), id.TenantID(uuid.New()))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestProvisionRejectsNilID(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})
	_, err := f.svc.Provision(context.Background(), id.TenantID{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestProvisionRejectsDeletedTenant(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})
	f.tenant.Status = models.TenantStatusDeleted
	require.NoError(t, f.tenants.Update(context.Background(), f.tenant))

	_, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestProvisionMigratesPendingInvites(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})
	for _, email := range []string{"a@acme.test", "b@acme.test"} {
		inv, err := models.NewPendingInvite(id.InviteID(uuid.New()), f.tenant.ID, email, "member", time.Now())
		require.NoError(t, err)
		require.NoError(t, f.invites.Create(context.Background(), inv))
	}

	_, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)

	pending, err := f.invites.ListPendingByTenant(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInviteMintsSignedToken(t *testing.T) {
	key := []byte("invite-signing-key")
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{},
		WithInviteSigning(key, time.Hour))

	invite, err := f.svc.Invite(context.Background(), f.tenant.ID, "  Jo@Acme.Test ", "admin")
	require.NoError(t, err)
	assert.Equal(t, "jo@acme.test", invite.Email)
	assert.Equal(t, models.InviteStatusPending, invite.Status)
	require.NotEmpty(t, invite.Token)

	claims, err := models.ParseInviteToken(invite.Token, key)
	require.NoError(t, err)
	assert.Equal(t, f.tenant.ID.String(), claims.TenantID)
	assert.Equal(t, "jo@acme.test", claims.Email)
	assert.Equal(t, "admin", claims.Role)

	stored, err := f.invites.FindByID(context.Background(), invite.ID)
	require.NoError(t, err)
	assert.Equal(t, invite.Token, stored.Token)
}

func TestInviteWithoutSigningKey(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})

	invite, err := f.svc.Invite(context.Background(), f.tenant.ID, "jo@acme.test", "")
	require.NoError(t, err)
	assert.Empty(t, invite.Token)
	assert.Equal(t, "member", invite.Role, "role defaults to member")
}

func TestInviteUnknownTenant(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})
	_, err := f.svc.Invite(context.Background(), id.TenantID(uuid.New()), "jo@acme.test", "member")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestInviteRejectsDeletedTenant(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})
	f.tenant.Status = models.TenantStatusDeleted
	require.NoError(t, f.tenants.Update(context.Background(), f.tenant))

	_, err := f.svc.Invite(context.Background(), f.tenant.ID, "jo@acme.test", "member")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestProvisionAdvancesOnboarding(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})
	sess := onboarding.NewSession(f.tenant.ID, time.Now())
	require.NoError(t, sess.Advance(onboarding.StagePaymentCompleted, time.Now()))
	require.NoError(t, f.onboarding.Upsert(context.Background(), sess))

	_, err := f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)

	got, err := f.onboarding.FindByTenant(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, onboarding.StageActive, got.CurrentStage)
	assert.Contains(t, got.StageTimes, onboarding.StageProvisioning)
	assert.Contains(t, got.StageTimes, onboarding.StageActive)
}

func TestProvisionConcurrentCallsShareOneFlight(t *testing.T) {
	source := mockSource(nil)
	// Slow the provider down so the goroutines overlap.
	slow := &slowProvider{inner: source.selected.(*fakeProvider), delay: 20 * time.Millisecond}
	f := newFixture(t, &fakeSource{selected: slow, mock: slow}, &fakeMigrator{}, &fakeSeeder{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Provision(context.Background(), f.tenant.ID)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, slow.inner.calls, "concurrent triggers must collapse to one provider call")
}

type slowProvider struct {
	inner *fakeProvider
	delay time.Duration
}

func (p *slowProvider) Kind() models.ProviderKind { return p.inner.Kind() }

func (p *slowProvider) Provision(ctx context.Context, tenant *models.Tenant) (*providers.Result, error) {
	time.Sleep(p.delay)
	return p.inner.Provision(ctx, tenant)
}

func TestOnboardingStatus(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})

	status, err := f.svc.Onboarding(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, onboarding.StageSignupStarted, status.Stage)
	assert.Equal(t, "/signup/verify", status.Redirect)

	_, err = f.svc.Provision(context.Background(), f.tenant.ID)
	require.NoError(t, err)

	status, err = f.svc.Onboarding(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, onboarding.StageActive, status.Stage)
	assert.True(t, strings.HasPrefix(status.Redirect, "/acme/"), "active tenants land on their dashboard")
}

func TestOnboardingStatusUnknownSlug(t *testing.T) {
	f := newFixture(t, mockSource(nil), &fakeMigrator{}, &fakeSeeder{})
	_, err := f.svc.Onboarding(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
