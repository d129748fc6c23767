// Package seed initializes a freshly migrated tenant database with the
// records a tenant needs before the owner's first sign-in.
package seed

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"
	"paperroom/pkg/secrets"

	"paperroom/internal/tenant/models"
)

// Sessions opens connections to tenant databases.
type Sessions interface {
	Open(ctx context.Context, databaseURL string) (Session, error)
}

// Session is one connection to a tenant database. Implementations close the
// underlying connection on Close.
type Session interface {
	// UpsertTenantIdentity writes the tenant's identity row. Idempotent:
	// safe to re-run on a database that already carries the row.
	UpsertTenantIdentity(ctx context.Context, tenant *models.Tenant) error
	// CreateOwner creates the pre-verified owner account.
	CreateOwner(ctx context.Context, userID id.UserID, email, passwordHash string, now time.Time) error
	// CreateWorkspace creates the tenant's first dataroom.
	CreateWorkspace(ctx context.Context, workspaceID id.WorkspaceID, name, useCase string, now time.Time) error
	// CreateMembership links a user to a workspace with a role.
	CreateMembership(ctx context.Context, workspaceID id.WorkspaceID, userID id.UserID, role, status string, now time.Time) error
	Close() error
}

// Seeded identifies the records created by a successful initialization.
type Seeded struct {
	OwnerID     id.UserID
	WorkspaceID id.WorkspaceID
}

// Initializer seeds owner, workspace, and membership into a new tenant
// database. Every step is fatal: a partially seeded tenant must not activate.
type Initializer struct {
	sessions Sessions
	logger   *slog.Logger
}

// New constructs an Initializer.
func New(sessions Sessions, logger *slog.Logger) *Initializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Initializer{sessions: sessions, logger: logger}
}

// Initialize runs the seeding steps in order, each depending on the prior:
// tenant identity, owner account, first workspace, owner membership.
func (i *Initializer) Initialize(ctx context.Context, tenant *models.Tenant, databaseURL string) (Seeded, error) {
	session, err := i.sessions.Open(ctx, databaseURL)
	if err != nil {
		return Seeded{}, dErrors.Wrap(err, dErrors.CodeInternal, "seed: open tenant database")
	}
	defer session.Close() //nolint:errcheck // read-side close

	now := time.Now()

	if err := session.UpsertTenantIdentity(ctx, tenant); err != nil {
		return Seeded{}, dErrors.Wrap(err, dErrors.CodeInternal, "seed: upsert tenant identity")
	}

	// The owner signs in through a reset flow; the stored credential is an
	// unguessable placeholder, never mailed anywhere.
	placeholder, err := secrets.Generate()
	if err != nil {
		return Seeded{}, err
	}
	passwordHash, err := secrets.Hash(placeholder)
	if err != nil {
		return Seeded{}, err
	}

	ownerID := id.UserID(uuid.New())
	if err := session.CreateOwner(ctx, ownerID, tenant.Email, passwordHash, now); err != nil {
		return Seeded{}, dErrors.Wrap(err, dErrors.CodeInternal, "seed: create owner account")
	}

	workspaceID := id.WorkspaceID(uuid.New())
	if err := session.CreateWorkspace(ctx, workspaceID, tenant.Name, tenant.UseCase(), now); err != nil {
		return Seeded{}, dErrors.Wrap(err, dErrors.CodeInternal, "seed: create first workspace")
	}

	if err := session.CreateMembership(ctx, workspaceID, ownerID, "owner", "active", now); err != nil {
		return Seeded{}, dErrors.Wrap(err, dErrors.CodeInternal, "seed: create owner membership")
	}

	i.logger.InfoContext(ctx, "tenant database seeded",
		"tenant_slug", tenant.Slug,
		"owner_id", ownerID.String(),
		"workspace_id", workspaceID.String(),
	)

	return Seeded{OwnerID: ownerID, WorkspaceID: workspaceID}, nil
}
