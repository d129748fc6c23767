package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	id "paperroom/pkg/domain"

	"paperroom/internal/tenant/models"
)

// PgxSessions opens short-lived pgx connections to tenant databases.
type PgxSessions struct{}

// NewPgxSessions constructs the production Sessions implementation.
func NewPgxSessions() *PgxSessions {
	return &PgxSessions{}
}

// Open connects to the tenant database. One connection is enough: seeding is
// four sequential statements.
func (PgxSessions) Open(ctx context.Context, databaseURL string) (Session, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open tenant database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping tenant database: %w", err)
	}
	return &pgxSession{db: db}, nil
}

type pgxSession struct {
	db *sql.DB
}

func (s *pgxSession) UpsertTenantIdentity(ctx context.Context, tenant *models.Tenant) error {
	const q = `
		INSERT INTO tenant_identity (tenant_id, slug, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE SET slug = EXCLUDED.slug, name = EXCLUDED.name`
	_, err := s.db.ExecContext(ctx, q, uuid.UUID(tenant.ID), tenant.Slug, tenant.Name, tenant.CreatedAt)
	return err
}

func (s *pgxSession) CreateOwner(ctx context.Context, userID id.UserID, email, passwordHash string, now time.Time) error {
	const q = `
		INSERT INTO users (id, email, name, password_hash, email_verified_at, created_at, updated_at)
		VALUES ($1, $2, '', $3, $4, $5, $5)`
	_, err := s.db.ExecContext(ctx, q, uuid.UUID(userID), email, passwordHash, now, now)
	return err
}

func (s *pgxSession) CreateWorkspace(ctx context.Context, workspaceID id.WorkspaceID, name, useCase string, now time.Time) error {
	const q = `
		INSERT INTO workspaces (id, name, use_case, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`
	_, err := s.db.ExecContext(ctx, q, uuid.UUID(workspaceID), name, useCase, now)
	return err
}

func (s *pgxSession) CreateMembership(ctx context.Context, workspaceID id.WorkspaceID, userID id.UserID, role, status string, now time.Time) error {
	const q = `
		INSERT INTO workspace_members (workspace_id, user_id, role, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, q, uuid.UUID(workspaceID), uuid.UUID(userID), role, status, now)
	return err
}

func (s *pgxSession) Close() error {
	return s.db.Close()
}
