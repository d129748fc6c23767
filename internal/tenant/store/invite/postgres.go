package invite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "paperroom/pkg/domain"
	"paperroom/pkg/sentinel"

	"paperroom/internal/tenant/models"
)

// PostgresStore persists pending invites in the control-plane database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed invite store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create records a pending invitation.
func (s *PostgresStore) Create(ctx context.Context, inv *models.PendingInvite) error {
	if inv == nil {
		return fmt.Errorf("invite is required")
	}
	query := `
		INSERT INTO pending_invites (id, tenant_id, email, role, status, token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(inv.ID), uuid.UUID(inv.TenantID), inv.Email, inv.Role,
		string(inv.Status), inv.Token, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}

// FindByID retrieves an invite.
func (s *PostgresStore) FindByID(ctx context.Context, inviteID id.InviteID) (*models.PendingInvite, error) {
	query := `
		SELECT id, tenant_id, email, role, status, token, created_at, updated_at
		FROM pending_invites
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(inviteID))
	inv, err := scanInvite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find invite: %w", err)
	}
	return inv, nil
}

// ListPendingByTenant returns all pending invites for a tenant.
func (s *PostgresStore) ListPendingByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.PendingInvite, error) {
	query := `
		SELECT id, tenant_id, email, role, status, token, created_at, updated_at
		FROM pending_invites
		WHERE tenant_id = $1 AND status = 'pending'
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list pending invites: %w", err)
	}
	defer rows.Close()

	var out []*models.PendingInvite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// MarkMigratedByTenant flips every pending invite for the tenant to migrated.
// Returns the number of invites migrated.
func (s *PostgresStore) MarkMigratedByTenant(ctx context.Context, tenantID id.TenantID, now time.Time) (int, error) {
	query := `
		UPDATE pending_invites
		SET status = 'migrated', updated_at = $2
		WHERE tenant_id = $1 AND status = 'pending'
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(tenantID), now)
	if err != nil {
		return 0, fmt.Errorf("migrate invites: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("migrate invites rows: %w", err)
	}
	return int(rows), nil
}

type inviteRow interface {
	Scan(dest ...any) error
}

func scanInvite(row inviteRow) (*models.PendingInvite, error) {
	var inv models.PendingInvite
	var inviteID, tenantID uuid.UUID
	var status string
	if err := row.Scan(&inviteID, &tenantID, &inv.Email, &inv.Role, &status, &inv.Token, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.ID = id.InviteID(inviteID)
	inv.TenantID = id.TenantID(tenantID)
	inv.Status = models.InviteStatus(status)
	return &inv, nil
}
