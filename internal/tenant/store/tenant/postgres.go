package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	id "paperroom/pkg/domain"
	"paperroom/pkg/sentinel"

	"paperroom/internal/tenant/models"
)

// PostgresStore persists tenants in the control-plane PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed tenant store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `
	id, slug, name, email, status, provider,
	project_ref, instance_ref, bucket_ref, service_account_ref,
	encrypted_database_url, encrypted_credentials, settings,
	created_at, updated_at
`

// CreateIfSlugAvailable atomically creates the tenant if the slug is not already taken.
func (s *PostgresStore) CreateIfSlugAvailable(ctx context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required")
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(t.ID), t.Slug, t.Name, t.Email, string(t.Status), string(t.Provider),
		t.ProjectRef, t.InstanceRef, t.BucketRef, t.ServiceAccountRef,
		t.EncryptedDatabaseURL, t.EncryptedCredentials, settings,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant slug must be unique: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// FindByID retrieves a tenant by its UUID.
func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by id: %w", err)
	}
	return t, nil
}

// FindBySlug retrieves a tenant by slug.
func (s *PostgresStore) FindBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = lower($1)`
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by slug: %w", err)
	}
	return t, nil
}

// Update updates an existing tenant.
func (s *PostgresStore) Update(ctx context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required")
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	query := `
		UPDATE tenants
		SET slug = $2, name = $3, email = $4, status = $5, provider = $6,
		    project_ref = $7, instance_ref = $8, bucket_ref = $9, service_account_ref = $10,
		    encrypted_database_url = $11, encrypted_credentials = $12, settings = $13,
		    updated_at = $14
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(t.ID), t.Slug, t.Name, t.Email, string(t.Status), string(t.Provider),
		t.ProjectRef, t.InstanceRef, t.BucketRef, t.ServiceAccountRef,
		t.EncryptedDatabaseURL, t.EncryptedCredentials, settings,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// UpdateStatusIf performs a durable compare-and-swap on the tenant status.
// The conditional WHERE clause serializes concurrent provisioning triggers
// for the same tenant at the storage layer.
func (s *PostgresStore) UpdateStatusIf(ctx context.Context, tenantID id.TenantID, from []models.TenantStatus, to models.TenantStatus, now time.Time) error {
	statuses := make([]string, len(from))
	for i, f := range from {
		statuses[i] = string(f)
	}
	query := `
		UPDATE tenants
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(tenantID), string(to), now, statuses)
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant status rows: %w", err)
	}
	if rows == 0 {
		// Distinguish "no such tenant" from "lost the CAS race".
		if _, findErr := s.FindByID(ctx, tenantID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("tenant status transition rejected: %w", sentinel.ErrStatusConflict)
	}
	return nil
}

// Count returns the total number of tenants.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return count, nil
}

type tenantRow interface {
	Scan(dest ...any) error
}

func scanTenant(row tenantRow) (*models.Tenant, error) {
	var t models.Tenant
	var tenantID uuid.UUID
	var status, provider string
	var settings []byte
	err := row.Scan(
		&tenantID, &t.Slug, &t.Name, &t.Email, &status, &provider,
		&t.ProjectRef, &t.InstanceRef, &t.BucketRef, &t.ServiceAccountRef,
		&t.EncryptedDatabaseURL, &t.EncryptedCredentials, &settings,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ID = id.TenantID(tenantID)
	t.Status = models.TenantStatus(status)
	t.Provider = models.ProviderKind(provider)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
