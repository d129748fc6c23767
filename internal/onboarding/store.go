package onboarding

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	id "paperroom/pkg/domain"
	"paperroom/pkg/sentinel"
)

// InMemoryStore keeps onboarding sessions in memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryStore creates an in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

// Upsert creates or replaces the session for its tenant.
func (s *InMemoryStore) Upsert(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TenantID.String()] = cloneSession(sess)
	return nil
}

// FindByTenant retrieves the session for a tenant.
func (s *InMemoryStore) FindByTenant(_ context.Context, tenantID id.TenantID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[tenantID.String()]; ok {
		return cloneSession(sess), nil
	}
	return nil, sentinel.ErrNotFound
}

func cloneSession(sess *Session) *Session {
	cp := *sess
	cp.StageTimes = make(map[Stage]time.Time, len(sess.StageTimes))
	for k, v := range sess.StageTimes {
		cp.StageTimes[k] = v
	}
	return &cp
}

// PostgresStore persists onboarding sessions in the control-plane database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert creates or replaces the session for its tenant.
func (s *PostgresStore) Upsert(ctx context.Context, sess *Session) error {
	times, err := json.Marshal(sess.StageTimes)
	if err != nil {
		return fmt.Errorf("marshal stage times: %w", err)
	}
	query := `
		INSERT INTO onboarding_sessions (tenant_id, current_stage, stage_times, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id)
		DO UPDATE SET current_stage = EXCLUDED.current_stage,
		              stage_times = EXCLUDED.stage_times,
		              updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(sess.TenantID), string(sess.CurrentStage), times, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert onboarding session: %w", err)
	}
	return nil
}

// FindByTenant retrieves the session for a tenant.
func (s *PostgresStore) FindByTenant(ctx context.Context, tenantID id.TenantID) (*Session, error) {
	query := `
		SELECT tenant_id, current_stage, stage_times, created_at, updated_at
		FROM onboarding_sessions
		WHERE tenant_id = $1
	`
	var sess Session
	var tid uuid.UUID
	var stage string
	var times []byte
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)).
		Scan(&tid, &stage, &times, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find onboarding session: %w", err)
	}
	sess.TenantID = id.TenantID(tid)
	sess.CurrentStage = Stage(stage)
	if len(times) > 0 {
		if err := json.Unmarshal(times, &sess.StageTimes); err != nil {
			return nil, fmt.Errorf("unmarshal stage times: %w", err)
		}
	}
	return &sess, nil
}
