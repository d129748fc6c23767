// Package migrate applies the tenant schema to freshly provisioned
// databases, tolerating the propagation delay of managed pooling layers.
package migrate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// Executor performs the actual database work. The production implementation
// opens the tenant database over TCP; tests substitute fakes.
type Executor interface {
	// ApplySchema runs the tenant schema against the database.
	ApplySchema(ctx context.Context, databaseURL string) error
	// SetupVectorSearch enables the vector extension and supporting index.
	SetupVectorSearch(ctx context.Context, databaseURL string) error
}

// Result reports how a migration run went.
type Result struct {
	// Attempts is how many schema applications were tried.
	Attempts int
	// Degraded is set when the optional vector-search setup failed. The
	// owning feature (semantic search) is unavailable but the tenant is
	// otherwise fully functional.
	Degraded bool
}

// Runner applies the tenant schema with bounded retries.
//
// Managed pooling layers can take tens of seconds to recognize a newly
// created database role; that surfaces as a distinguishable "role not found"
// error class which is worth waiting out. Every other error class fails
// immediately.
type Runner struct {
	exec           Executor
	maxAttempts    int
	retryDelay     time.Duration
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// Option configures the Runner.
type Option func(*Runner)

// WithMaxAttempts overrides the schema application attempt bound.
func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithRetryDelay overrides the fixed inter-attempt delay.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

// WithAttemptTimeout overrides the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.attemptTimeout = d
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New constructs a Runner with the production retry policy: 5 attempts,
// 15s apart, 2 minutes per attempt.
func New(exec Executor, opts ...Option) *Runner {
	r := &Runner{
		exec:           exec,
		maxAttempts:    5,
		retryDelay:     15 * time.Second,
		attemptTimeout: 2 * time.Minute,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplySchema applies the tenant schema, then attempts the best-effort
// vector-search setup. The vector step never fails the run: its failure is
// logged and surfaced as Result.Degraded so callers can observe the missing
// feature without treating provisioning as broken.
func (r *Runner) ApplySchema(ctx context.Context, databaseURL, tenantSlug string) (Result, error) {
	var res Result

	operation := func() error {
		res.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		defer cancel()

		err := r.exec.ApplySchema(attemptCtx, databaseURL)
		if err == nil {
			return nil
		}
		if !IsRoleNotFound(err) {
			return backoff.Permanent(err)
		}
		r.logger.WarnContext(ctx, "tenant database role not visible yet, retrying",
			"tenant_slug", tenantSlug,
			"attempt", res.Attempts,
			"max_attempts", r.maxAttempts,
			"retry_delay", r.retryDelay.String(),
		)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryDelay), uint64(r.maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return res, err
	}

	r.logger.InfoContext(ctx, "tenant schema applied",
		"tenant_slug", tenantSlug,
		"attempts", res.Attempts,
	)

	vectorCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	if err := r.exec.SetupVectorSearch(vectorCtx, databaseURL); err != nil {
		res.Degraded = true
		r.logger.WarnContext(ctx, "vector search setup failed, tenant continues without semantic search",
			"tenant_slug", tenantSlug,
			"error", err,
		)
	}

	return res, nil
}

// roleNotFoundCodes are the PostgreSQL SQLSTATEs seen while a pooling layer
// has not yet propagated a newly created role or database.
var roleNotFoundCodes = map[string]struct{}{
	"28000": {}, // invalid_authorization_specification
	"28P01": {}, // invalid_password (pooler rejects unknown role this way)
	"3D000": {}, // invalid_catalog_name
}

// IsRoleNotFound reports whether err belongs to the transient propagation
// error class that warrants a bounded retry.
func IsRoleNotFound(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := roleNotFoundCodes[pgErr.Code]; ok {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	// Pooler front-ends report the condition as text before the role exists.
	if strings.Contains(msg, "tenant or user not found") {
		return true
	}
	return strings.Contains(msg, "role") && strings.Contains(msg, "does not exist")
}
