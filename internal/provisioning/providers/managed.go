package providers

import (
	"context"
	"fmt"
	"time"

	dErrors "paperroom/pkg/domain-errors"

	"paperroom/internal/tenant/models"
)

// ManagedClient is the thin boundary to a database-as-a-service platform.
// Implementations talk HTTP to the provider; tests supply fakes.
type ManagedClient interface {
	// CreateProject creates a remote project and returns its reference plus
	// the database role password chosen at creation time.
	CreateProject(ctx context.Context, name string) (ref string, dbPassword string, err error)
	// ProjectStatus reports the provider's view of the project.
	ProjectStatus(ctx context.Context, ref string) (ProjectStatus, error)
	// ConnectionInfo fetches the project's connection strings.
	ConnectionInfo(ctx context.Context, ref, dbPassword string) (*ManagedConnectionInfo, error)
}

// ProjectStatus is the provider-reported readiness of a project.
type ProjectStatus string

const (
	ProjectStatusProvisioning ProjectStatus = "provisioning"
	ProjectStatusReady        ProjectStatus = "ready"
	ProjectStatusFailed       ProjectStatus = "failed"
)

// ManagedConnectionInfo carries the connection string variants a managed
// platform exposes. Direct connections are frequently firewalled, so the
// pooled variants are preferred.
type ManagedConnectionInfo struct {
	// PooledURL multiplexes through the provider's transaction-mode pooler;
	// used for runtime traffic.
	PooledURL string
	// SessionPooledURL is the session-affinity pooler endpoint; schema
	// migration clients need session semantics, so it is the migration target.
	SessionPooledURL string
	// DirectURL bypasses the pooler entirely.
	DirectURL string
}

// Managed provisions a dedicated project on a managed database platform.
type Managed struct {
	client       ManagedClient
	pollInterval time.Duration
	readyTimeout time.Duration
}

// ManagedOption configures the managed provider.
type ManagedOption func(*Managed)

// WithPollInterval overrides the readiness poll interval when greater than zero.
func WithPollInterval(d time.Duration) ManagedOption {
	return func(m *Managed) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithReadyTimeout overrides the hard readiness deadline when greater than zero.
func WithReadyTimeout(d time.Duration) ManagedOption {
	return func(m *Managed) {
		if d > 0 {
			m.readyTimeout = d
		}
	}
}

// NewManaged creates the managed-platform provider.
func NewManaged(client ManagedClient, opts ...ManagedOption) *Managed {
	m := &Managed{
		client:       client,
		pollInterval: 5 * time.Second,
		readyTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Managed) Kind() models.ProviderKind {
	return models.ProviderManaged
}

// Provision creates the remote project, waits until the platform reports it
// ready (bounded - provisioning fails rather than hangs), then fetches the
// connection strings.
func (m *Managed) Provision(ctx context.Context, tenant *models.Tenant) (*Result, error) {
	ref, dbPassword, err := m.client.CreateProject(ctx, tenant.Slug)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderFailure, "managed: create project")
	}

	if err := m.waitReady(ctx, ref); err != nil {
		return nil, err
	}

	info, err := m.client.ConnectionInfo(ctx, ref, dbPassword)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderFailure, "managed: fetch connection info")
	}
	if info.PooledURL == "" {
		return nil, dErrors.New(dErrors.CodeProviderFailure, "managed: platform returned no pooled connection string")
	}

	migrationURL := info.SessionPooledURL
	if migrationURL == "" {
		migrationURL = info.PooledURL
	}

	return &Result{
		Provider:     models.ProviderManaged,
		DatabaseURL:  info.PooledURL,
		MigrationURL: migrationURL,
		ProjectRef:   ref,
		Credentials: map[string]string{
			"db_password": dbPassword,
			"direct_url":  info.DirectURL,
		},
	}, nil
}

// waitReady polls the project status until ready, failed, or deadline.
func (m *Managed) waitReady(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, m.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		status, err := m.client.ProjectStatus(ctx, ref)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeProviderFailure, "managed: poll project status")
		}
		switch status {
		case ProjectStatusReady:
			return nil
		case ProjectStatusFailed:
			return dErrors.New(dErrors.CodeProviderFailure, fmt.Sprintf("managed: project %s failed to provision", ref))
		}

		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, fmt.Sprintf("managed: project %s not ready within %s", ref, m.readyTimeout))
		case <-ticker.C:
		}
	}
}
