// Package providers contains the provisioning strategies that create a
// tenant's dedicated database and supporting resources. Each provider hides
// one backing infrastructure behind the same contract; the orchestrator
// never branches on provider identity beyond dispatch.
package providers

import (
	"context"
	"strings"

	"paperroom/internal/tenant/models"
)

// Provider creates the infrastructure for one tenant and returns raw
// connection credentials. Implementations propagate every failure; nothing
// is swallowed here - the fallback policy lives in the orchestrator.
type Provider interface {
	Kind() models.ProviderKind
	Provision(ctx context.Context, tenant *models.Tenant) (*Result, error)
}

// Result is the transient outcome of a provisioning run. The URLs are
// plaintext and in-memory only: the orchestrator encrypts them before
// anything touches storage, and they are never logged.
type Result struct {
	Provider models.ProviderKind

	// DatabaseURL is the runtime connection string (pooled where the
	// provider offers pooling). MigrationURL is the connection string the
	// migration runner should use; it falls back to DatabaseURL when empty.
	DatabaseURL  string
	MigrationURL string

	ProjectRef        string
	InstanceRef       string
	BucketRef         string
	ServiceAccountRef string

	// Credentials carries provider-specific secrets (service-account keys,
	// role passwords) that are encrypted as a bundle before persistence.
	Credentials map[string]string
}

// MigrationTarget returns the URL the migration runner should connect to.
func (r *Result) MigrationTarget() string {
	if r.MigrationURL != "" {
		return r.MigrationURL
	}
	return r.DatabaseURL
}

// Redacted returns a loggable summary of the result with no secrets.
func (r *Result) Redacted() map[string]string {
	return map[string]string{
		"provider":     string(r.Provider),
		"project_ref":  r.ProjectRef,
		"instance_ref": r.InstanceRef,
		"database_url": redactURL(r.DatabaseURL),
	}
}

func redactURL(url string) string {
	if url == "" {
		return ""
	}
	// Keep only scheme and host; everything after the last '@' up to the
	// first '/' is safe, credentials and paths are not.
	at := strings.LastIndex(url, "@")
	if at < 0 {
		if i := strings.Index(url, "://"); i >= 0 {
			return url[:i+3] + "..."
		}
		return "..."
	}
	rest := url[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return "postgres://...@" + rest
}
