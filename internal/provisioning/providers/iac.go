package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	id "paperroom/pkg/domain"
	dErrors "paperroom/pkg/domain-errors"
	"paperroom/pkg/secrets"

	"paperroom/internal/tenant/models"
)

// IaCClient drives an infrastructure-as-code automation API (Pulumi-style)
// that manages a cloud database instance, a storage bucket, and a service
// account for the tenant.
type IaCClient interface {
	// CreateInstance brings up a dedicated database instance (slow path).
	CreateInstance(ctx context.Context, name string) (instanceRef string, err error)
	// CreateDatabase creates a database and role inside the given instance.
	CreateDatabase(ctx context.Context, instanceRef, dbName, user, password string) error
	// CreateBucket provisions the tenant's object storage bucket.
	CreateBucket(ctx context.Context, name string) (bucketRef string, err error)
	// CreateServiceAccount provisions the tenant's service account and
	// returns its reference and key material.
	CreateServiceAccount(ctx context.Context, name string) (accountRef string, key string, err error)
	// ConnectionURLs returns the socket-style URL (valid only behind a local
	// proxy sidecar) and the direct TCP URL for the new database.
	ConnectionURLs(ctx context.Context, instanceRef, dbName, user, password string) (socketURL, directURL string, err error)
}

// IaCConfig selects between the two IaC modes.
type IaCConfig struct {
	// SharedInstance enables the fast path: only a database and user are
	// created inside SharedInstanceRef instead of a dedicated instance.
	SharedInstance    bool
	SharedInstanceRef string
}

// IaC provisions tenant infrastructure through an automation API.
type IaC struct {
	client IaCClient
	cfg    IaCConfig
}

// NewIaC creates the infrastructure-as-code provider.
func NewIaC(client IaCClient, cfg IaCConfig) *IaC {
	return &IaC{client: client, cfg: cfg}
}

func (p *IaC) Kind() models.ProviderKind {
	return models.ProviderIaC
}

// Provision creates (or reuses) the database instance, then the tenant
// database, bucket, and service account. The direct TCP URL is validated and
// preferred for both storage and migrations: schema-migration clients cannot
// speak the socket protocol, and the socket URL is only usable when a proxy
// sidecar happens to be present.
func (p *IaC) Provision(ctx context.Context, tenant *models.Tenant) (*Result, error) {
	instanceRef := p.cfg.SharedInstanceRef
	if !p.cfg.SharedInstance {
		ref, err := p.client.CreateInstance(ctx, "pr-"+tenant.Slug)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeProviderFailure, "iac: create instance")
		}
		instanceRef = ref
	}
	if instanceRef == "" {
		return nil, dErrors.New(dErrors.CodeProviderFailure, "iac: no shared instance configured")
	}

	dbName := "tenant_" + strings.ReplaceAll(tenant.Slug, "-", "_")
	dbUser := dbName + "_app"
	dbPassword, err := secrets.Generate()
	if err != nil {
		return nil, err
	}

	if err := p.client.CreateDatabase(ctx, instanceRef, dbName, dbUser, dbPassword); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderFailure, "iac: create database")
	}

	bucketRef, err := p.client.CreateBucket(ctx, bucketName(tenant.ID, tenant.Slug))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderFailure, "iac: create bucket")
	}

	accountRef, accountKey, err := p.client.CreateServiceAccount(ctx, "pr-"+tenant.Slug)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderFailure, "iac: create service account")
	}

	socketURL, directURL, err := p.client.ConnectionURLs(ctx, instanceRef, dbName, dbUser, dbPassword)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderFailure, "iac: fetch connection urls")
	}

	if err := ValidateDirectURL(directURL); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderFailure, "iac: direct connection url is unusable")
	}

	return &Result{
		Provider:          models.ProviderIaC,
		DatabaseURL:       directURL,
		MigrationURL:      directURL,
		InstanceRef:       instanceRef,
		BucketRef:         bucketRef,
		ServiceAccountRef: accountRef,
		Credentials: map[string]string{
			"db_password":         dbPassword,
			"service_account_key": accountKey,
			"socket_url":          socketURL,
		},
	}, nil
}

// ValidateDirectURL rejects connection strings that cannot serve a TCP
// client: unresolved template placeholders and unix socket paths.
func ValidateDirectURL(url string) error {
	if url == "" {
		return fmt.Errorf("empty url")
	}
	if strings.Contains(url, "${") || strings.Contains(url, "PLACEHOLDER") {
		return fmt.Errorf("url contains an unresolved placeholder")
	}
	if strings.Contains(url, "host=/") || strings.Contains(url, "/cloudsql/") || strings.Contains(url, "unix:") {
		return fmt.Errorf("url is a socket path, not a TCP endpoint")
	}
	return nil
}

func bucketName(tenantID id.TenantID, slug string) string {
	// Bucket names are globally scoped at most providers; suffix with a
	// stable fragment of the tenant ID to avoid collisions between tenants
	// that reuse a slug after deletion.
	return fmt.Sprintf("pr-%s-%s", slug, strings.Split(uuid.UUID(tenantID).String(), "-")[0])
}
