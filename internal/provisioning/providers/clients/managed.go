package clients

import (
	"context"
	"net/http"
	"strings"

	"paperroom/pkg/secrets"

	"paperroom/internal/provisioning/providers"
)

// passwordPlaceholder is the token the platform embeds in connection string
// templates; the real role password never travels in the response.
const passwordPlaceholder = "[DB_PASSWORD]"

// ManagedAPI implements providers.ManagedClient against the managed database
// platform's REST API.
type ManagedAPI struct {
	baseURL string
	apiKey  string
	orgID   string
	region  string
	client  *http.Client
}

// NewManagedAPI creates the managed platform client.
func NewManagedAPI(baseURL, apiKey, orgID, region string) *ManagedAPI {
	return &ManagedAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		orgID:   orgID,
		region:  region,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type createProjectRequest struct {
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id"`
	Region         string `json:"region"`
	DBPassword     string `json:"db_pass"`
}

type projectResponse struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
}

// CreateProject creates a project named after the tenant. The role password
// is generated locally and sent once at creation.
func (c *ManagedAPI) CreateProject(ctx context.Context, name string) (string, string, error) {
	dbPassword, err := secrets.Generate()
	if err != nil {
		return "", "", err
	}
	var resp projectResponse
	err = doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/projects", c.apiKey, createProjectRequest{
		Name:           name,
		OrganizationID: c.orgID,
		Region:         c.region,
		DBPassword:     dbPassword,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.Ref, dbPassword, nil
}

// ProjectStatus maps the platform's status vocabulary onto the adapter's.
func (c *ManagedAPI) ProjectStatus(ctx context.Context, ref string) (providers.ProjectStatus, error) {
	var resp projectResponse
	if err := doJSON(ctx, c.client, http.MethodGet, c.baseURL+"/v1/projects/"+ref, c.apiKey, nil, &resp); err != nil {
		return "", err
	}
	switch strings.ToLower(resp.Status) {
	case "active_healthy", "active", "ready":
		return providers.ProjectStatusReady, nil
	case "init_failed", "failed", "removed":
		return providers.ProjectStatusFailed, nil
	default:
		return providers.ProjectStatusProvisioning, nil
	}
}

type connectionInfoResponse struct {
	PooledURL        string `json:"pooled_url"`
	SessionPooledURL string `json:"session_pooled_url"`
	DirectURL        string `json:"direct_url"`
}

// ConnectionInfo fetches the project's connection string templates and fills
// in the locally held role password.
func (c *ManagedAPI) ConnectionInfo(ctx context.Context, ref, dbPassword string) (*providers.ManagedConnectionInfo, error) {
	var resp connectionInfoResponse
	if err := doJSON(ctx, c.client, http.MethodGet, c.baseURL+"/v1/projects/"+ref+"/connection", c.apiKey, nil, &resp); err != nil {
		return nil, err
	}
	fill := func(template string) string {
		return strings.ReplaceAll(template, passwordPlaceholder, dbPassword)
	}
	return &providers.ManagedConnectionInfo{
		PooledURL:        fill(resp.PooledURL),
		SessionPooledURL: fill(resp.SessionPooledURL),
		DirectURL:        fill(resp.DirectURL),
	}, nil
}

var _ providers.ManagedClient = (*ManagedAPI)(nil)
