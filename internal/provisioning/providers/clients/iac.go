package clients

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"paperroom/internal/provisioning/providers"
)

// IaCAPI implements providers.IaCClient against an infrastructure automation
// service that fronts the cloud provider (instances, buckets, service
// accounts) behind a REST API.
type IaCAPI struct {
	baseURL string
	apiKey  string
	project string
	region  string
	client  *http.Client
}

// NewIaCAPI creates the automation API client. The apiKey is typically the
// service-account JSON issued to the control plane.
func NewIaCAPI(baseURL, apiKey, project, region string) *IaCAPI {
	return &IaCAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		project: project,
		region:  region,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

type createInstanceRequest struct {
	Name    string `json:"name"`
	Project string `json:"project"`
	Region  string `json:"region"`
}

type refResponse struct {
	Ref string `json:"ref"`
}

func (c *IaCAPI) CreateInstance(ctx context.Context, name string) (string, error) {
	var resp refResponse
	err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/instances", c.apiKey, createInstanceRequest{
		Name:    name,
		Project: c.project,
		Region:  c.region,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Ref, nil
}

type createDatabaseRequest struct {
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (c *IaCAPI) CreateDatabase(ctx context.Context, instanceRef, dbName, user, password string) error {
	return doJSON(ctx, c.client, http.MethodPost,
		c.baseURL+"/v1/instances/"+url.PathEscape(instanceRef)+"/databases", c.apiKey,
		createDatabaseRequest{Name: dbName, User: user, Password: password}, nil)
}

type createBucketRequest struct {
	Name    string `json:"name"`
	Project string `json:"project"`
	Region  string `json:"region"`
}

func (c *IaCAPI) CreateBucket(ctx context.Context, name string) (string, error) {
	var resp refResponse
	err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/buckets", c.apiKey, createBucketRequest{
		Name:    name,
		Project: c.project,
		Region:  c.region,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Ref, nil
}

type createServiceAccountRequest struct {
	Name    string `json:"name"`
	Project string `json:"project"`
}

type serviceAccountResponse struct {
	Ref string `json:"ref"`
	Key string `json:"key"`
}

func (c *IaCAPI) CreateServiceAccount(ctx context.Context, name string) (string, string, error) {
	var resp serviceAccountResponse
	err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/service-accounts", c.apiKey, createServiceAccountRequest{
		Name:    name,
		Project: c.project,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.Ref, resp.Key, nil
}

type connectionURLsResponse struct {
	SocketURL string `json:"socket_url"`
	DirectURL string `json:"direct_url"`
}

func (c *IaCAPI) ConnectionURLs(ctx context.Context, instanceRef, dbName, user, password string) (string, string, error) {
	endpoint := c.baseURL + "/v1/instances/" + url.PathEscape(instanceRef) + "/connection?" + url.Values{
		"database": {dbName},
		"user":     {user},
	}.Encode()
	var resp connectionURLsResponse
	if err := doJSON(ctx, c.client, http.MethodGet, endpoint, c.apiKey, nil, &resp); err != nil {
		return "", "", err
	}
	fill := func(template string) string {
		return strings.ReplaceAll(template, passwordPlaceholder, password)
	}
	return fill(resp.SocketURL), fill(resp.DirectURL), nil
}

var _ providers.IaCClient = (*IaCAPI)(nil)
