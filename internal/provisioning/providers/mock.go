package providers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"paperroom/internal/tenant/models"
)

// MockSentinelHost is the host of the non-functional database URL the mock
// provider hands out. Nothing ever connects to it.
const MockSentinelHost = "mock.invalid"

// Mock provisions nothing. It is the development default and the universal
// fallback when a real provider is unconfigured or fails.
type Mock struct{}

// NewMock creates the mock provider.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Kind() models.ProviderKind {
	return models.ProviderMock
}

// Provision returns a synthetic resource reference and a sentinel database
// URL synchronously, with no external calls.
func (m *Mock) Provision(_ context.Context, tenant *models.Tenant) (*Result, error) {
	ref := fmt.Sprintf("mock-%s-%s", tenant.Slug, uuid.NewString()[:8])
	return &Result{
		Provider:    models.ProviderMock,
		DatabaseURL: fmt.Sprintf("postgres://%s/%s", MockSentinelHost, tenant.Slug),
		ProjectRef:  ref,
	}, nil
}
