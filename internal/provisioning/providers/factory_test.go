package providers

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"paperroom/internal/tenant/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestFactorySelectsConfiguredProvider(t *testing.T) {
	managed := NewManaged(&fakeManagedClient{})
	iac := NewIaC(&fakeIaCClient{}, IaCConfig{})

	f := NewFactory("managed", Credentials{ManagedConfigured: true, IaCConfigured: true}, managed, iac, testLogger())
	assert.Equal(t, models.ProviderManaged, f.Select().Kind())

	f = NewFactory("iac", Credentials{ManagedConfigured: true, IaCConfigured: true}, managed, iac, testLogger())
	assert.Equal(t, models.ProviderIaC, f.Select().Kind())
}

func TestFactoryDowngradesToMockWhenUnconfigured(t *testing.T) {
	// Selector points at a real provider but its credentials are absent.
	f := NewFactory("managed", Credentials{}, nil, nil, testLogger())
	assert.Equal(t, models.ProviderMock, f.Select().Kind())

	f = NewFactory("iac", Credentials{}, nil, nil, testLogger())
	assert.Equal(t, models.ProviderMock, f.Select().Kind())
}

func TestFactoryDefaultsToMock(t *testing.T) {
	f := NewFactory("", Credentials{}, nil, nil, testLogger())
	assert.Equal(t, models.ProviderMock, f.Select().Kind())

	f = NewFactory("something-else", Credentials{}, nil, nil, testLogger())
	assert.Equal(t, models.ProviderMock, f.Select().Kind())
}
