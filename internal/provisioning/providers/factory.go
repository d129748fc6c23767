package providers

import (
	"log/slog"

	"paperroom/internal/tenant/models"
)

// Credentials describes whether each real provider has the configuration it
// needs. The factory consults it before handing out a provider so a
// misconfigured environment degrades to mock instead of failing later.
type Credentials struct {
	ManagedConfigured bool
	IaCConfigured     bool
}

// Factory resolves the configured provisioning strategy.
type Factory struct {
	selector string
	creds    Credentials
	mock     *Mock
	managed  *Managed
	iac      *IaC
	logger   *slog.Logger
}

// NewFactory builds a factory. managed and iac may be nil when their clients
// are not configured; selection falls back to mock in that case.
func NewFactory(selector string, creds Credentials, managed *Managed, iac *IaC, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		selector: selector,
		creds:    creds,
		mock:     NewMock(),
		managed:  managed,
		iac:      iac,
		logger:   logger,
	}
}

// Mock returns the mock provider, always available as the fallback strategy.
func (f *Factory) Mock() Provider {
	return f.mock
}

// Select resolves the configured provider. A selected provider whose
// credentials or client are absent downgrades silently to mock: this is the
// deliberate configuration-error safety net, distinct from the
// failure-fallback the orchestrator applies after dispatch.
func (f *Factory) Select() Provider {
	switch models.ProviderKind(f.selector) {
	case models.ProviderManaged:
		if f.creds.ManagedConfigured && f.managed != nil {
			return f.managed
		}
		f.logger.Warn("managed provider selected but not configured, using mock",
			"selector", f.selector)
	case models.ProviderIaC:
		if f.creds.IaCConfigured && f.iac != nil {
			return f.iac
		}
		f.logger.Warn("iac provider selected but not configured, using mock",
			"selector", f.selector)
	case models.ProviderMock, models.ProviderNone:
		// Development default.
	default:
		f.logger.Warn("unknown provisioning provider, using mock",
			"selector", f.selector)
	}
	return f.mock
}
