package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"paperroom/internal/tenant/models"
)

type Metrics struct {
	Provisioned        *prometheus.CounterVec
	Fallbacks          *prometheus.CounterVec
	InvitesMigrated    prometheus.Counter
	ProvisionDuration  *prometheus.HistogramVec
	MigrationsDegraded prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Provisioned: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paperroom_tenants_provisioned_total",
			Help: "Total number of tenants provisioned, by provider",
		}, []string{"provider"}),
		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paperroom_provisioning_fallbacks_total",
			Help: "Total number of provisioning runs that fell back to the mock provider",
		}, []string{"from_provider"}),
		InvitesMigrated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paperroom_invites_migrated_total",
			Help: "Total number of pending invites migrated after activation",
		}),
		ProvisionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paperroom_provision_duration_seconds",
			Help:    "Duration of full provisioning runs, by provider",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"provider"}),
		MigrationsDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paperroom_migrations_degraded_total",
			Help: "Total number of migration runs where vector search setup failed",
		}),
	}
}

func (m *Metrics) IncrementProvisioned(provider models.ProviderKind) {
	m.Provisioned.WithLabelValues(string(provider)).Inc()
}

func (m *Metrics) IncrementFallback(from models.ProviderKind) {
	m.Fallbacks.WithLabelValues(string(from)).Inc()
}

func (m *Metrics) AddInvitesMigrated(n int) {
	m.InvitesMigrated.Add(float64(n))
}

func (m *Metrics) ObserveProvision(provider models.ProviderKind, start time.Time) {
	m.ProvisionDuration.WithLabelValues(string(provider)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementMigrationDegraded() {
	m.MigrationsDegraded.Inc()
}

// RegisterTenantGauge exposes the control-plane tenant count as a gauge,
// read from the store on every scrape.
func RegisterTenantGauge(reg prometheus.Registerer, count func() float64) prometheus.GaugeFunc {
	return promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "paperroom_tenants_total",
		Help: "Current number of tenants in the control plane",
	}, count)
}
