package ddns

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "cfddns"

type metrics struct {
	cycles        *prometheus.CounterVec
	patched       prometheus.Counter
	blacklisted   prometheus.Counter
	cached        prometheus.Gauge
	blacklistSize prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Reconciliation cycles run, by result.",
		}, []string{"result"}),
		patched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_updated_total",
			Help:      "Address records confirmed updated by the provider.",
		}),
		blacklisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "domains_blacklisted_total",
			Help:      "Domains blacklisted after being missing from the zone.",
		}),
		cached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cached_records",
			Help:      "Records currently known to point at the public IP.",
		}),
		blacklistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "blacklisted_domains",
			Help:      "Domains currently blacklisted.",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	if reg == nil {
		return errors.New("metrics registerer cannot be nil")
	}
	for _, c := range []prometheus.Collector{m.cycles, m.patched, m.blacklisted, m.cached, m.blacklistSize} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) observeCycle(err error, cached, blacklisted int) {
	m.cycles.WithLabelValues(cycleResult(err)).Inc()
	m.cached.Set(float64(cached))
	m.blacklistSize.Set(float64(blacklisted))
}

func cycleResult(err error) string {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &cfgErr):
		return "config_error"
	case errors.Is(err, ErrNoDomains):
		return "no_domains"
	case errors.Is(err, ErrNoAddress):
		return "no_address"
	case errors.Is(err, ErrListRecords):
		return "list_failed"
	case errors.Is(err, ErrEmptyZone):
		return "empty_zone"
	case errors.Is(err, ErrBatchPatch):
		return "update_failed"
	default:
		return "error"
	}
}
