package ddns_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ddns "github.com/Travis-Britz/cfddns"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newFakeProvider(
		record("1", "example.com", oldIP),
		record("2", "www.example.com", oldIP),
	)
	r, err := ddns.New(testZoneID,
		ddns.UsingProvider(p),
		ddns.UsingResolver(&fakeResolver{ip: mustAddr(currentIP)}),
		ddns.UsingDomains(ddns.StaticDomains{"@", "www", "vpn"}),
		ddns.WithZoneName(testZone),
		ddns.WithMetrics(reg),
	)
	require.NoError(t, err)
	require.NoError(t, r.RunCycle(context.Background()))
	require.NoError(t, r.RunCycle(context.Background()))

	expected := `
# HELP cfddns_blacklisted_domains Domains currently blacklisted.
# TYPE cfddns_blacklisted_domains gauge
cfddns_blacklisted_domains 1
# HELP cfddns_cached_records Records currently known to point at the public IP.
# TYPE cfddns_cached_records gauge
cfddns_cached_records 2
# HELP cfddns_cycles_total Reconciliation cycles run, by result.
# TYPE cfddns_cycles_total counter
cfddns_cycles_total{result="ok"} 2
# HELP cfddns_domains_blacklisted_total Domains blacklisted after being missing from the zone.
# TYPE cfddns_domains_blacklisted_total counter
cfddns_domains_blacklisted_total 1
# HELP cfddns_records_updated_total Address records confirmed updated by the provider.
# TYPE cfddns_records_updated_total counter
cfddns_records_updated_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestMetricsRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := ddns.New(testZoneID, ddns.UsingProvider(newFakeProvider()), ddns.WithMetrics(reg))
	require.NoError(t, err)
	_, err = ddns.New(testZoneID, ddns.UsingProvider(newFakeProvider()), ddns.WithMetrics(reg))
	assert.Error(t, err)
}
