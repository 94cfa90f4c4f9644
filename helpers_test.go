package ddns_test

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	ddns "github.com/Travis-Britz/cfddns"
)

const (
	testZoneID = "023e105f4ecef8ad9ca31a8372d0c353"
	testZone   = "example.com"
	currentIP  = "203.0.113.5"
	oldIP      = "198.51.100.1"
)

var errUnavailable = errors.New("service unavailable")

// fakeProvider is an in-memory zone.
type fakeProvider struct {
	mu         sync.Mutex
	zone       string
	zoneErr    error
	records    map[string]ddns.Record
	listErr    error
	patchErr   error
	omit       map[string]bool
	listCalls  int
	patchCalls int
	patched    [][]ddns.Record
}

func newFakeProvider(records ...ddns.Record) *fakeProvider {
	p := &fakeProvider{zone: testZone, records: map[string]ddns.Record{}, omit: map[string]bool{}}
	for _, r := range records {
		p.records[r.Name] = r
	}
	return p
}

func (p *fakeProvider) ZoneName(ctx context.Context, zoneID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.zoneErr != nil {
		return "", p.zoneErr
	}
	return p.zone, nil
}

func (p *fakeProvider) ListRecords(ctx context.Context, zoneID string) (map[string]ddns.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.listErr != nil {
		return nil, p.listErr
	}
	out := make(map[string]ddns.Record, len(p.records))
	for k, v := range p.records {
		out[k] = v
	}
	return out, nil
}

func (p *fakeProvider) BatchPatch(ctx context.Context, zoneID string, records []ddns.Record) (map[string]ddns.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patchCalls++
	p.patched = append(p.patched, append([]ddns.Record(nil), records...))
	if p.patchErr != nil {
		return nil, p.patchErr
	}
	out := map[string]ddns.Record{}
	for _, r := range records {
		if p.omit[r.Name] {
			continue
		}
		p.records[r.Name] = r
		out[r.Name] = r
	}
	return out, nil
}

func (p *fakeProvider) calls() (list, patch int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls, p.patchCalls
}

func (p *fakeProvider) set(f func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(p)
}

// fakeResolver returns a settable address.
type fakeResolver struct {
	mu    sync.Mutex
	ip    netip.Addr
	err   error
	calls int
}

func (r *fakeResolver) Resolve(context.Context) (netip.Addr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return netip.Addr{}, r.err
	}
	return r.ip, nil
}

func (r *fakeResolver) setIP(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ip = netip.MustParseAddr(ip)
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// mutableDomains is a DomainSource whose tokens can change between cycles.
type mutableDomains struct {
	mu     sync.Mutex
	tokens []string
}

func (d *mutableDomains) Tokens() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...), nil
}

func (d *mutableDomains) set(tokens ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = tokens
}

func record(id, name, ip string) ddns.Record {
	return ddns.Record{ID: id, Name: name, Address: netip.MustParseAddr(ip)}
}

type harness struct {
	r        *ddns.Reconciler
	provider *fakeProvider
	resolver *fakeResolver
	domains  *mutableDomains
	clock    *clock.Mock
	logs     *test.Hook
}

func newHarness(t *testing.T, p *fakeProvider, tokens ...string) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		provider: p,
		resolver: &fakeResolver{ip: netip.MustParseAddr(currentIP)},
		domains:  &mutableDomains{tokens: tokens},
		clock:    clock.NewMock(),
		logs:     hook,
	}
	r, err := ddns.New(testZoneID,
		ddns.UsingProvider(p),
		ddns.UsingResolver(h.resolver),
		ddns.UsingDomains(h.domains),
		ddns.WithClock(h.clock),
		ddns.WithLogger(logger),
	)
	require.NoError(t, err)
	require.NoError(t, r.LoadZone(context.Background()))
	h.r = r
	return h
}

func (h *harness) countLogs(prefix string) int {
	n := 0
	for _, e := range h.logs.AllEntries() {
		if strings.HasPrefix(e.Message, prefix) {
			n++
		}
	}
	return n
}

func mustAddr(s string) netip.Addr { return netip.MustParseAddr(s) }
