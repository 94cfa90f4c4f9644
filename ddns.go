package ddns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cloudflare/cloudflare-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultDomainFile is read for domain tokens when no DomainSource is registered.
const DefaultDomainFile = "./config/domains.json"

// noUpdateLogEvery throttles the steady-state "nothing to do" log line.
const noUpdateLogEvery = time.Hour

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

var (
	ErrZoneNotFound = errors.New("zone not found")
	ErrNoDomains    = errors.New("no domains configured")
	ErrListRecords  = errors.New("unable to list zone records")
	ErrEmptyZone    = errors.New("no address records found in zone")
	ErrBatchPatch   = errors.New("batch update failed")
)

// New creates a Reconciler for the zone identified by zoneID.
//
// A Provider must be registered, normally with UsingCloudflare.
// Without UsingResolver the public IP is looked up with WebResolver and DefaultEndpoints,
// and without UsingDomains the tokens are read from DefaultDomainFile.
func New(zoneID string, options ...clientOption) (*Reconciler, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("ddns.New: zone ID cannot be empty")
	}
	r := &Reconciler{
		zoneID:    zoneID,
		clock:     clock.New(),
		metrics:   newMetrics(),
		cache:     recordCache{},
		blacklist: blacklist{},
	}
	for i, opt := range options {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %s", i, err)
		}
	}

	if r.provider == nil {
		return nil, fmt.Errorf("ddns.New: no DNS provider was registered and there is no default option - use ddns.UsingCloudflare or similar")
	}
	if r.resolver == nil {
		r.resolver, _ = WebResolver()
	}
	if r.domains == nil {
		r.domains = DomainFile(DefaultDomainFile)
	}

	// options can be given in any order, so dependencies registered after
	// WithLogger or UsingHTTPClient are configured here.
	if err := withLogger(r.logger)(r); err != nil {
		return nil, err
	}
	if r.httpClient != nil {
		if err := withHTTPClient(r.httpClient)(r); err != nil {
			return nil, fmt.Errorf("ddns.New: %w", err)
		}
	}
	return r, nil
}

type clientOption func(*Reconciler) error

// UsingCloudflare registers the Cloudflare API as the DNS provider.
// The token needs Zone:Read and DNS:Edit permissions for the zone.
func UsingCloudflare(token string, opts ...cloudflare.Option) clientOption {
	return func(r *Reconciler) (err error) {
		if r.provider, err = newCloudflareProvider(token, opts...); err != nil {
			return fmt.Errorf("ddns.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

// UsingProvider registers a custom DNS provider.
func UsingProvider(p Provider) clientOption {
	return func(r *Reconciler) error {
		if p == nil {
			return errors.New("provider cannot be nil")
		}
		r.provider = p
		return nil
	}
}

func UsingResolver(resolver Resolver) clientOption {
	return func(r *Reconciler) error {
		r.resolver = resolver
		return nil
	}
}

// UsingWebResolver is shorthand for UsingResolver(WebResolver(endpoints...)).
func UsingWebResolver(endpoints ...string) clientOption {
	return func(r *Reconciler) (err error) {
		r.resolver, err = WebResolver(endpoints...)
		return err
	}
}

// UsingDomains sets where the domain tokens are read from at the start of each cycle.
func UsingDomains(src DomainSource) clientOption {
	return func(r *Reconciler) error {
		r.domains = src
		return nil
	}
}

// WithZoneName skips the zone name lookup in LoadZone.
func WithZoneName(name string) clientOption {
	return func(r *Reconciler) error {
		if name == "" {
			return errors.New("zone name cannot be empty")
		}
		r.zoneName = name
		return nil
	}
}

func WithLogger(logger logrus.FieldLogger) clientOption {
	return func(r *Reconciler) error {
		r.logger = logger
		return nil
	}
}

// WithClock replaces the wall clock used for blacklist ages, log throttling and RunDaemon timers.
func WithClock(c clock.Clock) clientOption {
	return func(r *Reconciler) error {
		if c == nil {
			c = clock.New()
		}
		r.clock = c
		return nil
	}
}

// WithMetrics registers the reconciler's metrics with reg.
func WithMetrics(reg prometheus.Registerer) clientOption {
	return func(r *Reconciler) error {
		return r.metrics.register(reg)
	}
}

func UsingHTTPClient(httpclient *http.Client) clientOption {
	return func(r *Reconciler) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		r.httpClient = httpclient
		return nil
	}
}

func withLogger(logger logrus.FieldLogger) clientOption {
	return func(r *Reconciler) error {
		if logger == nil {
			logger = discard
		}
		r.logger = logger
		type setLogger interface {
			SetLogger(logrus.FieldLogger)
		}
		if p, ok := r.provider.(setLogger); ok {
			p.SetLogger(logger)
		}
		if res, ok := r.resolver.(setLogger); ok {
			res.SetLogger(logger)
		}
		return nil
	}
}

func withHTTPClient(httpclient *http.Client) clientOption {
	return func(r *Reconciler) error {
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		if hc, ok := r.resolver.(setHTTPClient); ok {
			hc.SetHTTPClient(httpclient)
		}
		switch p := r.provider.(type) {
		case *cloudflareProvider:
			return cloudflare.HTTPClient(httpclient)(p.api)
		case setHTTPClient:
			p.SetHTTPClient(httpclient)
		}
		return nil
	}
}

// Reconciler keeps the address records of one zone pointed at the host's public IP.
//
// It remembers which records were last seen pointing at the current IP
// so that steady-state cycles make no provider calls,
// and it skips names missing from the zone for BlacklistTTL.
// All state is in memory and starts empty.
//
// The methods of Reconciler are safe for concurrent use,
// but cycles are serialized.
type Reconciler struct {
	resolver   Resolver
	provider   Provider
	domains    DomainSource
	logger     logrus.FieldLogger
	clock      clock.Clock
	metrics    *metrics
	httpClient *http.Client
	zoneID     string

	mu              sync.Mutex
	zoneName        string
	cache           recordCache
	blacklist       blacklist
	lastNoUpdateLog time.Time
}

// LoadZone looks up the zone name from the provider.
// It must succeed before the first cycle; later calls do nothing.
func (r *Reconciler) LoadZone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zoneName != "" {
		return nil
	}
	name, err := r.provider.ZoneName(ctx, r.zoneID)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrZoneNotFound, r.zoneID, err)
	}
	if name == "" {
		return fmt.Errorf("%w: %s: provider returned an empty zone name", ErrZoneNotFound, r.zoneID)
	}
	r.zoneName = name
	r.logger.Infof("Client set up and using zone: %s", name)
	return nil
}

// RunCycle runs one reconciliation pass.
//
// The domain tokens are reloaded and cached records for domains no longer configured are dropped
// before anything else happens.
// Failures are logged and returned; a failed cycle changes nothing that the next cycle depends on,
// so callers only need the error for reporting.
func (r *Reconciler) RunCycle(ctx context.Context) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() { r.metrics.observeCycle(err, len(r.cache), len(r.blacklist)) }()

	if r.zoneName == "" {
		return fmt.Errorf("%w: LoadZone has not succeeded", ErrZoneNotFound)
	}

	targets, err := r.targets()
	if err != nil {
		r.logger.Errorf("Failed to load domains: %s", err)
		return err
	}
	if n := r.cache.prune(targets); n > 0 {
		r.logger.Debugf("Dropped %d cached records for domains no longer configured", n)
	}
	if len(targets) == 0 {
		r.logger.Warn("No domains configured, nothing to do")
		return ErrNoDomains
	}

	ip, err := r.resolver.Resolve(ctx)
	if err != nil {
		r.logger.Errorf("Could not get a local IP: %s", err)
		return fmt.Errorf("error getting IP: %w", err)
	}
	r.logger.Debugf("Current IP: %s", ip)

	toUpdate, err := r.check(ctx, targets, ip)
	if err != nil {
		return err
	}
	return r.update(ctx, toUpdate, ip)
}

func (r *Reconciler) targets() (DomainSet, error) {
	tokens, err := r.domains.Tokens()
	if err != nil {
		return nil, err
	}
	return BuildDomainSet(r.zoneName, tokens)
}

// Check returns the records among targets that the provider holds with an address other than ip.
//
// Blacklisted domains are skipped, as are domains whose cached record already points at ip.
// If anything remains, the zone is listed once:
// missing domains are blacklisted and records already pointing at ip are cached.
// A nil slice with a nil error means there is nothing to update.
func (r *Reconciler) Check(ctx context.Context, targets DomainSet, ip netip.Addr) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.check(ctx, targets, ip)
}

func (r *Reconciler) check(ctx context.Context, targets DomainSet, ip netip.Addr) ([]Record, error) {
	var needsVerification []string
	for _, name := range targets.Sorted() {
		if _, listed := r.blacklist[name]; listed {
			continue
		}
		if r.cache.inSync(name, ip) {
			continue
		}
		needsVerification = append(needsVerification, name)
	}

	if len(needsVerification) == 0 {
		now := r.clock.Now()
		if r.lastNoUpdateLog.IsZero() || now.Sub(r.lastNoUpdateLog) >= noUpdateLogEvery {
			r.logger.Infof("All domains point to current IP %s", ip)
			r.lastNoUpdateLog = now
		}
		return nil, nil
	}

	current, err := r.provider.ListRecords(ctx, r.zoneID)
	if err != nil {
		r.logger.Errorf("Could not fetch records for zone %s: %s", r.zoneName, err)
		return nil, fmt.Errorf("%w: %w", ErrListRecords, err)
	}
	if len(current) == 0 {
		r.logger.Warnf("No address records found in zone %s", r.zoneName)
		return nil, ErrEmptyZone
	}

	now := r.clock.Now()
	var toUpdate []Record
	for _, name := range needsVerification {
		rec, found := current[name]
		switch {
		case !found:
			if r.blacklist.add(name, now) {
				r.metrics.blacklisted.Inc()
			}
			r.logger.WithField("domain", name).Warnf("Domain %s not found in zone %s, skipping it for %s", name, r.zoneName, BlacklistTTL)
		case rec.Address == ip:
			r.cache[name] = rec
		default:
			toUpdate = append(toUpdate, rec)
		}
	}
	if len(toUpdate) == 0 {
		r.logger.Infof("Nothing left to update, checked domains point to current IP %s", ip)
	}
	return toUpdate, nil
}

// Update points every record at ip with a single batch call to the provider.
//
// Records confirmed in the provider's response replace the cached ones.
// If the call fails the cache is left as it was,
// so the same domains are checked again next cycle.
func (r *Reconciler) Update(ctx context.Context, records []Record, ip netip.Addr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(ctx, records, ip)
}

func (r *Reconciler) update(ctx context.Context, records []Record, ip netip.Addr) error {
	if len(records) == 0 {
		return nil
	}
	patches := make([]Record, len(records))
	requested := make(DomainSet, len(records))
	for i, rec := range records {
		rec.Address = ip
		patches[i] = rec
		requested[rec.Name] = struct{}{}
	}

	updated, err := r.provider.BatchPatch(ctx, r.zoneID, patches)
	if err != nil {
		r.logger.Warnf("Failed to update DNS records. Check previous messages for errors: %s", err)
		return fmt.Errorf("%w: %w", ErrBatchPatch, err)
	}
	for name, rec := range updated {
		if !requested.Has(name) {
			r.logger.Debugf("Ignoring unrequested record %s in update response", rec)
			continue
		}
		r.cache[name] = rec
		r.metrics.patched.Inc()
		r.logger.WithField("domain", name).Infof("Updated %s to IP %s", name, rec.Address)
	}
	return nil
}

// CleanBlacklist forgets domains blacklisted more than BlacklistTTL ago,
// making them eligible for checks again. It returns the number of domains removed.
func (r *Reconciler) CleanBlacklist() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.blacklist.expire(r.clock.Now(), BlacklistTTL)
	for _, name := range removed {
		r.logger.WithField("domain", name).Infof("Removed %s from blacklist", name)
	}
	r.metrics.blacklistSize.Set(float64(len(r.blacklist)))
	return len(removed)
}

// Zone returns the zone name, or "" before LoadZone has succeeded.
func (r *Reconciler) Zone() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoneName
}

// Cached returns the record last confirmed by the provider for domain.
func (r *Reconciler) Cached(domain string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.cache[domain]
	return rec, ok
}

// Blacklisted reports whether domain is blacklisted and since when.
func (r *Reconciler) Blacklisted(domain string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	since, ok := r.blacklist[domain]
	return since, ok
}
