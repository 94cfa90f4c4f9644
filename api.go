package ddns

import (
	"context"
	"fmt"
	"net/netip"
)

// Resolver returns the current public IPv4 address of the host.
//
// Implementations return an error wrapping ErrNoAddress when no address could be found.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

// Resolve implements ddns.Resolver.
func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) { return f(ctx) }

// Provider is the remote DNS service holding the zone.
//
// ListRecords and BatchPatch return records keyed by their fully-qualified name.
// Only address (A) records are returned.
type Provider interface {
	ZoneName(ctx context.Context, zoneID string) (string, error)
	ListRecords(ctx context.Context, zoneID string) (map[string]Record, error)
	BatchPatch(ctx context.Context, zoneID string, records []Record) (map[string]Record, error)
}

// Record is a provider-side address record.
type Record struct {
	ID      string
	Name    string
	Address netip.Addr
}

func (r Record) String() string {
	return fmt.Sprintf("%s (%s) -> %s", r.Name, r.ID, r.Address)
}
