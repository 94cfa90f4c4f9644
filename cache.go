package ddns

import (
	"net/netip"
	"time"
)

// BlacklistTTL is how long a domain missing from the zone is left out of checks.
const BlacklistTTL = 24 * time.Hour

// recordCache holds the last record confirmed by the provider for each target domain.
// A domain without an entry must be checked against the provider.
type recordCache map[string]Record

// prune drops every entry whose domain is not in targets and returns the number removed.
func (c recordCache) prune(targets DomainSet) int {
	n := 0
	for name := range c {
		if !targets.Has(name) {
			delete(c, name)
			n++
		}
	}
	return n
}

// inSync reports whether the cached record for name already points at ip.
func (c recordCache) inSync(name string, ip netip.Addr) bool {
	r, ok := c[name]
	return ok && r.Address == ip
}

// blacklist maps domains that were missing from the provider's listing
// to the time they were first found missing.
type blacklist map[string]time.Time

// add records name as missing at now unless it is already listed.
// It reports whether the entry is new.
func (b blacklist) add(name string, now time.Time) bool {
	if _, ok := b[name]; ok {
		return false
	}
	b[name] = now
	return true
}

// expire removes entries older than ttl at now and returns the removed names.
func (b blacklist) expire(now time.Time, ttl time.Duration) []string {
	var removed []string
	for name, since := range b {
		if now.Sub(since) > ttl {
			delete(b, name)
			removed = append(removed, name)
		}
	}
	return removed
}
