package ddns

import (
	"fmt"
	"net/netip"
	"regexp"
)

// ipv4Pattern matches a dotted quad with every octet in 0-255 and nothing around it.
var ipv4Pattern = regexp.MustCompile(`^(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)(\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)){3}$`)

// labelPattern matches a subdomain token: lowercase alphanumerics, hyphens and dots,
// starting and ending with an alphanumeric.
var labelPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9.-]*[a-z0-9])?$`)

// ParseIPv4 parses s as a strict dotted-quad IPv4 address.
//
// Leading zeros, IPv6 and IPv4-mapped IPv6 forms are rejected,
// as is any content before or after the address.
func ParseIPv4(s string) (netip.Addr, error) {
	if !ipv4Pattern.MatchString(s) {
		return netip.Addr{}, fmt.Errorf("%q is not a dotted-quad IPv4 address", s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IPv4 address: %w", err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%q is not an IPv4 address", s)
	}
	return addr, nil
}

// ValidLabel reports whether token may be expanded under a zone.
// Token "@" stands for the zone apex and is always valid.
func ValidLabel(token string) bool {
	return token == ApexToken || labelPattern.MatchString(token)
}
