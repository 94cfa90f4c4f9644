package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/miekg/dns"
)

// dnsLookup answers a dns://nameserver[:port]/name endpoint.
// Services such as resolver1.opendns.com answer myip.opendns.com with the address of the asking host.
func dnsLookup(ctx context.Context, u *url.URL) (netip.Addr, error) {
	server := u.Host
	if server == "" {
		return netip.Addr{}, errors.New("dns endpoint has no nameserver")
	}
	if u.Port() == "" {
		server = net.JoinHostPort(server, "53")
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return netip.Addr{}, errors.New("dns endpoint has no query name")
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	c := new(dns.Client)
	r, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns query failed: %w", err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns query returned %s", dns.RcodeToString[r.Rcode])
	}
	for _, rr := range r.Answer {
		if a, ok := rr.(*dns.A); ok {
			return ParseIPv4(a.A.String())
		}
	}
	return netip.Addr{}, fmt.Errorf("no A record in answer for %s", name)
}
