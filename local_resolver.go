package ddns

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first IPv4 address of the named interface.
// Loopback addresses are skipped.
//
// This is useful when the zone serves a private network and the "public" address is a LAN address.
func InterfaceResolver(iface string) Resolver {
	return interfaceResolver{name: iface, addrs: func(name string) ([]net.Addr, error) {
		i, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("error getting interface %s by name: %w", name, err)
		}
		return i.Addrs()
	}}
}

type interfaceResolver struct {
	name  string
	addrs func(string) ([]net.Addr, error)
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	a, err := r.addrs(r.name)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: error looking up addresses for interface %s: %w", ErrNoAddress, r.name, err)
	}
	// addr: ip+net:192.168.86.253/24
	// addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
	for _, addr := range a {
		ip, err := netip.ParsePrefix(addr.String())
		if err != nil {
			continue
		}
		if ip.Addr().IsLoopback() || !ip.Addr().Is4() {
			continue
		}
		return ip.Addr(), nil
	}
	return netip.Addr{}, fmt.Errorf("%w: interface %s has no IPv4 address", ErrNoAddress, r.name)
}
