package ddns

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipNet(cidr string) net.Addr {
	ip, n, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestInterfaceResolverSkipsLoopbackAndIPv6(t *testing.T) {
	r := interfaceResolver{name: "eth0", addrs: func(string) ([]net.Addr, error) {
		return []net.Addr{
			ipNet("127.0.0.1/8"),
			ipNet("fd64:9f44:fc30::1/64"),
			ipNet("192.168.86.253/24"),
		}, nil
	}}
	ip, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.86.253"), ip)
}

func TestInterfaceResolverNoIPv4(t *testing.T) {
	r := interfaceResolver{name: "eth0", addrs: func(string) ([]net.Addr, error) {
		return []net.Addr{ipNet("fd64:9f44:fc30::1/64")}, nil
	}}
	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestInterfaceResolverLookupError(t *testing.T) {
	lookupErr := errors.New("no such interface")
	r := interfaceResolver{name: "eth9", addrs: func(string) ([]net.Addr, error) {
		return nil, lookupErr
	}}
	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.ErrorIs(t, err, lookupErr)
}
