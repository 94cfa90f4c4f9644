package ddns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoAddress is returned by resolvers when no public IPv4 address could be determined.
var ErrNoAddress = errors.New("no public IPv4 address found")

// DefaultEndpoints are public services that echo the caller's IPv4 address as plain text.
var DefaultEndpoints = []string{
	"https://icanhazip.com",
	"https://api.ipify.org",
	"https://ipinfo.io/ip",
	"https://ipecho.net/plain",
	"https://ifconfig.me/ip",
}

// lookupTimeout bounds each endpoint request, even when the caller's context has no deadline.
const lookupTimeout = 10 * time.Second

// WebResolver constructs a resolver which asks external services for the host's public IPv4 address.
//
// Endpoints are tried in order and the first valid answer wins;
// later endpoints are not contacted.
// An http or https endpoint must return status "200 OK"
// with a dotted-quad IPv4 address as the first line of the body.
// A dns endpoint, written dns://nameserver[:port]/name,
// is answered by the first A record the nameserver returns for name.
// Anything else is logged and the next endpoint is tried.
//
// If no endpoints are given then DefaultEndpoints are used.
func WebResolver(endpoints ...string) (Resolver, error) {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	var URLs []*url.URL
	for _, u := range endpoints {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}
		switch pu.Scheme {
		case "http", "https", "dns":
		default:
			return nil, fmt.Errorf("unsupported scheme %q in %s", pu.Scheme, u)
		}
		URLs = append(URLs, pu)
	}
	return &webResolver{serviceURLs: URLs, logger: discard}, nil
}

type webResolver struct {
	httpClient  *http.Client
	logger      logrus.FieldLogger
	serviceURLs []*url.URL
}

func (wr *webResolver) SetLogger(l logrus.FieldLogger) { wr.logger = l }

func (wr *webResolver) SetHTTPClient(c *http.Client) { wr.httpClient = c }

// Resolve implements ddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var errs []error
	for _, u := range wr.serviceURLs {
		var (
			ip  netip.Addr
			err error
		)
		if u.Scheme == "dns" {
			ip, err = dnsLookup(ctx, u)
		} else {
			ip, err = wr.lookup(ctx, u)
		}
		if err == nil {
			return ip, nil
		}
		wr.logger.WithField("endpoint", u.String()).Warnf("Failed to get IP: %s", err)
		errs = append(errs, fmt.Errorf("%s: %w", u, err))
		if ctx.Err() != nil {
			break
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: %w", ErrNoAddress, errors.Join(errs...))
}

func (wr *webResolver) lookup(ctx context.Context, url *url.URL) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	scanner := bufio.NewReader(resp.Body)
	ipstring, _ := scanner.ReadString('\n')
	ip, err := ParseIPv4(strings.TrimSpace(ipstring))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return ip, nil
}
