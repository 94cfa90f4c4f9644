package ddns_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ddns "github.com/Travis-Britz/cfddns"
)

func startDaemon(t *testing.T, h *harness, interval, cleanup time.Duration) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ddns.RunDaemon(ctx, h.r, interval, cleanup) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("RunDaemon did not return after cancel")
			return nil
		}
	}
}

func TestRunDaemonRunsImmediatelyThenOnInterval(t *testing.T) {
	p := newFakeProvider(record("2", "www.example.com", oldIP))
	h := newHarness(t, p, "www")
	stop := startDaemon(t, h, time.Minute, time.Hour)

	require.Eventually(t, func() bool {
		_, patches := p.calls()
		return patches == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		h.clock.Add(time.Second)
		return h.resolver.callCount() >= 3
	}, 5*time.Second, time.Millisecond)

	assert.ErrorIs(t, stop(), context.Canceled)
	list, patches := p.calls()
	assert.Equal(t, 1, list, "later cycles are answered from the cache")
	assert.Equal(t, 1, patches)
}

func TestRunDaemonCleansBlacklist(t *testing.T) {
	p := newFakeProvider(record("1", "example.com", currentIP))
	h := newHarness(t, p, "@", "www")
	stop := startDaemon(t, h, 1000*time.Hour, time.Hour)
	defer stop()

	require.Eventually(t, func() bool {
		_, ok := h.r.Blacklisted("www.example.com")
		return ok
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		h.clock.Add(30 * time.Minute)
		_, ok := h.r.Blacklisted("www.example.com")
		return !ok
	}, 5*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, h.clock.Now().Sub(time.Unix(0, 0)), ddns.BlacklistTTL)
	assert.Equal(t, 1, h.resolver.callCount())
}

func TestRunDaemonStopsWithoutZone(t *testing.T) {
	p := newFakeProvider()
	p.zoneErr = errUnavailable
	r, err := ddns.New(testZoneID, ddns.UsingProvider(p), ddns.UsingDomains(ddns.StaticDomains{"www"}))
	require.NoError(t, err)

	err = ddns.RunDaemon(context.Background(), r, time.Minute, 0)
	assert.ErrorIs(t, err, ddns.ErrZoneNotFound)
	list, _ := p.calls()
	assert.Equal(t, 0, list)
}
