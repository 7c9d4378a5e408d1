package probe_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/fakehost"
)

func TestProbe_Snapshot(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	host := fakehost.New()
	host.SetInstalled("kubelet", "1.30.2-1.1")
	p := probe.New(host, host, probe.WithClock(func() time.Time { return at }))

	facts := p.Snapshot(context.Background(), probe.Query{
		Modules:  []string{"overlay"},
		Sysctls:  []string{"net.ipv4.ip_forward", "net.bridge.bridge-nf-call-iptables"},
		Packages: []string{"kubelet"},
		Services: []string{"kubelet"},
	})

	expect := map[string]string{
		"host.name":                    fakehost.Hostname,
		"host.ip":                      fakehost.PrimaryIP,
		"swap.active":                  "true",
		"module.overlay.loaded":        "false",
		"sysctl.net.ipv4.ip_forward":   "0",
		"package.kubelet.version":      "1.30.2-1.1",
		"package.kubelet.held":         "false",
		"service.kubelet.active":       "false",
		"service.kubelet.state":        "inactive",
		"kubelet.joined":               "false",
		"cluster.initialized":          "false",
		"file./etc/hosts.line":         "",
	}
	for key, want := range expect {
		f, ok := facts.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, f.Value, key)
		assert.Equal(t, at, f.ObservedAt, key)
	}

	bridge, ok := facts.Get("sysctl.net.bridge.bridge-nf-call-iptables")
	require.True(t, ok)
	assert.NotEmpty(t, bridge.Error, "missing sysctl is recorded, not fatal")

	all := facts.All()
	assert.Equal(t, facts.Len(), len(all))
	assert.Equal(t, "host.name", all[0].Key)

	_, ok = facts.Get("nope")
	assert.False(t, ok)
}
