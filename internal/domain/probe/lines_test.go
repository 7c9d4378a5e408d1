package probe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
)

func TestParseHostsLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		ok     bool
		addr   string
		has    string
		hasNot string
	}{
		{line: "192.168.56.10\tnode-1", ok: true, addr: "192.168.56.10", has: "node-1"},
		{line: "127.0.1.1 node-10 node-10.local # comment", ok: true, addr: "127.0.1.1", has: "NODE-10.local", hasNot: "node-1"},
		{line: "# 192.168.56.10 node-1", ok: false},
		{line: "   ", ok: false},
		{line: "192.168.56.10", ok: false},
	}

	for _, tt := range tests {
		e, ok := probe.ParseHostsLine(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		if !ok {
			continue
		}
		assert.Equal(t, tt.addr, e.Address)
		assert.True(t, e.HasName(tt.has), tt.line)
		if tt.hasNot != "" {
			assert.False(t, e.HasName(tt.hasNot), "substring must not match: %s", tt.line)
		}
	}
}

func TestIsSwapFstabLine(t *testing.T) {
	t.Parallel()

	assert.True(t, probe.IsSwapFstabLine("/swap.img none swap sw 0 0"))
	assert.True(t, probe.IsSwapFstabLine("  UUID=1234\tnone\tswap\tdefaults\t0\t0"))
	assert.False(t, probe.IsSwapFstabLine("#/swap.img none swap sw 0 0"))
	assert.False(t, probe.IsSwapFstabLine("UUID=abcd / ext4 defaults,noswap 0 1"))
	assert.False(t, probe.IsSwapFstabLine("/data/swapfiles /mnt/swap ext4 defaults 0 2"))
	assert.False(t, probe.IsSwapFstabLine(""))
}
