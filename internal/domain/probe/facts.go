package probe

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Fact is one observed piece of host state.
type Fact struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observedAt"`
	Error      string    `json:"error,omitempty"`
}

// Facts is a read-only snapshot in observation order.
type Facts struct {
	items []Fact
}

// All returns a copy of every fact.
func (f Facts) All() []Fact {
	out := make([]Fact, len(f.items))
	copy(out, f.items)
	return out
}

// Get returns the fact with the given key.
func (f Facts) Get(key string) (Fact, bool) {
	for _, fact := range f.items {
		if fact.Key == key {
			return fact, true
		}
	}
	return Fact{}, false
}

// Len returns the number of facts.
func (f Facts) Len() int {
	return len(f.items)
}

// Query selects what a snapshot observes beyond the host-wide facts.
type Query struct {
	Modules  []string
	Sysctls  []string
	Packages []string
	Services []string
}

// Snapshot observes every fact in q. A probe failure is recorded on the fact
// rather than aborting the snapshot.
func (p *Probe) Snapshot(ctx context.Context, q Query) Facts {
	var facts Facts
	add := func(key, value string, err error) {
		fact := Fact{Key: key, Value: value, ObservedAt: p.now()}
		if err != nil {
			fact.Error = err.Error()
		}
		facts.items = append(facts.items, fact)
	}

	name, err := p.Hostname(ctx)
	add("host.name", name, err)
	ip, err := p.PrimaryIP(ctx)
	add("host.ip", ip, err)

	swap, err := p.ActiveSwap(ctx)
	add("swap.active", strconv.FormatBool(len(swap) > 0), err)

	for _, m := range q.Modules {
		loaded, err := p.ModuleLoaded(ctx, m)
		add("module."+m+".loaded", strconv.FormatBool(loaded), err)
	}
	for _, k := range q.Sysctls {
		v, err := p.Sysctl(ctx, k)
		add("sysctl."+k, v, err)
	}
	for _, pkg := range q.Packages {
		v, _, err := p.PackageVersion(ctx, pkg)
		add("package."+pkg+".version", v, err)
		held, err := p.PackageHeld(ctx, pkg)
		add("package."+pkg+".held", strconv.FormatBool(held), err)
	}
	for _, s := range q.Services {
		state, err := p.ServiceState(ctx, s)
		add("service."+s+".state", state, err)
		add("service."+s+".active", strconv.FormatBool(state == "active"), err)
		enabled, err := p.ServiceEnabled(ctx, s)
		add("service."+s+".enabled", strconv.FormatBool(enabled), err)
	}

	add("kubelet.joined", strconv.FormatBool(p.KubeletJoined(ctx)), nil)
	add("cluster.initialized", strconv.FormatBool(p.ClusterInitialized(ctx)), nil)

	if name != "" {
		lines, _, err := p.FileLines(ctx, p.paths.Hosts)
		add("file."+p.paths.Hosts+".line", hostsLineFor(lines, name), err)
	}

	return facts
}

func hostsLineFor(lines []string, name string) string {
	for _, line := range lines {
		if e, ok := ParseHostsLine(line); ok && e.HasName(name) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}
