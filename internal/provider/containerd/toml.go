package containerd

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

// CRI plugin names by config schema version.
const (
	criPluginV2 = "io.containerd.grpc.v1.cri"
	criPluginV3 = "io.containerd.cri.v1.runtime"
)

var errNoCRITable = errors.New("CRI plugin table not found")

// document is a parsed containerd config.
type document map[string]any

func parseDocument(data []byte) (document, error) {
	doc := document{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d document) version() int64 {
	v, _ := d["version"].(int64)
	return v
}

func (d document) criPlugin() string {
	if d.version() >= 3 {
		return criPluginV3
	}
	return criPluginV2
}

// criDisabled reports whether disabled_plugins lists the CRI plugin, as the
// distribution package ships it.
func (d document) criDisabled() bool {
	list, _ := d["disabled_plugins"].([]any)
	return slices.ContainsFunc(list, func(v any) bool {
		s, _ := v.(string)
		return s == "cri" || s == criPluginV2 || s == criPluginV3
	})
}

// runcOptions returns the runc options table. With create set, tables below
// the CRI plugin table are created when missing.
func (d document) runcOptions(create bool) (map[string]any, error) {
	plugins, ok := d["plugins"].(map[string]any)
	if !ok {
		return nil, errNoCRITable
	}
	cri, ok := plugins[d.criPlugin()].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: plugins.%q", errNoCRITable, d.criPlugin())
	}

	table := cri
	for _, key := range []string{"containerd", "runtimes", "runc", "options"} {
		next, ok := table[key].(map[string]any)
		if !ok {
			if !create {
				return nil, nil
			}
			next = map[string]any{}
			table[key] = next
		}
		table = next
	}
	return table, nil
}

// systemdCgroup reports whether runc uses the systemd cgroup driver.
func (d document) systemdCgroup() bool {
	opts, err := d.runcOptions(false)
	if err != nil || opts == nil {
		return false
	}
	v, _ := opts["SystemdCgroup"].(bool)
	return v
}

// setSystemdCgroup switches runc to the systemd cgroup driver.
func (d document) setSystemdCgroup() error {
	opts, err := d.runcOptions(true)
	if err != nil {
		return err
	}
	opts["SystemdCgroup"] = true
	return nil
}

func (d document) marshal() ([]byte, error) {
	return toml.Marshal(map[string]any(d))
}
