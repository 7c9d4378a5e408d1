// Package fakehost simulates an Ubuntu host for provisioning tests. It
// implements the command runner, filesystem and node lister ports over one
// in-memory state and counts every mutation.
package fakehost

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/mocks"
)

// Fixed identities used by the fake.
const (
	Hostname   = "node-1"
	PrimaryIP  = "192.168.56.10"
	JoinToken  = "abcdef.0123456789abcdef"
	CACertHash = "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	// ContainerdDefaultVersion is installed when containerd is not pinned.
	ContainerdDefaultVersion = "1.7.12-0ubuntu2"
)

// DefaultContainerdConfig is printed by "containerd config default".
const DefaultContainerdConfig = `version = 2

[plugins]
  [plugins."io.containerd.grpc.v1.cri"]
    sandbox_image = "registry.k8s.io/pause:3.8"
    [plugins."io.containerd.grpc.v1.cri".containerd]
      default_runtime_name = "runc"
      [plugins."io.containerd.grpc.v1.cri".containerd.runtimes]
        [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc]
          runtime_type = "io.containerd.runc.v2"
          [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc.options]
            SystemdCgroup = false
`

const (
	kubeletConf       = "/etc/kubernetes/kubelet.conf"
	adminConf         = "/etc/kubernetes/admin.conf"
	apiServerManifest = "/etc/kubernetes/manifests/kube-apiserver.yaml"
)

// packagedContainerdConfig is what the containerd package ships: CRI disabled.
const packagedContainerdConfig = "disabled_plugins = [\"cri\"]\n"

type service struct {
	active    bool
	enabled   bool
	startedAt time.Time
}

// Host is the simulated machine.
type Host struct {
	*mocks.FileSystem

	clockMu sync.Mutex
	clock   time.Time

	mu         sync.Mutex
	swap       []string
	modules    map[string]bool
	packages   map[string]string
	holds      map[string]bool
	services   map[string]*service
	images     map[string]bool
	addons     map[string]bool
	nodes      []string
	failures   map[string]string
	swapoffNop bool
	configured bool
	mutations  int
	initCount  int
	joinCount  int
	calls      []ports.CommandCall
}

// New returns a fresh Ubuntu host with one active swap device listed in
// /etc/fstab and no Kubernetes components.
func New() *Host {
	h := &Host{
		FileSystem: mocks.NewFileSystem(),
		clock:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		swap:       []string{"/swap.img"},
		modules:    map[string]bool{"ext4": true},
		packages:   map[string]string{},
		holds:      map[string]bool{},
		services:   map[string]*service{},
		images:     map[string]bool{},
		addons:     map[string]bool{},
		failures:   map[string]string{},
	}
	h.FileSystem.SetClock(h.tick)

	h.AddFile("/etc/hosts", "127.0.0.1 localhost\n127.0.1.1 "+Hostname+"-old\n\n# IPv6\n::1 ip6-localhost ip6-loopback\n")
	h.AddFile("/etc/fstab", "UUID=abcd / ext4 defaults 0 1\n/swap.img none swap sw 0 0\n")
	h.AddFile("/proc/sys/net/ipv4/ip_forward", "0\n")
	h.AddFile("/etc/os-release", "NAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\nID=ubuntu\nID_LIKE=debian\n")
	h.syncProc()
	return h
}

// tick advances the fake clock by one second.
func (h *Host) tick() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	h.clock = h.clock.Add(time.Second)
	return h.clock
}

// Now returns the current fake time without advancing it.
func (h *Host) Now() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.clock
}

// FailCommand makes every command line starting with prefix exit 1 with
// stderr. prefix is matched against ports.CommandCall.String().
func (h *Host) FailCommand(prefix, stderr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[prefix] = stderr
}

// SwapoffNoop makes "swapoff -a" report success without disabling swap.
func (h *Host) SwapoffNoop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.swapoffNop = true
}

// SetInstalled marks a package as installed at version.
func (h *Host) SetInstalled(name, version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packages[name] = version
}

// MarkJoined simulates a node that already joined a cluster.
func (h *Host) MarkJoined() {
	h.AddFile(kubeletConf, "apiVersion: v1\nkind: Config\n")
}

// MarkPartialInit simulates a kubeadm init that wrote the admin kubeconfig
// and static pod manifests, then failed before the API server came up.
func (h *Host) MarkPartialInit() {
	h.AddFile(adminConf, "apiVersion: v1\nkind: Config\nclusters: []\n")
	h.AddFile(apiServerManifest, "apiVersion: v1\nkind: Pod\n")
}

// Mutations returns the number of mutating commands and file writes.
func (h *Host) Mutations() int {
	h.mu.Lock()
	n := h.mutations
	h.mu.Unlock()
	return n + h.FileSystem.Writes()
}

// InitCount returns how many times kubeadm init ran.
func (h *Host) InitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initCount
}

// JoinCount returns how many times kubeadm join ran.
func (h *Host) JoinCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joinCount
}

// Calls returns every command run, in order.
func (h *Host) Calls() []ports.CommandCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ports.CommandCall, len(h.calls))
	copy(out, h.calls)
	return out
}

// Count returns how many recorded calls start with prefix.
func (h *Host) Count(prefix string) int {
	n := 0
	for _, c := range h.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			n++
		}
	}
	return n
}

// ActiveSwap returns the simulated swap devices.
func (h *Host) ActiveSwap() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.swap...)
}

// NodeNames implements ports.NodeLister.
func (h *Host) NodeNames(_ context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.nodes) == 0 && !h.initialized() {
		return nil, fmt.Errorf("connection refused")
	}
	return append([]string(nil), h.nodes...), nil
}

// WaitForNode implements ports.NodeLister without sleeping.
func (h *Host) WaitForNode(ctx context.Context, name string, _ time.Duration) error {
	names, err := h.NodeNames(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("node %q not registered", name)
}

// ClusterConfigUploaded implements ports.NodeLister.
func (h *Host) ClusterConfigUploaded(_ context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized() {
		return false, fmt.Errorf("connection refused")
	}
	return h.configured, nil
}

// Run implements ports.CommandRunner.
func (h *Host) Run(ctx context.Context, command string, args ...string) (ports.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.CommandResult{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	call := ports.CommandCall{Command: command, Args: append([]string(nil), args...)}
	h.calls = append(h.calls, call)
	line := call.String()
	for prefix, stderr := range h.failures {
		if strings.HasPrefix(line, prefix) {
			return ports.CommandResult{ExitCode: 1, Stderr: stderr}, nil
		}
	}

	switch command {
	case "hostname":
		if len(args) == 1 && args[0] == "-I" {
			return ok(PrimaryIP + " 172.17.0.1 \n"), nil
		}
		return ok(Hostname + "\n"), nil
	case "swapoff":
		return h.swapoff(), nil
	case "modprobe":
		return h.modprobe(args), nil
	case "sysctl":
		return h.sysctl(args), nil
	case "dpkg-query":
		return h.dpkgQuery(args), nil
	case "apt-get":
		return h.aptGet(args), nil
	case "apt-mark":
		return h.aptMark(args), nil
	case "curl":
		return h.curl(args), nil
	case "systemctl":
		return h.systemctl(args), nil
	case "containerd":
		if len(args) == 2 && args[0] == "config" && args[1] == "default" {
			return ok(DefaultContainerdConfig), nil
		}
	case "crictl":
		return h.crictl(args), nil
	case "kubeadm":
		return h.kubeadm(args), nil
	case "kubectl":
		return h.kubectl(args), nil
	case "id":
		return ok("0\n"), nil
	case "which":
		return ok("/usr/bin/" + args[len(args)-1] + "\n"), nil
	}

	return ports.CommandResult{ExitCode: 127, Stderr: command + ": command not found"}, nil
}

func ok(stdout string) ports.CommandResult {
	return ports.CommandResult{Stdout: stdout}
}

func fail(code int, stderr string) ports.CommandResult {
	return ports.CommandResult{ExitCode: code, Stderr: stderr}
}

func (h *Host) initialized() bool {
	return h.FileSystem.Exists(adminConf)
}

// syncProc rewrites the /proc views of swap and module state.
func (h *Host) syncProc() {
	var swaps strings.Builder
	swaps.WriteString("Filename\t\t\t\tType\t\tSize\t\tUsed\t\tPriority\n")
	for _, dev := range h.swap {
		fmt.Fprintf(&swaps, "%s\t\t\t\tfile\t\t2097148\t\t0\t\t-2\n", dev)
	}
	h.AddFile("/proc/swaps", swaps.String())

	names := make([]string, 0, len(h.modules))
	for m := range h.modules {
		names = append(names, m)
	}
	sort.Strings(names)
	var mods strings.Builder
	for _, m := range names {
		fmt.Fprintf(&mods, "%s 16384 0 - Live 0x0000000000000000\n", m)
	}
	h.AddFile("/proc/modules", mods.String())
}

func (h *Host) swapoff() ports.CommandResult {
	h.mutations++
	if !h.swapoffNop {
		h.swap = nil
		h.syncProc()
	}
	return ok("")
}

func (h *Host) modprobe(args []string) ports.CommandResult {
	if len(args) != 1 {
		return fail(1, "modprobe: usage")
	}
	name := args[0]
	if h.modules[name] {
		return ok("")
	}
	h.mutations++
	h.modules[name] = true
	if name == "br_netfilter" {
		h.AddFile("/proc/sys/net/bridge/bridge-nf-call-iptables", "0\n")
		h.AddFile("/proc/sys/net/bridge/bridge-nf-call-ip6tables", "0\n")
	}
	h.syncProc()
	return ok("")
}

func (h *Host) sysctl(args []string) ports.CommandResult {
	if len(args) != 2 || args[0] != "-w" {
		return fail(1, "sysctl: usage")
	}
	key, value, found := strings.Cut(args[1], "=")
	if !found {
		return fail(1, "sysctl: malformed setting")
	}
	file := path.Join("/proc/sys", strings.ReplaceAll(key, ".", "/"))
	if !h.FileSystem.Exists(file) {
		return fail(255, fmt.Sprintf("sysctl: cannot stat %s: No such file or directory", file))
	}
	h.mutations++
	h.AddFile(file, value+"\n")
	return ok(key + " = " + value + "\n")
}

func (h *Host) dpkgQuery(args []string) ports.CommandResult {
	name := args[len(args)-1]
	v, installed := h.packages[name]
	if !installed {
		return fail(1, "dpkg-query: no packages found matching "+name)
	}
	return ok(v + "\tinstalled")
}

func (h *Host) aptGet(args []string) ports.CommandResult {
	if len(args) == 0 {
		return fail(100, "apt-get: usage")
	}
	switch args[0] {
	case "update":
		h.mutations++
		return ok("Reading package lists... Done\n")
	case "install":
	default:
		return fail(100, "E: Invalid operation "+args[0])
	}

	allowHeld := false
	var specs []string
	for _, a := range args[1:] {
		switch {
		case a == "--allow-change-held-packages":
			allowHeld = true
		case strings.HasPrefix(a, "-"):
		default:
			specs = append(specs, a)
		}
	}

	for _, spec := range specs {
		name, version, pinned := strings.Cut(spec, "=")
		if strings.HasPrefix(name, "kube") && !h.FileSystem.Exists("/etc/apt/sources.list.d/kubernetes.list") {
			return fail(100, "E: Unable to locate package "+name)
		}
		if !pinned {
			version = ContainerdDefaultVersion
			if strings.HasPrefix(name, "kube") {
				version = "1.30.2-1.1"
			}
		}
		if cur, ok := h.packages[name]; ok && cur == version {
			continue
		}
		if h.holds[name] && !allowHeld {
			return fail(100, "E: Held packages were changed and -y was used without --allow-change-held-packages.")
		}
		h.mutations++
		h.packages[name] = version
		switch name {
		case "containerd":
			h.AddFile("/etc/containerd/config.toml", packagedContainerdConfig)
			h.services["containerd"] = &service{active: true, enabled: true, startedAt: h.tick()}
		case "kubelet":
			if _, ok := h.services["kubelet"]; !ok {
				h.services["kubelet"] = &service{enabled: true}
			}
		}
	}
	return ok("")
}

func (h *Host) aptMark(args []string) ports.CommandResult {
	if len(args) == 0 {
		return fail(1, "apt-mark: usage")
	}
	switch args[0] {
	case "showhold":
		names := make([]string, 0, len(h.holds))
		for n := range h.holds {
			names = append(names, n)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return ok("")
		}
		return ok(strings.Join(names, "\n") + "\n")
	case "hold":
		var out strings.Builder
		for _, n := range args[1:] {
			if _, installed := h.packages[n]; !installed {
				return fail(100, "E: Unable to locate package "+n)
			}
			if !h.holds[n] {
				h.mutations++
				h.holds[n] = true
			}
			fmt.Fprintf(&out, "%s set on hold.\n", n)
		}
		return ok(out.String())
	}
	return fail(1, "apt-mark: unknown command "+args[0])
}

func (h *Host) curl(args []string) ports.CommandResult {
	var out string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-o" {
			out = args[i+1]
		}
	}
	if out == "" {
		return fail(2, "curl: no output file")
	}
	h.mutations++
	h.AddFile(out, "-----BEGIN PGP PUBLIC KEY BLOCK-----\nfake\n-----END PGP PUBLIC KEY BLOCK-----\n")
	return ok("")
}

func (h *Host) systemctl(args []string) ports.CommandResult {
	if len(args) < 2 {
		return fail(1, "systemctl: usage")
	}
	verb := args[0]
	name := args[len(args)-1]
	if verb == "show" {
		name = args[1]
	}
	svc, known := h.services[name]

	switch verb {
	case "is-active":
		switch {
		case !known || !svc.active:
			return ports.CommandResult{ExitCode: 3, Stdout: "inactive\n"}
		case name == "kubelet" && !h.FileSystem.Exists(kubeletConf):
			// No cluster configuration yet: systemd keeps restarting it.
			return ports.CommandResult{ExitCode: 3, Stdout: "activating\n"}
		}
		return ok("active\n")
	case "is-enabled":
		if known && svc.enabled {
			return ok("enabled\n")
		}
		return ports.CommandResult{ExitCode: 1, Stdout: "disabled\n"}
	case "show":
		if !known || svc.startedAt.IsZero() {
			return ok("\n")
		}
		return ok(svc.startedAt.Format("Mon 2006-01-02 15:04:05 MST") + "\n")
	case "restart", "start", "enable":
		if !known {
			return fail(5, fmt.Sprintf("Failed to %s %s.service: Unit %s.service not found.", verb, name, name))
		}
		h.mutations++
		if verb == "enable" {
			svc.enabled = true
			if len(args) == 3 && args[1] == "--now" && !svc.active {
				svc.active = true
				svc.startedAt = h.tick()
			}
			return ok("")
		}
		svc.active = true
		svc.startedAt = h.tick()
		return ok("")
	}
	return fail(1, "systemctl: unknown verb "+verb)
}

func (h *Host) requiredImages() []string {
	return []string{
		"registry.k8s.io/kube-apiserver:v1.30.2",
		"registry.k8s.io/kube-controller-manager:v1.30.2",
		"registry.k8s.io/etcd:3.5.12-0",
	}
}

func (h *Host) crictl(args []string) ports.CommandResult {
	if len(args) == 2 && args[0] == "inspecti" {
		if h.images[args[1]] {
			return ok("{}\n")
		}
		return fail(1, "no such image "+args[1]+" present")
	}
	return fail(1, "crictl: usage")
}

func (h *Host) kubeadm(args []string) ports.CommandResult {
	line := strings.Join(args, " ")
	switch {
	case strings.HasPrefix(line, "config images list"):
		return ok(strings.Join(h.requiredImages(), "\n") + "\n")
	case strings.HasPrefix(line, "config images pull"):
		var out strings.Builder
		for _, img := range h.requiredImages() {
			if !h.images[img] {
				h.mutations++
				h.images[img] = true
			}
			fmt.Fprintf(&out, "[config/images] Pulled %s\n", img)
		}
		return ok(out.String())
	case strings.HasPrefix(line, "init"):
		if h.initialized() {
			return fail(1, "[preflight] Some fatal errors occurred:\n\t[ERROR FileAvailable--etc-kubernetes-manifests-kube-apiserver.yaml]: /etc/kubernetes/manifests/kube-apiserver.yaml already exists")
		}
		h.mutations++
		h.initCount++
		h.AddFile(adminConf, "apiVersion: v1\nkind: Config\nclusters: []\n")
		h.AddFile(apiServerManifest, "apiVersion: v1\nkind: Pod\n")
		h.configured = true
		h.AddFile(kubeletConf, "apiVersion: v1\nkind: Config\n")
		if svc, ok := h.services["kubelet"]; ok {
			svc.active = true
			svc.startedAt = h.tick()
		}
		h.nodes = append(h.nodes, Hostname)
		return ok("Your Kubernetes control-plane has initialized successfully!\n")
	case strings.HasPrefix(line, "token create --print-join-command"):
		if !h.initialized() {
			return fail(1, "failed to load admin kubeconfig")
		}
		h.mutations++
		return ok(fmt.Sprintf("kubeadm join %s:6443 --token %s --discovery-token-ca-cert-hash %s \n", PrimaryIP, JoinToken, CACertHash))
	case strings.HasPrefix(line, "join"):
		if h.FileSystem.Exists(kubeletConf) {
			return fail(1, "[ERROR FileAvailable--etc-kubernetes-kubelet.conf]: /etc/kubernetes/kubelet.conf already exists")
		}
		h.mutations++
		h.joinCount++
		h.AddFile(kubeletConf, "apiVersion: v1\nkind: Config\n")
		return ok("This node has joined the cluster\n")
	}
	return fail(1, "kubeadm: unknown command "+line)
}

func (h *Host) kubectl(args []string) ports.CommandResult {
	var verb, file string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "apply", "get":
			verb = args[i]
		case "-f":
			if i+1 < len(args) {
				file = args[i+1]
			}
		}
	}
	if !h.initialized() {
		return fail(1, "The connection to the server localhost:8080 was refused")
	}
	switch verb {
	case "apply":
		if !h.addons[file] {
			h.mutations++
			h.addons[file] = true
		}
		return ok("daemonset.apps/kube-flannel-ds created\n")
	case "get":
		if h.addons[file] {
			return ok("NAME\nkube-flannel-ds\n")
		}
		return fail(1, "Error from server (NotFound): daemonsets.apps \"kube-flannel-ds\" not found")
	}
	return fail(1, "kubectl: unknown command")
}

var (
	_ ports.CommandRunner = (*Host)(nil)
	_ ports.FileSystem    = (*Host)(nil)
	_ ports.NodeLister    = (*Host)(nil)
)
