package kubeadm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/execution"
	"github.com/felixgeelhaar/nodeprep/internal/domain/joincred"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/kubeadm"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/fakehost"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/mocks"
)

const initLog = "/var/log/nodeprep/kubeadm-init.log"

func runCtx() compiler.RunContext {
	return compiler.NewRunContext(context.Background())
}

func initOptions() kubeadm.InitOptions {
	return kubeadm.InitOptions{
		KubernetesVersion: "1.30.2",
		AdvertiseAddress:  fakehost.PrimaryIP,
		PodNetworkCIDR:    "10.244.0.0/16",
		LogPath:           initLog,
		Timeout:           20 * time.Minute,
	}
}

// initialized returns a host where kubeadm init already ran.
func initialized(t *testing.T) *fakehost.Host {
	t.Helper()
	h := fakehost.New()
	step, err := kubeadm.NewInitStep(initOptions(), h, h, h, probe.New(h, h))
	require.NoError(t, err)
	_, err = step.Apply(runCtx())
	require.NoError(t, err)
	return h
}

func credential(t *testing.T) joincred.Credential {
	t.Helper()
	c, err := joincred.New(fakehost.PrimaryIP+":6443", fakehost.JoinToken, fakehost.CACertHash)
	require.NoError(t, err)
	return c
}

// timeoutRunner records the command timeout carried by the context.
type timeoutRunner struct {
	timeout time.Duration
	err     error
}

func (r *timeoutRunner) Run(ctx context.Context, _ string, _ ...string) (ports.CommandResult, error) {
	r.timeout, _ = ports.CommandTimeoutFromContext(ctx)
	return ports.CommandResult{}, r.err
}

func TestImagesStep_ApplyTwice(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	step := kubeadm.NewImagesStep("1.30.2", h)

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusNeedsApply, status)

	result, err := step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultChanged, result)
	assert.Equal(t, 1, h.Count("kubeadm config images pull --kubernetes-version v1.30.2"))

	mutations := h.Mutations()
	result, err = step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultUnchanged, result)
	assert.Equal(t, mutations, h.Mutations())
}

func TestInitStep_RunsOnce(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	step, err := kubeadm.NewInitStep(initOptions(), h, h, h, probe.New(h, h))
	require.NoError(t, err)
	assert.Equal(t, initLog, step.LogPath())

	diff, err := step.Plan(runCtx())
	require.NoError(t, err)
	assert.Equal(t,
		"! kubeadm init --apiserver-advertise-address=192.168.56.10 --pod-network-cidr=10.244.0.0/16 --kubernetes-version=v1.30.2",
		diff.Summary())

	result, err := step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultChanged, result)
	assert.Contains(t, h.Content(initLog), "initialized successfully")
	assert.Contains(t, h.Content(probe.DefaultPaths().InitMarker), "kubeadm init ")

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusSatisfied, status)

	result, err = step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultUnchanged, result)
	assert.Equal(t, 1, h.InitCount())
}

func TestInitStep_FailureIsLogged(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	h.FailCommand("kubeadm init", "[ERROR Swap]: running with swap on is not supported")
	step, err := kubeadm.NewInitStep(initOptions(), h, h, h, probe.New(h, h))
	require.NoError(t, err)

	_, err = step.Apply(runCtx())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running with swap on is not supported")

	log := h.Content(initLog)
	assert.True(t, strings.HasPrefix(log, "$ kubeadm init "))
	assert.Contains(t, log, "[ERROR Swap]")
	assert.Contains(t, log, "exited with status 1")
	assert.Equal(t, 0, h.InitCount())
}

func TestInitStep_IncompleteInitIsNotSkipped(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	h.MarkPartialInit()
	step, err := kubeadm.NewInitStep(initOptions(), h, h, h, probe.New(h, h))
	require.NoError(t, err)

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusNeedsApply, status)

	diff, err := step.Plan(runCtx())
	require.NoError(t, err)
	assert.Equal(t, "~ kubeadm init (partially initialized -> reset required)", diff.Summary())

	results, err := execution.NewExecutor().
		Execute(context.Background(), execution.NewPlanFromSteps([]compiler.Step{step}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kubeadm.ErrIncompleteInit))
	require.Len(t, results, 1)
	assert.Equal(t, execution.StatusFailed, results[0].Status())
	assert.Contains(t, results[0].Error().Error(), "kubeadm reset --force")
	assert.Equal(t, initLog, results[0].LogPath())
	assert.Equal(t, 0, h.InitCount())
	assert.Equal(t, 0, h.Count("kubeadm init"))
}

func TestInitStep_ClusterInitializedElsewhere(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	fs := mocks.NewFileSystem()
	fs.AddFile("/etc/kubernetes/admin.conf", "x")
	fs.AddFile("/etc/kubernetes/manifests/kube-apiserver.yaml", "x")
	p := probe.New(runner, fs)
	step, err := kubeadm.NewInitStep(initOptions(), runner, fs, &nodes{uploaded: true}, p)
	require.NoError(t, err)

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusSatisfied, status)

	result, err := step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultUnchanged, result)
	assert.True(t, p.ClusterInitialized(context.Background()), "completion is recorded")
	assert.Empty(t, runner.Calls())
}

func TestInitStep_UsesBootstrapTimeout(t *testing.T) {
	t.Parallel()

	runner := &timeoutRunner{err: ports.ErrCommandTimeout}
	fs := mocks.NewFileSystem()
	step, err := kubeadm.NewInitStep(initOptions(), runner, fs, &nodes{}, probe.New(runner, fs))
	require.NoError(t, err)

	_, err = step.Apply(runCtx())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrCommandTimeout))
	assert.Equal(t, 20*time.Minute, runner.timeout)
	assert.Contains(t, fs.Content(initLog), "command timed out")
}

func TestNewInitStep_Validation(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	tests := []struct {
		name   string
		modify func(*kubeadm.InitOptions)
	}{
		{name: "bad address", modify: func(o *kubeadm.InitOptions) { o.AdvertiseAddress = "node-1" }},
		{name: "bad cidr", modify: func(o *kubeadm.InitOptions) { o.PodNetworkCIDR = "10.244.0.0" }},
		{name: "relative log path", modify: func(o *kubeadm.InitOptions) { o.LogPath = "init.log" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := initOptions()
			tt.modify(&opts)
			_, err := kubeadm.NewInitStep(opts, h, h, h, probe.New(h, h))
			assert.Error(t, err)
		})
	}
}

func TestKubeconfigStep_ApplyTwice(t *testing.T) {
	t.Parallel()

	h := initialized(t)
	step, err := kubeadm.NewKubeconfigStep("/root/.kube/config", h)
	require.NoError(t, err)

	result, err := step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultChanged, result)
	assert.Equal(t, h.Content(kubeadm.AdminConf), h.Content("/root/.kube/config"))
	assert.Equal(t, 0o600, int(h.Mode("/root/.kube/config").Perm()))

	result, err = step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultUnchanged, result)
}

func TestKubeconfigStep_BeforeInit(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	step, err := kubeadm.NewKubeconfigStep("/root/.kube/config", h)
	require.NoError(t, err)

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusNeedsApply, status)
}

func TestNetworkAddonStep_ApplyTwice(t *testing.T) {
	t.Parallel()

	url := "https://github.com/flannel-io/flannel/releases/latest/download/kube-flannel.yml"

	h := fakehost.New()
	step, err := kubeadm.NewNetworkAddonStep(url, h)
	require.NoError(t, err)

	status, err := step.Check(runCtx())
	require.NoError(t, err, "an unreachable API server reads as not applied")
	assert.Equal(t, compiler.StatusNeedsApply, status)

	h = initialized(t)
	step, err = kubeadm.NewNetworkAddonStep(url, h)
	require.NoError(t, err)

	result, err := step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultChanged, result)
	assert.Equal(t, 1, h.Count("kubectl --kubeconfig /etc/kubernetes/admin.conf apply -f "+url))

	result, err = step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultUnchanged, result)
}

func TestNewNetworkAddonStep_RejectsPlainHTTP(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	_, err := kubeadm.NewNetworkAddonStep("http://example.com/cni.yaml", h)
	assert.Error(t, err)
}

func TestJoinCommandStep_ApplyTwice(t *testing.T) {
	t.Parallel()

	h := initialized(t)
	step, err := kubeadm.NewJoinCommandStep(joincred.DefaultPath, h, h)
	require.NoError(t, err)

	result, err := step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultChanged, result)

	cred, err := joincred.ReadFile(h, joincred.DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, credential(t), cred)
	assert.Equal(t, 0o600, int(h.Mode(joincred.DefaultPath).Perm()))

	result, err = step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultUnchanged, result)
	assert.Equal(t, 1, h.Count("kubeadm token create"))
}

func TestJoinCommandStep_InvalidOutput(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddResult("kubeadm", []string{"token", "create", "--print-join-command"},
		ports.CommandResult{Stdout: "W0301 warning only\n"})
	fs := mocks.NewFileSystem()

	step, err := kubeadm.NewJoinCommandStep(joincred.DefaultPath, runner, fs)
	require.NoError(t, err)

	_, err = step.Apply(runCtx())
	require.Error(t, err)
	assert.True(t, errors.Is(err, joincred.ErrInvalidCredential))
	assert.False(t, fs.Exists(joincred.DefaultPath))
}

// nodes is a ports.NodeLister whose node appears once WaitForNode is called.
type nodes struct {
	names    []string
	waited   time.Duration
	err      error
	uploaded bool
}

func (n *nodes) NodeNames(_ context.Context) ([]string, error) {
	return n.names, nil
}

func (n *nodes) ClusterConfigUploaded(_ context.Context) (bool, error) {
	return n.uploaded, nil
}

func (n *nodes) WaitForNode(_ context.Context, name string, timeout time.Duration) error {
	n.waited = timeout
	if n.err != nil {
		return n.err
	}
	n.names = append(n.names, name)
	return nil
}

func TestNodeRegisteredStep(t *testing.T) {
	t.Parallel()

	h := initialized(t)
	lister := &nodes{}
	step := kubeadm.NewNodeRegisteredStep(fakehost.Hostname, time.Minute, lister, probe.New(h, h))

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusNeedsApply, status)

	result, err := step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultUnchanged, result, "waiting does not change the host")
	assert.Equal(t, time.Minute, lister.waited)

	status, err = step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusSatisfied, status)
}

func TestNodeRegisteredStep_MixedCaseHostname(t *testing.T) {
	t.Parallel()

	h := initialized(t)
	lister := &nodes{names: []string{"node-1"}}
	step := kubeadm.NewNodeRegisteredStep("Node-1", time.Minute, lister, probe.New(h, h))

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusSatisfied, status)

	lister = &nodes{}
	step = kubeadm.NewNodeRegisteredStep("Node-1", time.Minute, lister, probe.New(h, h))
	_, err = step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, []string{"node-1"}, lister.names)
}

func TestNodeRegisteredStep_BeforeInit(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	step := kubeadm.NewNodeRegisteredStep(fakehost.Hostname, time.Minute, h, probe.New(h, h))

	status, err := step.Check(runCtx())
	require.NoError(t, err, "the API server is not queried before init")
	assert.Equal(t, compiler.StatusNeedsApply, status)
}

func TestNodeRegisteredStep_WaitFails(t *testing.T) {
	t.Parallel()

	h := initialized(t)
	lister := &nodes{err: errors.New("timed out waiting for node")}
	step := kubeadm.NewNodeRegisteredStep(fakehost.Hostname, time.Minute, lister, probe.New(h, h))

	_, err := step.Apply(runCtx())
	assert.EqualError(t, err, "timed out waiting for node")
}

func TestJoinStep_RunsOnce(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	step, err := kubeadm.NewJoinStep(credential(t), 20*time.Minute, h, probe.New(h, h))
	require.NoError(t, err)

	diff, err := step.Plan(runCtx())
	require.NoError(t, err)
	assert.NotContains(t, diff.Summary(), "0123456789abcdef")

	result, err := step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultChanged, result)

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusSatisfied, status)

	result, err = step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.ResultUnchanged, result)
	assert.Equal(t, 1, h.JoinCount())
}

func TestJoinStep_AlreadyJoined(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	h.MarkJoined()
	step, err := kubeadm.NewJoinStep(credential(t), time.Minute, h, probe.New(h, h))
	require.NoError(t, err)

	status, err := step.Check(runCtx())
	require.NoError(t, err)
	assert.Equal(t, compiler.StatusSatisfied, status)
	assert.Equal(t, 0, h.JoinCount())
}

func TestJoinStep_FailureRedactsToken(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	h.FailCommand("kubeadm join", "error execution phase preflight: couldn't validate the identity of the API Server")
	step, err := kubeadm.NewJoinStep(credential(t), time.Minute, h, probe.New(h, h))
	require.NoError(t, err)

	_, err = step.Apply(runCtx())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "couldn't validate the identity")
	assert.Contains(t, err.Error(), "abcdef.****************")
	assert.NotContains(t, err.Error(), "0123456789abcdef")
}

func TestJoinStep_UsesBootstrapTimeout(t *testing.T) {
	t.Parallel()

	runner := &timeoutRunner{}
	fs := mocks.NewFileSystem()
	step, err := kubeadm.NewJoinStep(credential(t), 15*time.Minute, runner, probe.New(runner, fs))
	require.NoError(t, err)

	_, err = step.Apply(runCtx())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, runner.timeout)
}
