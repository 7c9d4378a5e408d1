package apt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
	"github.com/felixgeelhaar/nodeprep/internal/provider/apt"
	"github.com/felixgeelhaar/nodeprep/internal/testutil/fakehost"
)

func stepIDs(steps []compiler.Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID().String()
	}
	return ids
}

func TestProvider_CompileControlPlane(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	p := apt.NewProvider(h, h)
	assert.Equal(t, "apt", p.Name())

	steps, err := p.Compile(compiler.NewCompileContext(config.Default(config.RoleControlPlane)))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"apt:repository:kubernetes",
		"apt:package:containerd",
		"apt:package:kubelet",
		"apt:package:kubeadm",
		"apt:package:kubectl",
		"apt:hold:kubernetes",
	}, stepIDs(steps))

	assert.Empty(t, steps[1].DependsOn(), "containerd comes from the distribution archive")
	assert.Equal(t, []compiler.StepID{apt.RepositoryStepID}, steps[2].DependsOn())
	assert.Len(t, steps[5].DependsOn(), 3)
}

func TestProvider_CompileWorker(t *testing.T) {
	t.Parallel()

	h := fakehost.New()
	steps, err := apt.NewProvider(h, h).Compile(compiler.NewCompileContext(config.Default(config.RoleWorker)))
	require.NoError(t, err)
	assert.NotContains(t, stepIDs(steps), "apt:package:kubectl")
	assert.Len(t, steps, 5)
}

func TestProvider_CompileInvalidPin(t *testing.T) {
	t.Parallel()

	cfg := config.Default(config.RoleWorker)
	cfg.ContainerdVersion = "bad version"

	h := fakehost.New()
	_, err := apt.NewProvider(h, h).Compile(compiler.NewCompileContext(cfg))
	assert.Error(t, err)
}
