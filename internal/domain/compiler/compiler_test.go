package compiler

import (
	"errors"
	"reflect"
	"testing"

	"github.com/felixgeelhaar/nodeprep/internal/domain/config"
)

// mockProvider is a test double for Provider.
type mockProvider struct {
	name      string
	compileFn func(CompileContext) ([]Step, error)
}

func newMockProvider(name string, steps ...Step) *mockProvider {
	return &mockProvider{
		name: name,
		compileFn: func(CompileContext) ([]Step, error) {
			return steps, nil
		},
	}
}

func (m *mockProvider) Name() string                               { return m.name }
func (m *mockProvider) Compile(ctx CompileContext) ([]Step, error) { return m.compileFn(ctx) }

func testContext() CompileContext {
	return NewCompileContext(config.Default(config.RoleControlPlane))
}

func TestCompiler_RegisterProvider(t *testing.T) {
	c := NewCompiler()
	c.RegisterProvider(newMockProvider("swap"))
	c.RegisterProvider(newMockProvider("kernel"))

	providers := c.Providers()
	if len(providers) != 2 || providers[0].Name() != "swap" {
		t.Errorf("Providers() = %v", providers)
	}
}

func TestCompiler_Compile_Empty(t *testing.T) {
	graph, err := NewCompiler().Compile(testContext())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if graph.Len() != 0 {
		t.Errorf("Len() = %d, want 0", graph.Len())
	}
}

func TestCompiler_Compile_ProvidersInDeclarationOrder(t *testing.T) {
	c := NewCompiler()
	c.RegisterProvider(newMockProvider("swap", newMockStep("swap:disable:all")))
	c.RegisterProvider(newMockProvider("kernel",
		newMockStep("kernel:module:overlay"),
		newMockStep("kernel:module:br_netfilter"),
	))

	graph, err := c.Compile(testContext())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	want := []string{"swap:disable:all", "kernel:module:overlay", "kernel:module:br_netfilter"}
	if got := ids(graph.Steps()); !reflect.DeepEqual(got, want) {
		t.Errorf("Steps() = %v, want %v", got, want)
	}
}

func TestCompiler_Compile_PassesRole(t *testing.T) {
	var role config.Role
	p := newMockProvider("kubeadm")
	p.compileFn = func(ctx CompileContext) ([]Step, error) {
		role = ctx.Role()
		return nil, nil
	}

	c := NewCompiler()
	c.RegisterProvider(p)
	if _, err := c.Compile(NewCompileContext(config.Default(config.RoleWorker))); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if role != config.RoleWorker {
		t.Errorf("Role() = %q, want worker", role)
	}
}

func TestCompiler_Compile_ProviderError(t *testing.T) {
	p := newMockProvider("apt")
	p.compileFn = func(CompileContext) ([]Step, error) {
		return nil, errors.New("boom")
	}

	c := NewCompiler()
	c.RegisterProvider(p)
	_, err := c.Compile(testContext())
	if CodeOf(err) != ErrCodeProviderFailed {
		t.Errorf("Compile() error = %v, want PROVIDER_FAILED", err)
	}
	if errors.Is(err, ErrPlanInvalid) {
		t.Error("provider failure is not a plan error")
	}
}

func TestCompiler_Compile_PlanInvalid(t *testing.T) {
	tests := []struct {
		name     string
		steps    []Step
		wantCode string
	}{
		{
			name:     "duplicate",
			steps:    []Step{newMockStep("a:x:1"), newMockStep("a:x:1")},
			wantCode: ErrCodeStepDuplicate,
		},
		{
			name:     "missing",
			steps:    []Step{newMockStep("a:x:1", "nope:x:1")},
			wantCode: ErrCodeDependencyMissing,
		},
		{
			name:     "self",
			steps:    []Step{newMockStep("a:x:1", "a:x:1")},
			wantCode: ErrCodeDependencySelf,
		},
		{
			name:     "cycle",
			steps:    []Step{newMockStep("a:x:1", "b:x:1"), newMockStep("b:x:1", "a:x:1")},
			wantCode: ErrCodeCyclicDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompiler()
			c.RegisterProvider(newMockProvider("test", tt.steps...))

			graph, err := c.Compile(testContext())
			if graph != nil {
				t.Error("Compile() should not return a graph")
			}
			if !errors.Is(err, ErrPlanInvalid) {
				t.Errorf("Compile() error = %v, want ErrPlanInvalid", err)
			}
			if CodeOf(err) != tt.wantCode {
				t.Errorf("code = %q, want %q", CodeOf(err), tt.wantCode)
			}
		})
	}
}

func TestCompileContext_Host(t *testing.T) {
	ctx := testContext()
	if ctx.Role() != config.RoleControlPlane {
		t.Errorf("Role() = %q", ctx.Role())
	}
	withHost := ctx.WithHost(Host{Name: "node-1", IP: "192.168.56.10"})
	if withHost.Host().Name != "node-1" || withHost.Host().IP != "192.168.56.10" {
		t.Errorf("Host() = %+v", withHost.Host())
	}
	if ctx.Host() != (Host{}) {
		t.Error("WithHost must not modify the receiver")
	}
}
