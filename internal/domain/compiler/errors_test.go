package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStepError_Error(t *testing.T) {
	err := NewApplyFailedError("swap:disable:all", errors.New("exit status 1"))
	want := `step "swap:disable:all": step failed to apply: exit status 1`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err.Provider = "swap"
	if !strings.HasPrefix(err.Error(), `provider "swap", step "swap:disable:all"`) {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestStepError_Format(t *testing.T) {
	err := NewConfigPatchFailedError("containerd:config:systemd-cgroup", "/etc/containerd/config.toml", errors.New("toml: bad"))
	f := err.Format()

	for _, want := range []string{
		"[CONFIG_PATCH_FAILED] failed to patch /etc/containerd/config.toml",
		"Step: containerd:config:systemd-cgroup",
		"Suggestion:",
		"Cause: toml: bad",
	} {
		if !strings.Contains(f, want) {
			t.Errorf("Format() missing %q:\n%s", want, f)
		}
	}
}

func TestStepError_IsSentinels(t *testing.T) {
	wrapped := fmt.Errorf("compile: %w", NewCyclicDependencyError([]string{"a", "b", "a"}))
	if !errors.Is(wrapped, ErrPlanInvalid) {
		t.Error("cyclic dependency should match ErrPlanInvalid")
	}
	if errors.Is(wrapped, ErrPostcondition) {
		t.Error("cyclic dependency should not match ErrPostcondition")
	}

	post := NewPostconditionError("swap:disable:all", errors.New("1 swap device active"))
	if !errors.Is(post, ErrPostcondition) || errors.Is(post, ErrPlanInvalid) {
		t.Error("postcondition sentinel mismatch")
	}
	if CodeOf(post) != ErrCodePostconditionFailed {
		t.Errorf("CodeOf() = %q", CodeOf(post))
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf() of a plain error should be empty")
	}
}

func TestStepError_WithCopies(t *testing.T) {
	base := NewStepError(ErrCodeApplyFailed, "failed")
	cause := errors.New("cause")
	derived := base.WithStepID("a:b:c").WithSuggestion("retry").WithUnderlying(cause)

	if base.StepID != "" || base.Suggestion != "" || base.Underlying != nil {
		t.Error("With* methods must not modify the receiver")
	}
	if derived.StepID != "a:b:c" || derived.Suggestion != "retry" || !errors.Is(derived, cause) {
		t.Errorf("derived = %+v", derived)
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("kubeadm:init:cluster", errors.New("deadline"))
	if CodeOf(err) != ErrCodeTimeout {
		t.Errorf("CodeOf() = %q", CodeOf(err))
	}
}
