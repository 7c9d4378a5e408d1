package kubeadm

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/ports"
	"github.com/felixgeelhaar/nodeprep/internal/provider/commandutil"
)

// ImagesStep pre-pulls the control-plane images so init does not download
// them under its own timeout.
type ImagesStep struct {
	compiler.Meta
	version string
	runner  ports.CommandRunner
}

// NewImagesStep creates a new ImagesStep for a Kubernetes version such as
// "1.30.2".
func NewImagesStep(kubernetesVersion string, runner ports.CommandRunner, deps ...compiler.StepID) *ImagesStep {
	return &ImagesStep{
		Meta:    compiler.NewMeta(ImagesStepID, "Pull control-plane images for v"+kubernetesVersion, deps...),
		version: "v" + kubernetesVersion,
		runner:  runner,
	}
}

// missing returns the required images the runtime does not have.
func (s *ImagesStep) missing(ctx context.Context) ([]string, error) {
	result, err := commandutil.Run(ctx, s.runner, "kubeadm", "config", "images", "list", "--kubernetes-version", s.version)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, image := range strings.Fields(result.Stdout) {
		r, err := s.runner.Run(ctx, "crictl", "inspecti", image)
		if err != nil {
			return nil, err
		}
		if !r.Success() {
			out = append(out, image)
		}
	}
	return out, nil
}

// Check requires every image listed by kubeadm to be present.
func (s *ImagesStep) Check(ctx compiler.RunContext) (compiler.StepStatus, error) {
	missing, err := s.missing(ctx.Context())
	if err != nil {
		return "", err
	}
	if len(missing) == 0 {
		return compiler.StatusSatisfied, nil
	}
	return compiler.StatusNeedsApply, nil
}

// Plan returns the diff for this step.
func (s *ImagesStep) Plan(_ compiler.RunContext) (compiler.Diff, error) {
	return compiler.NewDiff(compiler.DiffTypeAdd, "images", "control-plane", "", s.version), nil
}

// Apply pulls the images.
func (s *ImagesStep) Apply(ctx compiler.RunContext) (compiler.ApplyResult, error) {
	missing, err := s.missing(ctx.Context())
	if err != nil {
		return "", err
	}
	if len(missing) == 0 {
		return compiler.ResultUnchanged, nil
	}
	if _, err := commandutil.Run(ctx.Context(), s.runner, "kubeadm", "config", "images", "pull", "--kubernetes-version", s.version); err != nil {
		return "", err
	}
	return compiler.ResultChanged, nil
}
