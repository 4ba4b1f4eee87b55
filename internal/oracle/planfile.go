package oracle

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mseverin/taskwright/pkg/models"
)

// planFile is the on-disk plan format.
type planFile struct {
	Goal  string `yaml:"goal"`
	Tasks []struct {
		Description string   `yaml:"description"`
		DependsOn   []string `yaml:"depends_on"`
	} `yaml:"tasks"`
}

// PlanFileOracle reads a fixed task breakdown from a YAML plan file. It is
// deterministic and needs no network, which makes it the default for scripted
// runs and tests.
type PlanFileOracle struct {
	path string
}

// NewPlanFileOracle creates an oracle backed by the plan at path.
func NewPlanFileOracle(path string) *PlanFileOracle {
	return &PlanFileOracle{path: path}
}

// Propose implements Oracle. The goal argument is informational; the plan
// file is authoritative. A plan whose goal field is set and disagrees with
// the requested goal is rejected to catch stale plans.
func (o *PlanFileOracle) Propose(ctx context.Context, goal string) ([]models.RawTaskSpec, error) {
	data, err := os.ReadFile(o.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read plan %s: %v", ErrOracleUnavailable, o.path, err)
	}

	var plan planFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", o.path, err)
	}
	if plan.Goal != "" && goal != "" && plan.Goal != goal {
		return nil, fmt.Errorf("plan %s is for goal %q, not %q", o.path, plan.Goal, goal)
	}

	specs := make([]models.RawTaskSpec, len(plan.Tasks))
	for i, t := range plan.Tasks {
		specs[i] = models.RawTaskSpec{
			Description: t.Description,
			DependsOn:   t.DependsOn,
		}
	}
	return specs, nil
}
