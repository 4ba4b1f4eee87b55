// Package oracle provides goal decomposition proposals. An Oracle turns a
// high-level goal into raw task specs; the decompose package validates and
// wires them into a graph. Oracles never mutate engine state.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mseverin/taskwright/pkg/models"
)

// ErrOracleUnavailable indicates the oracle could not be reached. Planning
// aborts on this error; there is no partial decomposition.
var ErrOracleUnavailable = errors.New("oracle unavailable")

// Oracle proposes a task breakdown for a goal.
type Oracle interface {
	// Propose returns raw task specs in proposal order. Dependency
	// references may be zero-based indexes or exact descriptions.
	Propose(ctx context.Context, goal string) ([]models.RawTaskSpec, error)
}

// proposedTask is the JSON structure an oracle returns for a single task.
type proposedTask struct {
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on"`
}

// ParseProposal extracts the JSON task array from an oracle response. The
// response may wrap the array in prose; everything outside the outermost
// brackets is discarded.
func ParseProposal(response string) ([]models.RawTaskSpec, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("no JSON array found in response (%d chars): %q", len(response), preview)
	}

	var proposed []proposedTask
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &proposed); err != nil {
		return nil, fmt.Errorf("unmarshal proposal: %w", err)
	}
	if len(proposed) == 0 {
		return nil, fmt.Errorf("empty task list returned")
	}

	specs := make([]models.RawTaskSpec, len(proposed))
	for i, p := range proposed {
		specs[i] = models.RawTaskSpec{
			Description: p.Description,
			DependsOn:   p.DependsOn,
		}
	}
	return specs, nil
}
