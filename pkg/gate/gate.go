package gate

import (
	"fmt"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// Gate decides after each stage whether a prediction is final
type Gate struct {
	threshold float64
	earlyExit float64
}

// New creates a Gate, refusing thresholds that are out of range or inverted
func New(t types.Thresholds) (*Gate, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	return &Gate{threshold: t.ConfidenceThreshold, earlyExit: t.EarlyExitConfidence}, nil
}

// Evaluate returns the decision for confidence. final reports whether no stage remains.
func (g *Gate) Evaluate(confidence float64, final bool) types.Decision {
	switch {
	case confidence >= g.earlyExit:
		return types.DecisionAccept
	case final && confidence >= g.threshold:
		return types.DecisionAccept
	case final:
		return types.DecisionReject
	default:
		return types.DecisionEscalate
	}
}

// Thresholds returns the configured bars
func (g *Gate) Thresholds() types.Thresholds {
	return types.Thresholds{ConfidenceThreshold: g.threshold, EarlyExitConfidence: g.earlyExit}
}
