package perimeter

import (
	"context"
	"math"
	"sort"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// setpointTolerance is the smallest setpoint change reported as an
// activation.
const setpointTolerance = 1e-6

// Input is one perimeter optimization request.
type Input struct {
	Perimeter *Perimeter
	// Variant is the network the optimization starts from. The chosen
	// remedial actions are applied to it on return.
	Variant sensi.VariantID
	// PrePerimeter is the snapshot of Variant over the perimeter cnecs.
	PrePerimeter *sensi.Result
	// Reference holds the margins monitored cnecs are compared to.
	Reference *sensi.Result
	// Applied are post-contingency decisions kept fixed during the run.
	Applied *sensi.AppliedActions
	// StopCost ends the search once the total cost is at or below it.
	StopCost *float64
}

// Result is the outcome of a perimeter optimization.
type Result struct {
	State          *crac.State
	Status         model.ComputationStatus
	PreCost        Cost
	Cost           Cost
	NetworkActions []*crac.NetworkAction
	PreSetpoints   map[*crac.RangeAction]float64
	Setpoints      map[*crac.RangeAction]float64
	// Sensitivity is the snapshot of the optimized variant over the
	// perimeter cnecs. Nil when the optimization failed.
	Sensitivity *sensi.Result
}

// ActivatedRangeActions returns the range actions whose setpoint moved,
// sorted by id.
func (r *Result) ActivatedRangeActions() []*crac.RangeAction {
	var out []*crac.RangeAction
	for ra, post := range r.Setpoints {
		if math.Abs(post-r.PreSetpoints[ra]) > setpointTolerance {
			out = append(out, ra)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IsActivated reports whether na was chosen.
func (r *Result) IsActivated(na *crac.NetworkAction) bool {
	for _, x := range r.NetworkActions {
		if x == na {
			return true
		}
	}
	return false
}

// Optimizer chooses the remedial actions of a perimeter.
type Optimizer interface {
	Optimize(ctx context.Context, in Input) (*Result, error)
}

// setpointsOf reads the current setpoints of ras from res, defaulting to the
// initial setpoint of each action.
func setpointsOf(ras []*crac.RangeAction, res *sensi.Result) map[*crac.RangeAction]float64 {
	out := make(map[*crac.RangeAction]float64, len(ras))
	for _, ra := range ras {
		if v, ok := res.Setpoint(ra); ok {
			out[ra] = v
		} else {
			out[ra] = ra.InitialSetpoint()
		}
	}
	return out
}
