package orchestrator

import (
	"time"

	"github.com/signalsfoundry/rao-orchestrator/internal/params"
	"github.com/signalsfoundry/rao-orchestrator/internal/perimeter"
)

// DecisionInput is everything the second preventive decision depends on.
type DecisionInput struct {
	// InitialCost is the total cost before any remedial action.
	InitialCost float64
	// PreventiveCost is the total cost of the first preventive perimeter.
	PreventiveCost float64
	// FinalCost is the total cost after the first pass at the last instant.
	FinalCost float64
	// CurativeCosts are the costs of every curative perimeter of the first
	// pass.
	CurativeCosts []perimeter.Cost

	// Deadline is the end of the time budget, zero when unlimited.
	Deadline time.Time
	Now      time.Time
	Elapsed  time.Duration
	// EstimatedDuration is the expected length of a second pass, taken from
	// the first preventive perimeter.
	EstimatedDuration time.Duration
}

// ShouldRunSecondPreventive decides whether a second preventive pass is
// worth running. The reason explains a negative answer, or the condition
// that fired.
func ShouldRunSecondPreventive(p *params.Parameters, in DecisionInput) (bool, string) {
	sp := p.SecondPreventive
	if sp == nil {
		return false, "no second preventive configuration"
	}
	if sp.ExecutionCondition == params.SecondPreventiveDisabled {
		return false, "second preventive disabled"
	}
	if !in.Deadline.IsZero() && in.Elapsed+in.EstimatedDuration > in.Deadline.Sub(in.Now) {
		return false, "not enough time left"
	}

	if sp.ExecutionCondition == params.SecondPreventiveCostIncrease {
		if in.FinalCost > in.InitialCost+sp.CostIncreaseTolerance {
			return true, "cost increased during the first pass"
		}
		return false, "cost did not increase during the first pass"
	}

	switch p.Objective.CurativeStopCriterion {
	case params.CurativeMinObjective:
		return true, "curative stop criterion MIN_OBJECTIVE"
	case params.CurativeSecure:
		if anyInsecure(in.CurativeCosts, true) {
			return true, "a curative perimeter is insecure"
		}
		return false, "every curative perimeter is secure"
	case params.CurativePreventiveObjective:
		if curativeWorseThanPreventive(p, in) {
			return true, "curative cost above preventive objective"
		}
		return false, "curative cost reached preventive objective"
	case params.CurativePreventiveObjectiveAndSecure:
		if curativeWorseThanPreventive(p, in) {
			return true, "curative cost above preventive objective"
		}
		if anyInsecure(in.CurativeCosts, false) {
			return true, "a curative perimeter is insecure"
		}
		return false, "curative perimeters secure and at preventive objective"
	}
	return false, "unknown curative stop criterion"
}

// anyInsecure reports whether one of costs has a positive functional cost,
// or a virtual cost when withVirtual is set.
func anyInsecure(costs []perimeter.Cost, withVirtual bool) bool {
	for _, c := range costs {
		if c.Functional > 0 {
			return true
		}
		if withVirtual && c.VirtualTotal() != 0 {
			return true
		}
	}
	return false
}

func curativeWorseThanPreventive(p *params.Parameters, in DecisionInput) bool {
	return in.FinalCost > in.PreventiveCost-p.Objective.CurativeMinObjImprovement
}

// curativeStopCost is the cost at which a curative search tree may stop.
func curativeStopCost(p *params.Parameters, preventiveCost float64) *float64 {
	var stop float64
	switch p.Objective.CurativeStopCriterion {
	case params.CurativeSecure:
		stop = 0
	case params.CurativePreventiveObjective:
		stop = preventiveCost - p.Objective.CurativeMinObjImprovement
	case params.CurativePreventiveObjectiveAndSecure:
		stop = min(preventiveCost-p.Objective.CurativeMinObjImprovement, 0)
	default:
		return nil
	}
	return &stop
}

// preventiveStopCost is the cost at which the preventive search tree may
// stop.
func preventiveStopCost(p *params.Parameters) *float64 {
	if p.Objective.PreventiveStopCriterion != params.PreventiveSecure {
		return nil
	}
	stop := 0.0
	return &stop
}
