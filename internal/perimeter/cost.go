package perimeter

import (
	"math"
	"sort"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/params"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// Names of the virtual costs.
const (
	MnecViolationCost      = "mnec-cost"
	SensitivityFailureCost = "sensitivity-failure-cost"
)

// Cost is the objective value of a network situation. Lower is better.
type Cost struct {
	Functional float64
	Virtual    map[string]float64
}

// VirtualTotal sums the virtual costs.
func (c Cost) VirtualTotal() float64 {
	var sum float64
	for _, v := range c.Virtual {
		sum += v
	}
	return sum
}

// Total is the functional cost plus the virtual costs.
func (c Cost) Total() float64 { return c.Functional + c.VirtualTotal() }

// IsSecure reports whether every optimized cnec has a non-negative margin
// and no penalty applies.
func (c Cost) IsSecure() bool { return c.Functional <= 0 && c.VirtualTotal() == 0 }

// VirtualNames returns the virtual cost names in sorted order.
func (c Cost) VirtualNames() []string {
	names := make([]string, 0, len(c.Virtual))
	for n := range c.Virtual {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Evaluator computes costs from sensitivity snapshots.
type Evaluator struct {
	function        params.ObjectiveFunction
	mnec            params.MnecParameters
	failureOvercost float64
}

// NewEvaluator builds an evaluator from the run parameters.
func NewEvaluator(p *params.Parameters) *Evaluator {
	return &Evaluator{
		function:        p.Objective.Function,
		mnec:            p.Mnec,
		failureOvercost: p.Objective.SensitivityFailureOvercost,
	}
}

// Evaluate computes the cost of cnecs in res. reference holds the margins
// monitored cnecs are compared to; it may be nil.
func (e *Evaluator) Evaluate(cnecs []*crac.Cnec, res, reference *sensi.Result) Cost {
	return e.EvaluateWith(cnecs, func(*crac.Cnec) *sensi.Result { return res }, reference)
}

// EvaluateWith computes the cost of cnecs, reading each cnec from the
// snapshot returned by snapshot. A failed snapshot adds the failure overcost
// once.
func (e *Evaluator) EvaluateWith(cnecs []*crac.Cnec, snapshot func(*crac.Cnec) *sensi.Result, reference *sensi.Result) Cost {
	cost := Cost{Virtual: map[string]float64{MnecViolationCost: 0, SensitivityFailureCost: 0}}
	worst := math.Inf(1)
	failed := make(map[*sensi.Result]struct{})

	for _, c := range cnecs {
		res := snapshot(c)
		if res.Status() == model.ComputationFailure {
			failed[res] = struct{}{}
			continue
		}
		margin, ok := res.Margin(c)
		if !ok {
			continue
		}
		if c.IsOptimized() {
			worst = math.Min(worst, e.objectiveMargin(c, margin))
		}
		if c.IsMonitored() {
			cost.Virtual[MnecViolationCost] += e.mnecViolation(c, margin, reference)
		}
	}
	if !math.IsInf(worst, 1) {
		cost.Functional = -worst
	}
	cost.Virtual[SensitivityFailureCost] = float64(len(failed)) * e.failureOvercost
	return cost
}

// MostLimiting returns the optimized cnec of cnecs with the smallest
// objective margin in res.
func (e *Evaluator) MostLimiting(cnecs []*crac.Cnec, res *sensi.Result) (*crac.Cnec, bool) {
	var (
		worst     *crac.Cnec
		worstMarg = math.Inf(1)
	)
	for _, c := range cnecs {
		if !c.IsOptimized() {
			continue
		}
		m, ok := res.Margin(c)
		if !ok {
			continue
		}
		if om := e.objectiveMargin(c, m); om < worstMarg {
			worst, worstMarg = c, om
		}
	}
	return worst, worst != nil
}

// objectiveMargin expresses positive margins relative to the cnec's largest
// threshold when the relative objective is selected.
func (e *Evaluator) objectiveMargin(c *crac.Cnec, margin float64) float64 {
	if e.function == params.MaxMinRelativeMargin && margin > 0 {
		if limit := c.Limit(); limit > 0 {
			return margin / limit
		}
	}
	return margin
}

func (e *Evaluator) mnecViolation(c *crac.Cnec, margin float64, reference *sensi.Result) float64 {
	initial, ok := reference.Margin(c)
	if !ok {
		return 0
	}
	allowed := math.Min(initial-e.mnec.AcceptableMarginDecrease, 0)
	return e.mnec.ViolationCost * math.Max(0, allowed-margin)
}
