package perimeter

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/logging"
	"github.com/signalsfoundry/rao-orchestrator/internal/params"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// SearchTree is a greedy optimizer: each depth adds the network action that
// improves the cost most, and every leaf moves its range actions one at a
// time towards the most limiting cnec.
type SearchTree struct {
	cat    *crac.Catalogue
	engine sensi.Engine
	eval   *Evaluator
	topo   params.TopoOptimizationParameters
	ranges params.RangeActionParameters
	log    logging.Logger
}

// NewSearchTree builds the optimizer. A nil logger is allowed.
func NewSearchTree(cat *crac.Catalogue, engine sensi.Engine, eval *Evaluator, p *params.Parameters, log logging.Logger) *SearchTree {
	return &SearchTree{
		cat:    cat,
		engine: engine,
		eval:   eval,
		topo:   p.TopoOptimization,
		ranges: p.RangeActions,
		log:    logging.OrNoop(log),
	}
}

// leaf is one candidate combination living on its own network variant.
type leaf struct {
	variant   sensi.VariantID
	actions   []*crac.NetworkAction
	setpoints map[*crac.RangeAction]float64
	sens      *sensi.Result
	cost      Cost
}

// Optimize implements Optimizer.
func (t *SearchTree) Optimize(ctx context.Context, in Input) (*Result, error) {
	p := in.Perimeter
	res := &Result{
		State:        p.State,
		PreCost:      t.eval.Evaluate(p.Cnecs, in.PrePerimeter, in.Reference),
		PreSetpoints: setpointsOf(p.RangeActions, in.PrePerimeter),
	}
	if in.PrePerimeter.Status() == model.ComputationFailure {
		res.Status = model.ComputationFailure
		res.Cost = res.PreCost
		res.Setpoints = res.PreSetpoints
		return res, nil
	}

	margins := in.PrePerimeter.MarginLookup()
	var forced, candidates []*crac.NetworkAction
	for _, na := range p.NetworkActions {
		switch {
		case na.UsageMethod(p.State) == model.UsageForced:
			forced = append(forced, na)
		case available(t.cat, na, p.State, margins):
			candidates = append(candidates, na)
		}
	}
	var ranges []*crac.RangeAction
	for _, ra := range p.RangeActions {
		if available(t.cat, ra, p.State, margins) {
			ranges = append(ranges, ra)
		}
	}

	best, err := t.evaluateLeaf(ctx, in, forced, res.PreSetpoints, ranges)
	if err != nil {
		return nil, err
	}
	if best.sens.Status() == model.ComputationFailure {
		t.release(ctx, best)
		res.Status = model.ComputationFailure
		res.Cost = res.PreCost
		res.Setpoints = res.PreSetpoints
		return res, nil
	}

	for depth := 1; depth <= t.topo.MaxSearchTreeDepth && !t.reached(best, in.StopCost); depth++ {
		var bestChild *leaf
		for _, na := range candidates {
			if containsAction(best.actions, na) {
				continue
			}
			child, err := t.evaluateLeaf(ctx, in, appendAction(best.actions, na), best.setpoints, ranges)
			if err != nil {
				t.release(ctx, best, bestChild)
				return nil, err
			}
			if child.sens.Status() == model.ComputationFailure {
				t.release(ctx, child)
				continue
			}
			if bestChild == nil || child.cost.Total() < bestChild.cost.Total() {
				t.release(ctx, bestChild)
				bestChild = child
			} else {
				t.release(ctx, child)
			}
		}
		if bestChild == nil || !t.improves(best.cost, bestChild.cost) {
			t.release(ctx, bestChild)
			break
		}
		t.log.Debug(ctx, "search tree depth improved",
			logging.String("state", p.State.ID()),
			logging.Int("depth", depth),
			logging.Float64("cost", bestChild.cost.Total()),
		)
		t.release(ctx, best)
		best = bestChild
	}
	defer t.release(ctx, best)

	for _, na := range best.actions {
		if err := t.engine.ApplyNetworkAction(ctx, in.Variant, na); err != nil {
			return nil, fmt.Errorf("perimeter: apply %q: %w", na.ID(), err)
		}
	}
	for _, ra := range ranges {
		if err := t.engine.ApplyRangeAction(ctx, in.Variant, ra, best.setpoints[ra]); err != nil {
			return nil, fmt.Errorf("perimeter: apply %q: %w", ra.ID(), err)
		}
	}

	res.Status = best.sens.Status()
	res.Cost = best.cost
	res.NetworkActions = best.actions
	res.Setpoints = best.setpoints
	res.Sensitivity = best.sens
	return res, nil
}

// evaluateLeaf clones the input variant, applies actions and setpoints and
// optimizes the range actions on the clone.
func (t *SearchTree) evaluateLeaf(ctx context.Context, in Input, actions []*crac.NetworkAction, start map[*crac.RangeAction]float64, ranges []*crac.RangeAction) (*leaf, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := &leaf{
		variant:   sensi.VariantID(fmt.Sprintf("%s/leaf-%s", in.Variant, uuid.NewString())),
		actions:   actions,
		setpoints: make(map[*crac.RangeAction]float64, len(start)),
	}
	for ra, v := range start {
		l.setpoints[ra] = v
	}
	if err := t.engine.CloneVariant(ctx, in.Variant, l.variant); err != nil {
		return nil, fmt.Errorf("perimeter: clone variant: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			t.release(ctx, l)
		}
	}()

	for _, na := range actions {
		if err := t.engine.ApplyNetworkAction(ctx, l.variant, na); err != nil {
			return nil, fmt.Errorf("perimeter: apply %q: %w", na.ID(), err)
		}
	}
	for _, ra := range ranges {
		if err := t.engine.ApplyRangeAction(ctx, l.variant, ra, l.setpoints[ra]); err != nil {
			return nil, fmt.Errorf("perimeter: apply %q: %w", ra.ID(), err)
		}
	}
	if err := t.run(ctx, in, l, ranges); err != nil {
		return nil, err
	}
	if l.sens.Status() != model.ComputationFailure {
		if err := t.optimizeRanges(ctx, in, l, ranges); err != nil {
			return nil, err
		}
	}
	ok = true
	return l, nil
}

func (t *SearchTree) run(ctx context.Context, in Input, l *leaf, ranges []*crac.RangeAction) error {
	sens, err := t.engine.Run(ctx, l.variant, sensi.Request{
		Cnecs:        in.Perimeter.Cnecs,
		RangeActions: ranges,
		Applied:      in.Applied,
	})
	if err != nil {
		return fmt.Errorf("perimeter: sensitivity on %s: %w", l.variant, err)
	}
	l.sens = sens
	l.cost = t.eval.Evaluate(in.Perimeter.Cnecs, sens, in.Reference)
	return nil
}

// optimizeRanges moves one range action, or one aligned group, at a time to
// the candidate setpoint with the lowest cost, until no move helps.
func (t *SearchTree) optimizeRanges(ctx context.Context, in Input, l *leaf, ranges []*crac.RangeAction) error {
	groups := groupRanges(ranges)
	for iter := 0; iter < t.ranges.MaxIterations; iter++ {
		worst, ok := t.eval.MostLimiting(in.Perimeter.Cnecs, l.sens)
		if !ok {
			return nil
		}
		improved := false
		for _, g := range groups {
			previous := l.setpoints[g[0]]
			prevSens, prevCost := l.sens, l.cost
			var (
				bestTarget = previous
				bestSens   = prevSens
				bestCost   = prevCost
			)
			for _, target := range t.candidateSetpoints(g, worst, l) {
				if err := t.applyGroup(ctx, l, g, target); err != nil {
					return err
				}
				if err := t.run(ctx, in, l, ranges); err != nil {
					return err
				}
				if l.sens.Status() != model.ComputationFailure && bestCost.Total()-l.cost.Total() > 1e-9 {
					bestTarget, bestSens, bestCost = target, l.sens, l.cost
				}
			}
			if err := t.applyGroup(ctx, l, g, bestTarget); err != nil {
				return err
			}
			l.sens, l.cost = bestSens, bestCost
			if bestTarget != previous {
				improved = true
				break
			}
		}
		if !improved {
			return nil
		}
	}
	return nil
}

func (t *SearchTree) applyGroup(ctx context.Context, l *leaf, g []*crac.RangeAction, setpoint float64) error {
	for _, ra := range g {
		if err := t.engine.ApplyRangeAction(ctx, l.variant, ra, setpoint); err != nil {
			return fmt.Errorf("perimeter: apply %q: %w", ra.ID(), err)
		}
		l.setpoints[ra] = setpoint
	}
	return nil
}

// candidateSetpoints proposes setpoints for g that push the value of worst
// away from its binding threshold.
func (t *SearchTree) candidateSetpoints(g []*crac.RangeAction, worst *crac.Cnec, l *leaf) []float64 {
	var sensitivity float64
	for _, ra := range g {
		sensitivity += l.sens.Sensitivity(worst, ra)
	}
	if math.Abs(sensitivity) < t.ranges.SensitivityThreshold || sensitivity == 0 {
		return nil
	}
	value, ok := l.sens.Value(worst)
	if !ok {
		return nil
	}
	margin, _ := l.sens.Margin(worst)

	// Direction in which the cnec value must move.
	direction := 1.0
	if upper, hasUpper := worst.UpperBound(); hasUpper {
		lower, hasLower := worst.LowerBound()
		rm := worst.ReliabilityMargin()
		if !hasLower || upper-rm-value <= value-(lower+rm) {
			direction = -1
		}
	}

	current := l.setpoints[g[0]]
	lo, hi := groupRange(g)
	gap := math.Max(math.Abs(margin), 1)
	seen := map[float64]bool{current: true}
	var out []float64
	add := func(v float64) {
		v = t.round(g[0], math.Min(hi, math.Max(lo, v)))
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, f := range []float64{1, 0.5, 2} {
		add(current + direction*gap*f/sensitivity)
	}
	if direction/sensitivity > 0 {
		add(hi)
	} else {
		add(lo)
	}
	return out
}

// round snaps a setpoint to what ra can realize.
func (t *SearchTree) round(ra *crac.RangeAction, v float64) float64 {
	switch ra.Kind() {
	case model.RangePST:
		if tap, ok := ra.AngleToTap(v); ok {
			if angle, ok := ra.TapToAngle(tap); ok {
				return angle
			}
		}
	case model.RangeHVDC:
		if step := t.ranges.HvdcStep; step > 0 {
			return math.Round(v/step) * step
		}
	case model.RangeInjection:
		if step := t.ranges.InjectionStep; step > 0 {
			return math.Round(v/step) * step
		}
	}
	return v
}

func (t *SearchTree) improves(current, candidate Cost) bool {
	gain := current.Total() - candidate.Total()
	threshold := math.Max(t.topo.AbsoluteMinImpactThreshold, t.topo.RelativeMinImpactThreshold*math.Abs(current.Total()))
	return gain > threshold && gain > 1e-9
}

func (t *SearchTree) reached(l *leaf, stop *float64) bool {
	return stop != nil && l.cost.Total() <= *stop
}

func (t *SearchTree) release(ctx context.Context, leaves ...*leaf) {
	for _, l := range leaves {
		if l == nil {
			continue
		}
		if err := t.engine.RemoveVariant(ctx, l.variant); err != nil {
			t.log.Warn(ctx, "remove leaf variant failed", logging.String("variant", string(l.variant)), logging.Err(err))
		}
	}
}

// groupRanges puts aligned range actions together and keeps the others
// alone, in id order.
func groupRanges(ranges []*crac.RangeAction) [][]*crac.RangeAction {
	byGroup := make(map[string][]*crac.RangeAction)
	var groups [][]*crac.RangeAction
	for _, ra := range ranges {
		id, ok := ra.GroupID()
		if !ok {
			groups = append(groups, []*crac.RangeAction{ra})
			continue
		}
		byGroup[id] = append(byGroup[id], ra)
	}
	ids := make([]string, 0, len(byGroup))
	for id := range byGroup {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		groups = append(groups, byGroup[id])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i][0].ID() < groups[j][0].ID() })
	return groups
}

// groupRange intersects the admissible ranges of g.
func groupRange(g []*crac.RangeAction) (float64, float64) {
	lo, hi := math.Inf(-1), math.Inf(1)
	for _, ra := range g {
		l, h := ra.AdmissibleRange(nil)
		lo, hi = math.Max(lo, l), math.Min(hi, h)
	}
	return lo, hi
}

func containsAction(actions []*crac.NetworkAction, na *crac.NetworkAction) bool {
	for _, x := range actions {
		if x == na {
			return true
		}
	}
	return false
}

func appendAction(actions []*crac.NetworkAction, na *crac.NetworkAction) []*crac.NetworkAction {
	out := make([]*crac.NetworkAction, 0, len(actions)+1)
	out = append(out, actions...)
	return append(out, na)
}
