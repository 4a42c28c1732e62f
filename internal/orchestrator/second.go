package orchestrator

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/logging"
	"github.com/signalsfoundry/rao-orchestrator/internal/perimeter"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// secondPreventive re-optimizes the preventive perimeter from the initial
// network over every cnec, with the post-contingency decisions of the first
// pass kept fixed. The first pass is kept when the second one costs more.
func (r *run) secondPreventive(ctx context.Context, first *perimeter.Result, firstFinal perimeter.Cost, outcomes []*scenarioOutcome) (model.OptimizationStepsExecuted, error) {
	preventive := r.cat.PreventiveState()
	variant, err := r.cloneVariant(ctx, r.base, "second-preventive")
	if err != nil {
		return model.StepsUnset, err
	}

	excluded := func(*crac.RangeAction) bool { return false }
	var kept []*crac.RangeAction
	if !r.params.SecondPreventive.ReOptimizeCurativeRangeActions {
		set := ExcludedFromSecondPreventive(r.cat)
		excluded = func(ra *crac.RangeAction) bool { return set[ra] }
		for _, ra := range first.ActivatedRangeActions() {
			if !set[ra] {
				continue
			}
			if err := r.engine.ApplyRangeAction(ctx, variant, ra, first.Setpoints[ra]); err != nil {
				return model.StepsUnset, fmt.Errorf("apply %q: %w", ra.ID(), err)
			}
			kept = append(kept, ra)
			r.log.Info(ctx, "range action kept at its first preventive setpoint",
				logging.String("action", ra.ID()),
				logging.Float64("setpoint", first.Setpoints[ra]),
			)
		}
	}
	applied := appliedPostContingency(outcomes)

	pre, err := r.engine.Run(ctx, variant, r.fullRequest(applied))
	if err != nil {
		return model.StepsUnset, fmt.Errorf("sensitivity before second preventive: %w", err)
	}
	per := perimeter.New(r.cat, preventive, r.tree.Basecase.OtherStates...).
		WithCnecs(r.cat.Cnecs()).
		WithoutRangeActions(excluded)

	var second *perimeter.Result
	err = r.stage(ctx, StageSecondPreventive, preventive, func(ctx context.Context) (model.ComputationStatus, error) {
		res, err := r.optimizer.Optimize(ctx, perimeter.Input{
			Perimeter:    per,
			Variant:      variant,
			PrePerimeter: pre,
			Reference:    r.initial,
			Applied:      applied,
			StopCost:     preventiveStopCost(r.params),
		})
		if err != nil {
			return model.ComputationFailure, fmt.Errorf("second preventive perimeter: %w", err)
		}
		second = res
		return res.Status, nil
	})
	if err != nil {
		return model.StepsUnset, err
	}

	if second.Status == model.ComputationFailure || second.Cost.Total() > firstFinal.Total() {
		r.log.Info(ctx, "second preventive did not improve the first pass",
			logging.Float64("first_cost", firstFinal.Total()),
			logging.Float64("second_cost", second.Cost.Total()),
		)
		return model.SecondPreventiveFellbackToFirst, nil
	}

	var postSecond *sensi.Result
	err = r.stage(ctx, StageSecondPreventiveResult, preventive, func(ctx context.Context) (model.ComputationStatus, error) {
		res, err := r.engine.Run(ctx, variant, r.fullRequest(nil))
		if err != nil {
			return model.ComputationFailure, fmt.Errorf("sensitivity after second preventive: %w", err)
		}
		postSecond = res
		return res.Status(), nil
	})
	if err != nil {
		return model.StepsUnset, err
	}

	r.res.RecordPerimeter(preventive, second)
	if len(kept) > 0 {
		pre := make(map[*crac.RangeAction]float64, len(kept))
		post := make(map[*crac.RangeAction]float64, len(kept))
		for _, ra := range kept {
			pre[ra] = first.PreSetpoints[ra]
			post[ra] = first.Setpoints[ra]
		}
		r.res.RecordActivations(preventive, nil, pre, post)
	}
	r.res.RecordSnapshot(preventive, postSecond)
	for _, o := range outcomes {
		if o.failed {
			continue
		}
		for _, s := range postContingencyStates(o) {
			r.res.RecordSnapshot(s, second.Sensitivity)
		}
	}
	r.log.Info(ctx, "second preventive improved the first pass",
		logging.Float64("first_cost", firstFinal.Total()),
		logging.Float64("second_cost", second.Cost.Total()),
	)
	return model.SecondPreventiveImprovedFirst, nil
}

// ExcludedFromSecondPreventive returns the range actions usable both at the
// preventive state and at a post-contingency state. Range actions sharing a
// network element count as one.
func ExcludedFromSecondPreventive(cat *crac.Catalogue) map[*crac.RangeAction]bool {
	preventive := cat.PreventiveState()
	preventiveElements := make(map[string]bool)
	for _, ra := range cat.UsableRangeActions(preventive) {
		preventiveElements[ra.NetworkElement()] = true
	}
	curativeElements := make(map[string]bool)
	for _, s := range cat.States() {
		if s.IsPreventive() {
			continue
		}
		for _, ra := range cat.UsableRangeActions(s) {
			curativeElements[ra.NetworkElement()] = true
		}
	}
	out := make(map[*crac.RangeAction]bool)
	for _, ra := range cat.RangeActions() {
		el := ra.NetworkElement()
		if preventiveElements[el] && curativeElements[el] {
			out[ra] = true
		}
	}
	return out
}

// appliedPostContingency collects the automaton and curative decisions of the
// first pass.
func appliedPostContingency(outcomes []*scenarioOutcome) *sensi.AppliedActions {
	applied := sensi.NewAppliedActions()
	for _, o := range outcomes {
		if o.failed {
			continue
		}
		if a := o.automaton; a != nil {
			for _, na := range a.NetworkActions {
				applied.AddNetworkAction(a.State, na)
			}
			for _, ra := range a.ActivatedRangeActions() {
				applied.SetSetpoint(a.State, ra, a.Setpoints[ra])
			}
		}
		for _, pr := range o.curative {
			for _, na := range pr.NetworkActions {
				applied.AddNetworkAction(pr.State, na)
			}
			for _, ra := range pr.ActivatedRangeActions() {
				applied.SetSetpoint(pr.State, ra, pr.Setpoints[ra])
			}
		}
	}
	return applied
}

func postContingencyStates(o *scenarioOutcome) []*crac.State {
	var out []*crac.State
	if o.automaton != nil {
		out = append(out, o.automaton.State)
	}
	for _, pr := range o.curative {
		out = append(out, pr.State)
	}
	return out
}
