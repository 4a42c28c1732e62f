package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/automaton"
	"github.com/signalsfoundry/rao-orchestrator/internal/logging"
	"github.com/signalsfoundry/rao-orchestrator/internal/perimeter"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/internal/statetree"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// scenarioOutcome is what one contingency scenario publishes.
type scenarioOutcome struct {
	scenario  *statetree.ContingencyScenario
	automaton *automaton.Result
	curative  []*perimeter.Result
	// failed is set when a state of the scenario could not be computed;
	// its decisions are then left out of the second preventive pass.
	failed bool
}

// runScenarios optimizes every contingency scenario on its own copy of the
// post-preventive network, at most ContingencyScenariosInParallel at a time.
// A failing scenario never stops its siblings.
func (r *run) runScenarios(ctx context.Context, prevVariant sensi.VariantID, postPreventive *sensi.Result, preventiveCost float64) []*scenarioOutcome {
	outcomes := make([]*scenarioOutcome, len(r.tree.Scenarios))
	stop := curativeStopCost(r.params, preventiveCost)

	var g errgroup.Group
	g.SetLimit(r.params.MultiThreading.ContingencyScenariosInParallel)
	for i, sc := range r.tree.Scenarios {
		g.Go(func() error {
			out := &scenarioOutcome{scenario: sc}
			if err := r.runScenario(ctx, sc, prevVariant, postPreventive, stop, out); err != nil {
				r.log.Error(ctx, "contingency scenario could not be optimized",
					logging.String("contingency", sc.Contingency.ID()),
					logging.Err(err),
				)
				out.failed = true
				for _, s := range sc.ScenarioStates() {
					r.res.RecordStatus(s, model.ComputationFailure)
				}
			}
			status := "ok"
			if out.failed {
				status = "failed"
			}
			if r.metrics != nil {
				r.metrics.IncScenario(status)
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// runScenario simulates the automatons of one contingency then optimizes its
// curative perimeters in instant order.
func (r *run) runScenario(ctx context.Context, sc *statetree.ContingencyScenario, prevVariant sensi.VariantID, postPreventive *sensi.Result, stop *float64, out *scenarioOutcome) error {
	variant := sensi.VariantID(fmt.Sprintf("%s/%s", prevVariant, sc.Contingency.ID()))
	if err := r.engine.CloneVariant(ctx, prevVariant, variant); err != nil {
		return fmt.Errorf("clone variant %q: %w", variant, err)
	}
	defer func() {
		if err := r.engine.RemoveVariant(ctx, variant); err != nil {
			r.log.Warn(ctx, "failed to remove network variant", logging.String("variant", string(variant)), logging.Err(err))
		}
	}()

	pre := postPreventive
	if s := sc.AutomatonState; s != nil {
		err := r.stage(ctx, StageAutomaton, s, func(ctx context.Context) (model.ComputationStatus, error) {
			res, err := r.simulator.Simulate(ctx, automaton.Input{
				State:        s,
				Variant:      variant,
				PreAutomaton: postPreventive,
				Cnecs:        r.cnecsFrom(s),
			})
			if err != nil {
				return model.ComputationFailure, err
			}
			out.automaton = res
			r.recordAutomaton(res)
			return res.Status, nil
		})
		if err != nil {
			return err
		}
		if out.automaton.Status == model.ComputationFailure {
			out.failed = true
			r.failRemaining(sc.CurativePerimeters, 0)
			return nil
		}
		pre = out.automaton.Sensitivity
	}

	for i, cp := range sc.CurativePerimeters {
		per := perimeter.New(r.cat, cp.RaOptimisationState, cp.OtherStates...)
		if i > 0 || sc.AutomatonState != nil {
			res, err := r.engine.Run(ctx, variant, sensi.Request{Cnecs: per.Cnecs, RangeActions: per.RangeActions})
			if err != nil {
				return fmt.Errorf("sensitivity before %s: %w", cp.RaOptimisationState, err)
			}
			pre = res
		}
		var pr *perimeter.Result
		err := r.stage(ctx, StageCurative, cp.RaOptimisationState, func(ctx context.Context) (model.ComputationStatus, error) {
			res, err := r.optimizer.Optimize(ctx, perimeter.Input{
				Perimeter:    per,
				Variant:      variant,
				PrePerimeter: pre,
				Reference:    r.initial,
				StopCost:     stop,
			})
			if err != nil {
				return model.ComputationFailure, err
			}
			pr = res
			return res.Status, nil
		})
		if err != nil {
			return err
		}
		r.res.RecordPerimeter(cp.RaOptimisationState, pr)
		for _, s := range cp.OtherStates {
			r.res.RecordStatus(s, pr.Status)
		}
		out.curative = append(out.curative, pr)
		if pr.Status == model.ComputationFailure {
			out.failed = true
			r.failRemaining(sc.CurativePerimeters, i+1)
			return nil
		}
	}
	return nil
}

// recordAutomaton publishes the decisions and snapshot of an automaton state.
func (r *run) recordAutomaton(res *automaton.Result) {
	pre := make(map[*crac.RangeAction]float64)
	post := make(map[*crac.RangeAction]float64)
	for _, ra := range res.ActivatedRangeActions() {
		pre[ra] = res.PreSetpoints[ra]
		post[ra] = res.Setpoints[ra]
	}
	r.res.RecordActivations(res.State, res.NetworkActions, pre, post)
	r.res.RecordSnapshot(res.State, res.Sensitivity)
	r.res.RecordStatus(res.State, res.Status)
}

func (r *run) failRemaining(perimeters []*statetree.Perimeter, from int) {
	for _, cp := range perimeters[from:] {
		for _, s := range cp.States() {
			r.res.RecordStatus(s, model.ComputationFailure)
		}
	}
}

// cnecsFrom returns the cnecs of s and of the later states of its
// contingency.
func (r *run) cnecsFrom(s *crac.State) []*crac.Cnec {
	var out []*crac.Cnec
	for _, st := range r.cat.StatesForContingency(s.Contingency().ID()) {
		if st.Instant().ComesBefore(s.Instant()) {
			continue
		}
		out = append(out, r.cat.CnecsForState(st)...)
	}
	return out
}

func curativeCosts(outcomes []*scenarioOutcome) []perimeter.Cost {
	var out []perimeter.Cost
	for _, o := range outcomes {
		for _, pr := range o.curative {
			out = append(out, pr.Cost)
		}
	}
	return out
}
