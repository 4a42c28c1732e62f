// Package orchestrator sequences a remedial action optimization run: initial
// sensitivity, preventive perimeter, independent contingency scenarios,
// optional second preventive pass and the final fallbacks.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/automaton"
	"github.com/signalsfoundry/rao-orchestrator/internal/logging"
	"github.com/signalsfoundry/rao-orchestrator/internal/observability"
	"github.com/signalsfoundry/rao-orchestrator/internal/params"
	"github.com/signalsfoundry/rao-orchestrator/internal/perimeter"
	"github.com/signalsfoundry/rao-orchestrator/internal/result"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/internal/statetree"
	"github.com/signalsfoundry/rao-orchestrator/model"
	"github.com/signalsfoundry/rao-orchestrator/timectrl"
)

// Stage names of the audit trail.
const (
	StageInitialSensitivity     = "initial-sensitivity"
	StagePreventive             = "preventive"
	StagePostPreventiveSens     = "post-preventive-sensitivity"
	StageAutomaton              = "automaton"
	StageCurative               = "curative"
	StageSecondPreventive       = "second-preventive"
	StageSecondPreventiveResult = "post-second-preventive-sensitivity"
)

// MetricsRecorder receives the run metrics. *observability.RAOCollector
// implements it.
type MetricsRecorder interface {
	sensi.MetricsRecorder
	automaton.ShiftRecorder
	ObserveStage(stage string, d time.Duration)
	IncScenario(status string)
	ObserveSecondPreventiveDecision(run bool)
	SetFunctionalCost(instant string, cost float64)
	IncRun(steps string)
}

var _ MetricsRecorder = (*observability.RAOCollector)(nil)

// Orchestrator runs optimizations over one catalogue and engine. Runs on
// distinct base variants may proceed concurrently.
type Orchestrator struct {
	cat       *crac.Catalogue
	engine    sensi.Engine
	params    *params.Parameters
	eval      *perimeter.Evaluator
	optimizer perimeter.Optimizer
	simulator *automaton.Simulator

	log     logging.Logger
	metrics MetricsRecorder
	clock   timectrl.Clock
	tracer  trace.Tracer
}

// Option customises Orchestrator construction.
type Option func(*Orchestrator)

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock overrides the clock used for stage durations and the time
// budget.
func WithClock(c timectrl.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithOptimizer replaces the search tree used for every perimeter.
func WithOptimizer(opt perimeter.Optimizer) Option {
	return func(o *Orchestrator) {
		o.optimizer = opt
	}
}

// WithTracer overrides the tracer used for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// New builds an orchestrator. A nil p means params.Default().
func New(cat *crac.Catalogue, engine sensi.Engine, p *params.Parameters, log logging.Logger, opts ...Option) (*Orchestrator, error) {
	if p == nil {
		p = params.Default()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cat:    cat,
		params: p,
		eval:   perimeter.NewEvaluator(p),
		log:    logging.OrNoop(log),
		clock:  timectrl.SystemClock{},
		tracer: observability.Tracer("github.com/signalsfoundry/rao-orchestrator/orchestrator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	var sensMetrics sensi.MetricsRecorder
	simOpts := []automaton.SimulatorOption{automaton.WithTracer(o.tracer)}
	if o.metrics != nil {
		sensMetrics = o.metrics
		simOpts = append(simOpts, automaton.WithShiftRecorder(o.metrics))
	}
	o.engine = sensi.Instrument(engine, o.log, sensMetrics)
	if o.optimizer == nil {
		o.optimizer = perimeter.NewSearchTree(cat, o.engine, o.eval, p, o.log)
	}
	o.simulator = automaton.NewSimulator(cat, o.engine, p, o.log, simOpts...)
	return o, nil
}

// run is the mutable state of one Run call.
type run struct {
	*Orchestrator
	id      string
	log     logging.Logger
	budget  *timectrl.Budget
	res     *result.RaoResult
	tree    *statetree.Tree
	base    sensi.VariantID
	initial *sensi.Result

	variants []sensi.VariantID
}

// Run optimizes the network held by base, which is left untouched.
// Catalogue errors and engine errors are returned; computation failures are
// reported in the result.
func (o *Orchestrator) Run(ctx context.Context, base sensi.VariantID) (*result.RaoResult, error) {
	if err := o.cat.Validate(); err != nil {
		return nil, err
	}
	tree, err := statetree.Build(o.cat)
	if err != nil {
		return nil, err
	}

	ctx, runID := logging.EnsureRunID(ctx)
	ctx, log := logging.WithRunLogger(ctx, o.log)
	ctx, span := o.tracer.Start(ctx, "rao.Run", trace.WithAttributes(
		observability.RunAttributes(runID, len(tree.Scenarios))...,
	))
	defer span.End()

	r := &run{
		Orchestrator: o,
		id:           runID,
		log:          log,
		budget:       timectrl.NewBudget(o.clock, o.params.TimeBudget.Duration),
		res:          result.New(o.cat, o.eval),
		tree:         tree,
		base:         base,
	}
	defer r.releaseVariants(ctx)

	log.Info(ctx, "rao run started",
		logging.String("variant", string(base)),
		logging.Int("contingency_scenarios", len(tree.Scenarios)),
	)
	steps, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error(ctx, "rao run failed", logging.Err(err))
		return nil, err
	}
	if err := r.res.SetOptimizationStepsExecuted(steps); err != nil {
		return nil, err
	}
	r.res.SetExecutionTime(r.budget.Elapsed())
	if o.metrics != nil {
		o.metrics.IncRun(steps.String())
	}
	span.SetAttributes(
		observability.StepsKey.String(steps.String()),
		observability.StatusKey.String(r.res.ComputationStatus().String()),
	)
	log.Info(ctx, "rao run done",
		logging.String("steps", steps.String()),
		logging.String("status", r.res.ComputationStatus().String()),
		logging.Duration("took", r.budget.Elapsed()),
	)
	return r.res, nil
}

func (r *run) execute(ctx context.Context) (model.OptimizationStepsExecuted, error) {
	preventive := r.cat.PreventiveState()

	// ----- initial situation -----
	err := r.stage(ctx, StageInitialSensitivity, nil, func(ctx context.Context) (model.ComputationStatus, error) {
		res, err := r.engine.Run(ctx, r.base, r.fullRequest(nil))
		if err != nil {
			return model.ComputationFailure, fmt.Errorf("initial sensitivity: %w", err)
		}
		r.initial = res
		r.res.RecordInitial(res)
		return res.Status(), nil
	})
	if err != nil {
		return model.StepsUnset, err
	}
	if r.initial.Status() == model.ComputationFailure {
		r.log.Error(ctx, "initial sensitivity failed, reporting the initial situation")
		r.res.RecordStatus(preventive, model.ComputationFailure)
		return model.FirstPreventiveFellbackToInitialSituation, nil
	}

	// ----- first preventive perimeter -----
	prevVariant, err := r.cloneVariant(ctx, r.base, "preventive")
	if err != nil {
		return model.StepsUnset, err
	}
	prevPerimeter := perimeter.New(r.cat, preventive, r.tree.Basecase.OtherStates...)
	var first *perimeter.Result
	prevStart := r.clock.Now()
	err = r.stage(ctx, StagePreventive, preventive, func(ctx context.Context) (model.ComputationStatus, error) {
		pr, err := r.optimizer.Optimize(ctx, perimeter.Input{
			Perimeter:    prevPerimeter,
			Variant:      prevVariant,
			PrePerimeter: r.initial,
			Reference:    r.initial,
			StopCost:     preventiveStopCost(r.params),
		})
		if err != nil {
			return model.ComputationFailure, fmt.Errorf("preventive perimeter: %w", err)
		}
		first = pr
		r.res.RecordPerimeter(preventive, pr)
		return pr.Status, nil
	})
	if err != nil {
		return model.StepsUnset, err
	}
	preventiveDuration := r.clock.Now().Sub(prevStart)
	r.log.Info(ctx, "preventive perimeter optimized",
		logging.Float64("cost", first.Cost.Total()),
		logging.Int("network_actions", len(first.NetworkActions)),
		logging.Int("range_actions", len(first.ActivatedRangeActions())),
	)

	var postPreventive *sensi.Result
	err = r.stage(ctx, StagePostPreventiveSens, preventive, func(ctx context.Context) (model.ComputationStatus, error) {
		res, err := r.engine.Run(ctx, prevVariant, r.fullRequest(nil))
		if err != nil {
			return model.ComputationFailure, fmt.Errorf("post preventive sensitivity: %w", err)
		}
		postPreventive = res
		r.res.RecordSnapshot(preventive, res)
		return res.Status(), nil
	})
	if err != nil {
		return model.StepsUnset, err
	}

	// ----- contingency scenarios -----
	var outcomes []*scenarioOutcome
	switch {
	case postPreventive.Status() == model.ComputationFailure:
		r.log.Error(ctx, "sensitivity after preventive actions failed, contingency scenarios skipped")
		r.res.RecordStatus(preventive, model.ComputationFailure)
	case r.params.Objective.PreventiveStopCriterion == params.PreventiveSecure && first.Cost.Total() > 0:
		r.log.Info(ctx, "preventive perimeter could not be secured, contingency scenarios skipped",
			logging.Float64("cost", first.Cost.Total()),
		)
	default:
		outcomes = r.runScenarios(ctx, prevVariant, postPreventive, first.Cost.Total())
	}

	// ----- aggregation and second preventive -----
	firstFinal, err := r.recordCosts(ctx)
	if err != nil {
		return model.StepsUnset, err
	}
	steps := model.FirstPreventiveOnly
	if len(outcomes) > 0 {
		input := DecisionInput{
			InitialCost:       r.res.InitialCost().Total(),
			PreventiveCost:    first.Cost.Total(),
			FinalCost:         firstFinal.Total(),
			CurativeCosts:     curativeCosts(outcomes),
			Now:               r.budget.Now(),
			Elapsed:           r.budget.Elapsed(),
			EstimatedDuration: preventiveDuration,
		}
		if deadline, ok := r.budget.Deadline(); ok {
			input.Deadline = deadline
		}
		runSecond, reason := ShouldRunSecondPreventive(r.params, input)
		if r.metrics != nil {
			r.metrics.ObserveSecondPreventiveDecision(runSecond)
		}
		r.log.Info(ctx, "second preventive decision",
			logging.Bool("run", runSecond),
			logging.String("reason", reason),
		)
		if runSecond {
			steps, err = r.secondPreventive(ctx, first, firstFinal, outcomes)
			if err != nil {
				return model.StepsUnset, err
			}
			if _, err := r.recordCosts(ctx); err != nil {
				return model.StepsUnset, err
			}
		}
	}

	// ----- final fallback -----
	if r.params.Objective.ForbidCostIncrease {
		initial := r.res.InitialCost()
		final, err := r.res.CostAt(r.cat.LastInstant())
		if err != nil {
			return model.StepsUnset, err
		}
		if final.Total() > initial.Total() {
			r.log.Warn(ctx, "optimization increased the cost, falling back to the initial situation",
				logging.Float64("initial_cost", initial.Total()),
				logging.Float64("final_cost", final.Total()),
			)
			r.res.ClearDecisions()
			return model.FirstPreventiveFellbackToInitialSituation, nil
		}
	}
	return steps, nil
}

// recordCosts publishes the functional cost of every instant and returns the
// cost at the last one.
func (r *run) recordCosts(ctx context.Context) (perimeter.Cost, error) {
	var last perimeter.Cost
	for _, in := range r.cat.Instants() {
		c, err := r.res.CostAt(in)
		if err != nil {
			return perimeter.Cost{}, err
		}
		if r.metrics != nil {
			r.metrics.SetFunctionalCost(in.ID(), c.Functional)
		}
		r.log.Debug(ctx, "cost after instant",
			logging.String("instant", in.ID()),
			logging.Float64("functional", c.Functional),
			logging.Float64("virtual", c.VirtualTotal()),
		)
		last = c
	}
	return last, nil
}

//
// ---------- Helpers ----------
//

// stage runs fn as one audited stage: a span, a duration metric and an entry
// in the result trail.
func (r *run) stage(ctx context.Context, name string, s *crac.State, fn func(context.Context) (model.ComputationStatus, error)) error {
	stateID := ""
	if s != nil {
		stateID = s.ID()
	}
	ctx, span := r.tracer.Start(ctx, "rao."+name, trace.WithAttributes(observability.StageAttributes(name, stateID)...))
	defer span.End()

	start := r.clock.Now()
	status, err := fn(ctx)
	took := r.clock.Now().Sub(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(observability.StatusKey.String(status.String()))
	r.res.AppendStage(result.Stage{Name: name, State: stateID, Status: status, Duration: took})
	if r.metrics != nil {
		r.metrics.ObserveStage(name, took)
	}
	return err
}

// fullRequest asks for every cnec and range action of the catalogue.
func (r *run) fullRequest(applied *sensi.AppliedActions) sensi.Request {
	return sensi.Request{
		Cnecs:        r.cat.Cnecs(),
		RangeActions: r.cat.RangeActions(),
		Applied:      applied,
	}
}

// cloneVariant copies source into a variant owned by the run.
func (r *run) cloneVariant(ctx context.Context, source sensi.VariantID, name string) (sensi.VariantID, error) {
	target := sensi.VariantID(fmt.Sprintf("%s/%s/%s", r.base, r.id, name))
	if err := r.engine.CloneVariant(ctx, source, target); err != nil {
		return "", fmt.Errorf("clone variant %q: %w", target, err)
	}
	r.variants = append(r.variants, target)
	return target, nil
}

func (r *run) releaseVariants(ctx context.Context) {
	for _, v := range r.variants {
		if err := r.engine.RemoveVariant(ctx, v); err != nil {
			r.log.Warn(ctx, "failed to remove network variant",
				logging.String("variant", string(v)),
				logging.Err(err),
			)
		}
	}
}
