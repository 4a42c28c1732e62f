// Package automaton simulates the automatic remedial actions triggered right
// after a contingency: topological automatons first, then range automatons
// shifted bucket by bucket until the constraints they watch are secure.
package automaton

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/logging"
	"github.com/signalsfoundry/rao-orchestrator/internal/observability"
	"github.com/signalsfoundry/rao-orchestrator/internal/params"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// ErrInvalidAutomatonConfiguration is returned when an automaton state
// carries a range action that cannot be simulated.
var ErrInvalidAutomatonConfiguration = errors.New("invalid automaton configuration")

// Phase is the progress of a simulation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTopologyApplied
	PhaseRangesApplied
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseTopologyApplied:
		return "TOPOLOGY_APPLIED"
	case PhaseRangesApplied:
		return "RANGES_APPLIED"
	case PhaseDone:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Input is one automaton state to simulate.
type Input struct {
	State   *crac.State
	Variant sensi.VariantID
	// PreAutomaton is the snapshot of Variant before any automaton.
	PreAutomaton *sensi.Result
	// Cnecs are computed by every sensitivity run of the simulation.
	Cnecs []*crac.Cnec
}

// Result is the outcome of a simulation.
type Result struct {
	State          *crac.State
	Status         model.ComputationStatus
	Phase          Phase
	NetworkActions []*crac.NetworkAction
	PreSetpoints   map[*crac.RangeAction]float64
	Setpoints      map[*crac.RangeAction]float64
	// DisabledHvdc lists the HVDC lines whose AC emulation was switched off.
	DisabledHvdc []string
	// Sensitivity is the post-automaton snapshot.
	Sensitivity     *sensi.Result
	Shifts          int
	SensitivityRuns int
}

// ActivatedRangeActions returns the range automatons whose setpoint moved.
func (r *Result) ActivatedRangeActions() []*crac.RangeAction {
	var out []*crac.RangeAction
	for ra, v := range r.Setpoints {
		if math.Abs(v-r.PreSetpoints[ra]) > tolerance {
			out = append(out, ra)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ShiftRecorder receives the number of setpoint shifts of a simulation.
type ShiftRecorder interface {
	AddAutomatonShifts(n int)
}

// Simulator runs automaton states. It is safe for concurrent use on distinct
// variants.
type Simulator struct {
	cat                  *crac.Catalogue
	engine               sensi.Engine
	maxIterations        int
	hvdcStep             float64
	injectionStep        float64
	sensitivityThreshold float64

	log     logging.Logger
	metrics ShiftRecorder
	tracer  trace.Tracer
}

// SimulatorOption customises Simulator construction.
type SimulatorOption func(*Simulator)

// WithShiftRecorder attaches a recorder for setpoint shifts.
func WithShiftRecorder(m ShiftRecorder) SimulatorOption {
	return func(s *Simulator) {
		s.metrics = m
	}
}

// WithTracer overrides the tracer used for simulation spans.
func WithTracer(t trace.Tracer) SimulatorOption {
	return func(s *Simulator) {
		s.tracer = t
	}
}

// NewSimulator builds a simulator driving engine.
func NewSimulator(cat *crac.Catalogue, engine sensi.Engine, p *params.Parameters, log logging.Logger, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		cat:                  cat,
		engine:               engine,
		maxIterations:        p.RangeActions.MaxAutomatonIterations,
		hvdcStep:             p.RangeActions.HvdcStep,
		injectionStep:        p.RangeActions.InjectionStep,
		sensitivityThreshold: p.RangeActions.SensitivityThreshold,
		log:                  logging.OrNoop(log),
		tracer:               observability.Tracer("github.com/signalsfoundry/rao-orchestrator/automaton"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// simulation is the mutable state of one Simulate call.
type simulation struct {
	*Simulator
	in     Input
	res    *Result
	ranges []*crac.RangeAction
}

// Simulate applies the automatons of in.State on in.Variant. Sensitivity
// failures are reported in the result status; configuration and engine
// errors are returned.
func (s *Simulator) Simulate(ctx context.Context, in Input) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "automaton.Simulate", trace.WithAttributes(
		observability.StateKey.String(in.State.ID()),
	))
	defer span.End()

	sim := &simulation{
		Simulator: s,
		in:        in,
		ranges:    s.cat.UsableRangeActions(in.State),
		res: &Result{
			State:        in.State,
			Status:       in.PreAutomaton.Status(),
			Phase:        PhaseIdle,
			Sensitivity:  in.PreAutomaton,
			PreSetpoints: make(map[*crac.RangeAction]float64),
			Setpoints:    make(map[*crac.RangeAction]float64),
		},
	}
	err := sim.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		observability.ShiftsKey.Int(sim.res.Shifts),
		observability.StatusKey.String(sim.res.Status.String()),
	)
	if s.metrics != nil && sim.res.Shifts > 0 {
		s.metrics.AddAutomatonShifts(sim.res.Shifts)
	}
	return sim.res, nil
}

func (sim *simulation) run(ctx context.Context) error {
	defer func() { sim.res.Phase = PhaseDone }()
	if sim.failed() {
		return nil
	}
	if err := sim.topology(ctx); err != nil {
		return err
	}
	sim.res.Phase = PhaseTopologyApplied
	if sim.failed() {
		return nil
	}
	if err := sim.rangeAutomatons(ctx); err != nil {
		return err
	}
	sim.res.Phase = PhaseRangesApplied
	return nil
}

func (sim *simulation) failed() bool {
	return sim.res.Status == model.ComputationFailure
}

//
// ---------- Topological automatons ----------
//

// topology applies forced network automatons and the others whose constraint
// is violated, then re-runs the sensitivity once if anything was applied.
func (sim *simulation) topology(ctx context.Context) error {
	state := sim.in.State
	margins := sim.res.Sensitivity.MarginLookup()
	for _, na := range sim.cat.UsableNetworkActions(state) {
		if na.UsageMethod(state) != model.UsageForced && !sim.cat.IsTriggered(na, state, margins) {
			continue
		}
		if err := sim.engine.ApplyNetworkAction(ctx, sim.in.Variant, na); err != nil {
			return fmt.Errorf("automaton: apply %q: %w", na.ID(), err)
		}
		sim.res.NetworkActions = append(sim.res.NetworkActions, na)
		sim.log.Debug(ctx, "topological automaton applied",
			logging.String("state", state.ID()),
			logging.String("action", na.ID()),
		)
	}
	if len(sim.res.NetworkActions) == 0 {
		return nil
	}
	return sim.rerun(ctx)
}

//
// ---------- Range automatons ----------
//

func (sim *simulation) rangeAutomatons(ctx context.Context) error {
	state := sim.in.State
	var automatons []*crac.RangeAction
	for _, ra := range sim.ranges {
		if ra.UsageMethod(state) == model.UsageAvailable {
			return fmt.Errorf("%w: range action %q is AVAILABLE at %s", ErrInvalidAutomatonConfiguration, ra.ID(), state)
		}
		if _, ok := ra.Speed(); !ok {
			sim.log.Warn(ctx, "range automaton without speed skipped",
				logging.String("state", state.ID()),
				logging.String("action", ra.ID()),
			)
			continue
		}
		automatons = append(automatons, ra)
	}
	if len(automatons) == 0 {
		return nil
	}
	if err := checkAlignedGroups(sim.cat, state, automatons); err != nil {
		return err
	}
	buckets, err := buildBuckets(automatons)
	if err != nil {
		return err
	}
	for _, ra := range automatons {
		v, ok := sim.res.Sensitivity.Setpoint(ra)
		if !ok {
			v = ra.InitialSetpoint()
		}
		sim.res.PreSetpoints[ra] = v
		sim.res.Setpoints[ra] = v
	}

	for _, b := range buckets {
		cnecs := sim.gatherCnecs(b)
		if err := sim.disableHvdcDroop(ctx, b, cnecs); err != nil {
			return err
		}
		if sim.failed() {
			return nil
		}
		if err := sim.shift(ctx, b, cnecs); err != nil {
			return err
		}
		if sim.failed() {
			return nil
		}
	}
	return nil
}

// gatherCnecs returns the cnecs a bucket reacts to: the flow and angle
// constraints of its on-constraint rules, or every flow cnec of the state for
// actions usable without constraint. Voltage cnecs have no sensitivity to a
// setpoint and are never shifted on.
func (sim *simulation) gatherCnecs(b *bucket) []*crac.Cnec {
	state := sim.in.State
	seen := make(map[*crac.Cnec]bool)
	var out []*crac.Cnec
	add := func(c *crac.Cnec) {
		if c.Kind() != model.CnecVoltage && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, ra := range b.actions {
		unconstrained := false
		for _, r := range ra.UsageRules() {
			if _, ok := r.Resolve(state); !ok {
				continue
			}
			if k := r.Kind(); !k.IsConstraintDriven() && k != model.RuleOnFlowConstraintInCountry {
				unconstrained = true
			}
		}
		if unconstrained {
			for _, c := range sim.cat.CnecsForState(state) {
				if c.Kind() == model.CnecFlow {
					add(c)
				}
			}
		}
		for _, c := range sim.cat.ConstraintCnecs(ra, state) {
			add(c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// disableHvdcDroop switches off AC emulation on the HVDC lines of an HVDC
// bucket when one of its cnecs is overloaded. The sensitivity is re-run only
// if a line was still emulating.
func (sim *simulation) disableHvdcDroop(ctx context.Context, b *bucket, cnecs []*crac.Cnec) error {
	for _, ra := range b.actions {
		if ra.Kind() != model.RangeHVDC {
			return nil
		}
	}
	if len(sim.negativeMargins(cnecs, nil)) == 0 {
		return nil
	}
	changed := false
	for _, ra := range b.actions {
		wasEnabled, err := sim.engine.DisableHvdcAngleDroop(ctx, sim.in.Variant, ra.NetworkElement())
		if err != nil {
			return fmt.Errorf("automaton: disable AC emulation on %q: %w", ra.NetworkElement(), err)
		}
		if wasEnabled {
			changed = true
			sim.res.DisabledHvdc = append(sim.res.DisabledHvdc, ra.NetworkElement())
			sim.log.Info(ctx, "hvdc AC emulation disabled",
				logging.String("state", sim.in.State.ID()),
				logging.String("hvdc", ra.NetworkElement()),
			)
		}
	}
	if !changed {
		return nil
	}
	return sim.rerun(ctx)
}

// shift moves the bucket towards the setpoint that secures its most
// limiting cnec, one sensitivity run per move. The direction of the first
// move is kept; the loop ends when no overloaded cnec is left, the move
// would stall or reverse, or the iteration bound is reached.
func (sim *simulation) shift(ctx context.Context, b *bucket, cnecs []*crac.Cnec) error {
	lo, hi := b.admissibleRange(sim.in.State)
	lead := b.lead()
	excluded := make(map[*crac.Cnec]bool)
	dir := 0

	for iter := 0; iter < sim.maxIterations; iter++ {
		var (
			target      *crac.Cnec
			sensitivity float64
		)
		for _, c := range sim.negativeMargins(cnecs, excluded) {
			total := 0.0
			for _, ra := range b.actions {
				total += sim.res.Sensitivity.Sensitivity(c, ra)
			}
			if total == 0 || math.Abs(total) < sim.sensitivityThreshold {
				excluded[c] = true
				continue
			}
			target, sensitivity = c, total
			break
		}
		if target == nil {
			return nil
		}

		current := sim.res.Setpoints[lead]
		flow, _ := sim.res.Sensitivity.Value(target)
		margin, _ := sim.res.Sensitivity.Margin(target)
		optimal := sim.optimalSetpoint(current, flow, margin, sensitivity, lead, lo, hi)

		d := direction(optimal, current)
		if iter == 0 {
			dir = d
		}
		if d == 0 || d != dir {
			return nil
		}
		for _, ra := range b.actions {
			if err := sim.engine.ApplyRangeAction(ctx, sim.in.Variant, ra, optimal); err != nil {
				return fmt.Errorf("automaton: apply %q: %w", ra.ID(), err)
			}
			sim.res.Setpoints[ra] = optimal
		}
		sim.res.Shifts++
		sim.log.Debug(ctx, "range automatons shifted",
			logging.String("state", sim.in.State.ID()),
			logging.String("cnec", target.ID()),
			logging.Int("speed", b.speed),
			logging.Float64("setpoint", optimal),
		)
		if err := sim.rerun(ctx); err != nil {
			return err
		}
		if sim.failed() {
			return nil
		}
	}
	return nil
}

// negativeMargins returns the cnecs with a negative margin, most limiting
// first.
func (sim *simulation) negativeMargins(cnecs []*crac.Cnec, excluded map[*crac.Cnec]bool) []*crac.Cnec {
	type entry struct {
		cnec   *crac.Cnec
		margin float64
	}
	var neg []entry
	for _, c := range cnecs {
		if excluded[c] {
			continue
		}
		if m, ok := sim.res.Sensitivity.Margin(c); ok && m < 0 {
			neg = append(neg, entry{c, m})
		}
	}
	sort.SliceStable(neg, func(i, j int) bool { return neg[i].margin < neg[j].margin })
	out := make([]*crac.Cnec, len(neg))
	for i, e := range neg {
		out[i] = e.cnec
	}
	return out
}

func (sim *simulation) rerun(ctx context.Context) error {
	res, err := sim.engine.Run(ctx, sim.in.Variant, sensi.Request{
		Cnecs:        sim.in.Cnecs,
		RangeActions: sim.ranges,
	})
	if err != nil {
		return fmt.Errorf("automaton: sensitivity on %s: %w", sim.in.Variant, err)
	}
	sim.res.SensitivityRuns++
	sim.res.Sensitivity = res
	sim.res.Status = res.Status()
	return nil
}
