// Package result accumulates the outcome of an optimization run: snapshots,
// activations and statuses per state, the audit trail of stages and the
// steps executed.
package result

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/perimeter"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

var (
	// ErrIllegalResultMutation is returned when the steps executed are set
	// twice.
	ErrIllegalResultMutation = errors.New("illegal result mutation")
	// ErrUnknownInstant is returned for instants the catalogue does not own.
	ErrUnknownInstant = errors.New("unknown instant")
)

// Stage is one entry of the audit trail.
type Stage struct {
	Name     string
	State    string // empty for run-wide stages
	Status   model.ComputationStatus
	Duration time.Duration
}

// RangeActivation is the setpoint of a range action at a state.
type RangeActivation struct {
	PreSetpoint  float64
	PostSetpoint float64
	// PostTap is set for PSTs.
	PostTap int
	HasTap  bool
}

type stateRecord struct {
	state          *crac.State
	status         model.ComputationStatus
	snapshot       *sensi.Result
	networkActions []*crac.NetworkAction
	ranges         map[*crac.RangeAction]RangeActivation
}

// RaoResult is safe for concurrent use: contingency workers publish their
// states while other goroutines read.
type RaoResult struct {
	cat  *crac.Catalogue
	eval *perimeter.Evaluator

	mu        sync.RWMutex
	initial   *sensi.Result
	states    map[string]*stateRecord
	stages    []Stage
	steps     model.OptimizationStepsExecuted
	stepsSet  bool
	execution time.Duration
}

// New creates an empty result. Costs are computed with eval.
func New(cat *crac.Catalogue, eval *perimeter.Evaluator) *RaoResult {
	return &RaoResult{
		cat:    cat,
		eval:   eval,
		states: make(map[string]*stateRecord),
	}
}

//
// ---------- Recording ----------
//

// RecordInitial stores the snapshot of the network before any action.
func (r *RaoResult) RecordInitial(res *sensi.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initial = res
}

// RecordSnapshot stores the snapshot of the network after the decisions
// taken at s.
func (r *RaoResult) RecordSnapshot(s *crac.State, res *sensi.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(s).snapshot = res
}

// RecordPerimeter stores the decisions, status and snapshot of a perimeter
// optimization. A nil snapshot keeps the previous one.
func (r *RaoResult) RecordPerimeter(s *crac.State, pr *perimeter.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.recordLocked(s)
	rec.status = pr.Status
	if pr.Sensitivity != nil {
		rec.snapshot = pr.Sensitivity
	}
	rec.networkActions = append([]*crac.NetworkAction(nil), pr.NetworkActions...)
	rec.ranges = make(map[*crac.RangeAction]RangeActivation)
	for _, ra := range pr.ActivatedRangeActions() {
		rec.ranges[ra] = rangeActivation(ra, pr.PreSetpoints[ra], pr.Setpoints[ra])
	}
}

// RecordActivations stores decisions taken at s outside a perimeter
// optimization, such as automatons.
func (r *RaoResult) RecordActivations(s *crac.State, nas []*crac.NetworkAction, pre, post map[*crac.RangeAction]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.recordLocked(s)
	rec.networkActions = append(rec.networkActions, nas...)
	if rec.ranges == nil {
		rec.ranges = make(map[*crac.RangeAction]RangeActivation)
	}
	for ra, v := range post {
		rec.ranges[ra] = rangeActivation(ra, pre[ra], v)
	}
}

// RecordStatus sets the computation status of s.
func (r *RaoResult) RecordStatus(s *crac.State, status model.ComputationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(s).status = status
}

// AppendStage adds st to the audit trail.
func (r *RaoResult) AppendStage(st Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, st)
}

// SetExecutionTime records the wall time of the run.
func (r *RaoResult) SetExecutionTime(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execution = d
}

// SetOptimizationStepsExecuted sets the steps executed once.
func (r *RaoResult) SetOptimizationStepsExecuted(steps model.OptimizationStepsExecuted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stepsSet {
		return fmt.Errorf("%w: optimization steps already set to %s", ErrIllegalResultMutation, r.steps)
	}
	r.steps = steps
	r.stepsSet = true
	return nil
}

// ClearDecisions drops every snapshot and activation recorded after the
// initial situation. Statuses and stages are kept.
func (r *RaoResult) ClearDecisions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.states {
		rec.snapshot = nil
		rec.networkActions = nil
		rec.ranges = nil
	}
}

// NOTE: caller must hold r.mu (write lock).
func (r *RaoResult) recordLocked(s *crac.State) *stateRecord {
	rec, ok := r.states[s.ID()]
	if !ok {
		rec = &stateRecord{state: s}
		r.states[s.ID()] = rec
	}
	return rec
}

func rangeActivation(ra *crac.RangeAction, pre, post float64) RangeActivation {
	a := RangeActivation{PreSetpoint: pre, PostSetpoint: post}
	if ra.Kind() == model.RangePST {
		a.PostTap, a.HasTap = ra.AngleToTap(post)
	}
	return a
}

//
// ---------- Reading ----------
//

// OptimizationStepsExecuted returns the steps executed, StepsUnset before
// the run completed.
func (r *RaoResult) OptimizationStepsExecuted() model.OptimizationStepsExecuted {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.steps
}

// ExecutionTime returns the recorded wall time of the run.
func (r *RaoResult) ExecutionTime() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.execution
}

// StateStatus returns the status of s. States never recorded are DEFAULT.
func (r *RaoResult) StateStatus(s *crac.State) model.ComputationStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.states[s.ID()]; ok {
		return rec.status
	}
	return model.ComputationDefault
}

// ComputationStatus aggregates the states: FAILURE if the preventive state
// failed, PARTIAL_FAILURE if any other state failed or partially failed.
func (r *RaoResult) ComputationStatus() model.ComputationStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := model.ComputationDefault
	for _, rec := range r.states {
		switch {
		case rec.status == model.ComputationFailure && rec.state.IsPreventive():
			return model.ComputationFailure
		case rec.status != model.ComputationDefault:
			out = model.ComputationPartialFailure
		}
	}
	return out
}

// ActivatedNetworkActions returns the network actions applied at s.
func (r *RaoResult) ActivatedNetworkActions(s *crac.State) []*crac.NetworkAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.states[s.ID()]
	if !ok {
		return nil
	}
	out := append([]*crac.NetworkAction(nil), rec.networkActions...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IsActivated reports whether ra was applied at s.
func (r *RaoResult) IsActivated(ra crac.RemedialAction, s *crac.State) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.states[s.ID()]
	if !ok {
		return false
	}
	switch a := ra.(type) {
	case *crac.NetworkAction:
		for _, na := range rec.networkActions {
			if na == a {
				return true
			}
		}
	case *crac.RangeAction:
		_, ok := rec.ranges[a]
		return ok
	}
	return false
}

// ActivatedRangeActions returns the range actions moved at s.
func (r *RaoResult) ActivatedRangeActions(s *crac.State) []*crac.RangeAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.states[s.ID()]
	if !ok {
		return nil
	}
	out := make([]*crac.RangeAction, 0, len(rec.ranges))
	for ra := range rec.ranges {
		out = append(out, ra)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// RangeActivation returns the setpoints of ra at s.
func (r *RaoResult) RangeActivation(ra *crac.RangeAction, s *crac.State) (RangeActivation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.states[s.ID()]
	if !ok {
		return RangeActivation{}, false
	}
	a, ok := rec.ranges[ra]
	return a, ok
}

// Stages returns a copy of the audit trail.
func (r *RaoResult) Stages() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Stage(nil), r.stages...)
}

// Initial returns the initial snapshot.
func (r *RaoResult) Initial() *sensi.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initial
}

// Snapshot returns the snapshot recorded at s.
func (r *RaoResult) Snapshot(s *crac.State) (*sensi.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.states[s.ID()]
	if !ok || rec.snapshot == nil {
		return nil, false
	}
	return rec.snapshot, true
}

//
// ---------- Costs ----------
//

// InitialCost is the cost of every cnec in the initial snapshot.
func (r *RaoResult) InitialCost() perimeter.Cost {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eval.Evaluate(r.cat.Cnecs(), r.initial, r.initial)
}

// CostAt is the cost of every cnec after the decisions taken up to instant.
// Each cnec is read from the latest snapshot of its contingency at or before
// the earlier of instant and its own instant, falling back to the
// preventive snapshot and then the initial one.
func (r *RaoResult) CostAt(instant *crac.Instant) (perimeter.Cost, error) {
	if err := r.cat.CheckInstant(instant); err != nil {
		return perimeter.Cost{}, fmt.Errorf("%w: %w", ErrUnknownInstant, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eval.EvaluateWith(r.cat.Cnecs(), func(c *crac.Cnec) *sensi.Result {
		return r.snapshotForLocked(c, instant)
	}, r.initial), nil
}

// Margin returns the margin of c after the decisions taken up to instant.
func (r *RaoResult) Margin(instant *crac.Instant, c *crac.Cnec) (float64, bool, error) {
	if err := r.cat.CheckInstant(instant); err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrUnknownInstant, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.snapshotForLocked(c, instant).Margin(c)
	return m, ok, nil
}

// NOTE: caller must hold r.mu.
func (r *RaoResult) snapshotForLocked(c *crac.Cnec, instant *crac.Instant) *sensi.Result {
	target := c.State().Instant()
	if instant.ComesBefore(target) {
		target = instant
	}
	if co := c.State().Contingency(); co != nil {
		var best *stateRecord
		for _, rec := range r.states {
			if rec.snapshot == nil || rec.state.Contingency() != co || rec.state.Instant().ComesAfter(target) {
				continue
			}
			if !rec.snapshot.Has(c) && rec.snapshot.Status() != model.ComputationFailure {
				continue
			}
			if best == nil || rec.state.Instant().ComesAfter(best.state.Instant()) {
				best = rec
			}
		}
		if best != nil {
			return best.snapshot
		}
	}
	if prev, ok := r.states[r.cat.PreventiveState().ID()]; ok && prev.snapshot != nil {
		return prev.snapshot
	}
	return r.initial
}
