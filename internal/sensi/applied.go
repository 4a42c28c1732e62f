package sensi

import (
	"sort"

	"github.com/signalsfoundry/rao-orchestrator/crac"
)

// StateActions are the remedial actions decided for one state.
type StateActions struct {
	State          *crac.State
	NetworkActions []*crac.NetworkAction
	Setpoints      map[*crac.RangeAction]float64
}

// AppliedActions collects decisions taken at post-contingency states.
type AppliedActions struct {
	byState map[string]*StateActions
}

// NewAppliedActions creates an empty set.
func NewAppliedActions() *AppliedActions {
	return &AppliedActions{byState: make(map[string]*StateActions)}
}

func (a *AppliedActions) forState(s *crac.State) *StateActions {
	sa, ok := a.byState[s.ID()]
	if !ok {
		sa = &StateActions{State: s, Setpoints: make(map[*crac.RangeAction]float64)}
		a.byState[s.ID()] = sa
	}
	return sa
}

// AddNetworkAction records that na is applied at s.
func (a *AppliedActions) AddNetworkAction(s *crac.State, na *crac.NetworkAction) {
	sa := a.forState(s)
	sa.NetworkActions = append(sa.NetworkActions, na)
}

// SetSetpoint records the setpoint of ra at s.
func (a *AppliedActions) SetSetpoint(s *crac.State, ra *crac.RangeAction, v float64) {
	a.forState(s).Setpoints[ra] = v
}

// IsEmpty reports whether nothing was recorded.
func (a *AppliedActions) IsEmpty() bool {
	return a == nil || len(a.byState) == 0
}

// ApplicableTo returns the decisions affecting c: those of c's contingency
// at or before c's instant, in instant order.
func (a *AppliedActions) ApplicableTo(c *crac.Cnec) []*StateActions {
	if a == nil || c.State().IsPreventive() {
		return nil
	}
	var out []*StateActions
	for _, sa := range a.byState {
		if sa.State.Contingency() != c.State().Contingency() {
			continue
		}
		if sa.State.Instant().ComesAfter(c.State().Instant()) {
			continue
		}
		out = append(out, sa)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].State.Instant().Order() < out[j].State.Instant().Order()
	})
	return out
}
