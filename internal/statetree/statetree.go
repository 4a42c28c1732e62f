// Package statetree splits the catalogue's states into the preventive
// perimeter and one scenario per contingency.
package statetree

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/rao-orchestrator/crac"
)

// ErrOutageRemedialAction is returned when a remedial action is usable at an
// outage state: nothing can act between the contingency and the automatons.
var ErrOutageRemedialAction = errors.New("remedial actions usable at outage instant")

// Perimeter is a state whose remedial actions are optimized together with
// the cnecs of the other states attached to it.
type Perimeter struct {
	RaOptimisationState *crac.State
	OtherStates         []*crac.State
}

// States returns the optimization state followed by the attached states.
func (p *Perimeter) States() []*crac.State {
	return append([]*crac.State{p.RaOptimisationState}, p.OtherStates...)
}

// ContingencyScenario is the post-contingency work of one contingency.
type ContingencyScenario struct {
	Contingency        *crac.Contingency
	AutomatonState     *crac.State // nil when no automaton applies
	CurativePerimeters []*Perimeter
}

// Tree is the decomposition of a catalogue.
type Tree struct {
	Basecase  *Perimeter
	Scenarios []*ContingencyScenario
}

// Build computes the state tree of c.
func Build(c *crac.Catalogue) (*Tree, error) {
	prev := c.PreventiveState()
	if prev == nil {
		return nil, fmt.Errorf("statetree: catalogue has no preventive state")
	}
	t := &Tree{Basecase: &Perimeter{RaOptimisationState: prev}}

	for _, co := range c.Contingencies() {
		scenario := &ContingencyScenario{Contingency: co}
		defaultPerimeter := t.Basecase

		for _, s := range c.StatesForContingency(co.ID()) {
			inst := s.Instant()
			switch {
			case inst.IsOutage():
				if anyUsableAction(c, s) {
					return nil, fmt.Errorf("%w: state %q", ErrOutageRemedialAction, s.ID())
				}
				t.Basecase.OtherStates = append(t.Basecase.OtherStates, s)

			case inst.IsAuto():
				if anyUsableAction(c, s) {
					scenario.AutomatonState = s
				} else {
					t.Basecase.OtherStates = append(t.Basecase.OtherStates, s)
				}

			case inst.IsCurative():
				if anyUsableAction(c, s) {
					p := &Perimeter{RaOptimisationState: s}
					scenario.CurativePerimeters = append(scenario.CurativePerimeters, p)
					defaultPerimeter = p
				} else {
					defaultPerimeter.OtherStates = append(defaultPerimeter.OtherStates, s)
				}
			}
		}

		if scenario.AutomatonState != nil || len(scenario.CurativePerimeters) > 0 {
			t.Scenarios = append(t.Scenarios, scenario)
		}
	}
	return t, nil
}

// ScenarioStates returns every state handled inside a contingency scenario.
func (s *ContingencyScenario) ScenarioStates() []*crac.State {
	var out []*crac.State
	if s.AutomatonState != nil {
		out = append(out, s.AutomatonState)
	}
	for _, p := range s.CurativePerimeters {
		out = append(out, p.States()...)
	}
	return out
}

func anyUsableAction(c *crac.Catalogue, s *crac.State) bool {
	return len(c.UsableNetworkActions(s)) > 0 || len(c.UsableRangeActions(s)) > 0
}
