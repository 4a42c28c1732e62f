// Package perimeter optimizes the remedial actions of one state against the
// cnecs of the states attached to it.
package perimeter

import (
	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// Perimeter is the scope of one optimization: the state whose remedial
// actions are chosen, the states whose cnecs are evaluated and the remedial
// actions usable at the optimization state.
type Perimeter struct {
	State          *crac.State
	States         []*crac.State
	Cnecs          []*crac.Cnec
	NetworkActions []*crac.NetworkAction
	RangeActions   []*crac.RangeAction
}

// New builds the perimeter of state, evaluating the cnecs of state and of
// others.
func New(cat *crac.Catalogue, state *crac.State, others ...*crac.State) *Perimeter {
	p := &Perimeter{
		State:          state,
		States:         append([]*crac.State{state}, others...),
		NetworkActions: cat.UsableNetworkActions(state),
		RangeActions:   cat.UsableRangeActions(state),
	}
	for _, s := range p.States {
		p.Cnecs = append(p.Cnecs, cat.CnecsForState(s)...)
	}
	return p
}

// WithCnecs returns a copy of p evaluating cnecs instead of its own.
func (p *Perimeter) WithCnecs(cnecs []*crac.Cnec) *Perimeter {
	cp := *p
	cp.Cnecs = cnecs
	return &cp
}

// WithoutRangeActions returns a copy of p without the range actions for
// which excluded reports true.
func (p *Perimeter) WithoutRangeActions(excluded func(*crac.RangeAction) bool) *Perimeter {
	cp := *p
	cp.RangeActions = nil
	for _, ra := range p.RangeActions {
		if !excluded(ra) {
			cp.RangeActions = append(cp.RangeActions, ra)
		}
	}
	return &cp
}

// available reports whether ra may be chosen at the perimeter state given
// the margins before optimization. Actions to be evaluated are only
// available when one of their constraints is violated.
func available(cat *crac.Catalogue, ra crac.RemedialAction, s *crac.State, margins func(*crac.Cnec) (float64, bool)) bool {
	switch ra.UsageMethod(s) {
	case model.UsageAvailable, model.UsageForced:
		return true
	case model.UsageToBeEvaluated:
		return cat.IsTriggered(ra, s, margins)
	default:
		return false
	}
}
