package crac

import "github.com/signalsfoundry/rao-orchestrator/model"

// UsageRuleSpec describes a usage rule by id references. The Catalogue
// resolves it into a UsageRule when the owning remedial action is added.
type UsageRuleSpec struct {
	Kind        model.UsageRuleKind
	Method      model.UsageMethod
	Instant     string
	Contingency string // OnContingencyState only
	Cnec        string // on-constraint rules only
	Country     string // OnFlowConstraintInCountry only
	FreeToUse   bool   // OnInstant restricted to preventive and curative instants
}

// UsageRule is a resolved usage rule. Kind selects which of the reference
// fields are meaningful.
type UsageRule struct {
	kind    model.UsageRuleKind
	method  model.UsageMethod
	instant *Instant
	state   *State
	cnec    *Cnec
	country string
}

func (r UsageRule) Kind() model.UsageRuleKind { return r.kind }
func (r UsageRule) Method() model.UsageMethod { return r.method }
func (r UsageRule) Instant() *Instant         { return r.instant }
func (r UsageRule) Country() string           { return r.country }

// State is set for OnContingencyState rules.
func (r UsageRule) State() *State { return r.state }

// Cnec is set for flow, angle and voltage constraint rules.
func (r UsageRule) Cnec() *Cnec { return r.cnec }

// Resolve returns the rule's method for s and whether the rule applies to s
// at all.
func (r UsageRule) Resolve(s *State) (model.UsageMethod, bool) {
	if s == nil {
		return model.UsageUndefined, false
	}
	switch r.kind {
	case model.RuleOnInstant:
		return r.method, s.instant == r.instant
	case model.RuleOnContingencyState:
		return r.method, s == r.state
	case model.RuleOnFlowConstraint, model.RuleOnAngleConstraint, model.RuleOnVoltageConstraint:
		return r.resolveOnConstraint(s)
	case model.RuleOnFlowConstraintInCountry:
		return r.method, s.instant == r.instant
	}
	return model.UsageUndefined, false
}

func (r UsageRule) resolveOnConstraint(s *State) (model.UsageMethod, bool) {
	if s.instant != r.instant {
		return model.UsageUndefined, false
	}
	if s.IsPreventive() {
		return r.method, true
	}
	// A post-contingency rule only applies at its cnec's own state.
	return r.method, s == r.cnec.state
}

// triggers reports whether the rule's constraint is active given a margin
// lookup for the candidate cnecs. Rules without a constraint always trigger.
func (r UsageRule) triggers(s *State, cnecs []*Cnec, margin func(*Cnec) (float64, bool)) bool {
	switch r.kind {
	case model.RuleOnFlowConstraint, model.RuleOnAngleConstraint, model.RuleOnVoltageConstraint:
		m, ok := margin(r.cnec)
		return ok && m <= 0
	case model.RuleOnFlowConstraintInCountry:
		for _, c := range cnecs {
			if c.kind != model.CnecFlow || c.country != r.country || c.state != s {
				continue
			}
			if m, ok := margin(c); ok && m <= 0 {
				return true
			}
		}
		return false
	}
	return true
}
