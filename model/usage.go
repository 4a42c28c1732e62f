package model

import (
	"fmt"
	"strings"
)

// UsageMethod says how a remedial action may be used at a given state.
// Values are ordered by strength: when several rules apply, the strongest wins.
type UsageMethod int

const (
	UsageUndefined UsageMethod = iota
	UsageToBeEvaluated
	UsageAvailable
	UsageForced
	UsageUnavailable
)

var usageMethodNames = map[UsageMethod]string{
	UsageUndefined:     "UNDEFINED",
	UsageToBeEvaluated: "TO_BE_EVALUATED",
	UsageAvailable:     "AVAILABLE",
	UsageForced:        "FORCED",
	UsageUnavailable:   "UNAVAILABLE",
}

func (m UsageMethod) String() string {
	if s, ok := usageMethodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("UsageMethod(%d)", int(m))
}

// ParseUsageMethod maps a case-insensitive name to a UsageMethod.
func ParseUsageMethod(s string) (UsageMethod, error) {
	for m, name := range usageMethodNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown usage method %q", s)
}

// Usable reports whether an action resolved to m may be considered at all.
// TO_BE_EVALUATED actions are usable subject to their constraint check.
func (m UsageMethod) Usable() bool {
	return m == UsageAvailable || m == UsageForced || m == UsageToBeEvaluated
}

// Strongest returns the strongest of the given methods. An empty set resolves
// to UNAVAILABLE.
func Strongest(methods ...UsageMethod) UsageMethod {
	if len(methods) == 0 {
		return UsageUnavailable
	}
	best := methods[0]
	for _, m := range methods[1:] {
		if m > best {
			best = m
		}
	}
	return best
}

// UsageRuleKind tags the variant of a usage rule.
type UsageRuleKind int

const (
	RuleOnInstant UsageRuleKind = iota
	RuleOnContingencyState
	RuleOnFlowConstraint
	RuleOnAngleConstraint
	RuleOnVoltageConstraint
	RuleOnFlowConstraintInCountry
)

var usageRuleKindNames = map[UsageRuleKind]string{
	RuleOnInstant:                 "ON_INSTANT",
	RuleOnContingencyState:        "ON_CONTINGENCY_STATE",
	RuleOnFlowConstraint:          "ON_FLOW_CONSTRAINT",
	RuleOnAngleConstraint:         "ON_ANGLE_CONSTRAINT",
	RuleOnVoltageConstraint:       "ON_VOLTAGE_CONSTRAINT",
	RuleOnFlowConstraintInCountry: "ON_FLOW_CONSTRAINT_IN_COUNTRY",
}

func (k UsageRuleKind) String() string {
	if s, ok := usageRuleKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("UsageRuleKind(%d)", int(k))
}

// ParseUsageRuleKind maps a case-insensitive name to a UsageRuleKind.
// FREE_TO_USE is accepted as an alias of ON_INSTANT.
func ParseUsageRuleKind(s string) (UsageRuleKind, error) {
	if strings.EqualFold(s, "FREE_TO_USE") {
		return RuleOnInstant, nil
	}
	for k, name := range usageRuleKindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown usage rule kind %q", s)
}

// IsConstraintDriven reports whether rules of this kind reference a cnec.
func (k UsageRuleKind) IsConstraintDriven() bool {
	switch k {
	case RuleOnFlowConstraint, RuleOnAngleConstraint, RuleOnVoltageConstraint:
		return true
	}
	return false
}
