package crac

import (
	"math"
	"sort"

	"github.com/signalsfoundry/rao-orchestrator/model"
)

// Effect is one elementary change applied by a remedial action.
type Effect struct {
	Kind           model.ElementaryActionKind
	NetworkElement string
	Value          float64 // tap or setpoint, unused for OPEN/CLOSE
}

// RemedialAction is the capability shared by network and range actions.
type RemedialAction interface {
	ID() string
	Name() string
	Operator() string
	Speed() (int, bool)
	UsageRules() []UsageRule
	UsageMethod(s *State) model.UsageMethod
	NetworkElements() []string
	ElementaryEffects() []Effect
}

type actionBase struct {
	id       string
	name     string
	operator string
	speed    int
	hasSpeed bool
	rules    []UsageRule
}

func (a *actionBase) ID() string         { return a.id }
func (a *actionBase) Name() string       { return a.name }
func (a *actionBase) Operator() string   { return a.operator }
func (a *actionBase) Speed() (int, bool) { return a.speed, a.hasSpeed }

func (a *actionBase) UsageRules() []UsageRule {
	return append([]UsageRule(nil), a.rules...)
}

// UsageMethod resolves the strongest method among the rules applicable to s.
func (a *actionBase) UsageMethod(s *State) model.UsageMethod {
	methods := make([]model.UsageMethod, 0, len(a.rules))
	for _, r := range a.rules {
		if m, ok := r.Resolve(s); ok {
			methods = append(methods, m)
		}
	}
	return model.Strongest(methods...)
}

// NetworkActionSpec describes a network action to register.
type NetworkActionSpec struct {
	ID         string
	Name       string
	Operator   string
	Speed      *int
	Effects    []Effect
	UsageRules []UsageRuleSpec
}

// NetworkAction applies a fixed set of elementary effects: a binary decision.
type NetworkAction struct {
	actionBase
	effects []Effect
}

func (n *NetworkAction) ElementaryEffects() []Effect {
	return append([]Effect(nil), n.effects...)
}

func (n *NetworkAction) NetworkElements() []string {
	seen := make(map[string]struct{}, len(n.effects))
	var out []string
	for _, e := range n.effects {
		if _, ok := seen[e.NetworkElement]; ok {
			continue
		}
		seen[e.NetworkElement] = struct{}{}
		out = append(out, e.NetworkElement)
	}
	return out
}

// RangeActionSpec describes a range action to register. For PSTs the
// setpoint is the angle and TapToAngle is required.
type RangeActionSpec struct {
	ID              string
	Name            string
	Operator        string
	Kind            model.RangeActionKind
	NetworkElement  string
	GroupID         string
	Speed           *int
	Min             float64
	Max             float64
	InitialSetpoint float64
	InitialTap      int
	TapToAngle      map[int]float64
	UsageRules      []UsageRuleSpec
}

// RangeAction moves a continuous (or tap-discretised) setpoint within a range.
type RangeAction struct {
	actionBase
	kind            model.RangeActionKind
	networkElement  string
	groupID         string
	min             float64
	max             float64
	initialSetpoint float64
	initialTap      int
	taps            []int
	tapToAngle      map[int]float64
}

func (r *RangeAction) Kind() model.RangeActionKind { return r.kind }
func (r *RangeAction) NetworkElement() string      { return r.networkElement }
func (r *RangeAction) InitialSetpoint() float64    { return r.initialSetpoint }
func (r *RangeAction) InitialTap() int             { return r.initialTap }

func (r *RangeAction) NetworkElements() []string { return []string{r.networkElement} }

// GroupID returns the aligned group id, if any.
func (r *RangeAction) GroupID() (string, bool) { return r.groupID, r.groupID != "" }

func (r *RangeAction) ElementaryEffects() []Effect {
	kind := model.ElementaryInjectionSetpoint
	value := r.initialSetpoint
	if r.kind == model.RangePST {
		kind = model.ElementaryPstTap
		value = float64(r.initialTap)
	}
	return []Effect{{Kind: kind, NetworkElement: r.networkElement, Value: value}}
}

// AdmissibleRange returns the absolute setpoint bounds usable at s. Ranges
// are not state dependent yet, so every state sees the same bounds.
func (r *RangeAction) AdmissibleRange(_ *State) (float64, float64) {
	return r.min, r.max
}

// Taps returns the PST taps in ascending order, nil for other kinds.
func (r *RangeAction) Taps() []int { return append([]int(nil), r.taps...) }

// TapToAngle returns the angle of a tap.
func (r *RangeAction) TapToAngle(tap int) (float64, bool) {
	a, ok := r.tapToAngle[tap]
	return a, ok
}

// AngleToTap returns the tap whose angle is closest to angle.
func (r *RangeAction) AngleToTap(angle float64) (int, bool) {
	if len(r.taps) == 0 {
		return 0, false
	}
	best := r.taps[0]
	bestDist := math.Inf(1)
	for _, t := range r.taps {
		if d := math.Abs(r.tapToAngle[t] - angle); d < bestDist {
			best, bestDist = t, d
		}
	}
	return best, true
}

// Angles returns the distinct tap angles in ascending order.
func (r *RangeAction) Angles() []float64 {
	out := make([]float64, 0, len(r.taps))
	for _, t := range r.taps {
		out = append(out, r.tapToAngle[t])
	}
	sort.Float64s(out)
	return out
}
