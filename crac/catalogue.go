package crac

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/signalsfoundry/rao-orchestrator/model"
)

// Catalogue stores the immutable CRAC inputs: instants, contingencies,
// states, cnecs and remedial actions. Entities reference each other through
// pointers handed out by the catalogue; reverse lookups are kept in id-keyed
// sets so removal can check for references without cycles.
//
// The catalogue is safe for concurrent use. During optimization it is only
// read.
type Catalogue struct {
	mu sync.RWMutex

	instants     []*Instant
	instantsByID map[string]*Instant

	contingencies map[string]*Contingency

	preventive          *State
	states              map[string]*State
	statesByContingency map[string]map[string]*State
	statesByInstant     map[string]map[string]*State
	cnecs               map[string]*Cnec
	cnecsByState        map[string]map[string]*Cnec
	ruleRefsByCnec      map[string]map[string]struct{} // cnec id -> remedial action ids
	networkActions      map[string]*NetworkAction
	rangeActions        map[string]*RangeAction
	rangeActionsByGroup map[string]map[string]*RangeAction
}

// NewCatalogue creates an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{
		instantsByID:        make(map[string]*Instant),
		contingencies:       make(map[string]*Contingency),
		states:              make(map[string]*State),
		statesByContingency: make(map[string]map[string]*State),
		statesByInstant:     make(map[string]map[string]*State),
		cnecs:               make(map[string]*Cnec),
		cnecsByState:        make(map[string]map[string]*Cnec),
		ruleRefsByCnec:      make(map[string]map[string]struct{}),
		networkActions:      make(map[string]*NetworkAction),
		rangeActions:        make(map[string]*RangeAction),
		rangeActionsByGroup: make(map[string]map[string]*RangeAction),
	}
}

//
// ---------- Instants ----------
//

// AddInstant appends an instant to the ordering chain.
func (c *Catalogue) AddInstant(id string, kind model.InstantKind) (*Instant, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidInstant)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.instantsByID[id]; exists {
		return nil, fmt.Errorf("%w: %q already exists", ErrInvalidInstant, id)
	}
	pos := len(c.instants)
	switch {
	case pos == 0 && kind != model.InstantPreventive:
		return nil, fmt.Errorf("%w: first instant %q must be PREVENTIVE", ErrInvalidInstant, id)
	case pos == 1 && kind != model.InstantOutage:
		return nil, fmt.Errorf("%w: second instant %q must be OUTAGE", ErrInvalidInstant, id)
	case pos > 1 && (kind == model.InstantPreventive || kind == model.InstantOutage):
		return nil, fmt.Errorf("%w: only one %s instant allowed, got %q", ErrInvalidInstant, kind, id)
	case pos > 1 && kind < c.instants[pos-1].kind:
		return nil, fmt.Errorf("%w: %s instant %q cannot follow %s", ErrInvalidInstant, kind, id, c.instants[pos-1].kind)
	}

	inst := &Instant{id: id, kind: kind, order: pos}
	if pos > 0 {
		inst.previous = c.instants[pos-1]
	}
	c.instants = append(c.instants, inst)
	c.instantsByID[id] = inst
	if kind == model.InstantPreventive {
		c.preventive = &State{id: stateKey("", id), instant: inst}
		c.states[c.preventive.id] = c.preventive
		c.statesByInstant[id] = map[string]*State{c.preventive.id: c.preventive}
	}
	return inst, nil
}

// Instant returns an instant by id, or nil.
func (c *Catalogue) Instant(id string) *Instant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instantsByID[id]
}

// Instants returns the instants in chain order.
func (c *Catalogue) Instants() []*Instant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Instant(nil), c.instants...)
}

// InstantsOfKind returns the instants of a kind in chain order.
func (c *Catalogue) InstantsOfKind(kind model.InstantKind) []*Instant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Instant
	for _, i := range c.instants {
		if i.kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// LastInstant returns the last instant of the chain, or nil when empty.
func (c *Catalogue) LastInstant() *Instant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.instants) == 0 {
		return nil
	}
	return c.instants[len(c.instants)-1]
}

// InstantBefore returns the predecessor of i, nil for the first instant. It
// fails unless i is the very object registered under its id.
func (c *Catalogue) InstantBefore(i *Instant) (*Instant, error) {
	if err := c.CheckInstant(i); err != nil {
		return nil, err
	}
	return i.previous, nil
}

// CheckInstant fails unless i is the object registered under its id.
func (c *Catalogue) CheckInstant(i *Instant) error {
	if i == nil {
		return fmt.Errorf("%w: nil instant", ErrUnknownInstant)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.instantsByID[i.id] != i {
		return fmt.Errorf("%w: %q", ErrUnknownInstant, i.id)
	}
	return nil
}

//
// ---------- Contingencies ----------
//

func (c *Catalogue) AddContingency(co *Contingency) error {
	if co == nil || co.id == "" {
		return fmt.Errorf("%w: nil or empty contingency", ErrContingencyNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.contingencies[co.id]; exists {
		return fmt.Errorf("%w: %q", ErrContingencyExists, co.id)
	}
	c.contingencies[co.id] = co
	return nil
}

// Contingency returns a contingency by id, or nil.
func (c *Catalogue) Contingency(id string) *Contingency {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contingencies[id]
}

// Contingencies returns all contingencies sorted by id.
func (c *Catalogue) Contingencies() []*Contingency {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Contingency, 0, len(c.contingencies))
	for _, co := range c.contingencies {
		out = append(out, co)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// RemoveContingency deletes a contingency no state references.
func (c *Catalogue) RemoveContingency(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.contingencies[id]; !ok {
		return fmt.Errorf("%w: %q", ErrContingencyNotFound, id)
	}
	if len(c.statesByContingency[id]) > 0 {
		return fmt.Errorf("%w: %q", ErrContingencyInUse, id)
	}
	delete(c.contingencies, id)
	return nil
}

//
// ---------- States ----------
//

// PreventiveState returns the unique preventive state, nil before the
// preventive instant is registered.
func (c *Catalogue) PreventiveState() *State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preventive
}

// State returns the state of a contingency at an instant, nil if no cnec or
// usage rule ever referenced it. An empty contingency id selects the
// preventive state.
func (c *Catalogue) State(contingencyID, instantID string) *State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[stateKey(contingencyID, instantID)]
}

// States returns every state, preventive first, then by contingency and
// instant order.
func (c *Catalogue) States() []*State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*State, 0, len(c.states))
	for _, s := range c.states {
		out = append(out, s)
	}
	sortStates(out)
	return out
}

// StatesForContingency returns the states of a contingency in instant order.
func (c *Catalogue) StatesForContingency(contingencyID string) []*State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedStates(c.statesByContingency[contingencyID])
}

// StatesForInstant returns the states at an instant.
func (c *Catalogue) StatesForInstant(instantID string) []*State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedStates(c.statesByInstant[instantID])
}

// stateLocked returns the state for the pair, creating it on first use.
// NOTE: caller must hold c.mu (write lock).
func (c *Catalogue) stateLocked(contingencyID, instantID string) (*State, error) {
	inst, ok := c.instantsByID[instantID]
	if !ok {
		return nil, fmt.Errorf("%w: instant %q", ErrUnknownReference, instantID)
	}
	if contingencyID == "" {
		if !inst.IsPreventive() {
			return nil, fmt.Errorf("%w: instant %q requires a contingency", ErrUnknownReference, instantID)
		}
		return c.preventive, nil
	}
	if inst.IsPreventive() {
		return nil, fmt.Errorf("%w: preventive instant cannot have contingency %q", ErrUnknownReference, contingencyID)
	}
	co, ok := c.contingencies[contingencyID]
	if !ok {
		return nil, fmt.Errorf("%w: contingency %q", ErrUnknownReference, contingencyID)
	}
	key := stateKey(contingencyID, instantID)
	if s, ok := c.states[key]; ok {
		return s, nil
	}
	s := &State{id: key, contingency: co, instant: inst}
	c.states[key] = s
	addToSet(c.statesByContingency, contingencyID, key, s)
	addToSet(c.statesByInstant, instantID, key, s)
	return s, nil
}

//
// ---------- Cnecs ----------
//

// AddCnec registers a cnec, creating its state if needed.
func (c *Catalogue) AddCnec(spec CnecSpec) (*Cnec, error) {
	if spec.ID == "" || spec.NetworkElement == "" {
		return nil, fmt.Errorf("%w: id and network element are required", ErrCnecBadInput)
	}
	if spec.Min == nil && spec.Max == nil {
		return nil, fmt.Errorf("%w: %q has no threshold", ErrCnecBadInput, spec.ID)
	}
	if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
		return nil, fmt.Errorf("%w: %q min above max", ErrCnecBadInput, spec.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cnecs[spec.ID]; exists {
		return nil, fmt.Errorf("%w: %q", ErrCnecExists, spec.ID)
	}
	s, err := c.stateLocked(spec.Contingency, spec.Instant)
	if err != nil {
		return nil, fmt.Errorf("cnec %q: %w", spec.ID, err)
	}
	cnec := &Cnec{
		id:                spec.ID,
		name:              spec.Name,
		kind:              spec.Kind,
		networkElement:    spec.NetworkElement,
		state:             s,
		operator:          spec.Operator,
		country:           spec.Country,
		optimized:         spec.Optimized,
		monitored:         spec.Monitored,
		reliabilityMargin: spec.ReliabilityMargin,
	}
	if spec.Min != nil {
		cnec.min, cnec.hasMin = *spec.Min, true
	}
	if spec.Max != nil {
		cnec.max, cnec.hasMax = *spec.Max, true
	}
	c.cnecs[spec.ID] = cnec
	addToSet(c.cnecsByState, s.id, spec.ID, cnec)
	return cnec, nil
}

// Cnec returns a cnec by id, or nil.
func (c *Catalogue) Cnec(id string) *Cnec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cnecs[id]
}

// Cnecs returns every cnec sorted by id.
func (c *Catalogue) Cnecs() []*Cnec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Cnec, 0, len(c.cnecs))
	for _, cn := range c.cnecs {
		out = append(out, cn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// CnecsForState returns the cnecs of a state sorted by id.
func (c *Catalogue) CnecsForState(s *State) []*Cnec {
	if s == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.cnecsByState[s.id]
	out := make([]*Cnec, 0, len(set))
	for _, cn := range set {
		out = append(out, cn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// RemoveCnec deletes a cnec no usage rule references.
func (c *Catalogue) RemoveCnec(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cnec, ok := c.cnecs[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrCnecNotFound, id)
	}
	if len(c.ruleRefsByCnec[id]) > 0 {
		return fmt.Errorf("%w: %q", ErrCnecInUse, id)
	}
	delete(c.cnecs, id)
	removeFromSet(c.cnecsByState, cnec.state.id, id)
	return nil
}

//
// ---------- Remedial actions ----------
//

// AddNetworkAction validates and registers a network action.
func (c *Catalogue) AddNetworkAction(spec NetworkActionSpec) (*NetworkAction, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrRemedialActionBadInput)
	}
	if len(spec.Effects) == 0 {
		return nil, fmt.Errorf("%w: %q has no elementary action", ErrRemedialActionBadInput, spec.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.actionExistsLocked(spec.ID) {
		return nil, fmt.Errorf("%w: %q", ErrRemedialActionExists, spec.ID)
	}
	rules, err := c.resolveRulesLocked(spec.ID, spec.UsageRules)
	if err != nil {
		return nil, err
	}
	na := &NetworkAction{
		actionBase: newActionBase(spec.ID, spec.Name, spec.Operator, spec.Speed, rules),
		effects:    append([]Effect(nil), spec.Effects...),
	}
	c.networkActions[spec.ID] = na
	c.attachRulesLocked(spec.ID, rules)
	return na, nil
}

// AddRangeAction validates and registers a range action. Members of an
// aligned group must share kind and speed.
func (c *Catalogue) AddRangeAction(spec RangeActionSpec) (*RangeAction, error) {
	if spec.ID == "" || spec.NetworkElement == "" {
		return nil, fmt.Errorf("%w: id and network element are required", ErrRemedialActionBadInput)
	}
	ra := &RangeAction{
		kind:            spec.Kind,
		networkElement:  spec.NetworkElement,
		groupID:         spec.GroupID,
		min:             spec.Min,
		max:             spec.Max,
		initialSetpoint: spec.InitialSetpoint,
		initialTap:      spec.InitialTap,
	}
	if spec.Kind == model.RangePST {
		if err := ra.setTaps(spec.TapToAngle); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrRemedialActionBadInput, spec.ID, err)
		}
	}
	if ra.min > ra.max {
		return nil, fmt.Errorf("%w: %q min above max", ErrRemedialActionBadInput, spec.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.actionExistsLocked(spec.ID) {
		return nil, fmt.Errorf("%w: %q", ErrRemedialActionExists, spec.ID)
	}
	rules, err := c.resolveRulesLocked(spec.ID, spec.UsageRules)
	if err != nil {
		return nil, err
	}
	ra.actionBase = newActionBase(spec.ID, spec.Name, spec.Operator, spec.Speed, rules)
	if ra.groupID != "" {
		if err := c.checkGroupMemberLocked(ra); err != nil {
			return nil, err
		}
	}
	c.rangeActions[spec.ID] = ra
	if ra.groupID != "" {
		addToSet(c.rangeActionsByGroup, ra.groupID, ra.id, ra)
	}
	c.attachRulesLocked(spec.ID, rules)
	return ra, nil
}

// NetworkAction returns a network action by id, or nil.
func (c *Catalogue) NetworkAction(id string) *NetworkAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networkActions[id]
}

// RangeAction returns a range action by id, or nil.
func (c *Catalogue) RangeAction(id string) *RangeAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rangeActions[id]
}

// RemedialAction returns a network or range action by id, or nil.
func (c *Catalogue) RemedialAction(id string) RemedialAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if na, ok := c.networkActions[id]; ok {
		return na
	}
	if ra, ok := c.rangeActions[id]; ok {
		return ra
	}
	return nil
}

// NetworkActions returns every network action sorted by id.
func (c *Catalogue) NetworkActions() []*NetworkAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*NetworkAction, 0, len(c.networkActions))
	for _, na := range c.networkActions {
		out = append(out, na)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// RangeActions returns every range action sorted by id.
func (c *Catalogue) RangeActions() []*RangeAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RangeAction, 0, len(c.rangeActions))
	for _, ra := range c.rangeActions {
		out = append(out, ra)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// AlignedGroup returns the members of an aligned group sorted by id.
func (c *Catalogue) AlignedGroup(groupID string) []*RangeAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.rangeActionsByGroup[groupID]
	out := make([]*RangeAction, 0, len(set))
	for _, ra := range set {
		out = append(out, ra)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// RemoveRemedialAction deletes a remedial action and releases the cnec
// references held by its usage rules.
func (c *Catalogue) RemoveRemedialAction(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rules []UsageRule
	if na, ok := c.networkActions[id]; ok {
		rules = na.rules
		delete(c.networkActions, id)
	} else if ra, ok := c.rangeActions[id]; ok {
		rules = ra.rules
		delete(c.rangeActions, id)
		if ra.groupID != "" {
			removeFromSet(c.rangeActionsByGroup, ra.groupID, id)
		}
	} else {
		return fmt.Errorf("%w: %q", ErrRemedialActionNotFound, id)
	}
	for _, r := range rules {
		if r.cnec != nil {
			removeFromSet(c.ruleRefsByCnec, r.cnec.id, id)
		}
	}
	return nil
}

// Validate checks catalogue-wide invariants that cannot be enforced entity by
// entity.
func (c *Catalogue) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.instants) < 2 {
		return fmt.Errorf("%w: at least a PREVENTIVE and an OUTAGE instant are required", ErrInvalidInstant)
	}
	for groupID := range c.rangeActionsByGroup {
		var ref *RangeAction
		for _, ra := range c.rangeActionsByGroup[groupID] {
			if ref == nil {
				ref = ra
				continue
			}
			if err := sameGroupShape(ref, ra); err != nil {
				return err
			}
		}
	}
	return nil
}

//
// ---------- Resolver ----------
//

// UsableNetworkActions returns the network actions whose usage method at s
// is one of methods. With no methods, any usable method matches.
func (c *Catalogue) UsableNetworkActions(s *State, methods ...model.UsageMethod) []*NetworkAction {
	var out []*NetworkAction
	for _, na := range c.NetworkActions() {
		if methodMatches(na.UsageMethod(s), methods) {
			out = append(out, na)
		}
	}
	return out
}

// UsableRangeActions returns the range actions whose usage method at s is
// one of methods. With no methods, any usable method matches.
func (c *Catalogue) UsableRangeActions(s *State, methods ...model.UsageMethod) []*RangeAction {
	var out []*RangeAction
	for _, ra := range c.RangeActions() {
		if methodMatches(ra.UsageMethod(s), methods) {
			out = append(out, ra)
		}
	}
	return out
}

// ConstraintCnecs returns the cnecs whose margin may trigger ra at s through
// its applicable on-constraint rules.
func (c *Catalogue) ConstraintCnecs(ra RemedialAction, s *State) []*Cnec {
	seen := make(map[string]struct{})
	var out []*Cnec
	add := func(cn *Cnec) {
		if _, ok := seen[cn.id]; ok {
			return
		}
		seen[cn.id] = struct{}{}
		out = append(out, cn)
	}
	for _, r := range ra.UsageRules() {
		if _, ok := r.Resolve(s); !ok {
			continue
		}
		switch {
		case r.kind.IsConstraintDriven():
			add(r.cnec)
		case r.kind == model.RuleOnFlowConstraintInCountry:
			for _, cn := range c.CnecsForState(s) {
				if cn.kind == model.CnecFlow && cn.country == r.country {
					add(cn)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// IsTriggered reports whether ra, resolved to a usable method at s, should be
// activated given the margins returned by margin. Actions usable through a
// rule without constraint always trigger.
func (c *Catalogue) IsTriggered(ra RemedialAction, s *State, margin func(*Cnec) (float64, bool)) bool {
	stateCnecs := c.CnecsForState(s)
	for _, r := range ra.UsageRules() {
		m, ok := r.Resolve(s)
		if !ok || !m.Usable() {
			continue
		}
		if r.triggers(s, stateCnecs, margin) {
			return true
		}
	}
	return false
}

//
// ---------- helpers ----------
//

func newActionBase(id, name, operator string, speed *int, rules []UsageRule) actionBase {
	b := actionBase{id: id, name: name, operator: operator, rules: rules}
	if speed != nil {
		b.speed, b.hasSpeed = *speed, true
	}
	return b
}

func (c *Catalogue) actionExistsLocked(id string) bool {
	_, na := c.networkActions[id]
	_, ra := c.rangeActions[id]
	return na || ra
}

// resolveRulesLocked turns rule specs into rules, creating referenced states.
// NOTE: caller must hold c.mu (write lock).
func (c *Catalogue) resolveRulesLocked(raID string, specs []UsageRuleSpec) ([]UsageRule, error) {
	rules := make([]UsageRule, 0, len(specs))
	for i, spec := range specs {
		r, err := c.resolveRuleLocked(spec)
		if err != nil {
			return nil, fmt.Errorf("remedial action %q rule %d: %w", raID, i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (c *Catalogue) resolveRuleLocked(spec UsageRuleSpec) (UsageRule, error) {
	inst, ok := c.instantsByID[spec.Instant]
	if !ok {
		return UsageRule{}, fmt.Errorf("%w: instant %q", ErrUnknownReference, spec.Instant)
	}
	r := UsageRule{kind: spec.Kind, method: spec.Method, instant: inst, country: spec.Country}

	switch spec.Kind {
	case model.RuleOnInstant:
		if inst.IsOutage() {
			return UsageRule{}, fmt.Errorf("%w: OnInstant rule at OUTAGE instant %q", ErrInvalidUsageRule, inst.id)
		}
		if spec.FreeToUse && inst.IsAuto() {
			return UsageRule{}, fmt.Errorf("%w: FreeToUse rule at AUTO instant %q", ErrInvalidUsageRule, inst.id)
		}

	case model.RuleOnContingencyState:
		if inst.IsPreventive() || inst.IsOutage() {
			return UsageRule{}, fmt.Errorf("%w: OnContingencyState rule at %s instant %q", ErrInvalidUsageRule, inst.kind, inst.id)
		}
		if spec.Contingency == "" {
			return UsageRule{}, fmt.Errorf("%w: OnContingencyState rule without contingency", ErrInvalidUsageRule)
		}
		s, err := c.stateLocked(spec.Contingency, inst.id)
		if err != nil {
			return UsageRule{}, err
		}
		r.state = s

	case model.RuleOnFlowConstraint, model.RuleOnAngleConstraint, model.RuleOnVoltageConstraint:
		if inst.IsOutage() {
			return UsageRule{}, fmt.Errorf("%w: %s rule at OUTAGE instant %q", ErrInvalidUsageRule, spec.Kind, inst.id)
		}
		cnec, ok := c.cnecs[spec.Cnec]
		if !ok {
			return UsageRule{}, fmt.Errorf("%w: cnec %q", ErrUnknownReference, spec.Cnec)
		}
		if want := ruleCnecKind(spec.Kind); cnec.kind != want {
			return UsageRule{}, fmt.Errorf("%w: %s rule references %s cnec %q", ErrInvalidUsageRule, spec.Kind, cnec.kind, cnec.id)
		}
		if !CanReactTo(inst, cnec.state.instant) {
			return UsageRule{}, fmt.Errorf("%w: rule at %q cannot react to cnec %q constrained at earlier instant %q",
				ErrInvalidUsageRule, inst.id, cnec.id, cnec.state.instant.id)
		}
		r.cnec = cnec

	case model.RuleOnFlowConstraintInCountry:
		if inst.IsOutage() {
			return UsageRule{}, fmt.Errorf("%w: %s rule at OUTAGE instant %q", ErrInvalidUsageRule, spec.Kind, inst.id)
		}
		if spec.Country == "" {
			return UsageRule{}, fmt.Errorf("%w: %s rule without country", ErrInvalidUsageRule, spec.Kind)
		}

	default:
		return UsageRule{}, fmt.Errorf("%w: unknown kind %v", ErrInvalidUsageRule, spec.Kind)
	}
	return r, nil
}

// NOTE: caller must hold c.mu (write lock).
func (c *Catalogue) attachRulesLocked(raID string, rules []UsageRule) {
	for _, r := range rules {
		if r.cnec != nil {
			addToSet(c.ruleRefsByCnec, r.cnec.id, raID, struct{}{})
		}
	}
}

// NOTE: caller must hold c.mu (read lock at least).
func (c *Catalogue) checkGroupMemberLocked(ra *RangeAction) error {
	for _, other := range c.rangeActionsByGroup[ra.groupID] {
		if err := sameGroupShape(other, ra); err != nil {
			return err
		}
	}
	return nil
}

func sameGroupShape(a, b *RangeAction) error {
	if a.kind != b.kind {
		return fmt.Errorf("%w: group %q mixes %s %q and %s %q", ErrInconsistentAlignedGroup, a.groupID, a.kind, a.id, b.kind, b.id)
	}
	if a.hasSpeed != b.hasSpeed || a.speed != b.speed {
		return fmt.Errorf("%w: group %q members %q and %q have different speeds", ErrInconsistentAlignedGroup, a.groupID, a.id, b.id)
	}
	return nil
}

func (r *RangeAction) setTaps(tapToAngle map[int]float64) error {
	if len(tapToAngle) == 0 {
		return fmt.Errorf("PST without taps")
	}
	r.tapToAngle = make(map[int]float64, len(tapToAngle))
	for tap, angle := range tapToAngle {
		r.tapToAngle[tap] = angle
		r.taps = append(r.taps, tap)
	}
	sort.Ints(r.taps)
	angle, ok := r.tapToAngle[r.initialTap]
	if !ok {
		return fmt.Errorf("initial tap %d not in tap table", r.initialTap)
	}
	r.initialSetpoint = angle

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, a := range r.tapToAngle {
		lo, hi = math.Min(lo, a), math.Max(hi, a)
	}
	if r.min == 0 && r.max == 0 {
		r.min, r.max = lo, hi
	} else {
		r.min, r.max = math.Max(r.min, lo), math.Min(r.max, hi)
	}
	return nil
}

func ruleCnecKind(k model.UsageRuleKind) model.CnecKind {
	switch k {
	case model.RuleOnAngleConstraint:
		return model.CnecAngle
	case model.RuleOnVoltageConstraint:
		return model.CnecVoltage
	}
	return model.CnecFlow
}

func methodMatches(m model.UsageMethod, methods []model.UsageMethod) bool {
	if len(methods) == 0 {
		return m.Usable()
	}
	for _, want := range methods {
		if m == want {
			return true
		}
	}
	return false
}

func addToSet[V any](sets map[string]map[string]V, key, member string, v V) {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]V)
		sets[key] = set
	}
	set[member] = v
}

func removeFromSet[V any](sets map[string]map[string]V, key, member string) {
	set, ok := sets[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(sets, key)
	}
}

func sortedStates(set map[string]*State) []*State {
	out := make([]*State, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	sortStates(out)
	return out
}

func sortStates(states []*State) {
	sort.Slice(states, func(i, j int) bool {
		a, b := states[i], states[j]
		if a.IsPreventive() != b.IsPreventive() {
			return a.IsPreventive()
		}
		if !a.IsPreventive() && a.contingency.id != b.contingency.id {
			return a.contingency.id < b.contingency.id
		}
		return a.instant.order < b.instant.order
	})
}
