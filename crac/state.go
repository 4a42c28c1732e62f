package crac

// Contingency is an immutable set of simultaneously lost network elements.
type Contingency struct {
	id       string
	name     string
	elements []string
}

// NewContingency builds a contingency. The element slice is copied.
func NewContingency(id, name string, elements ...string) *Contingency {
	return &Contingency{id: id, name: name, elements: append([]string(nil), elements...)}
}

func (c *Contingency) ID() string   { return c.id }
func (c *Contingency) Name() string { return c.name }

// NetworkElements returns a copy of the affected element ids.
func (c *Contingency) NetworkElements() []string {
	return append([]string(nil), c.elements...)
}

// State is either the preventive state or a (contingency, instant) pair.
// States are created lazily by the Catalogue and never mutated.
type State struct {
	id          string
	contingency *Contingency
	instant     *Instant
}

func (s *State) ID() string         { return s.id }
func (s *State) Instant() *Instant  { return s.instant }
func (s *State) IsPreventive() bool { return s.contingency == nil }
func (s *State) String() string     { return s.id }

// Contingency returns the state's contingency, nil for the preventive state.
func (s *State) Contingency() *Contingency { return s.contingency }

func stateKey(contingencyID, instantID string) string {
	if contingencyID == "" {
		return instantID
	}
	return contingencyID + " - " + instantID
}
