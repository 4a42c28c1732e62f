package crac

import "github.com/signalsfoundry/rao-orchestrator/model"

// Instant is one temporal stage of the optimization. Instants are created by
// the Catalogue and form a single ordering chain.
type Instant struct {
	id       string
	kind     model.InstantKind
	order    int
	previous *Instant
}

func (i *Instant) ID() string              { return i.id }
func (i *Instant) Kind() model.InstantKind { return i.kind }
func (i *Instant) Order() int              { return i.order }
func (i *Instant) String() string          { return i.id }

func (i *Instant) IsPreventive() bool { return i.kind == model.InstantPreventive }
func (i *Instant) IsOutage() bool     { return i.kind == model.InstantOutage }
func (i *Instant) IsAuto() bool       { return i.kind == model.InstantAuto }
func (i *Instant) IsCurative() bool   { return i.kind == model.InstantCurative }

// ComesBefore reports whether i is strictly earlier than other in the chain.
func (i *Instant) ComesBefore(other *Instant) bool { return i.order < other.order }

// ComesAfter reports whether i is strictly later than other in the chain.
func (i *Instant) ComesAfter(other *Instant) bool { return i.order > other.order }

// CanReactTo reports whether a remedial action usable at raInstant may be
// triggered by a constraint observed at constraintInstant. Preventive actions
// may react to anything; later actions only to their own instant or later.
func CanReactTo(raInstant, constraintInstant *Instant) bool {
	if raInstant == nil || constraintInstant == nil {
		return false
	}
	if raInstant.IsPreventive() {
		return true
	}
	return !constraintInstant.ComesBefore(raInstant)
}
