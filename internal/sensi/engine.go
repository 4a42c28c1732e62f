// Package sensi defines the contract of the network and sensitivity engine
// the optimizer drives, and the immutable snapshots it returns.
package sensi

import (
	"context"
	"errors"

	"github.com/signalsfoundry/rao-orchestrator/crac"
)

var (
	ErrUnknownVariant = errors.New("unknown network variant")
	ErrVariantExists  = errors.New("network variant already exists")
)

// VariantID names an independent copy of the network state.
type VariantID string

// Request describes one sensitivity computation.
type Request struct {
	Cnecs        []*crac.Cnec
	RangeActions []*crac.RangeAction
	// Applied holds post-contingency decisions that only affect the cnecs of
	// their contingency at or after their instant.
	Applied *AppliedActions
}

// Engine is the network and sensitivity engine. Implementations must allow
// concurrent calls on distinct variants.
type Engine interface {
	CloneVariant(ctx context.Context, source, target VariantID) error
	RemoveVariant(ctx context.Context, id VariantID) error
	ApplyNetworkAction(ctx context.Context, v VariantID, na *crac.NetworkAction) error
	ApplyRangeAction(ctx context.Context, v VariantID, ra *crac.RangeAction, setpoint float64) error
	// DisableHvdcAngleDroop switches off AC emulation on an HVDC line and
	// reports whether it was enabled.
	DisableHvdcAngleDroop(ctx context.Context, v VariantID, hvdcElement string) (bool, error)
	Run(ctx context.Context, v VariantID, req Request) (*Result, error)
}
