package crac

import (
	"math"

	"github.com/signalsfoundry/rao-orchestrator/model"
)

// CnecSpec describes a cnec to register. Contingency is empty for cnecs of the
// preventive state.
type CnecSpec struct {
	ID                string
	Name              string
	Kind              model.CnecKind
	NetworkElement    string
	Contingency       string
	Instant           string
	Operator          string
	Country           string
	Optimized         bool
	Monitored         bool
	Min               *float64
	Max               *float64
	ReliabilityMargin float64
}

// Cnec is a monitored network element with its limits at a given state.
type Cnec struct {
	id                string
	name              string
	kind              model.CnecKind
	networkElement    string
	state             *State
	operator          string
	country           string
	optimized         bool
	monitored         bool
	min               float64
	max               float64
	hasMin            bool
	hasMax            bool
	reliabilityMargin float64
}

func (c *Cnec) ID() string                 { return c.id }
func (c *Cnec) Name() string               { return c.name }
func (c *Cnec) Kind() model.CnecKind       { return c.kind }
func (c *Cnec) NetworkElement() string     { return c.networkElement }
func (c *Cnec) State() *State              { return c.state }
func (c *Cnec) Operator() string           { return c.operator }
func (c *Cnec) Country() string            { return c.country }
func (c *Cnec) IsOptimized() bool          { return c.optimized }
func (c *Cnec) IsMonitored() bool          { return c.monitored }
func (c *Cnec) ReliabilityMargin() float64 { return c.reliabilityMargin }

// UpperBound returns the max threshold, if any.
func (c *Cnec) UpperBound() (float64, bool) { return c.max, c.hasMax }

// LowerBound returns the min threshold, if any.
func (c *Cnec) LowerBound() (float64, bool) { return c.min, c.hasMin }

// Margin returns the distance between value and the closest threshold,
// reduced by the reliability margin. Negative means overloaded.
func (c *Cnec) Margin(value float64) float64 {
	margin := math.Inf(1)
	if c.hasMax {
		margin = math.Min(margin, c.max-c.reliabilityMargin-value)
	}
	if c.hasMin {
		margin = math.Min(margin, value-(c.min+c.reliabilityMargin))
	}
	return margin
}

// Limit is the largest absolute threshold, used to normalise margins.
func (c *Cnec) Limit() float64 {
	limit := 0.0
	if c.hasMax {
		limit = math.Max(limit, math.Abs(c.max))
	}
	if c.hasMin {
		limit = math.Max(limit, math.Abs(c.min))
	}
	return limit
}
