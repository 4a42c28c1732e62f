package sensi

import (
	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// Result is the outcome of one sensitivity computation. Engines fill it with
// the Set methods before returning it; consumers treat it as read-only.
type Result struct {
	status        model.ComputationStatus
	flows         map[string]float64
	margins       map[string]float64
	sensitivities map[string]map[string]float64
	setpoints     map[string]float64
}

// NewResult creates an empty result with the given status.
func NewResult(status model.ComputationStatus) *Result {
	return &Result{
		status:        status,
		flows:         make(map[string]float64),
		margins:       make(map[string]float64),
		sensitivities: make(map[string]map[string]float64),
		setpoints:     make(map[string]float64),
	}
}

// SetStatus overrides the computation status.
func (r *Result) SetStatus(s model.ComputationStatus) { r.status = s }

// SetValue records the flow, angle or voltage of a cnec and its margin.
func (r *Result) SetValue(c *crac.Cnec, value float64) {
	r.flows[c.ID()] = value
	r.margins[c.ID()] = c.Margin(value)
}

// SetSensitivity records d(value of c)/d(setpoint of ra).
func (r *Result) SetSensitivity(c *crac.Cnec, ra *crac.RangeAction, s float64) {
	m, ok := r.sensitivities[c.ID()]
	if !ok {
		m = make(map[string]float64)
		r.sensitivities[c.ID()] = m
	}
	m[ra.ID()] = s
}

// SetSetpoint records the current setpoint of ra in the computed variant.
func (r *Result) SetSetpoint(ra *crac.RangeAction, v float64) { r.setpoints[ra.ID()] = v }

func (r *Result) Status() model.ComputationStatus {
	if r == nil {
		return model.ComputationFailure
	}
	return r.status
}

// Value returns the computed flow, angle or voltage of c.
func (r *Result) Value(c *crac.Cnec) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r.flows[c.ID()]
	return v, ok
}

// Margin returns the margin of c.
func (r *Result) Margin(c *crac.Cnec) (float64, bool) {
	if r == nil {
		return 0, false
	}
	m, ok := r.margins[c.ID()]
	return m, ok
}

// Sensitivity returns the sensitivity of c to ra, zero when unknown.
func (r *Result) Sensitivity(c *crac.Cnec, ra *crac.RangeAction) float64 {
	if r == nil {
		return 0
	}
	return r.sensitivities[c.ID()][ra.ID()]
}

// Setpoint returns the setpoint of ra in the computed variant.
func (r *Result) Setpoint(ra *crac.RangeAction) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r.setpoints[ra.ID()]
	return v, ok
}

// Has reports whether c was computed.
func (r *Result) Has(c *crac.Cnec) bool {
	_, ok := r.Margin(c)
	return ok
}

// MarginLookup adapts the result to the catalogue's trigger checks.
func (r *Result) MarginLookup() func(*crac.Cnec) (float64, bool) {
	return r.Margin
}
