package linearnet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// InitialVariant is the variant every Engine starts with.
const InitialVariant sensi.VariantID = "initial"

type variant struct {
	open          map[string]bool
	setpoints     map[string]float64
	droopDisabled map[string]bool
}

func (v *variant) clone() *variant {
	out := &variant{
		open:          make(map[string]bool, len(v.open)),
		setpoints:     make(map[string]float64, len(v.setpoints)),
		droopDisabled: make(map[string]bool, len(v.droopDisabled)),
	}
	for k, b := range v.open {
		out.open[k] = b
	}
	for k, s := range v.setpoints {
		out.setpoints[k] = s
	}
	for k, b := range v.droopDisabled {
		out.droopDisabled[k] = b
	}
	return out
}

// Engine implements sensi.Engine on a Model.
type Engine struct {
	model *Model

	mu       sync.RWMutex
	variants map[sensi.VariantID]*variant
}

var _ sensi.Engine = (*Engine)(nil)

// NewEngine creates an engine holding only InitialVariant.
func NewEngine(m *Model) *Engine {
	initial := &variant{
		open:          make(map[string]bool, len(m.InitiallyOpen)),
		setpoints:     make(map[string]float64, len(m.InitialSetpoints)),
		droopDisabled: make(map[string]bool),
	}
	for el, open := range m.InitiallyOpen {
		initial.open[el] = open
	}
	for el, s := range m.InitialSetpoints {
		initial.setpoints[el] = s
	}
	return &Engine{
		model:    m,
		variants: map[sensi.VariantID]*variant{InitialVariant: initial},
	}
}

// Variants returns the ids of the live variants, sorted.
func (e *Engine) Variants() []sensi.VariantID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]sensi.VariantID, 0, len(e.variants))
	for id := range e.variants {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) CloneVariant(_ context.Context, source, target sensi.VariantID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.variants[source]
	if !ok {
		return fmt.Errorf("%w: %q", sensi.ErrUnknownVariant, source)
	}
	if _, exists := e.variants[target]; exists {
		return fmt.Errorf("%w: %q", sensi.ErrVariantExists, target)
	}
	e.variants[target] = src.clone()
	return nil
}

func (e *Engine) RemoveVariant(_ context.Context, id sensi.VariantID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.variants[id]; !ok {
		return fmt.Errorf("%w: %q", sensi.ErrUnknownVariant, id)
	}
	delete(e.variants, id)
	return nil
}

func (e *Engine) ApplyNetworkAction(_ context.Context, id sensi.VariantID, na *crac.NetworkAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.variants[id]
	if !ok {
		return fmt.Errorf("%w: %q", sensi.ErrUnknownVariant, id)
	}
	return e.applyEffects(v, na)
}

func (e *Engine) applyEffects(v *variant, na *crac.NetworkAction) error {
	for _, eff := range na.ElementaryEffects() {
		switch eff.Kind {
		case model.ElementaryOpen:
			v.open[eff.NetworkElement] = true
		case model.ElementaryClose:
			v.open[eff.NetworkElement] = false
		case model.ElementaryPstTap:
			angle, ok := e.model.PstTaps[eff.NetworkElement][int(eff.Value)]
			if !ok {
				return fmt.Errorf("network action %q: tap %d unknown on %q", na.ID(), int(eff.Value), eff.NetworkElement)
			}
			v.setpoints[eff.NetworkElement] = angle
		case model.ElementaryInjectionSetpoint:
			v.setpoints[eff.NetworkElement] = eff.Value
		}
	}
	return nil
}

func (e *Engine) ApplyRangeAction(_ context.Context, id sensi.VariantID, ra *crac.RangeAction, setpoint float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.variants[id]
	if !ok {
		return fmt.Errorf("%w: %q", sensi.ErrUnknownVariant, id)
	}
	v.setpoints[ra.NetworkElement()] = setpoint
	return nil
}

func (e *Engine) DisableHvdcAngleDroop(_ context.Context, id sensi.VariantID, hvdcElement string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.variants[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", sensi.ErrUnknownVariant, id)
	}
	if _, emulated := e.model.HvdcDroop[hvdcElement]; !emulated || v.droopDisabled[hvdcElement] {
		return false, nil
	}
	v.droopDisabled[hvdcElement] = true
	return true, nil
}

// Run computes every requested cnec. Cnecs of diverging contingencies are
// left out; the status reports a partial or total failure accordingly.
func (e *Engine) Run(_ context.Context, id sensi.VariantID, req sensi.Request) (*sensi.Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.variants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", sensi.ErrUnknownVariant, id)
	}

	res := sensi.NewResult(model.ComputationDefault)
	computed := 0
	for _, c := range req.Cnecs {
		co := contingencyID(c)
		if e.model.Diverging[co] {
			continue
		}
		effective, err := e.effectiveVariant(v, req.Applied.ApplicableTo(c))
		if err != nil {
			return nil, err
		}
		res.SetValue(c, e.value(effective, c))
		for _, ra := range req.RangeActions {
			res.SetSensitivity(c, ra, e.model.sensitivity(co, ra.NetworkElement(), c.NetworkElement()))
		}
		computed++
	}
	for _, ra := range req.RangeActions {
		res.SetSetpoint(ra, e.setpoint(v, ra))
	}

	switch {
	case len(req.Cnecs) > 0 && computed == 0:
		res.SetStatus(model.ComputationFailure)
	case computed < len(req.Cnecs):
		res.SetStatus(model.ComputationPartialFailure)
	}
	return res, nil
}

func (e *Engine) effectiveVariant(v *variant, applied []*sensi.StateActions) (*variant, error) {
	if len(applied) == 0 {
		return v, nil
	}
	out := v.clone()
	for _, sa := range applied {
		for _, na := range sa.NetworkActions {
			if err := e.applyEffects(out, na); err != nil {
				return nil, err
			}
		}
		for ra, s := range sa.Setpoints {
			out.setpoints[ra.NetworkElement()] = s
		}
	}
	return out, nil
}

func (e *Engine) setpoint(v *variant, ra *crac.RangeAction) float64 {
	if s, ok := v.setpoints[ra.NetworkElement()]; ok {
		return s
	}
	return ra.InitialSetpoint()
}

func (e *Engine) value(v *variant, c *crac.Cnec) float64 {
	el := c.NetworkElement()
	co := contingencyID(c)

	value := e.model.BaseValues[el]
	if co != "" {
		value += e.model.ContingencyShifts[co][el]
	}
	for _, sw := range sortedKeys(e.model.TopologyEffects) {
		if v.open[sw] != e.model.InitiallyOpen[sw] {
			value += e.model.TopologyEffects[sw][el]
		}
	}
	for _, re := range sortedKeys(v.setpoints) {
		initial := e.model.InitialSetpoints[re]
		value += e.model.sensitivity(co, re, el) * (v.setpoints[re] - initial)
	}
	for _, h := range sortedKeys(e.model.HvdcDroop) {
		if !v.droopDisabled[h] {
			value += e.model.HvdcDroop[h][el]
		}
	}
	return value
}

func contingencyID(c *crac.Cnec) string {
	if co := c.State().Contingency(); co != nil {
		return co.ID()
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
