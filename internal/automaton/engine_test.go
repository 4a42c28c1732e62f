package automaton

import (
	"context"
	"sync"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// step is one scripted sensitivity outcome: flows per cnec id and
// sensitivities per cnec id and range action id.
type step struct {
	flows map[string]float64
	sens  map[string]map[string]float64
}

// scriptedEngine replays steps on successive Run calls, repeating the last
// one once the script is exhausted.
type scriptedEngine struct {
	mu           sync.Mutex
	steps        []step
	runs         int
	setpoints    map[string]float64
	applied      []string
	droopEnabled map[string]bool
}

func newScriptedEngine(steps ...step) *scriptedEngine {
	return &scriptedEngine{
		steps:        steps,
		setpoints:    make(map[string]float64),
		droopEnabled: make(map[string]bool),
	}
}

func (e *scriptedEngine) CloneVariant(context.Context, sensi.VariantID, sensi.VariantID) error {
	return nil
}

func (e *scriptedEngine) RemoveVariant(context.Context, sensi.VariantID) error { return nil }

func (e *scriptedEngine) ApplyNetworkAction(_ context.Context, _ sensi.VariantID, na *crac.NetworkAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = append(e.applied, na.ID())
	return nil
}

func (e *scriptedEngine) ApplyRangeAction(_ context.Context, _ sensi.VariantID, ra *crac.RangeAction, setpoint float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setpoints[ra.ID()] = setpoint
	return nil
}

func (e *scriptedEngine) DisableHvdcAngleDroop(_ context.Context, _ sensi.VariantID, hvdc string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.droopEnabled[hvdc]
	e.droopEnabled[hvdc] = false
	return was, nil
}

func (e *scriptedEngine) Run(_ context.Context, _ sensi.VariantID, req sensi.Request) (*sensi.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.steps[min(e.runs, len(e.steps)-1)]
	e.runs++

	res := sensi.NewResult(model.ComputationDefault)
	for _, c := range req.Cnecs {
		flow, ok := st.flows[c.ID()]
		if !ok {
			continue
		}
		res.SetValue(c, flow)
		for _, ra := range req.RangeActions {
			res.SetSensitivity(c, ra, st.sens[c.ID()][ra.ID()])
		}
	}
	for _, ra := range req.RangeActions {
		v, ok := e.setpoints[ra.ID()]
		if !ok {
			v = ra.InitialSetpoint()
		}
		res.SetSetpoint(ra, v)
	}
	return res, nil
}

func (e *scriptedEngine) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}
