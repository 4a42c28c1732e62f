// Package linearnet is a linearised in-memory network engine. Every monitored
// value is a base value plus linear contributions of contingencies, switched
// elements, range setpoints and active HVDC AC emulation.
package linearnet

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/rao-orchestrator/crac"
)

// Model holds the linear coefficients of a network.
type Model struct {
	// BaseValues maps a monitored element to its value with the initial
	// topology and setpoints and no contingency.
	BaseValues map[string]float64
	// ContingencyShifts maps a contingency to the value change of each
	// monitored element once the contingency occurred.
	ContingencyShifts map[string]map[string]float64
	// RangeSensitivities maps a range element to the value change of each
	// monitored element per unit of setpoint.
	RangeSensitivities map[string]map[string]float64
	// ContingencySensitivities overrides RangeSensitivities after a
	// contingency: contingency -> range element -> monitored element.
	ContingencySensitivities map[string]map[string]map[string]float64
	// TopologyEffects maps a switchable element to the value change of each
	// monitored element when it leaves its initial status.
	TopologyEffects map[string]map[string]float64
	// InitiallyOpen lists the switchable elements open in the initial network.
	InitiallyOpen map[string]bool
	// InitialSetpoints maps a range element to its initial setpoint.
	InitialSetpoints map[string]float64
	// PstTaps maps a PST element to its tap-to-angle table, used when a
	// network action sets a tap.
	PstTaps map[string]map[int]float64
	// HvdcDroop maps an HVDC line with AC emulation enabled initially to the
	// value change it induces on monitored elements while enabled.
	HvdcDroop map[string]map[string]float64
	// Diverging lists contingencies whose post-contingency values cannot be
	// computed.
	Diverging map[string]bool
}

// Document is the YAML shape of a Model.
type Document struct {
	BaseValues               map[string]float64                       `yaml:"base_values"`
	ContingencyShifts        map[string]map[string]float64            `yaml:"contingency_shifts"`
	RangeSensitivities       map[string]map[string]float64            `yaml:"range_sensitivities"`
	ContingencySensitivities map[string]map[string]map[string]float64 `yaml:"contingency_sensitivities"`
	TopologyEffects          map[string]map[string]float64            `yaml:"topology_effects"`
	InitiallyOpen            []string                                 `yaml:"initially_open"`
	InitialSetpoints         map[string]float64                       `yaml:"initial_setpoints"`
	PstTaps                  map[string]map[int]float64               `yaml:"pst_taps"`
	HvdcDroop                map[string]map[string]float64            `yaml:"hvdc_droop"`
	Diverging                []string                                 `yaml:"diverging"`
}

// Model converts the document.
func (d *Document) Model() *Model {
	m := &Model{
		BaseValues:               d.BaseValues,
		ContingencyShifts:        d.ContingencyShifts,
		RangeSensitivities:       d.RangeSensitivities,
		ContingencySensitivities: d.ContingencySensitivities,
		TopologyEffects:          d.TopologyEffects,
		InitiallyOpen:            make(map[string]bool, len(d.InitiallyOpen)),
		InitialSetpoints:         d.InitialSetpoints,
		PstTaps:                  d.PstTaps,
		HvdcDroop:                d.HvdcDroop,
		Diverging:                make(map[string]bool, len(d.Diverging)),
	}
	for _, el := range d.InitiallyOpen {
		m.InitiallyOpen[el] = true
	}
	for _, co := range d.Diverging {
		m.Diverging[co] = true
	}
	return m
}

// Load decodes a YAML Document from r.
func Load(r io.Reader) (*Model, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("linearnet.Load: decode failed: %w", err)
	}
	return doc.Model(), nil
}

func (m *Model) sensitivity(contingency, rangeElement, monitored string) float64 {
	if contingency != "" {
		if byRange, ok := m.ContingencySensitivities[contingency]; ok {
			if byMonitored, ok := byRange[rangeElement]; ok {
				if s, ok := byMonitored[monitored]; ok {
					return s
				}
			}
		}
	}
	return m.RangeSensitivities[rangeElement][monitored]
}

// SeedSetpoints fills missing initial setpoints from the range actions'
// initial values so both sides agree on the reference point.
func (m *Model) SeedSetpoints(ras []*crac.RangeAction) {
	if m.InitialSetpoints == nil {
		m.InitialSetpoints = make(map[string]float64, len(ras))
	}
	for _, ra := range ras {
		if _, ok := m.InitialSetpoints[ra.NetworkElement()]; !ok {
			m.InitialSetpoints[ra.NetworkElement()] = ra.InitialSetpoint()
		}
	}
}
