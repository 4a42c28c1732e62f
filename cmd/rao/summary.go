package main

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/result"
)

type summary struct {
	Steps         string             `yaml:"optimization_steps_executed"`
	Status        string             `yaml:"computation_status"`
	ExecutionTime string             `yaml:"execution_time"`
	InitialCost   costSummary        `yaml:"initial_cost"`
	Costs         []instantSummary   `yaml:"costs"`
	States        []stateSummary     `yaml:"states,omitempty"`
	Stages        []stageSummary     `yaml:"stages"`
	Virtual       map[string]float64 `yaml:"final_virtual_costs,omitempty"`
}

type costSummary struct {
	Functional float64 `yaml:"functional"`
	Virtual    float64 `yaml:"virtual"`
}

type instantSummary struct {
	Instant    string  `yaml:"instant"`
	Functional float64 `yaml:"functional"`
	Virtual    float64 `yaml:"virtual"`
}

type stateSummary struct {
	State          string         `yaml:"state"`
	Status         string         `yaml:"status"`
	NetworkActions []string       `yaml:"network_actions,omitempty"`
	RangeActions   []rangeSummary `yaml:"range_actions,omitempty"`
}

type rangeSummary struct {
	ID       string  `yaml:"id"`
	Setpoint float64 `yaml:"setpoint"`
	Tap      *int    `yaml:"tap,omitempty"`
}

type stageSummary struct {
	Name     string `yaml:"name"`
	State    string `yaml:"state,omitempty"`
	Status   string `yaml:"status"`
	Duration string `yaml:"duration"`
}

func buildSummary(cat *crac.Catalogue, res result.Reader) (*summary, error) {
	initial := res.InitialCost()
	s := &summary{
		Steps:         res.OptimizationStepsExecuted().String(),
		Status:        res.ComputationStatus().String(),
		ExecutionTime: res.ExecutionTime().String(),
		InitialCost:   costSummary{Functional: initial.Functional, Virtual: initial.VirtualTotal()},
	}
	for _, in := range cat.Instants() {
		c, err := res.CostAt(in)
		if err != nil {
			return nil, err
		}
		s.Costs = append(s.Costs, instantSummary{Instant: in.ID(), Functional: c.Functional, Virtual: c.VirtualTotal()})
		if in == cat.LastInstant() {
			s.Virtual = make(map[string]float64)
			for _, name := range c.VirtualNames() {
				if v := c.Virtual[name]; v != 0 {
					s.Virtual[name] = v
				}
			}
		}
	}

	for _, st := range cat.States() {
		entry := stateSummary{State: st.ID(), Status: res.StateStatus(st).String()}
		for _, na := range res.ActivatedNetworkActions(st) {
			entry.NetworkActions = append(entry.NetworkActions, na.ID())
		}
		for _, ra := range res.ActivatedRangeActions(st) {
			a, _ := res.RangeActivation(ra, st)
			rs := rangeSummary{ID: ra.ID(), Setpoint: a.PostSetpoint}
			if a.HasTap {
				tap := a.PostTap
				rs.Tap = &tap
			}
			entry.RangeActions = append(entry.RangeActions, rs)
		}
		if len(entry.NetworkActions) == 0 && len(entry.RangeActions) == 0 && entry.Status == "DEFAULT" {
			continue
		}
		s.States = append(s.States, entry)
	}

	for _, st := range res.Stages() {
		s.Stages = append(s.Stages, stageSummary{
			Name:     st.Name,
			State:    st.State,
			Status:   st.Status.String(),
			Duration: st.Duration.String(),
		})
	}
	return s, nil
}

// writeSummary renders the outcome of a run as YAML.
func writeSummary(w io.Writer, cat *crac.Catalogue, res result.Reader) error {
	s, err := buildSummary(cat, res)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
