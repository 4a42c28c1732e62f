package crac

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/rao-orchestrator/model"
)

// LoadSummary lists what a Document added to a catalogue.
type LoadSummary struct {
	InstantIDs        []string
	ContingencyIDs    []string
	CnecIDs           []string
	RemedialActionIDs []string
}

// Document is the YAML shape of a catalogue. It can be embedded in larger
// scenario files.
type Document struct {
	Instants       []instantYAML       `yaml:"instants"`
	Contingencies  []contingencyYAML   `yaml:"contingencies"`
	Cnecs          []cnecYAML          `yaml:"cnecs"`
	NetworkActions []networkActionYAML `yaml:"network_actions"`
	RangeActions   []rangeActionYAML   `yaml:"range_actions"`
}

type instantYAML struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
}

type contingencyYAML struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Elements []string `yaml:"elements"`
}

type cnecYAML struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Kind              string   `yaml:"kind"` // FLOW (default), ANGLE, VOLTAGE
	Element           string   `yaml:"element"`
	Contingency       string   `yaml:"contingency"`
	Instant           string   `yaml:"instant"`
	Operator          string   `yaml:"operator"`
	Country           string   `yaml:"country"`
	Optimized         *bool    `yaml:"optimized"` // defaults to true
	Monitored         bool     `yaml:"monitored"`
	Min               *float64 `yaml:"min"`
	Max               *float64 `yaml:"max"`
	ReliabilityMargin float64  `yaml:"reliability_margin"`
}

type usageRuleYAML struct {
	Kind        string `yaml:"kind"`
	Method      string `yaml:"method"`
	Instant     string `yaml:"instant"`
	Contingency string `yaml:"contingency"`
	Cnec        string `yaml:"cnec"`
	Country     string `yaml:"country"`
}

type effectYAML struct {
	Kind    string  `yaml:"kind"`
	Element string  `yaml:"element"`
	Value   float64 `yaml:"value"`
}

type networkActionYAML struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Operator   string          `yaml:"operator"`
	Speed      *int            `yaml:"speed"`
	Effects    []effectYAML    `yaml:"effects"`
	UsageRules []usageRuleYAML `yaml:"usage_rules"`
}

type rangeActionYAML struct {
	ID              string          `yaml:"id"`
	Name            string          `yaml:"name"`
	Operator        string          `yaml:"operator"`
	Kind            string          `yaml:"kind"`
	Element         string          `yaml:"element"`
	Group           string          `yaml:"group"`
	Speed           *int            `yaml:"speed"`
	Min             float64         `yaml:"min"`
	Max             float64         `yaml:"max"`
	InitialSetpoint float64         `yaml:"initial_setpoint"`
	InitialTap      int             `yaml:"initial_tap"`
	Taps            map[int]float64 `yaml:"taps"`
	UsageRules      []usageRuleYAML `yaml:"usage_rules"`
}

// Load decodes a YAML Document from r and builds a new catalogue from it.
func Load(r io.Reader) (*Catalogue, *LoadSummary, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("crac.Load: decode failed: %w", err)
	}
	c := NewCatalogue()
	summary, err := doc.Apply(c)
	if err != nil {
		return nil, nil, err
	}
	return c, summary, nil
}

// Apply adds the document's entities to c in dependency order: instants,
// contingencies, cnecs, then remedial actions.
func (d *Document) Apply(c *Catalogue) (*LoadSummary, error) {
	if c == nil {
		return nil, fmt.Errorf("crac.Apply: catalogue is nil")
	}
	summary := &LoadSummary{}

	for _, in := range d.Instants {
		kind, err := model.ParseInstantKind(in.Kind)
		if err != nil {
			return nil, fmt.Errorf("instant %q: %w", in.ID, err)
		}
		if _, err := c.AddInstant(in.ID, kind); err != nil {
			return nil, err
		}
		summary.InstantIDs = append(summary.InstantIDs, in.ID)
	}

	for _, co := range d.Contingencies {
		if err := c.AddContingency(NewContingency(co.ID, co.Name, co.Elements...)); err != nil {
			return nil, err
		}
		summary.ContingencyIDs = append(summary.ContingencyIDs, co.ID)
	}

	for _, cn := range d.Cnecs {
		kind, err := model.ParseCnecKind(cn.Kind)
		if err != nil {
			return nil, fmt.Errorf("cnec %q: %w", cn.ID, err)
		}
		optimized := true
		if cn.Optimized != nil {
			optimized = *cn.Optimized
		}
		if _, err := c.AddCnec(CnecSpec{
			ID:                cn.ID,
			Name:              cn.Name,
			Kind:              kind,
			NetworkElement:    cn.Element,
			Contingency:       cn.Contingency,
			Instant:           cn.Instant,
			Operator:          cn.Operator,
			Country:           cn.Country,
			Optimized:         optimized,
			Monitored:         cn.Monitored,
			Min:               cn.Min,
			Max:               cn.Max,
			ReliabilityMargin: cn.ReliabilityMargin,
		}); err != nil {
			return nil, err
		}
		summary.CnecIDs = append(summary.CnecIDs, cn.ID)
	}

	for _, na := range d.NetworkActions {
		rules, err := parseUsageRules(na.UsageRules)
		if err != nil {
			return nil, fmt.Errorf("network action %q: %w", na.ID, err)
		}
		effects := make([]Effect, 0, len(na.Effects))
		for _, e := range na.Effects {
			kind, err := model.ParseElementaryActionKind(e.Kind)
			if err != nil {
				return nil, fmt.Errorf("network action %q: %w", na.ID, err)
			}
			effects = append(effects, Effect{Kind: kind, NetworkElement: e.Element, Value: e.Value})
		}
		if _, err := c.AddNetworkAction(NetworkActionSpec{
			ID:         na.ID,
			Name:       na.Name,
			Operator:   na.Operator,
			Speed:      na.Speed,
			Effects:    effects,
			UsageRules: rules,
		}); err != nil {
			return nil, err
		}
		summary.RemedialActionIDs = append(summary.RemedialActionIDs, na.ID)
	}

	for _, ra := range d.RangeActions {
		kind, err := model.ParseRangeActionKind(ra.Kind)
		if err != nil {
			return nil, fmt.Errorf("range action %q: %w", ra.ID, err)
		}
		rules, err := parseUsageRules(ra.UsageRules)
		if err != nil {
			return nil, fmt.Errorf("range action %q: %w", ra.ID, err)
		}
		if _, err := c.AddRangeAction(RangeActionSpec{
			ID:              ra.ID,
			Name:            ra.Name,
			Operator:        ra.Operator,
			Kind:            kind,
			NetworkElement:  ra.Element,
			GroupID:         ra.Group,
			Speed:           ra.Speed,
			Min:             ra.Min,
			Max:             ra.Max,
			InitialSetpoint: ra.InitialSetpoint,
			InitialTap:      ra.InitialTap,
			TapToAngle:      ra.Taps,
			UsageRules:      rules,
		}); err != nil {
			return nil, err
		}
		summary.RemedialActionIDs = append(summary.RemedialActionIDs, ra.ID)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return summary, nil
}

func parseUsageRules(in []usageRuleYAML) ([]UsageRuleSpec, error) {
	out := make([]UsageRuleSpec, 0, len(in))
	for _, r := range in {
		kind, err := model.ParseUsageRuleKind(r.Kind)
		if err != nil {
			return nil, err
		}
		method, err := model.ParseUsageMethod(r.Method)
		if err != nil {
			return nil, err
		}
		out = append(out, UsageRuleSpec{
			Kind:        kind,
			Method:      method,
			Instant:     r.Instant,
			Contingency: r.Contingency,
			Cnec:        r.Cnec,
			Country:     r.Country,
			FreeToUse:   isFreeToUse(r.Kind),
		})
	}
	return out, nil
}

func isFreeToUse(kind string) bool {
	return strings.EqualFold(kind, "FREE_TO_USE")
}
