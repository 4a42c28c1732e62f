// Package params holds the options of an optimization run and their YAML
// representation.
package params

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidParameters is returned by Validate.
var ErrInvalidParameters = errors.New("invalid rao parameters")

// ObjectiveFunction selects the cost metric of a perimeter.
type ObjectiveFunction string

const (
	MaxMinMargin         ObjectiveFunction = "MAX_MIN_MARGIN"
	MaxMinRelativeMargin ObjectiveFunction = "MAX_MIN_RELATIVE_MARGIN"
)

// PreventiveStopCriterion ends the preventive search tree early.
type PreventiveStopCriterion string

const (
	PreventiveMinObjective PreventiveStopCriterion = "MIN_OBJECTIVE"
	PreventiveSecure       PreventiveStopCriterion = "SECURE"
)

// CurativeStopCriterion ends curative optimizations early and drives the
// second preventive decision.
type CurativeStopCriterion string

const (
	CurativeMinObjective                 CurativeStopCriterion = "MIN_OBJECTIVE"
	CurativeSecure                       CurativeStopCriterion = "SECURE"
	CurativePreventiveObjective          CurativeStopCriterion = "PREVENTIVE_OBJECTIVE"
	CurativePreventiveObjectiveAndSecure CurativeStopCriterion = "PREVENTIVE_OBJECTIVE_AND_SECURE"
)

// ExecutionCondition controls when a second preventive pass may run.
type ExecutionCondition string

const (
	SecondPreventiveDisabled                    ExecutionCondition = "DISABLED"
	SecondPreventivePossibleCurativeImprovement ExecutionCondition = "POSSIBLE_CURATIVE_IMPROVEMENT"
	SecondPreventiveCostIncrease                ExecutionCondition = "COST_INCREASE"
)

// Parameters are the options of one optimization run.
type Parameters struct {
	Objective        ObjectiveParameters         `yaml:"objective"`
	TopoOptimization TopoOptimizationParameters  `yaml:"topo_optimization"`
	RangeActions     RangeActionParameters       `yaml:"range_actions"`
	SecondPreventive *SecondPreventiveParameters `yaml:"second_preventive,omitempty"`
	Mnec             MnecParameters              `yaml:"mnec"`
	MultiThreading   MultiThreadingParameters    `yaml:"multi_threading"`
	TimeBudget       Duration                    `yaml:"time_budget"` // zero means unlimited
}

type ObjectiveParameters struct {
	Function                  ObjectiveFunction       `yaml:"function"`
	PreventiveStopCriterion   PreventiveStopCriterion `yaml:"preventive_stop_criterion"`
	CurativeStopCriterion     CurativeStopCriterion   `yaml:"curative_stop_criterion"`
	CurativeMinObjImprovement float64                 `yaml:"curative_min_obj_improvement"`
	ForbidCostIncrease        bool                    `yaml:"forbid_cost_increase"`
	// SensitivityFailureOvercost is the virtual cost of a state whose
	// sensitivity computation failed.
	SensitivityFailureOvercost float64 `yaml:"sensitivity_failure_overcost"`
}

type TopoOptimizationParameters struct {
	MaxSearchTreeDepth         int     `yaml:"max_search_tree_depth"`
	RelativeMinImpactThreshold float64 `yaml:"relative_min_impact_threshold"`
	AbsoluteMinImpactThreshold float64 `yaml:"absolute_min_impact_threshold"`
}

type RangeActionParameters struct {
	MaxIterations          int     `yaml:"max_iterations"`           // range optimization passes per leaf
	MaxAutomatonIterations int     `yaml:"max_automaton_iterations"` // shift loop bound per bucket
	HvdcStep               float64 `yaml:"hvdc_step"`                // 0 keeps continuous setpoints
	InjectionStep          float64 `yaml:"injection_step"`
	SensitivityThreshold   float64 `yaml:"sensitivity_threshold"` // below it a range action is ignored on a cnec
}

type SecondPreventiveParameters struct {
	ExecutionCondition             ExecutionCondition `yaml:"execution_condition"`
	ReOptimizeCurativeRangeActions bool               `yaml:"re_optimize_curative_range_actions"`
	CostIncreaseTolerance          float64            `yaml:"cost_increase_tolerance"`
}

type MnecParameters struct {
	AcceptableMarginDecrease float64 `yaml:"acceptable_margin_decrease"`
	ViolationCost            float64 `yaml:"violation_cost"`
}

type MultiThreadingParameters struct {
	ContingencyScenariosInParallel int `yaml:"contingency_scenarios_in_parallel"`
}

// Duration is a time.Duration read from YAML strings such as "90s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns the parameters used when none are configured. No second
// preventive configuration is present by default.
func Default() *Parameters {
	return &Parameters{
		Objective: ObjectiveParameters{
			Function:                MaxMinMargin,
			PreventiveStopCriterion: PreventiveMinObjective,
			CurativeStopCriterion:   CurativeMinObjective,

			SensitivityFailureOvercost: 10000,
		},
		TopoOptimization: TopoOptimizationParameters{
			MaxSearchTreeDepth: 2,
		},
		RangeActions: RangeActionParameters{
			MaxIterations:          10,
			MaxAutomatonIterations: 10,
			SensitivityThreshold:   1e-6,
		},
		Mnec: MnecParameters{
			AcceptableMarginDecrease: 50,
			ViolationCost:            10,
		},
		MultiThreading: MultiThreadingParameters{
			ContingencyScenariosInParallel: 1,
		},
	}
}

// Load reads YAML parameters from r on top of Default.
func Load(r io.Reader) (*Parameters, error) {
	p := Default()
	if err := yaml.NewDecoder(r).Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("params.Load: decode failed: %w", err)
	}
	if p.SecondPreventive != nil && p.SecondPreventive.ExecutionCondition == "" {
		p.SecondPreventive.ExecutionCondition = SecondPreventiveDisabled
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile reads YAML parameters from path.
func LoadFile(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("params.LoadFile: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Validate checks enum values and numeric bounds.
func (p *Parameters) Validate() error {
	switch p.Objective.Function {
	case MaxMinMargin, MaxMinRelativeMargin:
	default:
		return fmt.Errorf("%w: objective function %q", ErrInvalidParameters, p.Objective.Function)
	}
	switch p.Objective.PreventiveStopCriterion {
	case PreventiveMinObjective, PreventiveSecure:
	default:
		return fmt.Errorf("%w: preventive stop criterion %q", ErrInvalidParameters, p.Objective.PreventiveStopCriterion)
	}
	switch p.Objective.CurativeStopCriterion {
	case CurativeMinObjective, CurativeSecure, CurativePreventiveObjective, CurativePreventiveObjectiveAndSecure:
	default:
		return fmt.Errorf("%w: curative stop criterion %q", ErrInvalidParameters, p.Objective.CurativeStopCriterion)
	}
	if sp := p.SecondPreventive; sp != nil {
		switch sp.ExecutionCondition {
		case SecondPreventiveDisabled, SecondPreventivePossibleCurativeImprovement, SecondPreventiveCostIncrease:
		default:
			return fmt.Errorf("%w: second preventive execution condition %q", ErrInvalidParameters, sp.ExecutionCondition)
		}
		if sp.CostIncreaseTolerance < 0 {
			return fmt.Errorf("%w: negative cost increase tolerance", ErrInvalidParameters)
		}
	}
	if p.Objective.SensitivityFailureOvercost < 0 {
		return fmt.Errorf("%w: negative sensitivity failure overcost", ErrInvalidParameters)
	}
	if p.TopoOptimization.MaxSearchTreeDepth < 0 {
		return fmt.Errorf("%w: negative search tree depth", ErrInvalidParameters)
	}
	if p.TopoOptimization.RelativeMinImpactThreshold < 0 || p.TopoOptimization.AbsoluteMinImpactThreshold < 0 {
		return fmt.Errorf("%w: negative min impact threshold", ErrInvalidParameters)
	}
	if p.RangeActions.MaxIterations < 0 || p.RangeActions.MaxAutomatonIterations < 1 {
		return fmt.Errorf("%w: range action iteration bounds", ErrInvalidParameters)
	}
	if p.RangeActions.HvdcStep < 0 || p.RangeActions.InjectionStep < 0 {
		return fmt.Errorf("%w: negative setpoint step", ErrInvalidParameters)
	}
	if p.MultiThreading.ContingencyScenariosInParallel < 1 {
		return fmt.Errorf("%w: contingency scenarios in parallel must be at least 1", ErrInvalidParameters)
	}
	if p.TimeBudget.Duration < 0 {
		return fmt.Errorf("%w: negative time budget", ErrInvalidParameters)
	}
	return nil
}

// SecondPreventiveEnabled reports whether a second preventive configuration
// exists and is not disabled.
func (p *Parameters) SecondPreventiveEnabled() bool {
	return p.SecondPreventive != nil && p.SecondPreventive.ExecutionCondition != SecondPreventiveDisabled
}
