package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RAOCollector bundles the Prometheus metrics of optimization runs.
type RAOCollector struct {
	gatherer prometheus.Gatherer

	StageDurations            *prometheus.HistogramVec
	SensitivityComputations   *prometheus.CounterVec
	ContingencyScenarios      *prometheus.CounterVec
	AutomatonShifts           prometheus.Counter
	SecondPreventiveDecisions *prometheus.CounterVec
	FunctionalCost            *prometheus.GaugeVec
	Runs                      *prometheus.CounterVec
}

// NewRAOCollector registers RAO metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewRAOCollector(reg prometheus.Registerer) (*RAOCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stages := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rao_stage_duration_seconds",
		Help:    "Duration of optimization stages, labeled by stage.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"stage"})
	stages, err := registerHistogramVec(reg, stages, "rao_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	sensi := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rao_sensitivity_computations_total",
		Help: "Sensitivity computations run by the engine, labeled by outcome.",
	}, []string{"status"})
	sensi, err = registerCounterVec(reg, sensi, "rao_sensitivity_computations_total")
	if err != nil {
		return nil, err
	}

	scenarios := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rao_contingency_scenarios_total",
		Help: "Contingency scenarios optimized, labeled by computation status.",
	}, []string{"status"})
	scenarios, err = registerCounterVec(reg, scenarios, "rao_contingency_scenarios_total")
	if err != nil {
		return nil, err
	}

	shifts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rao_automaton_setpoint_shifts_total",
		Help: "Setpoint shifts applied by range automatons.",
	}), "rao_automaton_setpoint_shifts_total")
	if err != nil {
		return nil, err
	}

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rao_second_preventive_decisions_total",
		Help: "Second preventive decisions, labeled by whether the pass was run.",
	}, []string{"decision"})
	decisions, err = registerCounterVec(reg, decisions, "rao_second_preventive_decisions_total")
	if err != nil {
		return nil, err
	}

	cost := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rao_functional_cost",
		Help: "Functional cost of the last run, labeled by instant.",
	}, []string{"instant"})
	cost, err = registerGaugeVec(reg, cost, "rao_functional_cost")
	if err != nil {
		return nil, err
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rao_runs_total",
		Help: "Completed optimization runs, labeled by executed optimization steps.",
	}, []string{"steps"})
	runs, err = registerCounterVec(reg, runs, "rao_runs_total")
	if err != nil {
		return nil, err
	}

	return &RAOCollector{
		gatherer:                  gatherer,
		StageDurations:            stages,
		SensitivityComputations:   sensi,
		ContingencyScenarios:      scenarios,
		AutomatonShifts:           shifts,
		SecondPreventiveDecisions: decisions,
		FunctionalCost:            cost,
		Runs:                      runs,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RAOCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RAOCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveStage records the duration of one stage.
func (c *RAOCollector) ObserveStage(stage string, d time.Duration) {
	if c == nil || c.StageDurations == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// IncSensitivity counts one sensitivity computation.
func (c *RAOCollector) IncSensitivity(failed bool) {
	if c == nil || c.SensitivityComputations == nil {
		return
	}
	status := "ok"
	if failed {
		status = "failure"
	}
	c.SensitivityComputations.WithLabelValues(status).Inc()
}

// IncScenario counts one contingency scenario by status.
func (c *RAOCollector) IncScenario(status string) {
	if c == nil || c.ContingencyScenarios == nil {
		return
	}
	c.ContingencyScenarios.WithLabelValues(status).Inc()
}

// AddAutomatonShifts adds n range automaton shifts.
func (c *RAOCollector) AddAutomatonShifts(n int) {
	if c == nil || c.AutomatonShifts == nil || n <= 0 {
		return
	}
	c.AutomatonShifts.Add(float64(n))
}

// ObserveSecondPreventiveDecision counts a second preventive decision.
func (c *RAOCollector) ObserveSecondPreventiveDecision(run bool) {
	if c == nil || c.SecondPreventiveDecisions == nil {
		return
	}
	decision := "skip"
	if run {
		decision = "run"
	}
	c.SecondPreventiveDecisions.WithLabelValues(decision).Inc()
}

// SetFunctionalCost sets the functional cost gauge of an instant.
func (c *RAOCollector) SetFunctionalCost(instant string, cost float64) {
	if c == nil || c.FunctionalCost == nil {
		return
	}
	c.FunctionalCost.WithLabelValues(instant).Set(cost)
}

// IncRun counts a completed run.
func (c *RAOCollector) IncRun(steps string) {
	if c == nil || c.Runs == nil {
		return
	}
	c.Runs.WithLabelValues(steps).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
