package result

import (
	"time"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/perimeter"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// Reader is the read side of a result, for exporters.
type Reader interface {
	ComputationStatus() model.ComputationStatus
	StateStatus(s *crac.State) model.ComputationStatus
	OptimizationStepsExecuted() model.OptimizationStepsExecuted
	ExecutionTime() time.Duration

	InitialCost() perimeter.Cost
	CostAt(instant *crac.Instant) (perimeter.Cost, error)
	Margin(instant *crac.Instant, c *crac.Cnec) (float64, bool, error)

	IsActivated(ra crac.RemedialAction, s *crac.State) bool
	ActivatedNetworkActions(s *crac.State) []*crac.NetworkAction
	ActivatedRangeActions(s *crac.State) []*crac.RangeAction
	RangeActivation(ra *crac.RangeAction, s *crac.State) (RangeActivation, bool)

	Stages() []Stage
}

var _ Reader = (*RaoResult)(nil)
