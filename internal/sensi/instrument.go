package sensi

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/rao-orchestrator/internal/logging"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

// MetricsRecorder receives sensitivity computation outcomes.
type MetricsRecorder interface {
	IncSensitivity(failed bool)
}

// InstrumentedEngine wraps an Engine with logging, metrics and a run counter.
type InstrumentedEngine struct {
	Engine
	log     logging.Logger
	metrics MetricsRecorder
	runs    atomic.Int64
}

// Instrument wraps e. Nil logger and recorder are allowed.
func Instrument(e Engine, log logging.Logger, metrics MetricsRecorder) *InstrumentedEngine {
	return &InstrumentedEngine{Engine: e, log: logging.OrNoop(log), metrics: metrics}
}

// Run implements Engine.
func (e *InstrumentedEngine) Run(ctx context.Context, v VariantID, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.Engine.Run(ctx, v, req)
	e.runs.Add(1)

	failed := err != nil || res.Status() == model.ComputationFailure
	if e.metrics != nil {
		e.metrics.IncSensitivity(failed)
	}
	fields := []logging.Field{
		logging.String("variant", string(v)),
		logging.Int("cnecs", len(req.Cnecs)),
		logging.Duration("took", time.Since(start)),
	}
	if err != nil {
		e.log.Warn(ctx, "sensitivity computation failed", append(fields, logging.Err(err))...)
		return nil, err
	}
	e.log.Debug(ctx, "sensitivity computation done", append(fields, logging.String("status", res.Status().String()))...)
	return res, nil
}

// Runs returns the number of Run calls so far.
func (e *InstrumentedEngine) Runs() int64 { return e.runs.Load() }
