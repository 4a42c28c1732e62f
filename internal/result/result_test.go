package result

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/params"
	"github.com/signalsfoundry/rao-orchestrator/internal/perimeter"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

func ptr(v float64) *float64 { return &v }

type fixture struct {
	cat                  *crac.Catalogue
	prev, outage, cur    *crac.Cnec
	preventive, curState *crac.State
	res                  *RaoResult
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := crac.NewCatalogue()
	for _, in := range []struct {
		id   string
		kind model.InstantKind
	}{{"preventive", model.InstantPreventive}, {"outage", model.InstantOutage}, {"auto", model.InstantAuto}, {"curative", model.InstantCurative}} {
		if _, err := c.AddInstant(in.id, in.kind); err != nil {
			t.Fatalf("AddInstant: %v", err)
		}
	}
	if err := c.AddContingency(crac.NewContingency("co1", "", "l9")); err != nil {
		t.Fatalf("AddContingency: %v", err)
	}
	f := &fixture{cat: c}
	add := func(id, co, inst string) *crac.Cnec {
		cn, err := c.AddCnec(crac.CnecSpec{ID: id, NetworkElement: "l1", Contingency: co, Instant: inst, Optimized: true, Max: ptr(1000)})
		if err != nil {
			t.Fatalf("AddCnec(%s): %v", id, err)
		}
		return cn
	}
	f.prev = add("prev", "", "preventive")
	f.outage = add("out", "co1", "outage")
	f.cur = add("cur", "co1", "curative")
	f.preventive = c.PreventiveState()
	f.curState = c.State("co1", "curative")
	f.res = New(c, perimeter.NewEvaluator(params.Default()))

	f.res.RecordInitial(f.snapshot(1100, 900, 1200))
	return f
}

func (f *fixture) snapshot(prev, out, cur float64) *sensi.Result {
	r := sensi.NewResult(model.ComputationDefault)
	r.SetValue(f.prev, prev)
	r.SetValue(f.outage, out)
	r.SetValue(f.cur, cur)
	return r
}

func (f *fixture) costAt(t *testing.T, instant string) float64 {
	t.Helper()
	cost, err := f.res.CostAt(f.cat.Instant(instant))
	if err != nil {
		t.Fatalf("CostAt(%s): %v", instant, err)
	}
	return cost.Functional
}

func TestCostAtUsesLatestSnapshot(t *testing.T) {
	f := newFixture(t)
	if got := f.res.InitialCost().Functional; got != 200 {
		t.Fatalf("initial cost = %v, want 200", got)
	}
	if got := f.costAt(t, "curative"); got != 200 {
		t.Fatalf("cost before any decision = %v, want 200", got)
	}

	f.res.RecordSnapshot(f.preventive, f.snapshot(950, 850, 1050))
	if got := f.costAt(t, "preventive"); got != 50 {
		t.Fatalf("preventive cost = %v, want 50", got)
	}
	if got := f.costAt(t, "curative"); got != 50 {
		t.Fatalf("curative cost without curative snapshot = %v, want 50", got)
	}

	curative := sensi.NewResult(model.ComputationDefault)
	curative.SetValue(f.cur, 980)
	f.res.RecordSnapshot(f.curState, curative)
	if got := f.costAt(t, "curative"); got != -20 {
		t.Fatalf("curative cost = %v, want -20", got)
	}
	if got := f.costAt(t, "outage"); got != 50 {
		t.Fatalf("outage cost = %v, want 50", got)
	}

	m, ok, err := f.res.Margin(f.cat.Instant("curative"), f.cur)
	if err != nil || !ok || m != 20 {
		t.Fatalf("Margin = %v, %v, %v", m, ok, err)
	}

	f.res.ClearDecisions()
	if got := f.costAt(t, "curative"); got != 200 {
		t.Fatalf("cost after ClearDecisions = %v, want 200", got)
	}
}

func TestCostAtRejectsForeignInstant(t *testing.T) {
	f := newFixture(t)
	other := crac.NewCatalogue()
	foreign, err := other.AddInstant("preventive", model.InstantPreventive)
	if err != nil {
		t.Fatalf("AddInstant: %v", err)
	}
	if _, err := f.res.CostAt(foreign); !errors.Is(err, ErrUnknownInstant) {
		t.Fatalf("CostAt(foreign) err = %v, want ErrUnknownInstant", err)
	}
	if _, err := f.res.CostAt(nil); !errors.Is(err, ErrUnknownInstant) {
		t.Fatalf("CostAt(nil) err = %v, want ErrUnknownInstant", err)
	}
	if _, _, err := f.res.Margin(foreign, f.prev); !errors.Is(err, crac.ErrUnknownInstant) {
		t.Fatalf("Margin(foreign) err = %v, want crac.ErrUnknownInstant", err)
	}
}

func TestOptimizationStepsAreWriteOnce(t *testing.T) {
	f := newFixture(t)
	if got := f.res.OptimizationStepsExecuted(); got != model.StepsUnset {
		t.Fatalf("steps = %v, want unset", got)
	}
	if err := f.res.SetOptimizationStepsExecuted(model.FirstPreventiveOnly); err != nil {
		t.Fatalf("SetOptimizationStepsExecuted: %v", err)
	}
	err := f.res.SetOptimizationStepsExecuted(model.SecondPreventiveImprovedFirst)
	if !errors.Is(err, ErrIllegalResultMutation) {
		t.Fatalf("second set err = %v, want ErrIllegalResultMutation", err)
	}
	if got := f.res.OptimizationStepsExecuted(); got != model.FirstPreventiveOnly {
		t.Fatalf("steps = %v, want FIRST_PREVENTIVE_ONLY", got)
	}
}

func TestRecordPerimeterKeepsActivations(t *testing.T) {
	f := newFixture(t)
	pst, err := f.cat.AddRangeAction(crac.RangeActionSpec{
		ID: "pst", Kind: model.RangePST, NetworkElement: "pst-1",
		TapToAngle: map[int]float64{-1: -2, 0: 0, 1: 2},
	})
	if err != nil {
		t.Fatalf("AddRangeAction: %v", err)
	}
	idle, err := f.cat.AddRangeAction(crac.RangeActionSpec{ID: "idle", Kind: model.RangeHVDC, NetworkElement: "hvdc-1", Min: -10, Max: 10})
	if err != nil {
		t.Fatalf("AddRangeAction: %v", err)
	}
	na, err := f.cat.AddNetworkAction(crac.NetworkActionSpec{ID: "open", Effects: []crac.Effect{{Kind: model.ElementaryOpen, NetworkElement: "l3"}}})
	if err != nil {
		t.Fatalf("AddNetworkAction: %v", err)
	}

	f.res.RecordPerimeter(f.preventive, &perimeter.Result{
		State:          f.preventive,
		Status:         model.ComputationDefault,
		NetworkActions: []*crac.NetworkAction{na},
		PreSetpoints:   map[*crac.RangeAction]float64{pst: 0, idle: 1},
		Setpoints:      map[*crac.RangeAction]float64{pst: 2, idle: 1},
		Sensitivity:    f.snapshot(950, 850, 1050),
	})

	if !f.res.IsActivated(na, f.preventive) || f.res.IsActivated(idle, f.preventive) {
		t.Fatalf("unexpected activations")
	}
	a, ok := f.res.RangeActivation(pst, f.preventive)
	if !ok || a.PreSetpoint != 0 || a.PostSetpoint != 2 || !a.HasTap || a.PostTap != 1 {
		t.Fatalf("pst activation = %+v, %v", a, ok)
	}
	if got := f.res.ActivatedRangeActions(f.preventive); len(got) != 1 || got[0] != pst {
		t.Fatalf("activated ranges = %v", got)
	}
	if got := f.costAt(t, "preventive"); got != 50 {
		t.Fatalf("preventive cost = %v, want 50", got)
	}
}

func TestComputationStatusAggregation(t *testing.T) {
	f := newFixture(t)
	if got := f.res.ComputationStatus(); got != model.ComputationDefault {
		t.Fatalf("status = %v, want DEFAULT", got)
	}
	f.res.RecordStatus(f.curState, model.ComputationFailure)
	if got := f.res.ComputationStatus(); got != model.ComputationPartialFailure {
		t.Fatalf("status = %v, want PARTIAL_FAILURE", got)
	}
	if got := f.res.StateStatus(f.curState); got != model.ComputationFailure {
		t.Fatalf("state status = %v, want FAILURE", got)
	}
	f.res.RecordStatus(f.preventive, model.ComputationFailure)
	if got := f.res.ComputationStatus(); got != model.ComputationFailure {
		t.Fatalf("status = %v, want FAILURE", got)
	}
}

func TestFailedSnapshotAddsOvercost(t *testing.T) {
	f := newFixture(t)
	f.res.RecordSnapshot(f.preventive, f.snapshot(950, 850, 1050))
	f.res.RecordSnapshot(f.curState, sensi.NewResult(model.ComputationFailure))

	cost, err := f.res.CostAt(f.cat.Instant("curative"))
	if err != nil {
		t.Fatalf("CostAt: %v", err)
	}
	if got := cost.Virtual[perimeter.SensitivityFailureCost]; got != params.Default().Objective.SensitivityFailureOvercost {
		t.Fatalf("failure cost = %v", got)
	}
	f.res.AppendStage(Stage{Name: "curative", State: f.curState.ID(), Status: model.ComputationFailure})
	if st := f.res.Stages(); len(st) != 1 || st[0].Name != "curative" {
		t.Fatalf("stages = %+v", st)
	}
}
