package automaton

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/params"
	"github.com/signalsfoundry/rao-orchestrator/internal/sensi"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

const epsilon = 0.01

func ptr(v float64) *float64 { return &v }
func intPtr(v int) *int      { return &v }

var taps = map[int]float64{0: 0.1, 1: 1.1, 2: 2.1, 3: 3.1, -1: -1.1, -2: -2.1, -3: -3.1}

type fixture struct {
	cat          *crac.Catalogue
	autoState    *crac.State
	cnec1, cnec2 *crac.Cnec
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
	if err := c.AddContingency(crac.NewContingency("co1", "", "co1-ne")); err != nil {
		t.Fatalf("AddContingency: %v", err)
	}
	f := &fixture{cat: c}
	var err error
	if f.cnec1, err = c.AddCnec(crac.CnecSpec{ID: "cnec1", NetworkElement: "cnec-ne", Contingency: "co1", Instant: "auto", Optimized: true, Min: ptr(-1000), Max: ptr(1000)}); err != nil {
		t.Fatalf("AddCnec: %v", err)
	}
	if f.cnec2, err = c.AddCnec(crac.CnecSpec{ID: "cnec2", NetworkElement: "cnec-ne-2", Contingency: "co1", Instant: "auto", Optimized: true, Min: ptr(-2000), Max: ptr(2000)}); err != nil {
		t.Fatalf("AddCnec: %v", err)
	}
	f.autoState = c.State("co1", "auto")
	return f
}

func onConstraint(method model.UsageMethod, cnec string) crac.UsageRuleSpec {
	return crac.UsageRuleSpec{Kind: model.RuleOnFlowConstraint, Method: method, Instant: "auto", Cnec: cnec}
}

func onAuto(method model.UsageMethod) crac.UsageRuleSpec {
	return crac.UsageRuleSpec{Kind: model.RuleOnInstant, Method: method, Instant: "auto"}
}

func (f *fixture) addPst(t *testing.T, id, group string, speed int, rule crac.UsageRuleSpec) *crac.RangeAction {
	t.Helper()
	ra, err := f.cat.AddRangeAction(crac.RangeActionSpec{
		ID: id, Kind: model.RangePST, NetworkElement: id + "-ne", GroupID: group, Speed: intPtr(speed),
		TapToAngle: taps, UsageRules: []crac.UsageRuleSpec{rule},
	})
	if err != nil {
		t.Fatalf("AddRangeAction(%s): %v", id, err)
	}
	return ra
}

func (f *fixture) simulate(t *testing.T, engine *scriptedEngine) (*Result, error) {
	t.Helper()
	ctx := context.Background()
	cnecs := []*crac.Cnec{f.cnec1, f.cnec2}
	pre, err := engine.Run(ctx, "co1", sensi.Request{Cnecs: cnecs, RangeActions: f.cat.UsableRangeActions(f.autoState)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return NewSimulator(f.cat, engine, params.Default(), nil).Simulate(ctx, Input{
		State: f.autoState, Variant: "co1", PreAutomaton: pre, Cnecs: cnecs,
	})
}

func TestRoundAngleToTap(t *testing.T) {
	f := newFixture(t)
	pst := f.addPst(t, "ara1", "", 3, onConstraint(model.UsageForced, "cnec1"))
	cases := []struct{ target, initial, want float64 }{
		{1.2, 0.1, 2.1},
		{1.1, 0.1, 1.1},
		{0.2, 0.1, 1.1},
		{0.2, 1.1, 0.1},
		{1.2, 1.1, 2.1},
		{2.1, 2.1, 2.1},
		{3.1, 2.1, 3.1},
		{-3.1, 2.1, -3.1},
	}
	for _, tc := range cases {
		if got := roundAngleToTap(pst, tc.target, tc.initial); math.Abs(got-tc.want) > epsilon {
			t.Fatalf("roundAngleToTap(%v, %v) = %v, want %v", tc.target, tc.initial, got, tc.want)
		}
	}
}

func TestOptimalSetpoint(t *testing.T) {
	f := newFixture(t)
	pst := f.addPst(t, "ara1", "", 3, onConstraint(model.UsageForced, "cnec1"))
	s := NewSimulator(f.cat, newScriptedEngine(step{}), params.Default(), nil)
	cases := []struct {
		name              string
		flow, margin, sen float64
		want              float64
	}{
		{"limited by min", 1100, -100, 1, -3.1},
		{"limited by max", 1100, -100, -1, 3.1},
		{"one tap down", 1100, -100, 100, -1.1},
		{"two taps down", 1100, -100, 50, -2.1},
		{"negative flow two taps up", -1100, -100, 50, 2.1},
		{"negative sensitivity two taps up", 1100, -100, -50, 2.1},
		{"negative flow and sensitivity", -1100, -100, -50, -2.1},
	}
	for _, tc := range cases {
		got := s.optimalSetpoint(0.1, tc.flow, tc.margin, tc.sen, pst, -3.1, 3.1)
		if math.Abs(got-tc.want) > epsilon {
			t.Fatalf("%s: optimalSetpoint = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRoundToStep(t *testing.T) {
	cases := []struct{ target, initial, step, want float64 }{
		{12, 0, 10, 20},
		{-12, 0, 10, -20},
		{20, 0, 10, 20},
		{12, 0, 0, 12},
	}
	for _, tc := range cases {
		if got := roundToStep(tc.target, tc.initial, tc.step); got != tc.want {
			t.Fatalf("roundToStep(%v, %v, %v) = %v, want %v", tc.target, tc.initial, tc.step, got, tc.want)
		}
	}
}

func TestShiftAlignedPstsConverges(t *testing.T) {
	cases := []struct {
		name string
		flow float64 // sign of the flows
		sens float64 // per action sensitivity, divided by ten near convergence
		want float64
	}{
		{"negative flow positive sensitivity", -1, 50, 2.1},
		{"positive flow negative sensitivity", 1, -50, 2.1},
		{"positive flow positive sensitivity", 1, 50, -2.1},
		{"negative flow negative sensitivity", -1, -50, -2.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ara1 := f.addPst(t, "ara1", "group1", 3, onConstraint(model.UsageForced, "cnec1"))
			ara2 := f.addPst(t, "ara2", "group1", 3, onConstraint(model.UsageForced, "cnec1"))

			mk := func(flow, sens float64) step {
				return step{
					flows: map[string]float64{"cnec1": tc.flow * flow},
					sens:  map[string]map[string]float64{"cnec1": {"ara1": sens, "ara2": sens}},
				}
			}
			engine := newScriptedEngine(mk(1100, tc.sens), mk(1010, tc.sens/10), mk(1000, tc.sens/10))

			res, err := f.simulate(t, engine)
			if err != nil {
				t.Fatalf("Simulate: %v", err)
			}
			if math.Abs(res.Setpoints[ara1]-tc.want) > epsilon || math.Abs(res.Setpoints[ara2]-tc.want) > epsilon {
				t.Fatalf("setpoints = %v / %v, want %v", res.Setpoints[ara1], res.Setpoints[ara2], tc.want)
			}
			if res.Shifts != 2 || res.SensitivityRuns != 2 {
				t.Fatalf("shifts = %d, runs = %d, want 2 and 2", res.Shifts, res.SensitivityRuns)
			}
			if m, _ := res.Sensitivity.Margin(f.cnec1); m < 0 {
				t.Fatalf("final margin = %v, want >= 0", m)
			}
			if got := res.ActivatedRangeActions(); len(got) != 2 {
				t.Fatalf("activated = %v", got)
			}
			if res.PreSetpoints[ara1] != 0.1 {
				t.Fatalf("pre setpoint = %v, want 0.1", res.PreSetpoints[ara1])
			}
			if res.Phase != PhaseDone {
				t.Fatalf("phase = %v, want DONE", res.Phase)
			}
		})
	}
}

func TestShiftSkipsInsensitiveCnec(t *testing.T) {
	f := newFixture(t)
	ara1 := f.addPst(t, "ara1", "group1", 3, onAuto(model.UsageForced))
	f.addPst(t, "ara2", "group1", 3, onAuto(model.UsageForced))

	mk := func(flow, sens float64) step {
		return step{
			flows: map[string]float64{"cnec1": flow, "cnec2": 2200},
			sens:  map[string]map[string]float64{"cnec1": {"ara1": sens, "ara2": sens}},
		}
	}
	engine := newScriptedEngine(mk(-1100, -50), mk(-1010, -5), mk(-1000, -5))
	res, err := f.simulate(t, engine)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if math.Abs(res.Setpoints[ara1]+2.1) > epsilon {
		t.Fatalf("setpoint = %v, want -2.1", res.Setpoints[ara1])
	}
}

func TestShiftStopsAfterMaxIterations(t *testing.T) {
	f := newFixture(t)
	ara1 := f.addPst(t, "ara1", "", 3, onConstraint(model.UsageForced, "cnec1"))
	engine := newScriptedEngine(step{
		flows: map[string]float64{"cnec1": 1100},
		sens:  map[string]map[string]float64{"cnec1": {"ara1": 100}},
	})
	p := params.Default()
	p.RangeActions.MaxAutomatonIterations = 1

	ctx := context.Background()
	cnecs := []*crac.Cnec{f.cnec1}
	pre, _ := engine.Run(ctx, "co1", sensi.Request{Cnecs: cnecs, RangeActions: []*crac.RangeAction{ara1}})
	res, err := NewSimulator(f.cat, engine, p, nil).Simulate(ctx, Input{State: f.autoState, Variant: "co1", PreAutomaton: pre, Cnecs: cnecs})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.Shifts != 1 || math.Abs(res.Setpoints[ara1]+1.1) > epsilon {
		t.Fatalf("shifts = %d, setpoint = %v", res.Shifts, res.Setpoints[ara1])
	}
}

func TestShiftOnAngleConstraint(t *testing.T) {
	f := newFixture(t)
	angle, err := f.cat.AddCnec(crac.CnecSpec{ID: "angle1", Kind: model.CnecAngle, NetworkElement: "angle-ne", Contingency: "co1", Instant: "auto", Optimized: true, Min: ptr(-10), Max: ptr(10)})
	if err != nil {
		t.Fatalf("AddCnec: %v", err)
	}
	ara1 := f.addPst(t, "ara1", "", 3, crac.UsageRuleSpec{Kind: model.RuleOnAngleConstraint, Method: model.UsageForced, Instant: "auto", Cnec: "angle1"})
	engine := newScriptedEngine(
		step{flows: map[string]float64{"angle1": 12}, sens: map[string]map[string]float64{"angle1": {"ara1": 1}}},
		step{flows: map[string]float64{"angle1": 9.8}, sens: map[string]map[string]float64{"angle1": {"ara1": 1}}},
	)

	ctx := context.Background()
	cnecs := []*crac.Cnec{f.cnec1, angle}
	pre, _ := engine.Run(ctx, "co1", sensi.Request{Cnecs: cnecs, RangeActions: []*crac.RangeAction{ara1}})
	res, err := NewSimulator(f.cat, engine, params.Default(), nil).Simulate(ctx, Input{State: f.autoState, Variant: "co1", PreAutomaton: pre, Cnecs: cnecs})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.Shifts != 1 || math.Abs(res.Setpoints[ara1]+2.1) > epsilon {
		t.Fatalf("shifts = %d, setpoint = %v, want one shift to -2.1", res.Shifts, res.Setpoints[ara1])
	}
}

func TestHvdcDroopDisableIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if _, err := f.cat.AddRangeAction(crac.RangeActionSpec{
		ID: "hvdc", Kind: model.RangeHVDC, NetworkElement: "hvdc-1", Speed: intPtr(1), Min: -500, Max: 500,
		UsageRules: []crac.UsageRuleSpec{onAuto(model.UsageForced)},
	}); err != nil {
		t.Fatalf("AddRangeAction: %v", err)
	}
	engine := newScriptedEngine(step{flows: map[string]float64{"cnec1": 1100}})
	engine.droopEnabled["hvdc-1"] = true

	first, err := f.simulate(t, engine)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(first.DisabledHvdc) != 1 || first.SensitivityRuns != 1 {
		t.Fatalf("first: disabled = %v, runs = %d", first.DisabledHvdc, first.SensitivityRuns)
	}
	if engine.droopEnabled["hvdc-1"] {
		t.Fatalf("droop still enabled")
	}

	second, err := f.simulate(t, engine)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(second.DisabledHvdc) != 0 || second.SensitivityRuns != 0 {
		t.Fatalf("second: disabled = %v, runs = %d", second.DisabledHvdc, second.SensitivityRuns)
	}
}

func TestAvailableRangeActionAtAutoFails(t *testing.T) {
	f := newFixture(t)
	f.addPst(t, "ra", "", 1, onAuto(model.UsageAvailable))
	_, err := f.simulate(t, newScriptedEngine(step{flows: map[string]float64{"cnec1": 1100}}))
	if !errors.Is(err, ErrInvalidAutomatonConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidAutomatonConfiguration", err)
	}
}

func TestInconsistentAlignedGroupFails(t *testing.T) {
	f := newFixture(t)
	f.addPst(t, "ara5", "group3", 6, onAuto(model.UsageForced))
	f.addPst(t, "ara6", "group3", 6, onConstraint(model.UsageToBeEvaluated, "cnec1"))
	_, err := f.simulate(t, newScriptedEngine(step{flows: map[string]float64{"cnec1": 1100}}))
	if !errors.Is(err, crac.ErrInconsistentAlignedGroup) {
		t.Fatalf("err = %v, want ErrInconsistentAlignedGroup", err)
	}
}

func TestTopologicalAutomatons(t *testing.T) {
	f := newFixture(t)
	na, err := f.cat.AddNetworkAction(crac.NetworkActionSpec{
		ID:         "na",
		Effects:    []crac.Effect{{Kind: model.ElementaryClose, NetworkElement: "l3"}},
		UsageRules: []crac.UsageRuleSpec{onConstraint(model.UsageToBeEvaluated, "cnec2")},
	})
	if err != nil {
		t.Fatalf("AddNetworkAction: %v", err)
	}

	engine := newScriptedEngine(step{flows: map[string]float64{"cnec1": 0, "cnec2": 2100}}, step{flows: map[string]float64{"cnec1": 0, "cnec2": 1500}})
	res, err := f.simulate(t, engine)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(res.NetworkActions) != 1 || res.NetworkActions[0] != na || res.SensitivityRuns != 1 {
		t.Fatalf("overloaded: activated = %v, runs = %d", res.NetworkActions, res.SensitivityRuns)
	}

	engine = newScriptedEngine(step{flows: map[string]float64{"cnec1": 0, "cnec2": 1500}})
	res, err = f.simulate(t, engine)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(res.NetworkActions) != 0 || res.SensitivityRuns != 0 {
		t.Fatalf("secure: activated = %v, runs = %d", res.NetworkActions, res.SensitivityRuns)
	}
}

func TestSpeedlessRangeAutomatonIsSkipped(t *testing.T) {
	f := newFixture(t)
	ra, err := f.cat.AddRangeAction(crac.RangeActionSpec{
		ID: "slow", Kind: model.RangePST, NetworkElement: "slow-ne", TapToAngle: taps,
		UsageRules: []crac.UsageRuleSpec{onAuto(model.UsageForced)},
	})
	if err != nil {
		t.Fatalf("AddRangeAction: %v", err)
	}
	res, err := f.simulate(t, newScriptedEngine(step{
		flows: map[string]float64{"cnec1": 1100},
		sens:  map[string]map[string]float64{"cnec1": {"slow": 100}},
	}))
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if _, ok := res.Setpoints[ra]; ok || res.Shifts != 0 {
		t.Fatalf("speedless action must be skipped")
	}
}

func TestFailedPreAutomatonSnapshot(t *testing.T) {
	f := newFixture(t)
	f.addPst(t, "ara1", "", 3, onConstraint(model.UsageForced, "cnec1"))
	engine := newScriptedEngine(step{})
	res, err := NewSimulator(f.cat, engine, params.Default(), nil).Simulate(context.Background(), Input{
		State: f.autoState, Variant: "co1", PreAutomaton: sensi.NewResult(model.ComputationFailure),
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.Status != model.ComputationFailure || res.Phase != PhaseDone || engine.runCount() != 0 {
		t.Fatalf("status = %v, phase = %v, runs = %d", res.Status, res.Phase, engine.runCount())
	}
}

func TestBuildBucketsOrdersBySpeed(t *testing.T) {
	f := newFixture(t)
	ra2 := f.addPst(t, "ra2", "", 2, onAuto(model.UsageForced))
	ra3 := f.addPst(t, "ra3", "", 4, onAuto(model.UsageForced))
	ara1 := f.addPst(t, "ara1", "group1", 3, onAuto(model.UsageForced))
	ara2 := f.addPst(t, "ara2", "group1", 3, onAuto(model.UsageForced))

	buckets, err := buildBuckets([]*crac.RangeAction{ra3, ara2, ra2, ara1})
	if err != nil {
		t.Fatalf("buildBuckets: %v", err)
	}
	want := [][]*crac.RangeAction{{ra2}, {ara1, ara2}, {ra3}}
	if len(buckets) != len(want) {
		t.Fatalf("buckets = %d, want %d", len(buckets), len(want))
	}
	for i, b := range buckets {
		if len(b.actions) != len(want[i]) {
			t.Fatalf("bucket %d = %v", i, b.actions)
		}
		for j := range b.actions {
			if b.actions[j] != want[i][j] {
				t.Fatalf("bucket %d = %v", i, b.actions)
			}
		}
	}

	hvdc, err := f.cat.AddRangeAction(crac.RangeActionSpec{
		ID: "hvdc", Kind: model.RangeHVDC, NetworkElement: "hvdc-1", Speed: intPtr(2), Min: -1, Max: 1,
		UsageRules: []crac.UsageRuleSpec{onAuto(model.UsageForced)},
	})
	if err != nil {
		t.Fatalf("AddRangeAction: %v", err)
	}
	if _, err := buildBuckets([]*crac.RangeAction{ra2, hvdc}); !errors.Is(err, crac.ErrInconsistentAlignedGroup) {
		t.Fatalf("mixed bucket err = %v", err)
	}
}
