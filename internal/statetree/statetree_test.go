package statetree

import (
	"testing"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/model"
)

func ptr(v float64) *float64 { return &v }

func catalogue(t *testing.T, curativeInstants ...string) *crac.Catalogue {
	t.Helper()
	c := crac.NewCatalogue()
	mustInstant := func(id string, kind model.InstantKind) {
		if _, err := c.AddInstant(id, kind); err != nil {
			t.Fatalf("AddInstant(%s): %v", id, err)
		}
	}
	mustInstant("preventive", model.InstantPreventive)
	mustInstant("outage", model.InstantOutage)
	mustInstant("auto", model.InstantAuto)
	for _, id := range curativeInstants {
		mustInstant(id, model.InstantCurative)
	}
	for _, co := range []string{"co1", "co2"} {
		if err := c.AddContingency(crac.NewContingency(co, "", co)); err != nil {
			t.Fatalf("AddContingency: %v", err)
		}
		for _, inst := range append([]string{"outage", "auto"}, curativeInstants...) {
			if _, err := c.AddCnec(crac.CnecSpec{ID: co + "-" + inst, NetworkElement: "l1", Contingency: co, Instant: inst, Max: ptr(100)}); err != nil {
				t.Fatalf("AddCnec: %v", err)
			}
		}
	}
	return c
}

func addAction(t *testing.T, c *crac.Catalogue, id string, rules ...crac.UsageRuleSpec) {
	t.Helper()
	if _, err := c.AddNetworkAction(crac.NetworkActionSpec{
		ID:         id,
		Effects:    []crac.Effect{{Kind: model.ElementaryOpen, NetworkElement: id}},
		UsageRules: rules,
	}); err != nil {
		t.Fatalf("AddNetworkAction(%s): %v", id, err)
	}
}

func TestBuildWithoutPostContingencyActions(t *testing.T) {
	c := catalogue(t, "curative")
	addAction(t, c, "pra", crac.UsageRuleSpec{Kind: model.RuleOnInstant, Method: model.UsageAvailable, Instant: "preventive"})

	tree, err := Build(c)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tree.Scenarios) != 0 {
		t.Fatalf("scenarios = %d, want 0", len(tree.Scenarios))
	}
	if got := len(tree.Basecase.OtherStates); got != 6 {
		t.Fatalf("basecase other states = %d, want 6", got)
	}
}

func TestBuildSplitsAutomatonAndCurative(t *testing.T) {
	c := catalogue(t, "curative1", "curative2")
	addAction(t, c, "ara", crac.UsageRuleSpec{Kind: model.RuleOnContingencyState, Method: model.UsageForced, Instant: "auto", Contingency: "co1"})
	addAction(t, c, "cra", crac.UsageRuleSpec{Kind: model.RuleOnInstant, Method: model.UsageAvailable, Instant: "curative1"})

	tree, err := Build(c)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tree.Scenarios) != 2 {
		t.Fatalf("scenarios = %d, want 2", len(tree.Scenarios))
	}
	co1 := tree.Scenarios[0]
	if co1.AutomatonState != c.State("co1", "auto") {
		t.Fatalf("co1 automaton state = %v", co1.AutomatonState)
	}
	if len(co1.CurativePerimeters) != 1 {
		t.Fatalf("co1 curative perimeters = %d, want 1", len(co1.CurativePerimeters))
	}
	p := co1.CurativePerimeters[0]
	if p.RaOptimisationState != c.State("co1", "curative1") || len(p.OtherStates) != 1 || p.OtherStates[0] != c.State("co1", "curative2") {
		t.Fatalf("co1 curative perimeter = %+v", p)
	}

	co2 := tree.Scenarios[1]
	if co2.AutomatonState != nil {
		t.Fatalf("co2 must not have an automaton state")
	}
	if len(co2.ScenarioStates()) != 2 {
		t.Fatalf("co2 scenario states = %d, want 2", len(co2.ScenarioStates()))
	}
	for _, s := range tree.Basecase.OtherStates {
		if s == c.State("co1", "auto") {
			t.Fatalf("co1 auto state must not be in the preventive perimeter")
		}
	}
}

func TestCurativeStatesWithoutActionsJoinEarlierPerimeter(t *testing.T) {
	c := catalogue(t, "curative1", "curative2")
	addAction(t, c, "ara", crac.UsageRuleSpec{Kind: model.RuleOnContingencyState, Method: model.UsageForced, Instant: "auto", Contingency: "co1"})
	addAction(t, c, "cra", crac.UsageRuleSpec{Kind: model.RuleOnContingencyState, Method: model.UsageAvailable, Instant: "curative2", Contingency: "co1"})

	tree, err := Build(c)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tree.Scenarios) != 1 {
		t.Fatalf("scenarios = %d, want 1", len(tree.Scenarios))
	}
	sc := tree.Scenarios[0]
	if len(sc.CurativePerimeters) != 1 || sc.CurativePerimeters[0].RaOptimisationState != c.State("co1", "curative2") {
		t.Fatalf("curative perimeters = %+v", sc.CurativePerimeters)
	}
	inBasecase := map[*crac.State]bool{}
	for _, s := range tree.Basecase.OtherStates {
		inBasecase[s] = true
	}
	for _, want := range []*crac.State{c.State("co1", "outage"), c.State("co1", "curative1"), c.State("co2", "auto"), c.State("co2", "curative2")} {
		if !inBasecase[want] {
			t.Fatalf("state %v missing from preventive perimeter", want)
		}
	}
	if got := len(tree.Basecase.States()); got != 1+len(tree.Basecase.OtherStates) {
		t.Fatalf("States() = %d", got)
	}
}
