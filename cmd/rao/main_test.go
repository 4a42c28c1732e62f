package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/rao-orchestrator/internal/logging"
)

const exampleScenario = "../../examples/scenario.yaml"

func runCLI(t *testing.T, cfg Config) *summary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	log := logging.New(logging.Config{Level: "warn", Format: "text"})
	if err := run(ctx, cfg, log, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var s summary
	if err := yaml.Unmarshal(out.Bytes(), &s); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out.String())
	}
	return &s
}

func findState(s *summary, id string) *stateSummary {
	for i := range s.States {
		if s.States[i].State == id {
			return &s.States[i]
		}
	}
	return nil
}

func TestRunExampleScenario(t *testing.T) {
	s := runCLI(t, Config{ScenarioPath: exampleScenario})

	if s.Steps != "FIRST_PREVENTIVE_ONLY" || s.Status != "DEFAULT" {
		t.Fatalf("steps=%s status=%s", s.Steps, s.Status)
	}
	if s.InitialCost.Functional != 330 {
		t.Fatalf("initial functional cost = %v, want 330", s.InitialCost.Functional)
	}
	if n := len(s.Costs); n != 4 {
		t.Fatalf("got %d instant costs, want 4", n)
	}
	if last := s.Costs[len(s.Costs)-1]; last.Instant != "curative" || last.Functional != -20 {
		t.Fatalf("final cost = %+v, want -20 at curative", last)
	}

	if prev := findState(s, "preventive"); prev == nil || len(prev.NetworkActions) != 1 || prev.NetworkActions[0] != "open-l3" {
		t.Fatalf("preventive state = %+v, want open-l3", prev)
	}
	auto := findState(s, "co1 - auto")
	if auto == nil || len(auto.RangeActions) != 1 {
		t.Fatalf("automaton state not reported: %+v", s.States)
	}
	if ra := auto.RangeActions[0]; ra.ID != "pst" || ra.Setpoint != -4 || ra.Tap == nil || *ra.Tap != -4 {
		t.Fatalf("pst = %+v, want tap -4", ra)
	}
	if cur := findState(s, "co1 - curative"); cur == nil || len(cur.NetworkActions) != 1 || cur.NetworkActions[0] != "open-l5" {
		t.Fatalf("curative state = %+v, want open-l5", cur)
	}
	if len(s.Stages) == 0 || s.Stages[0].Name != "initial-sensitivity" {
		t.Fatalf("stages = %+v", s.Stages)
	}
}

func TestRunExampleParameters(t *testing.T) {
	s := runCLI(t, Config{ScenarioPath: exampleScenario, ParamsPath: "../../examples/params.yaml"})
	if !strings.HasPrefix(s.Steps, "SECOND_PREVENTIVE") {
		t.Fatalf("steps = %s, want a second preventive outcome", s.Steps)
	}
}

func TestRunReportsLoadErrors(t *testing.T) {
	log := logging.Noop()
	if err := run(context.Background(), Config{ScenarioPath: filepath.Join(t.TempDir(), "missing.yaml")}, log, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for a missing scenario")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	doc := "crac:\n  instants:\n    - {id: preventive, kind: PREVENTIVE}\n"
	if err := os.WriteFile(bad, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := run(context.Background(), Config{ScenarioPath: bad}, log, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for a catalogue without an outage instant")
	}

	params := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(params, []byte("objective:\n  function: NOPE\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := run(context.Background(), Config{ScenarioPath: exampleScenario, ParamsPath: params}, log, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for invalid parameters")
	}
}
