package params

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Nil(t, p.SecondPreventive)
	assert.False(t, p.SecondPreventiveEnabled())
}

func TestLoadOverridesDefaults(t *testing.T) {
	p, err := Load(strings.NewReader(`
objective:
  function: MAX_MIN_RELATIVE_MARGIN
  curative_stop_criterion: SECURE
  forbid_cost_increase: true
second_preventive:
  execution_condition: POSSIBLE_CURATIVE_IMPROVEMENT
  re_optimize_curative_range_actions: true
multi_threading:
  contingency_scenarios_in_parallel: 4
time_budget: 90s
`))
	require.NoError(t, err)

	assert.Equal(t, MaxMinRelativeMargin, p.Objective.Function)
	assert.Equal(t, CurativeSecure, p.Objective.CurativeStopCriterion)
	assert.Equal(t, PreventiveMinObjective, p.Objective.PreventiveStopCriterion)
	assert.True(t, p.Objective.ForbidCostIncrease)
	require.NotNil(t, p.SecondPreventive)
	assert.True(t, p.SecondPreventive.ReOptimizeCurativeRangeActions)
	assert.True(t, p.SecondPreventiveEnabled())
	assert.Equal(t, 4, p.MultiThreading.ContingencyScenariosInParallel)
	assert.Equal(t, 90*time.Second, p.TimeBudget.Duration)
	assert.Equal(t, 10, p.RangeActions.MaxAutomatonIterations)
}

func TestLoadEmptyDocumentGivesDefaults(t *testing.T) {
	p, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestSecondPreventiveWithoutConditionIsDisabled(t *testing.T) {
	p, err := Load(strings.NewReader("second_preventive:\n  cost_increase_tolerance: 1\n"))
	require.NoError(t, err)
	require.NotNil(t, p.SecondPreventive)
	assert.Equal(t, SecondPreventiveDisabled, p.SecondPreventive.ExecutionCondition)
	assert.False(t, p.SecondPreventiveEnabled())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"objective":   "objective:\n  function: CHEAPEST\n",
		"criterion":   "objective:\n  curative_stop_criterion: SOMETIMES\n",
		"condition":   "second_preventive:\n  execution_condition: ALWAYS\n",
		"parallelism": "multi_threading:\n  contingency_scenarios_in_parallel: 0\n",
		"budget":      "time_budget: soon\n",
	}
	for name, doc := range cases {
		_, err := Load(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}
