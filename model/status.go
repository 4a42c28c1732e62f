package model

import "fmt"

// ComputationStatus is the outcome of the computations for one state.
type ComputationStatus int

const (
	ComputationDefault ComputationStatus = iota
	ComputationPartialFailure
	ComputationFailure
)

func (s ComputationStatus) String() string {
	switch s {
	case ComputationDefault:
		return "DEFAULT"
	case ComputationPartialFailure:
		return "PARTIAL_FAILURE"
	case ComputationFailure:
		return "FAILURE"
	}
	return fmt.Sprintf("ComputationStatus(%d)", int(s))
}

// OptimizationStepsExecuted records which optimization stages produced the
// final result of a run.
type OptimizationStepsExecuted int

const (
	StepsUnset OptimizationStepsExecuted = iota
	FirstPreventiveOnly
	FirstPreventiveFellbackToInitialSituation
	SecondPreventiveImprovedFirst
	SecondPreventiveFellbackToFirst
)

func (s OptimizationStepsExecuted) String() string {
	switch s {
	case StepsUnset:
		return "UNSET"
	case FirstPreventiveOnly:
		return "FIRST_PREVENTIVE_ONLY"
	case FirstPreventiveFellbackToInitialSituation:
		return "FIRST_PREVENTIVE_FELLBACK_TO_INITIAL_SITUATION"
	case SecondPreventiveImprovedFirst:
		return "SECOND_PREVENTIVE_IMPROVED_FIRST"
	case SecondPreventiveFellbackToFirst:
		return "SECOND_PREVENTIVE_FELLBACK_TO_FIRST"
	}
	return fmt.Sprintf("OptimizationStepsExecuted(%d)", int(s))
}
