package model

import (
	"fmt"
	"strings"
)

// CnecKind is the physical quantity a cnec monitors.
type CnecKind int

const (
	CnecFlow CnecKind = iota
	CnecAngle
	CnecVoltage
)

func (k CnecKind) String() string {
	switch k {
	case CnecFlow:
		return "FLOW"
	case CnecAngle:
		return "ANGLE"
	case CnecVoltage:
		return "VOLTAGE"
	}
	return fmt.Sprintf("CnecKind(%d)", int(k))
}

// ParseCnecKind maps a case-insensitive name to a CnecKind. Empty means FLOW.
func ParseCnecKind(s string) (CnecKind, error) {
	switch strings.ToUpper(s) {
	case "", "FLOW":
		return CnecFlow, nil
	case "ANGLE":
		return CnecAngle, nil
	case "VOLTAGE":
		return CnecVoltage, nil
	}
	return 0, fmt.Errorf("unknown cnec kind %q", s)
}

// RangeActionKind is the concrete family of a range action.
type RangeActionKind int

const (
	RangePST RangeActionKind = iota
	RangeHVDC
	RangeInjection
)

func (k RangeActionKind) String() string {
	switch k {
	case RangePST:
		return "PST"
	case RangeHVDC:
		return "HVDC"
	case RangeInjection:
		return "INJECTION"
	}
	return fmt.Sprintf("RangeActionKind(%d)", int(k))
}

// ParseRangeActionKind maps a case-insensitive name to a RangeActionKind.
func ParseRangeActionKind(s string) (RangeActionKind, error) {
	switch strings.ToUpper(s) {
	case "PST":
		return RangePST, nil
	case "HVDC":
		return RangeHVDC, nil
	case "INJECTION":
		return RangeInjection, nil
	}
	return 0, fmt.Errorf("unknown range action kind %q", s)
}

// ElementaryActionKind tags the elementary effects of a network action.
type ElementaryActionKind int

const (
	ElementaryOpen ElementaryActionKind = iota
	ElementaryClose
	ElementaryPstTap
	ElementaryInjectionSetpoint
)

func (k ElementaryActionKind) String() string {
	switch k {
	case ElementaryOpen:
		return "OPEN"
	case ElementaryClose:
		return "CLOSE"
	case ElementaryPstTap:
		return "PST_TAP"
	case ElementaryInjectionSetpoint:
		return "INJECTION_SETPOINT"
	}
	return fmt.Sprintf("ElementaryActionKind(%d)", int(k))
}

// ParseElementaryActionKind maps a case-insensitive name to an ElementaryActionKind.
func ParseElementaryActionKind(s string) (ElementaryActionKind, error) {
	switch strings.ToUpper(s) {
	case "OPEN":
		return ElementaryOpen, nil
	case "CLOSE":
		return ElementaryClose, nil
	case "PST_TAP":
		return ElementaryPstTap, nil
	case "INJECTION_SETPOINT":
		return ElementaryInjectionSetpoint, nil
	}
	return 0, fmt.Errorf("unknown elementary action kind %q", s)
}
