package model

import (
	"fmt"
	"strings"
)

// InstantKind classifies a temporal stage of the optimization.
type InstantKind int

const (
	InstantPreventive InstantKind = iota
	InstantOutage                 // right after the contingency, nothing can act yet
	InstantAuto                   // automatons
	InstantCurative               // operator actions after the contingency
)

var instantKindNames = map[InstantKind]string{
	InstantPreventive: "PREVENTIVE",
	InstantOutage:     "OUTAGE",
	InstantAuto:       "AUTO",
	InstantCurative:   "CURATIVE",
}

func (k InstantKind) String() string {
	if s, ok := instantKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("InstantKind(%d)", int(k))
}

// ParseInstantKind maps a case-insensitive name to an InstantKind.
func ParseInstantKind(s string) (InstantKind, error) {
	for k, name := range instantKindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown instant kind %q", s)
}
