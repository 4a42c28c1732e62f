package model

import "testing"

func TestStrongest(t *testing.T) {
	cases := []struct {
		name    string
		methods []UsageMethod
		want    UsageMethod
	}{
		{"empty", nil, UsageUnavailable},
		{"available forced", []UsageMethod{UsageAvailable, UsageForced}, UsageForced},
		{"unavailable wins", []UsageMethod{UsageAvailable, UsageForced, UsageUnavailable}, UsageUnavailable},
		{"to be evaluated below available", []UsageMethod{UsageToBeEvaluated, UsageAvailable}, UsageAvailable},
		{"single undefined", []UsageMethod{UsageUndefined}, UsageUndefined},
	}
	for _, tc := range cases {
		if got := Strongest(tc.methods...); got != tc.want {
			t.Fatalf("%s: Strongest = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseUsageRuleKindAcceptsFreeToUse(t *testing.T) {
	k, err := ParseUsageRuleKind("free_to_use")
	if err != nil {
		t.Fatalf("ParseUsageRuleKind: %v", err)
	}
	if k != RuleOnInstant {
		t.Fatalf("kind = %v, want ON_INSTANT", k)
	}
	if _, err := ParseUsageRuleKind("whenever"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestParseInstantKindRoundTrip(t *testing.T) {
	for _, k := range []InstantKind{InstantPreventive, InstantOutage, InstantAuto, InstantCurative} {
		got, err := ParseInstantKind(k.String())
		if err != nil {
			t.Fatalf("ParseInstantKind(%s): %v", k, err)
		}
		if got != k {
			t.Fatalf("ParseInstantKind(%s) = %v", k, got)
		}
	}
}
