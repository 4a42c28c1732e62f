package automaton

import (
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/rao-orchestrator/crac"
)

// bucket is a set of range automatons moving together to one setpoint.
type bucket struct {
	speed   int
	actions []*crac.RangeAction
}

func (b *bucket) lead() *crac.RangeAction { return b.actions[0] }

// admissibleRange intersects the ranges of the bucket's actions.
func (b *bucket) admissibleRange(s *crac.State) (float64, float64) {
	lo, hi := math.Inf(-1), math.Inf(1)
	for _, ra := range b.actions {
		l, h := ra.AdmissibleRange(s)
		lo, hi = math.Max(lo, l), math.Min(hi, h)
	}
	return lo, hi
}

// buildBuckets groups actions by ascending speed. Actions of equal speed
// share a bucket and must be of the same kind.
func buildBuckets(actions []*crac.RangeAction) ([]*bucket, error) {
	bySpeed := make(map[int]*bucket)
	for _, ra := range actions {
		speed, _ := ra.Speed()
		b, ok := bySpeed[speed]
		if !ok {
			b = &bucket{speed: speed}
			bySpeed[speed] = b
		}
		b.actions = append(b.actions, ra)
	}
	out := make([]*bucket, 0, len(bySpeed))
	for _, b := range bySpeed {
		sort.Slice(b.actions, func(i, j int) bool { return b.actions[i].ID() < b.actions[j].ID() })
		for _, ra := range b.actions[1:] {
			if ra.Kind() != b.lead().Kind() {
				return nil, fmt.Errorf("%w: range automatons %q and %q share speed %d with different kinds",
					crac.ErrInconsistentAlignedGroup, b.lead().ID(), ra.ID(), b.speed)
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].speed < out[j].speed })
	return out, nil
}

// checkAlignedGroups verifies every aligned group touched by usable: all
// members must be usable, of the same kind and resolve to the same usage
// method at s.
func checkAlignedGroups(cat *crac.Catalogue, s *crac.State, usable []*crac.RangeAction) error {
	inUsable := make(map[*crac.RangeAction]bool, len(usable))
	for _, ra := range usable {
		inUsable[ra] = true
	}
	checked := make(map[string]bool)
	for _, ra := range usable {
		id, ok := ra.GroupID()
		if !ok || checked[id] {
			continue
		}
		checked[id] = true
		members := cat.AlignedGroup(id)
		for _, m := range members {
			switch {
			case !inUsable[m]:
				return fmt.Errorf("%w: group %q member %q is not usable at %s", crac.ErrInconsistentAlignedGroup, id, m.ID(), s)
			case m.Kind() != ra.Kind():
				return fmt.Errorf("%w: group %q mixes %s and %s", crac.ErrInconsistentAlignedGroup, id, ra.Kind(), m.Kind())
			case m.UsageMethod(s) != ra.UsageMethod(s):
				return fmt.Errorf("%w: group %q mixes usage methods %s and %s", crac.ErrInconsistentAlignedGroup, id, ra.UsageMethod(s), m.UsageMethod(s))
			}
		}
	}
	return nil
}
