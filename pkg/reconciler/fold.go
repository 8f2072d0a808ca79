package reconciler

import (
	"time"

	"github.com/BinJu/train/pkg/types"
)

func partition(insts []*types.Instance, kind types.RolloutKind) []*types.Instance {
	var out []*types.Instance
	for _, inst := range insts {
		if inst.Kind() == kind {
			out = append(out, inst)
		}
	}
	return out
}

// FoldStatus derives a rollout status from the instances it produced. Any
// failure makes the rollout Failed; a non-empty set of successes makes it
// Succeeded. Otherwise ok is false and the stored status stands.
func FoldStatus(insts []*types.Instance) (status types.RolloutStatus, ok bool) {
	if len(insts) == 0 {
		return "", false
	}
	succeeded := 0
	for _, inst := range insts {
		switch inst.Status.State {
		case types.InstanceFailed:
			return types.RolloutFailed, true
		case types.InstanceSucceeded:
			succeeded++
		}
	}
	if succeeded == len(insts) {
		return types.RolloutSucceeded, true
	}
	return "", false
}

// pendingStands reports whether a pending rollout should keep its status
// over a Succeeded fold. A dispatch stalled on an account or artifact ref may
// have started part of its runs; their success says nothing about the rest,
// so the rollout stays pending while toDeploy still owes work in its
// direction. A Failed fold always wins.
func pendingStands(current, folded types.RolloutStatus, kind types.RolloutKind, toDeploy int) bool {
	if current != types.RolloutPendingAccount && current != types.RolloutPendingArtRef {
		return false
	}
	if folded != types.RolloutSucceeded {
		return false
	}
	if kind == types.RolloutBuild {
		return toDeploy > 0
	}
	return toDeploy < 0
}

// FailureRatio is the share of failed instances among those created at or
// after since. It is zero when there are none.
func FailureRatio(insts []*types.Instance, since time.Time) float64 {
	total, failed := 0, 0
	for _, inst := range insts {
		if inst.CreatedAt.Before(since) {
			continue
		}
		total++
		if inst.Status.State == types.InstanceFailed {
			failed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
