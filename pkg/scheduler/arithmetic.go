package scheduler

import "github.com/BinJu/train/pkg/types"

// CountInstances folds the build instances of an artifact into counters.
// Clean runs are bookkeeping for reclamation and do not count; neither do
// instances whose status is still Unknown.
func CountInstances(insts []*types.Instance) types.InstanceNumbers {
	var n types.InstanceNumbers
	for _, inst := range insts {
		if inst.Kind() != types.RolloutBuild {
			continue
		}
		switch inst.Status.State {
		case types.InstanceRunning:
			n.Running++
		case types.InstanceFailed:
			n.Failed++
		case types.InstanceSucceeded:
			if inst.Dirty {
				n.DoneDirty++
			} else {
				n.DoneClean++
			}
		}
	}
	return n
}

// ToDeploy returns how many instances to build (positive) or clean
// (negative). Failures use up capacity without counting toward the target.
func ToDeploy(total, target int, n types.InstanceNumbers) int {
	buffer := total - n.DoneDirty - n.DoneClean - n.Failed - n.Running
	need := target - n.DoneClean - n.Running
	return min(buffer, need)
}

// SelectVictims picks the build instances a clean rollout should reclaim to
// close a deficit of count. Dirty instances go first, then failed ones, then
// clean ones; running instances are never picked. Instances already being
// cleaned are skipped and their in-flight runs count against the deficit.
func SelectVictims(insts []*types.Instance, count int) []*types.Instance {
	inflight := map[string]bool{}
	for _, inst := range insts {
		if inst.Kind() == types.RolloutClean && !inst.Status.Terminal() && inst.ReclaimOf != "" {
			inflight[inst.ReclaimOf] = true
		}
	}
	count -= len(inflight)
	if count <= 0 {
		return nil
	}

	var dirty, failed, clean []*types.Instance
	for _, inst := range insts {
		if inst.Kind() != types.RolloutBuild || inflight[inst.ID] {
			continue
		}
		switch {
		case inst.Status.State == types.InstanceSucceeded && inst.Dirty:
			dirty = append(dirty, inst)
		case inst.Status.State == types.InstanceFailed:
			failed = append(failed, inst)
		case inst.Status.State == types.InstanceSucceeded:
			clean = append(clean, inst)
		}
	}

	victims := make([]*types.Instance, 0, count)
	for _, group := range [][]*types.Instance{dirty, failed, clean} {
		for _, inst := range group {
			if len(victims) == count {
				return victims
			}
			victims = append(victims, inst)
		}
	}
	return victims
}
