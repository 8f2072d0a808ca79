package scheduler

import (
	"testing"
	"time"

	"github.com/BinJu/train/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestToDeploy(t *testing.T) {
	tests := []struct {
		name          string
		total, target int
		nums          types.InstanceNumbers
		expected      int
	}{
		{
			name:     "fresh artifact",
			total:    1,
			target:   1,
			expected: 1,
		},
		{
			name:     "one dirty one failed one running",
			total:    5,
			target:   2,
			nums:     types.InstanceNumbers{Running: 1, Failed: 1, DoneDirty: 1},
			expected: 1,
		},
		{
			name:     "over target",
			total:    5,
			target:   2,
			nums:     types.InstanceNumbers{Running: 1, Failed: 1, DoneClean: 2, DoneDirty: 1},
			expected: -1,
		},
		{
			name:     "failures shrink headroom",
			total:    4,
			target:   2,
			nums:     types.InstanceNumbers{Failed: 1, DoneDirty: 2},
			expected: 1,
		},
		{
			name:     "at target",
			total:    3,
			target:   2,
			nums:     types.InstanceNumbers{Running: 1, DoneClean: 1},
			expected: 0,
		},
		{
			name:     "target above total saturates at buffer",
			total:    2,
			target:   5,
			nums:     types.InstanceNumbers{Running: 1, DoneClean: 1},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToDeploy(tt.total, tt.target, tt.nums))
		})
	}
}

func TestToDeployMatchesFormula(t *testing.T) {
	for total := 0; total <= 4; total++ {
		for target := 0; target <= 4; target++ {
			for r := 0; r <= 2; r++ {
				for f := 0; f <= 2; f++ {
					for c := 0; c <= 2; c++ {
						for d := 0; d <= 2; d++ {
							n := types.InstanceNumbers{Running: r, Failed: f, DoneClean: c, DoneDirty: d}
							want := min(total-d-c-f-r, target-c-r)
							assert.Equal(t, want, ToDeploy(total, target, n))
						}
					}
				}
			}
		}
	}
}

func inst(id string, state types.InstanceState, dirty bool) *types.Instance {
	return &types.Instance{
		ID:         id,
		ArtifactID: "opsman",
		RunHandle:  "build-opsman-run-" + id,
		Dirty:      dirty,
		Status:     types.InstanceStatus{State: state},
		CreatedAt:  time.Now(),
	}
}

func cleanInst(id, victim string, state types.InstanceState) *types.Instance {
	return &types.Instance{
		ID:         id,
		ArtifactID: "opsman",
		RunHandle:  "clean-opsman-run-" + id,
		ReclaimOf:  victim,
		Status:     types.InstanceStatus{State: state},
		CreatedAt:  time.Now(),
	}
}

func TestCountInstances(t *testing.T) {
	insts := []*types.Instance{
		inst("r1", types.InstanceRunning, false),
		inst("r2", types.InstanceRunning, false),
		inst("f1", types.InstanceFailed, false),
		inst("c1", types.InstanceSucceeded, false),
		inst("d1", types.InstanceSucceeded, true),
		inst("d2", types.InstanceSucceeded, true),
		inst("u1", types.InstanceUnknown, false),
		cleanInst("x1", "d1", types.InstanceRunning),
		cleanInst("x2", "f9", types.InstanceFailed),
	}

	assert.Equal(t, types.InstanceNumbers{Running: 2, Failed: 1, DoneClean: 1, DoneDirty: 2}, CountInstances(insts))
	assert.Equal(t, types.InstanceNumbers{}, CountInstances(nil))
}

func ids(insts []*types.Instance) []string {
	out := make([]string, 0, len(insts))
	for _, i := range insts {
		out = append(out, i.ID)
	}
	return out
}

func TestSelectVictims(t *testing.T) {
	pool := []*types.Instance{
		inst("clean1", types.InstanceSucceeded, false),
		inst("run1", types.InstanceRunning, false),
		inst("fail1", types.InstanceFailed, false),
		inst("dirty1", types.InstanceSucceeded, true),
		inst("dirty2", types.InstanceSucceeded, true),
	}

	tests := []struct {
		name     string
		insts    []*types.Instance
		count    int
		expected []string
	}{
		{"dirty first", pool, 1, []string{"dirty1"}},
		{"then failed", pool, 3, []string{"dirty1", "dirty2", "fail1"}},
		{"then clean, never running", pool, 10, []string{"dirty1", "dirty2", "fail1", "clean1"}},
		{"nothing requested", pool, 0, []string{}},
		{
			"in-flight clean covers deficit",
			append(append([]*types.Instance{}, pool...), cleanInst("x1", "dirty1", types.InstanceRunning)),
			1,
			[]string{},
		},
		{
			"in-flight victim skipped",
			append(append([]*types.Instance{}, pool...), cleanInst("x1", "dirty1", types.InstanceRunning)),
			2,
			[]string{"dirty2"},
		},
		{
			"failed clean run can be retried",
			append(append([]*types.Instance{}, pool...), cleanInst("x1", "dirty1", types.InstanceFailed)),
			1,
			[]string{"dirty1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ids(SelectVictims(tt.insts, tt.count)))
		})
	}
}
