package metrics

import (
	"context"
	"testing"

	"github.com/BinJu/train/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type staticSource struct {
	instances map[string][]*types.Instance
	accounts  []*types.Account
}

func (s *staticSource) ListArtifactIDs() ([]string, error) {
	var ids []string
	for id := range s.instances {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *staticSource) ListInstances(artID string) ([]*types.Instance, error) {
	return s.instances[artID], nil
}

func (s *staticSource) ListAccounts() ([]*types.Account, error) {
	return s.accounts, nil
}

type fixedDepth int

func (d fixedDepth) Depth(context.Context) (int, error) { return int(d), nil }

func TestCollectorCollect(t *testing.T) {
	source := &staticSource{
		instances: map[string][]*types.Instance{
			"opsman": {
				{ID: "1", RunHandle: "build-opsman-run-1", Status: types.StatusRunning()},
				{ID: "2", RunHandle: "build-opsman-run-2", Status: types.StatusSucceeded(), Dirty: true},
				{ID: "3", RunHandle: "build-opsman-run-3", Status: types.StatusSucceeded(), Dirty: true},
				{ID: "4", RunHandle: "clean-opsman-run-1", Status: types.StatusRunning(), ReclaimOf: "2"},
			},
			"gcp-env": nil,
		},
		accounts: []*types.Account{{Name: "gcp", Total: 3, InStock: 1}},
	}

	NewCollector(source, fixedDepth(7), 0).Collect()

	assert.Equal(t, 2.0, testutil.ToFloat64(ArtifactsTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(QueueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(InstancesTotal.WithLabelValues("build", "Succeeded", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(InstancesTotal.WithLabelValues("clean", "Running", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(AccountStock.WithLabelValues("gcp")))
}
