package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/BinJu/train/pkg/types"
)

// Source is the read-only view of state the collector samples
type Source interface {
	ListArtifactIDs() ([]string, error)
	ListInstances(artID string) ([]*types.Instance, error)
	ListAccounts() ([]*types.Account, error)
}

// DepthSource reports the queue depth
type DepthSource interface {
	Depth(ctx context.Context) (int, error)
}

// Collector periodically refreshes the inventory gauges
type Collector struct {
	source   Source
	queue    DepthSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, queue DepthSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		queue:    queue,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples every gauge once
func (c *Collector) Collect() {
	c.collectInstances()
	c.collectAccounts()
	c.collectQueue()
}

func (c *Collector) collectInstances() {
	ids, err := c.source.ListArtifactIDs()
	if err != nil {
		return
	}
	ArtifactsTotal.Set(float64(len(ids)))

	type key struct {
		kind  types.RolloutKind
		state types.InstanceState
		dirty bool
	}
	counts := make(map[key]int)
	for _, id := range ids {
		insts, err := c.source.ListInstances(id)
		if err != nil {
			continue
		}
		for _, inst := range insts {
			counts[key{inst.Kind(), inst.Status.State, inst.Dirty}]++
		}
	}

	InstancesTotal.Reset()
	for k, n := range counts {
		InstancesTotal.WithLabelValues(string(k.kind), string(k.state), strconv.FormatBool(k.dirty)).Set(float64(n))
	}
}

func (c *Collector) collectAccounts() {
	accounts, err := c.source.ListAccounts()
	if err != nil {
		return
	}
	AccountStock.Reset()
	for _, acct := range accounts {
		AccountStock.WithLabelValues(acct.Name).Set(float64(acct.InStock))
	}
}

func (c *Collector) collectQueue() {
	if c.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	depth, err := c.queue.Depth(ctx)
	if err != nil {
		return
	}
	QueueDepth.Set(float64(depth))
}
