package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nounverb/nounverb/pkg/partition"
)

func seedManager(t *testing.T, strategy partition.Strategy) *partition.Manager {
	t.Helper()
	cfg := partition.DefaultConfig(2)
	cfg.Strategy = strategy
	cfg.MaxNodesPerPartition = 1000
	m := partition.New(cfg)

	if strategy != partition.Hash {
		sample := [][]float32{
			{0, 0}, {0, 1}, {1, 0},
			{100, 100}, {100, 101}, {101, 100},
		}
		m.TrainCentroids(sample)
	}

	require.NoError(t, m.Add("near-origin-1", []float32{0, 0}))
	require.NoError(t, m.Add("near-origin-2", []float32{0.1, 0.1}))
	require.NoError(t, m.Add("near-hundred-1", []float32{100, 100}))
	require.NoError(t, m.Add("near-hundred-2", []float32{100.1, 100.1}))
	return m
}

func TestCoordinatorExhaustiveMergesAcrossPartitions(t *testing.T) {
	m := seedManager(t, partition.Hash)
	cfg := DefaultConfig()
	cfg.Strategy = Exhaustive
	c := New(m, cfg)

	res, err := c.Search(context.Background(), []float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "near-origin-1", res[0].ID)
}

func TestCoordinatorTopTLimitsPartitionsProbed(t *testing.T) {
	m := seedManager(t, partition.Semantic)
	cfg := DefaultConfig()
	cfg.Strategy = TopT
	cfg.T = 1
	c := New(m, cfg)

	res, err := c.Search(context.Background(), []float32{0, 0}, 5)
	require.NoError(t, err)
	for _, r := range res {
		assert.Contains(t, []string{"near-origin-1", "near-origin-2"}, r.ID)
	}
}

func TestCoordinatorAdaptiveDegradesGracefullyWithoutCentroids(t *testing.T) {
	m := seedManager(t, partition.Hash)
	cfg := DefaultConfig()
	cfg.Strategy = Adaptive
	c := New(m, cfg)

	res, err := c.Search(context.Background(), []float32{0, 0}, 4)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res), 4)
}

func TestCoordinatorResultsSortedByDistance(t *testing.T) {
	m := seedManager(t, partition.Hash)
	c := New(m, DefaultConfig())

	res, err := c.Search(context.Background(), []float32{0, 0}, 4)
	require.NoError(t, err)
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
	}
}

func TestCoordinatorRejectsAlreadyCancelledContext(t *testing.T) {
	m := seedManager(t, partition.Hash)
	c := New(m, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, []float32{0, 0}, 1)
	assert.Error(t, err)
}
