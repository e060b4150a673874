package main

import (
	"testing"

	"gonum.org/v1/plot/vg/draw"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{1, 2, 3}))
	assert.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
}

func TestAverageOfRange(t *testing.T) {
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = float64(i)
	}
	assert.Equal(t, 24.5, averageOfRange(vals, 0, 0.5))
	assert.Equal(t, 74.5, averageOfRange(vals, 0.5, 1.0))

	// Too few samples for a 5% slice falls back to the median.
	assert.Equal(t, 2.0, averageOfRange([]float64{1, 2, 3}, 0, 0.05))
	assert.Zero(t, averageOfRange(nil, 0, 1))
}

func TestFormatNs(t *testing.T) {
	assert.Equal(t, "500ns", formatNs(500))
	assert.Equal(t, "1.5µs", formatNs(1500))
	assert.Equal(t, "2.0ms", formatNs(2e6))
	assert.Equal(t, "3.00s", formatNs(3e9))
}

func TestGroupPoints(t *testing.T) {
	sessions := []FullReport{{
		SystemInfo: SystemInfo{NumCPU: 8, SimulatedCPUCount: 4},
		Benchmarks: []BenchmarkResult{
			{Implementation: "BoundedBlockingQueue", Capacity: 1024, NumProducers: 2, NumConsumers: 2, NumMessagesConsumed: 1000, ActualElapsed: "1ms"},
			{Implementation: "BoundedBlockingQueue", Capacity: 1024, NumProducers: 2, NumConsumers: 2, NumMessagesConsumed: 500, ActualElapsed: "1ms"},
			{Implementation: "Golang Buffered Channel", NumProducers: 1, NumConsumers: 1, NumMessagesConsumed: 0, ActualElapsed: "1ms"},
			{Implementation: "broken", NumProducers: 1, NumConsumers: 1, NumMessagesConsumed: 10, ActualElapsed: "soon"},
		},
	}}

	grouped := groupPoints(sessions)
	require.Contains(t, grouped, 4)
	series := grouped[4]
	require.Len(t, series, 1, "zero-consumed and unparsable results are skipped")
	k := seriesKey{impl: "BoundedBlockingQueue", capacity: 1024}
	assert.Equal(t, []float64{1000, 2000}, series[k][4])
	assert.Equal(t, "BoundedBlockingQueue @1024", k.String())
}

func TestBuildStats(t *testing.T) {
	stats := buildStats(map[float64][]float64{4: {3, 1, 2}})
	require.Len(t, stats, 1)
	assert.Equal(t, 4.0, stats[0].orig)
	assert.Equal(t, 2.0, stats[0].median)
}

func TestSortedKeysKeepCapacitiesTogether(t *testing.T) {
	series := seriesSet{
		{impl: "chan", capacity: 64}:      nil,
		{impl: "bounded", capacity: 1024}: nil,
		{impl: "bounded", capacity: 1}:    nil,
		{impl: "bounded"}:                 nil,
	}
	assert.Equal(t, []seriesKey{
		{impl: "bounded"},
		{impl: "bounded", capacity: 1},
		{impl: "bounded", capacity: 1024},
		{impl: "chan", capacity: 64},
	}, series.sortedKeys())
}

func TestAssignStylesColorPerImplementation(t *testing.T) {
	keys := []seriesKey{
		{impl: "bounded", capacity: 1},
		{impl: "bounded", capacity: 1024},
		{impl: "chan", capacity: 64},
	}
	styles := assignStyles(keys)

	assert.Equal(t, styles[keys[0]].color, styles[keys[1]].color)
	assert.NotEqual(t, styles[keys[0]].color, styles[keys[2]].color)
	assert.Equal(t, draw.CircleGlyph{}, styles[keys[0]].shape)
	assert.Equal(t, draw.SquareGlyph{}, styles[keys[1]].shape)
	assert.Equal(t, draw.CircleGlyph{}, styles[keys[2]].shape)
}

func TestCategoryAxis(t *testing.T) {
	series := seriesSet{
		{impl: "a"}: {8: {1}, 2: {1}},
		{impl: "b"}: {4: {1}, 2: {1}},
	}
	levels := series.concurrencyLevels()
	assert.Equal(t, []float64{2, 4, 8}, levels)

	slot, ticks := categoryAxis(levels)
	assert.Equal(t, map[float64]float64{2: 0, 4: 1, 8: 2}, slot)
	assert.Equal(t, []string{"2", "4", "8"}, ticks.labels)

	got := ticks.Ticks(0.5, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].Label)
	assert.Equal(t, "8", got[1].Label)
}

func TestXOffsetStaysInsideBand(t *testing.T) {
	assert.InDelta(t, 0, xOffset(0, 1), 1e-9)
	assert.InDelta(t, -0.1, xOffset(0, 2), 1e-9)
	assert.InDelta(t, 0.1, xOffset(1, 2), 1e-9)
	for n := 1; n <= 6; n++ {
		for i := 0; i < n; i++ {
			off := xOffset(i, n)
			assert.Greater(t, off, -0.2)
			assert.Less(t, off, 0.2)
		}
	}
}
