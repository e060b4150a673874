package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// BenchmarkResult holds one benchmark result using the new test schema.
type BenchmarkResult struct {
	Implementation      string  `json:"implementation"`
	NumProducers        int     `json:"num_producers"`
	NumConsumers        int     `json:"num_consumers"`
	Capacity            uint64  `json:"capacity,omitempty"`
	NumMessages         int64   `json:"num_messages"`          // produced count
	NumMessagesConsumed int64   `json:"num_messages_consumed"` // consumed count
	TestDuration        string  `json:"test_duration"`         // e.g. "10s"
	ActualElapsed       string  `json:"actual_elapsed"`        // measured time
	Throughput          float64 `json:"throughput_msgs_sec"`   // based on consumed count
	Timestamp           int64   `json:"timestamp"`
	GoVersion           string  `json:"go_version"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU            int     `json:"num_cpu"`
	TrueCPU           int     `json:"true_cpu,omitempty"`
	SimulatedCPUCount int     `json:"simulated_cpu_count,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz       float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH            string  `json:"go_arch"`
	TotalMemory       uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete test session using the new scheme.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

// concurrencyStats holds "5%-avg-min", median, and "5%-avg-max" for each concurrency level.
type concurrencyStats struct {
	concurrency float64 // replaced with category index
	orig        float64 // original concurrency value
	min         float64 // "average of bottom 5%"
	median      float64
	max         float64 // "average of top 5%"
}

// statsPoints implements XYer and YErrorer for concurrencyStats, so we can plot lines + error bars.
type statsPoints []concurrencyStats

func (s statsPoints) Len() int                { return len(s) }
func (s statsPoints) XY(i int) (x, y float64) { return s[i].concurrency, s[i].median }
func (s statsPoints) YError(i int) (low, high float64) {
	low = s[i].median - s[i].min
	high = s[i].max - s[i].median
	return low, high
}

// categoryTicks implements a categorical X-axis: 0,1,2,... => labels for concurrency.
type categoryTicks struct {
	positions []float64
	labels    []string
}

func (ct categoryTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, pos := range ct.positions {
		if pos >= min && pos <= max {
			ticks = append(ticks, plot.Tick{Value: pos, Label: ct.labels[i]})
		}
	}
	return ticks
}

// denseLogTicks spaces labelled ticks evenly in log10 space, roughly one
// every 30px on a 9 inch tall image.
func denseLogTicks(min, max float64) []plot.Tick {
	const pxHeight = 648.0
	const pxSpacing = 30.0
	nTicks := pxHeight / pxSpacing

	// log10(0) is invalid.
	if min <= 0 {
		min = 1e-9
	}
	start := math.Log10(min)
	end := math.Log10(max)
	step := (end - start) / nTicks

	var ticks []plot.Tick
	for i := 0.0; i <= nTicks; i++ {
		y := math.Pow(10, start+i*step)
		ticks = append(ticks, plot.Tick{Value: y, Label: formatNs(y)})
	}
	return ticks
}

// seriesKey identifies one plotted line: an implementation at one queue
// capacity. Capacity 0 covers unbounded queues and results recorded
// before capacity was part of the export.
type seriesKey struct {
	impl     string
	capacity uint64
}

func keyOf(b BenchmarkResult) seriesKey {
	return seriesKey{impl: b.Implementation, capacity: b.Capacity}
}

func (k seriesKey) String() string {
	if k.capacity == 0 {
		return k.impl
	}
	return fmt.Sprintf("%s @%d", k.impl, k.capacity)
}

// seriesSet maps each series to its ns/msg samples per concurrency level.
type seriesSet map[seriesKey]map[float64][]float64

// sortedKeys orders series by implementation, then by ascending capacity,
// so the capacity variants of one queue sit next to each other.
func (s seriesSet) sortedKeys() []seriesKey {
	keys := make([]seriesKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].impl != keys[b].impl {
			return keys[a].impl < keys[b].impl
		}
		return keys[a].capacity < keys[b].capacity
	})
	return keys
}

// concurrencyLevels returns every concurrency value seen in any series, ascending.
func (s seriesSet) concurrencyLevels() []float64 {
	seen := make(map[float64]struct{})
	for _, byConc := range s {
		for conc := range byConc {
			seen[conc] = struct{}{}
		}
	}
	levels := make([]float64, 0, len(seen))
	for conc := range seen {
		levels = append(levels, conc)
	}
	sort.Float64s(levels)
	return levels
}

// categoryAxis places the concurrency levels at 0,1,2,... on the X axis.
func categoryAxis(levels []float64) (map[float64]float64, categoryTicks) {
	slot := make(map[float64]float64, len(levels))
	ticks := categoryTicks{
		positions: make([]float64, 0, len(levels)),
		labels:    make([]string, 0, len(levels)),
	}
	for i, conc := range levels {
		slot[conc] = float64(i)
		ticks.positions = append(ticks.positions, float64(i))
		ticks.labels = append(ticks.labels, strconv.FormatFloat(conc, 'f', -1, 64))
	}
	return slot, ticks
}

// seriesStyle gives every implementation its own color and every capacity
// of that implementation its own glyph.
type seriesStyle struct {
	color color.Color
	shape draw.GlyphDrawer
}

var glyphs = []draw.GlyphDrawer{
	draw.CircleGlyph{},
	draw.SquareGlyph{},
	draw.TriangleGlyph{},
	draw.CrossGlyph{},
	draw.PlusGlyph{},
}

// assignStyles expects keys in sortedKeys order.
func assignStyles(keys []seriesKey) map[seriesKey]seriesStyle {
	colors := plotutil.SoftColors
	styles := make(map[seriesKey]seriesStyle, len(keys))
	implIdx, capIdx := -1, 0
	for i, k := range keys {
		if i == 0 || k.impl != keys[i-1].impl {
			implIdx++
			capIdx = 0
		}
		styles[k] = seriesStyle{
			color: colors[implIdx%len(colors)],
			shape: glyphs[capIdx%len(glyphs)],
		}
		capIdx++
	}
	return styles
}

// xOffset shifts series i of n inside a 0.4 wide band around its category
// so neighbouring error bars stay apart.
func xOffset(i, n int) float64 {
	const band = 0.4
	step := band / float64(n)
	return -band/2 + step/2 + float64(i)*step
}

var (
	background = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	foreground = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func newDarkPlot(cpus int) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Blocking queue handoff (5%%-avg-min / Median / 5%%-avg-max) vs. Concurrency for %d CPU(s)", cpus)
	p.X.Label.Text = "NumProducers + NumConsumers"
	p.Y.Label.Text = "Time per Msg (ns) [log scale]"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.TickerFunc(denseLogTicks)

	p.BackgroundColor = background
	p.Title.TextStyle.Color = foreground
	for _, ax := range []*plot.Axis{&p.X, &p.Y} {
		ax.Color = foreground
		ax.Label.TextStyle.Color = foreground
		ax.Tick.Label.Color = foreground
	}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Color = foreground

	p.Add(plotter.NewGrid())
	return p
}

// addSeries draws the median line, the sample glyphs and the 5% error bars
// for one series and adds it to the legend.
func addSeries(p *plot.Plot, label string, stats []concurrencyStats, style seriesStyle) error {
	sp := statsPoints(stats)

	line, err := plotter.NewLine(sp)
	if err != nil {
		return fmt.Errorf("line: %w", err)
	}
	line.Color = style.color

	points, err := plotter.NewScatter(sp)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	points.GlyphStyle.Radius = vg.Points(5)
	points.Color = style.color
	points.Shape = style.shape

	bars, err := plotter.NewYErrorBars(sp)
	if err != nil {
		return fmt.Errorf("error bars: %w", err)
	}
	bars.Color = style.color

	p.Add(line, points, bars)
	p.Legend.Add(label, line, points)
	return nil
}

// renderGraph writes the plot for one CPU count to filename.
func renderGraph(cpus int, series seriesSet, filename string) error {
	p := newDarkPlot(cpus)

	slot, ticks := categoryAxis(series.concurrencyLevels())
	p.X.Tick.Marker = ticks

	keys := series.sortedKeys()
	styles := assignStyles(keys)
	for i, k := range keys {
		stats := buildStats(series[k])
		if len(stats) == 0 {
			continue
		}
		for j := range stats {
			stats[j].concurrency = slot[stats[j].orig] + xOffset(i, len(keys))
		}
		sort.Slice(stats, func(a, b int) bool {
			return stats[a].concurrency < stats[b].concurrency
		})
		if err := addSeries(p, k.String(), stats, styles[k]); err != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", k, err)
		}
	}
	return p.Save(12*vg.Inch, 9*vg.Inch, filename)
}

func main() {
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to JSON file containing test sessions")
	outputPrefix := flag.String("out", "benchmark_graph", "Output graph image filename prefix")
	flag.Parse()

	data, err := os.ReadFile(*jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading JSON file: %v\n", err)
		os.Exit(1)
	}

	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshalling JSON: %v\n", err)
		os.Exit(1)
	}

	byCPU := groupPoints(sessions)
	cpuCounts := make([]int, 0, len(byCPU))
	for cpus := range byCPU {
		cpuCounts = append(cpuCounts, cpus)
	}
	sort.Ints(cpuCounts)

	for _, cpus := range cpuCounts {
		filename := fmt.Sprintf("%s_%d.png", *outputPrefix, cpus)
		if err := renderGraph(cpus, byCPU[cpus], filename); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving plot for %d CPU(s): %v\n", cpus, err)
			continue
		}
		fmt.Printf("Graph for %d CPU(s) saved to %s\n", cpus, filename)
	}
}

// groupPoints groups ns/msg values by CPU count, then by series, then by
// concurrency level.
func groupPoints(sessions []FullReport) map[int]seriesSet {
	byCPU := make(map[int]seriesSet)

	for _, session := range sessions {
		cpus := session.SystemInfo.SimulatedCPUCount
		if cpus == 0 {
			cpus = session.SystemInfo.NumCPU
		}
		series, ok := byCPU[cpus]
		if !ok {
			series = make(seriesSet)
			byCPU[cpus] = series
		}

		for _, b := range session.Benchmarks {
			dur, err := time.ParseDuration(b.ActualElapsed)
			if err != nil || b.NumMessagesConsumed == 0 {
				continue
			}
			nsPerMsg := float64(dur.Nanoseconds()) / float64(b.NumMessagesConsumed)
			conc := float64(b.NumProducers + b.NumConsumers)

			k := keyOf(b)
			if series[k] == nil {
				series[k] = make(map[float64][]float64)
			}
			series[k][conc] = append(series[k][conc], nsPerMsg)
		}
	}
	return byCPU
}

// buildStats computes "average of bottom 5%", median, and "average of top 5%".
func buildStats(concurrencyMap map[float64][]float64) []concurrencyStats {
	var out []concurrencyStats
	for x, vals := range concurrencyMap {
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		min5 := averageOfRange(vals, 0.0, 0.05)
		max5 := averageOfRange(vals, 0.95, 1.0)
		med := median(vals)

		out = append(out, concurrencyStats{
			concurrency: x,
			orig:        x,
			min:         min5,
			median:      med,
			max:         max5,
		})
	}
	return out
}

// averageOfRange returns the average of sortedVals in [startFrac, endFrac] of its length.
// E.g. averageOfRange(vals, 0, 0.05) is the average of the bottom 5%.
func averageOfRange(sortedVals []float64, startFrac, endFrac float64) float64 {
	n := len(sortedVals)
	if n == 0 {
		return 0
	}
	startIndex := int(float64(n) * startFrac)
	endIndex := int(float64(n) * endFrac)
	if startIndex < 0 {
		startIndex = 0
	}
	if endIndex > n {
		endIndex = n
	}
	if startIndex >= endIndex {
		// fallback to median if 5% slice is too small
		return median(sortedVals)
	}
	sum := 0.0
	for i := startIndex; i < endIndex; i++ {
		sum += sortedVals[i]
	}
	return sum / float64(endIndex-startIndex)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}

// formatNs nicely formats a nanoseconds value in ns, µs, ms, or s.
func formatNs(ns float64) string {
	switch {
	case ns < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case ns < 1e6:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	case ns < 1e9:
		return fmt.Sprintf("%.1fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}
