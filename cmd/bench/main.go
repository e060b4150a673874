package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/i5heu/GoBlockingQueue/internal/testbench"
	"github.com/i5heu/GoBlockingQueue/pkg/boundedqueue"
	"github.com/i5heu/GoBlockingQueue/pkg/buffered"
	"github.com/i5heu/GoBlockingQueue/pkg/config"
	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// BenchmarkResult holds results for one test run.
type BenchmarkResult struct {
	Implementation      string  `json:"implementation"`
	NumProducers        int     `json:"num_producers"`
	NumConsumers        int     `json:"num_consumers"`
	Capacity            uint64  `json:"capacity"`
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

// FullReport represents a complete test session.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

// closableQueue is the method set every implementation exposes.
type closableQueue[T any] interface {
	Push(T) error
	Pop() (T, error)
	TryPush(T) (bool, error)
	TryPop() (T, bool, error)
	Close()
	FreeSlots() uint64
	UsedSlots() uint64
}

// Implementation represents a queue implementation.
type Implementation[T any, Q closableQueue[T]] struct {
	name        string
	description string
	pkgName     string
	authors     []string
	features    []string
	// newQueue receives the configured capacity; implementations with a
	// fixed or absent bound ignore it.
	newQueue func(capacity uint64) Q
}

type intQueue = closableQueue[*int]

// outputMarkdownTable loads the JSON file and outputs a Markdown table.
func outputMarkdownTable(jsonFile string) {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading JSON file %q: %v\n", jsonFile, err)
		os.Exit(1)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshalling JSON: %v\n", err)
		os.Exit(1)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "No sessions found in JSON.")
		os.Exit(1)
	}
	fmt.Print(renderMarkdownTable(sessions[len(sessions)-1], getImplementations()))
}

// renderMarkdownTable formats one session, best throughput first.
func renderMarkdownTable(session FullReport, impls []Implementation[*int, intQueue]) string {
	implMetaMap := make(map[string]Implementation[*int, intQueue])
	for _, impl := range impls {
		implMetaMap[impl.name] = impl
	}
	type tableRow struct {
		implementation string
		pkgName        string
		features       string
		author         string
		throughput     float64
	}
	var rows []tableRow
	for _, bench := range session.Benchmarks {
		meta, ok := implMetaMap[bench.Implementation]
		var pkgName, features, authors string
		if ok {
			pkgName = meta.pkgName
			features = strings.Join(meta.features, ", ")
			authors = strings.Join(meta.authors, ", ")
		}
		rows = append(rows, tableRow{
			implementation: bench.Implementation,
			pkgName:        pkgName,
			features:       features,
			author:         authors,
			throughput:     bench.Throughput,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].throughput > rows[j].throughput
	})

	var sb strings.Builder
	sb.WriteString("## Last Session Benchmark Summary\n\n")
	sb.WriteString("| Implementation           | Package         | Features                    | Author                      | Throughput (msgs/sec) |\n")
	sb.WriteString("|--------------------------|-----------------|-----------------------------|-----------------------------|-----------------------|\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "| %-24s | %-15s | %-27s | %-27s | %21.0f |\n",
			r.implementation, r.pkgName, r.features, r.author, r.throughput)
	}
	return sb.String()
}

// cpuSettings picks the GOMAXPROCS values to test.
func cpuSettings(requested, trueCPUCount int) []int {
	if requested > 0 {
		if requested > trueCPUCount {
			requested = trueCPUCount
		}
		return []int{requested}
	}
	// Define the common CPU/vCPU settings.
	commonCPUs := []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}
	var out []int
	for _, v := range commonCPUs {
		if v <= trueCPUCount {
			out = append(out, v)
		}
	}
	return out
}

func newProgressBar(enabled bool, total int) *progressbar.ProgressBar {
	if !enabled {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Progress"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetWidth(20),
		progressbar.OptionClearOnFinish(),
	)
}

func main() {
	// Flags.
	configPath := flag.String("config", "bench.yaml", "Path to a YAML benchmark config (optional)")
	testIterations := flag.Int("iter", 0, "Number of test iterations per concurrency setting (overrides config)")
	cpuMaxFlag := flag.Int("cpu", 0, "If non-zero, test only that GOMAXPROCS value; if 0, test common CPU/vCPU values up to runtime.NumCPU()")
	jsonExport := flag.Bool("json", false, "Export results as JSON to test-results.json")
	highConcurrency := flag.Bool("high-concurrency", false, "Include high concurrency configurations")
	markdownTable := flag.Bool("markdown-table", false, "Output markdown table from test-results.json and exit")
	jsonFileForMarkdown := flag.String("jsonfile", "test-results.json", "Path to JSON file for markdown table")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA")
	tasksFlag := flag.Int("tasks", 0, "If non-zero, run a task handoff verification with that many tasks instead of the timed benchmark")
	flag.Parse()

	if *markdownTable {
		outputMarkdownTable(*jsonFileForMarkdown)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *testIterations > 0 {
		cfg.Iterations = *testIterations
	}
	if *cpuMaxFlag > 0 {
		cfg.CPU = *cpuMaxFlag
	}
	if *highConcurrency {
		cfg.HighConcurrency = true
	}
	if *tasksFlag > 0 {
		cfg.Tasks = *tasksFlag
	}

	if cfg.Tasks > 0 {
		if !runTaskVerification(cfg) {
			os.Exit(1)
		}
		return
	}

	allSessions := runTimedBenchmarks(cfg, *progressFlag)

	// If JSON export is requested, append the new sessions to test-results.json.
	if *jsonExport {
		const filename = "test-results.json"
		if err := appendSessions(filename, allSessions); err != nil {
			fmt.Fprintln(os.Stderr, "Error writing JSON file:", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote results to %s\n", filename)
	}
}

// runTimedBenchmarks iterates GOMAXPROCS settings × concurrency × iteration × implementation.
func runTimedBenchmarks(cfg config.BenchConfig, showProgress bool) []FullReport {
	trueCpuCount := runtime.NumCPU()
	cpus := cpuSettings(cfg.CPU, trueCpuCount)
	concurrencyConfigs := cfg.ConcurrencyConfigs()
	impls := getImplementations()

	totalTests := len(cpus) * len(concurrencyConfigs) * cfg.Iterations * len(impls)
	bar := newProgressBar(showProgress, totalTests)

	var allSessions []FullReport
	for _, n := range cpus {
		runtime.GOMAXPROCS(n)
		sysInfo := gatherSystemInfo()
		sysInfo.NumCPU = n
		sysInfo.TrueCPU = trueCpuCount
		sysInfo.SimulatedCPUCount = n

		fmt.Printf("\n=============================\n")
		fmt.Printf("GOMAXPROCS = %d\n", n)
		fmt.Printf("=============================\n")

		var results []BenchmarkResult
		for _, cc := range concurrencyConfigs {
			fmt.Printf("  [Concurrency: producers=%d, consumers=%d]\n", cc.NumProducers, cc.NumConsumers)
			for iteration := 1; iteration <= cfg.Iterations; iteration++ {
				fmt.Printf("    iteration %d/%d\n", iteration, cfg.Iterations)
				for _, impl := range impls {
					runtime.GC()
					q := impl.newQueue(cfg.Capacity)
					time.Sleep(250 * time.Millisecond)

					produced, consumed, actualTime := testbench.RunTimedTest[*int](
						q,
						cc,
						cfg.TestDuration,
						func(i int) *int {
							v := i
							return &v
						},
					)
					throughput := float64(consumed) / actualTime.Seconds()

					if bar != nil {
						bar.Clear()
					}
					fmt.Printf("    %s => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%v\n",
						impl.name, produced, consumed, throughput, actualTime)
					if produced != consumed {
						fmt.Fprintf(os.Stderr, "    WARNING: %s lost %d messages\n", impl.name, produced-consumed)
					}
					if bar != nil {
						bar.Add(1)
					}

					results = append(results, BenchmarkResult{
						Implementation:      impl.name,
						NumProducers:        cc.NumProducers,
						NumConsumers:        cc.NumConsumers,
						Capacity:            cfg.Capacity,
						NumMessages:         produced,
						NumMessagesConsumed: consumed,
						TestDuration:        cfg.TestDuration.String(),
						ActualElapsed:       actualTime.String(),
						Throughput:          throughput,
						Timestamp:           time.Now().Unix(),
						GoVersion:           runtime.Version(),
					})
				}
			}
		}

		allSessions = append(allSessions, FullReport{
			SessionTime: time.Now().Format(time.RFC3339),
			SystemInfo:  sysInfo,
			Benchmarks:  results,
		})
	}

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	return allSessions
}

// runTaskVerification hands cfg.Tasks ids through every implementation at
// every concurrency level and checks each id arrives exactly once.
func runTaskVerification(cfg config.BenchConfig) bool {
	ok := true
	for _, cc := range cfg.ConcurrencyConfigs() {
		for _, impl := range getImplementations() {
			q := impl.newQueue(cfg.Capacity)
			res := testbench.RunTaskTest[*int](q, cc, cfg.Tasks, func(i int) *int {
				v := i
				return &v
			})
			missing, duplicated := verifyTasks(res.Values, cfg.Tasks)
			status := "ok"
			if missing > 0 || duplicated > 0 || res.Produced != res.Consumed {
				status = "FAILED"
				ok = false
			}
			fmt.Printf("  %-28s p=%-3d c=%-3d produced=%d consumed=%d missing=%d duplicated=%d took=%v %s\n",
				impl.name, cc.NumProducers, cc.NumConsumers, res.Produced, res.Consumed,
				missing, duplicated, res.Elapsed, status)
		}
	}
	return ok
}

// verifyTasks counts ids in 1..total that never arrived and ids that arrived more than once.
func verifyTasks(values []*int, total int) (missing, duplicated int) {
	seen := make([]int, total+1)
	for _, v := range values {
		if v == nil || *v < 1 || *v > total {
			duplicated++
			continue
		}
		seen[*v]++
	}
	for id := 1; id <= total; id++ {
		switch {
		case seen[id] == 0:
			missing++
		case seen[id] > 1:
			duplicated += seen[id] - 1
		}
	}
	return missing, duplicated
}

// appendSessions appends sessions to the JSON file, creating it if needed.
func appendSessions(filename string, sessions []FullReport) error {
	var previous []FullReport
	if data, err := os.ReadFile(filename); err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &previous); err != nil {
			return fmt.Errorf("decoding %s: %w", filename, err)
		}
	}
	updated := append(previous, sessions...)
	data, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo() SystemInfo {
	numCPU := runtime.NumCPU()
	goArch := runtime.GOARCH

	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return SystemInfo{
		NumCPU:      numCPU,
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      goArch,
		TotalMemory: totalMemory,
	}
}

// getImplementations enumerates our different queue implementations.
func getImplementations() []Implementation[*int, intQueue] {
	return []Implementation[*int, intQueue]{
		{
			name:        "BoundedBlockingQueue",
			pkgName:     "boundedqueue",
			description: "Mutex plus two condition variables over a ring buffer, using the configured capacity.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Closable", "Backpressure"},
			newQueue: func(capacity uint64) intQueue {
				if capacity == boundedqueue.Unbounded {
					capacity = 1024
				}
				return boundedqueue.New[*int](capacity)
			},
		},
		{
			name:        "BoundedBlockingQueue (cap 1)",
			pkgName:     "boundedqueue",
			description: "The same queue with a single slot, so every handoff goes through backpressure.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Closable", "Backpressure"},
			newQueue: func(uint64) intQueue {
				return boundedqueue.New[*int](1)
			},
		},
		{
			name:        "UnboundedBlockingQueue",
			pkgName:     "boundedqueue",
			description: "The same queue without a bound; producers never block, the ring grows instead.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Closable", "Unbounded"},
			newQueue: func(uint64) intQueue {
				return boundedqueue.NewUnbounded[*int]()
			},
		},
		{
			name:        "Golang Buffered Channel",
			pkgName:     "buffered",
			description: "A buffered channel with a done channel and in-flight sender tracking for Close.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Closable", "Backpressure"},
			newQueue: func(capacity uint64) intQueue {
				if capacity == boundedqueue.Unbounded {
					capacity = 1024
				}
				return buffered.New[*int](capacity)
			},
		},
	}
}
