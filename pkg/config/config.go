package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/i5heu/GoBlockingQueue/internal/testbench"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is an alias for testbench.Config. This allows other programs to import
// the queue configuration without pulling in the entire testbench package.
type Config = testbench.Config

// BenchConfig describes one benchmark session.
type BenchConfig struct {
	Iterations      int           `yaml:"iterations"`
	TestDuration    time.Duration `yaml:"test_duration"`
	Capacity        uint64        `yaml:"capacity"`
	Tasks           int           `yaml:"tasks"`
	CPU             int           `yaml:"cpu"`
	HighConcurrency bool          `yaml:"high_concurrency"`
	Concurrency     []Config      `yaml:"concurrency"`
}

// Default returns the settings the bench command used before it had a config file.
func Default() BenchConfig {
	return BenchConfig{
		Iterations:   5,
		TestDuration: 5 * time.Second,
		Capacity:     1024,
		Concurrency: []Config{
			{NumProducers: 2, NumConsumers: 2},
			{NumProducers: 10, NumConsumers: 10},
			{NumProducers: 50, NumConsumers: 50},
		},
	}
}

// HighConcurrencyConfigs are appended when HighConcurrency is set.
var HighConcurrencyConfigs = []Config{
	{NumProducers: 100, NumConsumers: 100},
	{NumProducers: 250, NumConsumers: 250},
	{NumProducers: 500, NumConsumers: 500},
}

// Load reads a YAML config from path on top of Default. A missing file is
// not an error. Environment overrides (QBENCH_*) are applied afterwards,
// with an optional .env file in the working directory loaded first.
func Load(path string) (BenchConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %q: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *BenchConfig) applyEnv(getenv func(string) string) error {
	if v := getenv("QBENCH_ITER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QBENCH_ITER: %w", err)
		}
		c.Iterations = n
	}
	if v := getenv("QBENCH_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("QBENCH_DURATION: %w", err)
		}
		c.TestDuration = d
	}
	if v := getenv("QBENCH_CAPACITY"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("QBENCH_CAPACITY: %w", err)
		}
		c.Capacity = n
	}
	if v := getenv("QBENCH_TASKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QBENCH_TASKS: %w", err)
		}
		c.Tasks = n
	}
	if v := getenv("QBENCH_CPU"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QBENCH_CPU: %w", err)
		}
		c.CPU = n
	}
	if v := getenv("QBENCH_HIGH_CONCURRENCY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("QBENCH_HIGH_CONCURRENCY: %w", err)
		}
		c.HighConcurrency = b
	}
	return nil
}

// Validate rejects settings the bench command cannot run with.
func (c BenchConfig) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.TestDuration <= 0 {
		return fmt.Errorf("test_duration must be positive, got %s", c.TestDuration)
	}
	if c.Tasks < 0 {
		return fmt.Errorf("tasks must not be negative, got %d", c.Tasks)
	}
	if len(c.Concurrency) == 0 {
		return errors.New("at least one concurrency configuration is required")
	}
	for i, cc := range c.Concurrency {
		if cc.NumProducers < 1 || cc.NumConsumers < 1 {
			return fmt.Errorf("concurrency[%d]: producers and consumers must be positive, got %d/%d",
				i, cc.NumProducers, cc.NumConsumers)
		}
	}
	return nil
}

// ConcurrencyConfigs returns the configured concurrency levels, extended
// with HighConcurrencyConfigs when requested.
func (c BenchConfig) ConcurrencyConfigs() []Config {
	out := append([]Config(nil), c.Concurrency...)
	if c.HighConcurrency {
		out = append(out, HighConcurrencyConfigs...)
	}
	return out
}
