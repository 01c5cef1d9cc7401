package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scavtools/scavminer/internal/logging"
)

// Config is the full scavminer configuration, loaded from YAML with
// command-line overrides applied on top.
type Config struct {
	API     APIConfig      `yaml:"api"`
	Mining  MiningConfig   `yaml:"mining"`
	Rom     RomConfig      `yaml:"rom"`
	Storage StorageConfig  `yaml:"storage"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Logging logging.Config `yaml:"logging"`
}

// APIConfig points the miner at the Scavenger Mine service.
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// MiningConfig controls wallet rotation and the search workload.
type MiningConfig struct {
	WalletsFile string `yaml:"wallets_file"`

	// CPUPercent sizes the worker pool: threads = ceil(logical CPUs * pct/100).
	CPUPercent float64 `yaml:"cpu_percent"`

	// MaxHashesMillions is the soft per-task hash budget. Zero means no limit.
	MaxHashesMillions float64 `yaml:"max_hashes_millions"`
}

// RomConfig carries the Scavenger Mine whitepaper parameters for the
// keyed memory table and the hash rounds.
type RomConfig struct {
	SizeBytes    int    `yaml:"size_bytes"`
	PreSizeBytes int    `yaml:"pre_size_bytes"`
	MixRounds    int    `yaml:"mix_rounds"`
	HashLoops    uint32 `yaml:"hash_loops"`
	HashInstrs   uint32 `yaml:"hash_instrs"`
}

// StorageConfig locates the durable record directories.
type StorageConfig struct {
	SolutionsDir       string `yaml:"solutions_dir"`
	DifficultTasksFile string `yaml:"difficult_tasks_file"`
}

// MetricsConfig controls the Prometheus/status listener.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://mine.defensio.io/api",
			TimeoutSeconds: 30,
		},
		Mining: MiningConfig{
			WalletsFile: "wallets.txt",
			CPUPercent:  50,
		},
		Rom: RomConfig{
			SizeBytes:    1 << 30, // 1 GiB
			PreSizeBytes: 16 << 20,
			MixRounds:    4,
			HashLoops:    8,
			HashInstrs:   256,
		},
		Storage: StorageConfig{
			SolutionsDir:       "solutions",
			DifficultTasksFile: "difficult_tasks.json",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with.
// These are operator errors and fatal at startup.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be positive, got %d", c.API.TimeoutSeconds)
	}
	if c.Mining.WalletsFile == "" {
		return fmt.Errorf("mining.wallets_file must not be empty")
	}
	if c.Mining.CPUPercent < 1 || c.Mining.CPUPercent > 100 {
		return fmt.Errorf("mining.cpu_percent must be in [1,100], got %g", c.Mining.CPUPercent)
	}
	if c.Mining.MaxHashesMillions < 0 {
		return fmt.Errorf("mining.max_hashes_millions must not be negative")
	}
	if c.Rom.SizeBytes <= 0 || c.Rom.PreSizeBytes <= 0 {
		return fmt.Errorf("rom sizes must be positive")
	}
	if c.Rom.PreSizeBytes > c.Rom.SizeBytes {
		return fmt.Errorf("rom.pre_size_bytes must not exceed rom.size_bytes")
	}
	if c.Rom.MixRounds < 1 {
		return fmt.Errorf("rom.mix_rounds must be at least 1")
	}
	if c.Rom.HashLoops == 0 || c.Rom.HashInstrs == 0 {
		return fmt.Errorf("rom.hash_loops and rom.hash_instrs must be positive")
	}
	if c.Storage.SolutionsDir == "" || c.Storage.DifficultTasksFile == "" {
		return fmt.Errorf("storage paths must not be empty")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr must be set when metrics are enabled")
	}
	return nil
}

// MaxHashes converts the configured budget to a hash count. Zero means
// unlimited.
func (c *Config) MaxHashes() uint64 {
	if c.Mining.MaxHashesMillions <= 0 {
		return 0
	}
	return uint64(c.Mining.MaxHashesMillions * 1_000_000)
}
