// Package config loads the database's configuration from environment
// variables (NOUNVERB_* prefix), optionally merged with a YAML file, and
// validates it before use.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every group from the spec's configuration table, organized
// by concern.
type Config struct {
	HNSW         HNSWConfig         `yaml:"hnsw"`
	Optimization OptimizationConfig `yaml:"optimization"`
	Partition    PartitionConfig    `yaml:"partition"`
	Storage      StorageConfig      `yaml:"storage"`
	Cache        CacheConfig        `yaml:"cache"`
	Timeouts     TimeoutsConfig     `yaml:"timeouts"`
	Retry        RetryConfig        `yaml:"retry"`
	Realtime     RealtimeConfig     `yaml:"realtime"`
	Modes        ModesConfig        `yaml:"modes"`
}

// HNSWConfig controls graph degree and search beam.
type HNSWConfig struct {
	M              int     `yaml:"m"`
	EfConstruction int     `yaml:"ef_construction"`
	EfSearch       int     `yaml:"ef_search"`
	LevelMultiplier float64 `yaml:"m_l"`

	// Dimensions fixes the vector length for this database instance. Zero
	// means infer it from the first insert, per §3's data model; once set
	// (explicitly or by inference) every subsequent vector must match.
	Dimensions int `yaml:"dimensions"`
}

// OptimizationConfig toggles the optimized HNSW variant's features.
type OptimizationConfig struct {
	EnableQuantization      bool `yaml:"enable_quantization"`
	EnablePartitioning      bool `yaml:"enable_partitioning"`
	EnableDistributedSearch bool `yaml:"enable_distributed_search"`
	EnablePredictiveCache   bool `yaml:"enable_predictive_cache"`
}

// PartitionConfig controls the partition manager's policy.
type PartitionConfig struct {
	MaxNodesPerPartition int    `yaml:"max_nodes_per_partition"`
	Strategy             string `yaml:"strategy"` // "hash", "semantic", "hybrid"
	SemanticClusters     int    `yaml:"semantic_clusters"`
}

// StorageConfig selects the backend and its credentials.
type StorageConfig struct {
	Backend        string `yaml:"backend"` // "memory", "filesystem", "s3"
	DataDir        string `yaml:"data_dir"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	ForceMemory    bool   `yaml:"force_memory"`
	ForceFilesystem bool  `yaml:"force_filesystem"`
}

// CacheConfig sizes the tiered cache and selects a prefetch strategy.
type CacheConfig struct {
	HotCapacity      int    `yaml:"hot_capacity"`
	WarmCapacity     int    `yaml:"warm_capacity"`
	PrefetchStrategy string `yaml:"prefetch_strategy"` // "neighborhood", "query_path", "hybrid", "none"
}

// TimeoutsConfig bounds per-operation latency, in milliseconds.
type TimeoutsConfig struct {
	GetMS    int `yaml:"get_ms"`
	AddMS    int `yaml:"add_ms"`
	DeleteMS int `yaml:"delete_ms"`
}

// RetryConfig is the exponential backoff applied to transient storage
// errors.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// RealtimeConfig controls the replica tail loop.
type RealtimeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	UpdateStats bool          `yaml:"update_stats"`
	UpdateIndex bool          `yaml:"update_index"`
}

// ModesConfig gates the façade. ReadOnly and WriteOnly are mutually
// exclusive; Validate rejects both set at once.
type ModesConfig struct {
	ReadOnly  bool `yaml:"read_only"`
	WriteOnly bool `yaml:"write_only"`
}

// Default returns the spec's stated defaults.
func Default() Config {
	return Config{
		HNSW: HNSWConfig{
			M: 16, EfConstruction: 200, EfSearch: 50, LevelMultiplier: 1 / ln16, Dimensions: 0,
		},
		Optimization: OptimizationConfig{},
		Partition: PartitionConfig{
			MaxNodesPerPartition: 50_000, Strategy: "hash", SemanticClusters: 8,
		},
		Storage: StorageConfig{Backend: "memory", DataDir: "./data"},
		Cache:   CacheConfig{HotCapacity: 1000, WarmCapacity: 10_000, PrefetchStrategy: "none"},
		Timeouts: TimeoutsConfig{GetMS: 30_000, AddMS: 60_000, DeleteMS: 30_000},
		Retry: RetryConfig{
			MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2,
		},
		Realtime: RealtimeConfig{Enabled: false, Interval: 5 * time.Second, UpdateStats: true, UpdateIndex: true},
		Modes:    ModesConfig{},
	}
}

const ln16 = 2.772588722239781 // math.Log(16), inlined to avoid importing math here

// LoadFromEnv starts from Default and overrides fields present in the
// environment under the NOUNVERB_ prefix, e.g. NOUNVERB_HNSW_M=32.
func LoadFromEnv() Config {
	return applyEnv(Default())
}

// applyEnv overrides the fields of cfg that are present in the environment.
func applyEnv(cfg Config) Config {
	cfg.HNSW.M = envInt("NOUNVERB_HNSW_M", cfg.HNSW.M)
	cfg.HNSW.EfConstruction = envInt("NOUNVERB_HNSW_EF_CONSTRUCTION", cfg.HNSW.EfConstruction)
	cfg.HNSW.EfSearch = envInt("NOUNVERB_HNSW_EF_SEARCH", cfg.HNSW.EfSearch)
	cfg.HNSW.LevelMultiplier = envFloat("NOUNVERB_HNSW_M_L", cfg.HNSW.LevelMultiplier)
	cfg.HNSW.Dimensions = envInt("NOUNVERB_HNSW_DIMENSIONS", cfg.HNSW.Dimensions)

	cfg.Optimization.EnableQuantization = envBool("NOUNVERB_OPTIMIZATION_ENABLE_QUANTIZATION", cfg.Optimization.EnableQuantization)
	cfg.Optimization.EnablePartitioning = envBool("NOUNVERB_OPTIMIZATION_ENABLE_PARTITIONING", cfg.Optimization.EnablePartitioning)
	cfg.Optimization.EnableDistributedSearch = envBool("NOUNVERB_OPTIMIZATION_ENABLE_DISTRIBUTED_SEARCH", cfg.Optimization.EnableDistributedSearch)
	cfg.Optimization.EnablePredictiveCache = envBool("NOUNVERB_OPTIMIZATION_ENABLE_PREDICTIVE_CACHE", cfg.Optimization.EnablePredictiveCache)

	cfg.Partition.MaxNodesPerPartition = envInt("NOUNVERB_PARTITION_MAX_NODES_PER_PARTITION", cfg.Partition.MaxNodesPerPartition)
	cfg.Partition.Strategy = envString("NOUNVERB_PARTITION_STRATEGY", cfg.Partition.Strategy)
	cfg.Partition.SemanticClusters = envInt("NOUNVERB_PARTITION_SEMANTIC_CLUSTERS", cfg.Partition.SemanticClusters)

	cfg.Storage.Backend = envString("NOUNVERB_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.DataDir = envString("NOUNVERB_STORAGE_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.S3Bucket = envString("NOUNVERB_STORAGE_S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Region = envString("NOUNVERB_STORAGE_S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.S3Endpoint = envString("NOUNVERB_STORAGE_S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3AccessKey = envString("NOUNVERB_STORAGE_S3_ACCESS_KEY", cfg.Storage.S3AccessKey)
	cfg.Storage.S3SecretKey = envString("NOUNVERB_STORAGE_S3_SECRET_KEY", cfg.Storage.S3SecretKey)
	cfg.Storage.ForceMemory = envBool("NOUNVERB_STORAGE_FORCE_MEMORY", cfg.Storage.ForceMemory)
	cfg.Storage.ForceFilesystem = envBool("NOUNVERB_STORAGE_FORCE_FILESYSTEM", cfg.Storage.ForceFilesystem)

	cfg.Cache.HotCapacity = envInt("NOUNVERB_CACHE_HOT_CAPACITY", cfg.Cache.HotCapacity)
	cfg.Cache.WarmCapacity = envInt("NOUNVERB_CACHE_WARM_CAPACITY", cfg.Cache.WarmCapacity)
	cfg.Cache.PrefetchStrategy = envString("NOUNVERB_CACHE_PREFETCH_STRATEGY", cfg.Cache.PrefetchStrategy)

	cfg.Timeouts.GetMS = envInt("NOUNVERB_TIMEOUTS_GET_MS", cfg.Timeouts.GetMS)
	cfg.Timeouts.AddMS = envInt("NOUNVERB_TIMEOUTS_ADD_MS", cfg.Timeouts.AddMS)
	cfg.Timeouts.DeleteMS = envInt("NOUNVERB_TIMEOUTS_DELETE_MS", cfg.Timeouts.DeleteMS)

	cfg.Retry.MaxRetries = envInt("NOUNVERB_RETRY_MAX_RETRIES", cfg.Retry.MaxRetries)
	cfg.Retry.InitialDelay = envDuration("NOUNVERB_RETRY_INITIAL_DELAY", cfg.Retry.InitialDelay)
	cfg.Retry.MaxDelay = envDuration("NOUNVERB_RETRY_MAX_DELAY", cfg.Retry.MaxDelay)
	cfg.Retry.Multiplier = envFloat("NOUNVERB_RETRY_MULTIPLIER", cfg.Retry.Multiplier)

	cfg.Realtime.Enabled = envBool("NOUNVERB_REALTIME_ENABLED", cfg.Realtime.Enabled)
	cfg.Realtime.Interval = envDuration("NOUNVERB_REALTIME_INTERVAL", cfg.Realtime.Interval)
	cfg.Realtime.UpdateStats = envBool("NOUNVERB_REALTIME_UPDATE_STATS", cfg.Realtime.UpdateStats)
	cfg.Realtime.UpdateIndex = envBool("NOUNVERB_REALTIME_UPDATE_INDEX", cfg.Realtime.UpdateIndex)

	cfg.Modes.ReadOnly = envBool("NOUNVERB_MODES_READ_ONLY", cfg.Modes.ReadOnly)
	cfg.Modes.WriteOnly = envBool("NOUNVERB_MODES_WRITE_ONLY", cfg.Modes.WriteOnly)

	return cfg
}

// LoadYAMLFile reads path and merges it onto base, with base's values
// winning wherever the YAML document leaves a field at its zero value.
// The environment is then applied on top, so a NOUNVERB_* variable wins
// over the same key in the file. Typical use: start from Default() or
// LoadFromEnv(), then apply a --config file.
func LoadYAMLFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return base, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return applyEnv(mergeNonZero(base, fileCfg)), nil
}

// Validate checks cross-field invariants that individual env/YAML parsing
// cannot catch.
func (c Config) Validate() error {
	if c.Modes.ReadOnly && c.Modes.WriteOnly {
		return fmt.Errorf("config: read_only and write_only are mutually exclusive")
	}
	if c.HNSW.M <= 0 {
		return fmt.Errorf("config: hnsw.m must be positive, got %d", c.HNSW.M)
	}
	if c.HNSW.EfSearch <= 0 {
		return fmt.Errorf("config: hnsw.ef_search must be positive, got %d", c.HNSW.EfSearch)
	}
	switch c.Storage.Backend {
	case "memory", "filesystem", "s3":
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("config: storage.s3_bucket is required when backend is s3")
	}
	switch c.Partition.Strategy {
	case "hash", "semantic", "hybrid":
	default:
		return fmt.Errorf("config: unknown partition.strategy %q", c.Partition.Strategy)
	}
	if c.Retry.Multiplier <= 1 {
		return fmt.Errorf("config: retry.multiplier must be > 1, got %f", c.Retry.Multiplier)
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

// mergeNonZero overlays file's non-zero fields onto base, field by field.
// base is expected to already be Default() or LoadFromEnv(); file comes
// from an optional --config YAML document. A field left unset in the YAML
// (zero value) keeps base's value, so the environment still wins over an
// absent YAML key. An explicit "false" in YAML cannot be distinguished
// from "absent" under this scheme; documented as a known limitation.
func mergeNonZero(base, file Config) Config {
	out := base

	if file.HNSW.M != 0 {
		out.HNSW.M = file.HNSW.M
	}
	if file.HNSW.EfConstruction != 0 {
		out.HNSW.EfConstruction = file.HNSW.EfConstruction
	}
	if file.HNSW.EfSearch != 0 {
		out.HNSW.EfSearch = file.HNSW.EfSearch
	}
	if file.HNSW.LevelMultiplier != 0 {
		out.HNSW.LevelMultiplier = file.HNSW.LevelMultiplier
	}
	if file.HNSW.Dimensions != 0 {
		out.HNSW.Dimensions = file.HNSW.Dimensions
	}

	if file.Optimization.EnableQuantization {
		out.Optimization.EnableQuantization = true
	}
	if file.Optimization.EnablePartitioning {
		out.Optimization.EnablePartitioning = true
	}
	if file.Optimization.EnableDistributedSearch {
		out.Optimization.EnableDistributedSearch = true
	}
	if file.Optimization.EnablePredictiveCache {
		out.Optimization.EnablePredictiveCache = true
	}

	if file.Partition.MaxNodesPerPartition != 0 {
		out.Partition.MaxNodesPerPartition = file.Partition.MaxNodesPerPartition
	}
	if file.Partition.Strategy != "" {
		out.Partition.Strategy = file.Partition.Strategy
	}
	if file.Partition.SemanticClusters != 0 {
		out.Partition.SemanticClusters = file.Partition.SemanticClusters
	}

	if file.Storage.Backend != "" {
		out.Storage.Backend = file.Storage.Backend
	}
	if file.Storage.DataDir != "" {
		out.Storage.DataDir = file.Storage.DataDir
	}
	if file.Storage.S3Bucket != "" {
		out.Storage.S3Bucket = file.Storage.S3Bucket
	}
	if file.Storage.S3Region != "" {
		out.Storage.S3Region = file.Storage.S3Region
	}
	if file.Storage.S3Endpoint != "" {
		out.Storage.S3Endpoint = file.Storage.S3Endpoint
	}
	if file.Storage.S3AccessKey != "" {
		out.Storage.S3AccessKey = file.Storage.S3AccessKey
	}
	if file.Storage.S3SecretKey != "" {
		out.Storage.S3SecretKey = file.Storage.S3SecretKey
	}
	if file.Storage.ForceMemory {
		out.Storage.ForceMemory = true
	}
	if file.Storage.ForceFilesystem {
		out.Storage.ForceFilesystem = true
	}

	if file.Cache.HotCapacity != 0 {
		out.Cache.HotCapacity = file.Cache.HotCapacity
	}
	if file.Cache.WarmCapacity != 0 {
		out.Cache.WarmCapacity = file.Cache.WarmCapacity
	}
	if file.Cache.PrefetchStrategy != "" {
		out.Cache.PrefetchStrategy = file.Cache.PrefetchStrategy
	}

	if file.Timeouts.GetMS != 0 {
		out.Timeouts.GetMS = file.Timeouts.GetMS
	}
	if file.Timeouts.AddMS != 0 {
		out.Timeouts.AddMS = file.Timeouts.AddMS
	}
	if file.Timeouts.DeleteMS != 0 {
		out.Timeouts.DeleteMS = file.Timeouts.DeleteMS
	}

	if file.Retry.MaxRetries != 0 {
		out.Retry.MaxRetries = file.Retry.MaxRetries
	}
	if file.Retry.InitialDelay != 0 {
		out.Retry.InitialDelay = file.Retry.InitialDelay
	}
	if file.Retry.MaxDelay != 0 {
		out.Retry.MaxDelay = file.Retry.MaxDelay
	}
	if file.Retry.Multiplier != 0 {
		out.Retry.Multiplier = file.Retry.Multiplier
	}

	if file.Realtime.Enabled {
		out.Realtime.Enabled = true
	}
	if file.Realtime.Interval != 0 {
		out.Realtime.Interval = file.Realtime.Interval
	}
	if file.Realtime.UpdateStats {
		out.Realtime.UpdateStats = true
	}
	if file.Realtime.UpdateIndex {
		out.Realtime.UpdateIndex = true
	}

	if file.Modes.ReadOnly {
		out.Modes.ReadOnly = true
	}
	if file.Modes.WriteOnly {
		out.Modes.WriteOnly = true
	}

	return out
}
