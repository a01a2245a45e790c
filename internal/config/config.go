// Package config loads the spec.md §6 configuration keys through
// github.com/spf13/viper, in the style the pack's service repos (e.g.
// evalgo-org-eve, AKJUS-bsc-erigon) use viper for layered file/env/default
// configuration. The teacher has no config package of its own (its Config
// struct is built purely from functional options); this package supplies
// the file/env layer underneath those options.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved, validated configuration for one mount,
// covering every key in spec.md §6.
type Config struct {
	JournalMaxSegmentBytes int64
	JournalSyncIntervalMS  int64
	JournalMaxSizeBytes    int64

	IndexEnableTimestamp bool
	IndexEnableType      bool
	IndexEnableCategory  bool
	IndexEnableAgent     bool
	IndexEnableTx        bool
	IndexEnablePath      bool

	HNSWM              int
	HNSWEfConstruction int
	HNSWEfSearchDefault int

	HNSWQuantizationEnabled   bool
	HNSWQuantizationTrainRatio float64

	GraphMaxEdgesPerNode int
	GraphOverflowPolicy  string // "reject" | "evict_lru" | "overflow"

	RaftElectionTimeoutMinMS int64
	RaftElectionTimeoutMaxMS int64
	RaftHeartbeatMS          int64
	RaftByzantineMode        bool

	CryptoRotationIntervalS int64
	CryptoKDFIterations     int

	PerfStackLimitBytes int
}

// Default returns the defaults implied by spec.md §4/§6/§7 (6 KiB kernel
// stack ceiling, 150-300ms randomized election timeout, 50ms heartbeat,
// M=16, efConstruction=200).
func Default() *Config {
	return &Config{
		JournalMaxSegmentBytes: 4 << 20,
		JournalSyncIntervalMS:  50,
		JournalMaxSizeBytes:    1 << 30,

		IndexEnableTimestamp: true,
		IndexEnableType:      true,
		IndexEnableCategory:  true,
		IndexEnableAgent:     true,
		IndexEnableTx:        true,
		IndexEnablePath:      true,

		HNSWM:               16,
		HNSWEfConstruction:  200,
		HNSWEfSearchDefault: 50,

		HNSWQuantizationEnabled:    false,
		HNSWQuantizationTrainRatio: 0.1,

		GraphMaxEdgesPerNode: 10_000,
		GraphOverflowPolicy:  "reject",

		RaftElectionTimeoutMinMS: 150,
		RaftElectionTimeoutMaxMS: 300,
		RaftHeartbeatMS:          50,
		RaftByzantineMode:        false,

		CryptoRotationIntervalS: 86400,
		CryptoKDFIterations:     210_000,

		PerfStackLimitBytes: 6 * 1024,
	}
}

// Load reads configuration from an optional file plus VEXFS_-prefixed
// environment variables, layering over Default(), the way viper.Get*
// falls back to bound defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("vexfs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("journal.max_segment_bytes", d.JournalMaxSegmentBytes)
	v.SetDefault("journal.sync_interval_ms", d.JournalSyncIntervalMS)
	v.SetDefault("journal.max_size_bytes", d.JournalMaxSizeBytes)
	v.SetDefault("index.enable.timestamp", d.IndexEnableTimestamp)
	v.SetDefault("index.enable.type", d.IndexEnableType)
	v.SetDefault("index.enable.category", d.IndexEnableCategory)
	v.SetDefault("index.enable.agent", d.IndexEnableAgent)
	v.SetDefault("index.enable.tx", d.IndexEnableTx)
	v.SetDefault("index.enable.path", d.IndexEnablePath)
	v.SetDefault("hnsw.m", d.HNSWM)
	v.SetDefault("hnsw.ef_construction", d.HNSWEfConstruction)
	v.SetDefault("hnsw.ef_search_default", d.HNSWEfSearchDefault)
	v.SetDefault("hnsw.quantization.enabled", d.HNSWQuantizationEnabled)
	v.SetDefault("hnsw.quantization.train_ratio", d.HNSWQuantizationTrainRatio)
	v.SetDefault("graph.max_edges_per_node", d.GraphMaxEdgesPerNode)
	v.SetDefault("graph.overflow_policy", d.GraphOverflowPolicy)
	v.SetDefault("raft.election_timeout_ms_range", []int64{d.RaftElectionTimeoutMinMS, d.RaftElectionTimeoutMaxMS})
	v.SetDefault("raft.heartbeat_ms", d.RaftHeartbeatMS)
	v.SetDefault("raft.byzantine_mode", d.RaftByzantineMode)
	v.SetDefault("crypto.rotation_interval_s", d.CryptoRotationIntervalS)
	v.SetDefault("crypto.kdf_iterations", d.CryptoKDFIterations)
	v.SetDefault("perf.stack_limit_bytes", d.PerfStackLimitBytes)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	timeoutRange := v.GetIntSlice("raft.election_timeout_ms_range")
	minMS, maxMS := d.RaftElectionTimeoutMinMS, d.RaftElectionTimeoutMaxMS
	if len(timeoutRange) == 2 {
		minMS, maxMS = int64(timeoutRange[0]), int64(timeoutRange[1])
	}

	c := &Config{
		JournalMaxSegmentBytes: v.GetInt64("journal.max_segment_bytes"),
		JournalSyncIntervalMS:  v.GetInt64("journal.sync_interval_ms"),
		JournalMaxSizeBytes:    v.GetInt64("journal.max_size_bytes"),

		IndexEnableTimestamp: v.GetBool("index.enable.timestamp"),
		IndexEnableType:      v.GetBool("index.enable.type"),
		IndexEnableCategory:  v.GetBool("index.enable.category"),
		IndexEnableAgent:     v.GetBool("index.enable.agent"),
		IndexEnableTx:        v.GetBool("index.enable.tx"),
		IndexEnablePath:      v.GetBool("index.enable.path"),

		HNSWM:               v.GetInt("hnsw.m"),
		HNSWEfConstruction:  v.GetInt("hnsw.ef_construction"),
		HNSWEfSearchDefault: v.GetInt("hnsw.ef_search_default"),

		HNSWQuantizationEnabled:    v.GetBool("hnsw.quantization.enabled"),
		HNSWQuantizationTrainRatio: v.GetFloat64("hnsw.quantization.train_ratio"),

		GraphMaxEdgesPerNode: v.GetInt("graph.max_edges_per_node"),
		GraphOverflowPolicy:  v.GetString("graph.overflow_policy"),

		RaftElectionTimeoutMinMS: minMS,
		RaftElectionTimeoutMaxMS: maxMS,
		RaftHeartbeatMS:          v.GetInt64("raft.heartbeat_ms"),
		RaftByzantineMode:        v.GetBool("raft.byzantine_mode"),

		CryptoRotationIntervalS: v.GetInt64("crypto.rotation_interval_s"),
		CryptoKDFIterations:     v.GetInt("crypto.kdf_iterations"),

		PerfStackLimitBytes: v.GetInt("perf.stack_limit_bytes"),
	}
	return c, c.Validate()
}

// Validate enforces the basic cross-field constraints spec.md implies
// (election timeout is a proper range, stack limit is positive, etc).
func (c *Config) Validate() error {
	if c.RaftElectionTimeoutMinMS <= 0 || c.RaftElectionTimeoutMaxMS <= c.RaftElectionTimeoutMinMS {
		return fmt.Errorf("config: invalid raft.election_timeout_ms_range [%d, %d]", c.RaftElectionTimeoutMinMS, c.RaftElectionTimeoutMaxMS)
	}
	if c.HNSWM <= 0 || c.HNSWEfConstruction <= 0 || c.HNSWEfSearchDefault <= 0 {
		return fmt.Errorf("config: hnsw parameters must be positive")
	}
	if c.HNSWQuantizationEnabled && (c.HNSWQuantizationTrainRatio <= 0 || c.HNSWQuantizationTrainRatio > 1) {
		return fmt.Errorf("config: hnsw.quantization.train_ratio must be in (0, 1]")
	}
	if c.PerfStackLimitBytes <= 0 {
		return fmt.Errorf("config: perf.stack_limit_bytes must be positive")
	}
	switch c.GraphOverflowPolicy {
	case "reject", "evict_lru", "overflow":
	default:
		return fmt.Errorf("config: unknown graph.overflow_policy %q", c.GraphOverflowPolicy)
	}
	return nil
}

// ElectionTimeoutRange returns the randomized election timeout bounds as
// time.Durations for direct use by internal/consensus.
func (c *Config) ElectionTimeoutRange() (time.Duration, time.Duration) {
	return time.Duration(c.RaftElectionTimeoutMinMS) * time.Millisecond,
		time.Duration(c.RaftElectionTimeoutMaxMS) * time.Millisecond
}

// HeartbeatInterval returns the Raft heartbeat interval as a time.Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.RaftHeartbeatMS) * time.Millisecond
}

// JournalSyncInterval returns the group-commit deadline as a time.Duration.
func (c *Config) JournalSyncInterval() time.Duration {
	return time.Duration(c.JournalSyncIntervalMS) * time.Millisecond
}
