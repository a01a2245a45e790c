package vexfs

import (
	"fmt"

	"github.com/lspecian/vexfs-sub008/internal/config"
	"github.com/lspecian/vexfs-sub008/internal/consensus"
	"github.com/lspecian/vexfs-sub008/internal/util"
)

// mountOptions accumulates the settings Option functions apply before
// Mount builds its subsystems, mirroring the teacher's functional-options
// Option/CollectionOption shape (libravdb/options.go) generalized from a
// vector-collection config to a full filesystem mount's config.
type mountOptions struct {
	dir            string
	cfg            *config.Config
	hnswDimension  int
	hnswMetric     util.DistanceMetric
	masterKey      []byte
	keyRetention   int
	raft           *consensus.Config
	logDevelopment bool
}

// Option configures a Mount. Options are applied in order, so a later
// option overrides an earlier one that touches the same field.
type Option func(*mountOptions) error

// WithDir sets the directory the journal, snapshots, and Raft log are
// rooted under. Required.
func WithDir(dir string) Option {
	return func(o *mountOptions) error {
		if dir == "" {
			return fmt.Errorf("vexfs: directory cannot be empty")
		}
		o.dir = dir
		return nil
	}
}

// WithConfig overrides the default spec.md §6 configuration. If not
// supplied, Mount uses config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(o *mountOptions) error {
		if cfg == nil {
			return fmt.Errorf("vexfs: config cannot be nil")
		}
		o.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from path via config.Load, layering
// over config.Default() and VEXFS_-prefixed environment variables.
func WithConfigFile(path string) Option {
	return func(o *mountOptions) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.cfg = cfg
		return nil
	}
}

// WithVectorDimension sets the dimensionality vectors stored through this
// mount's HNSW index will carry. Required for the vector subsystem to be
// usable at all; a zero dimension disables HNSW indexing (vectors are
// still stored in the content-addressed Vector Record store).
func WithVectorDimension(dim int) Option {
	return func(o *mountOptions) error {
		if dim <= 0 {
			return fmt.Errorf("vexfs: vector dimension must be positive")
		}
		o.hnswDimension = dim
		return nil
	}
}

// WithDistanceMetric sets the HNSW distance metric. Defaults to cosine.
func WithDistanceMetric(metric util.DistanceMetric) Option {
	return func(o *mountOptions) error {
		o.hnswMetric = metric
		return nil
	}
}

// WithMasterKey supplies the 32-byte master key wrapping every per-object
// key the crypto service mints, per spec.md §3's Keys record. Required if
// any operation requests encryption.
func WithMasterKey(key []byte) Option {
	return func(o *mountOptions) error {
		if len(key) != 32 {
			return fmt.Errorf("vexfs: master key must be 32 bytes, got %d", len(key))
		}
		o.masterKey = key
		return nil
	}
}

// WithKeyRetention sets how many deprecated key versions per object
// survive a rotation before being retired, per spec.md §3's key lifecycle.
func WithKeyRetention(n int) Option {
	return func(o *mountOptions) error {
		if n < 1 {
			return fmt.Errorf("vexfs: key retention must be at least 1")
		}
		o.keyRetention = n
		return nil
	}
}

// WithRaft enables Raft consensus for this mount using cfg, per spec.md
// §4.7. Without this option, Mount runs in single-node mode: events are
// journaled locally with no replication.
func WithRaft(cfg consensus.Config) Option {
	return func(o *mountOptions) error {
		o.raft = &cfg
		return nil
	}
}

// WithDevelopmentLogging switches the zap.Logger to development mode
// (human-readable, more verbose), per the teacher's obs.NewLogger(bool).
func WithDevelopmentLogging() Option {
	return func(o *mountOptions) error {
		o.logDevelopment = true
		return nil
	}
}

func defaultMountOptions() *mountOptions {
	return &mountOptions{
		cfg:          config.Default(),
		hnswMetric:   util.Cosine,
		keyRetention: 3,
	}
}
