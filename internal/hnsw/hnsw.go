// Package hnsw implements the §4.4/§6 Hierarchical Navigable Small World
// index (C6): layered proximity graph, greedy descent from the top level,
// beam search at level 0, and a neighbor-selection heuristic that limits
// node degree. Adapted from the teacher's internal/index/hnsw package
// (Index/Node/NeighborSelector/searchLevel/computeDistanceOptimized),
// generalized to (a) an explicit, heap-backed iterative work-list in place
// of any recursion (spec.md §4.4/§9 "Recursion elimination"), (b)
// published neighbor snapshots per level instead of in-place slice
// mutation (spec.md §4.4 "Concurrency"), and (c) background reciprocation
// repair for unidirectional edges left behind by concurrent insert
// (spec.md §4.4 "Failure model"). Optional quantization
// (internal/quant) compresses a node's vector to a vector.DTypeInt8 byte
// per dimension on Config.Quantization, the opt-in compression path spec.md
// §3's Vector Record dtype field names.
package hnsw

import (
	"context"
	"math/rand"
	"sync"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/obs"
	"github.com/lspecian/vexfs-sub008/internal/quant"
	"github.com/lspecian/vexfs-sub008/internal/util"
	"github.com/lspecian/vexfs-sub008/internal/vector"
)

// Config holds HNSW construction and search parameters, per spec.md §6.
type Config struct {
	Dimension      int
	M              int
	EfConstruction int
	EfSearch       int
	ML             float64
	Metric         util.DistanceMetric
	RandomSeed     int64
	Quantization   *quant.Config

	// StackLimitBytes carries the configured stack ceiling. The index does
	// not read it: insert and search are iterative, but no util.StackBudget
	// accounting or limit check is applied to them.
	StackLimitBytes int
}

func (c *Config) validate() error {
	if c.Dimension <= 0 || c.M <= 0 || c.EfConstruction <= 0 || c.EfSearch <= 0 || c.ML <= 0 {
		return errs.Wrap(errs.ErrInvalidArgument, "hnsw", "validate-config")
	}
	if c.Quantization != nil {
		if err := c.Quantization.Validate(); err != nil {
			return errs.Wrap(err, "hnsw", "validate-quantization")
		}
	}
	return nil
}

// Index is the HNSW graph. Grounded on the teacher's Index struct, with
// its node links replaced by the published-snapshot linkSet from node.go.
type Index struct {
	mu sync.RWMutex

	config         *Config
	nodes          []*Node
	entryPoint     uint32
	hasEntryPoint  bool
	maxLevel       int
	levelGenerator *rand.Rand
	distance       util.DistanceFunc
	size           int
	idToIndex      map[string]uint32

	neighborSelector *NeighborSelector

	quantizer           quant.Quantizer
	trainingVectors     [][]float32
	quantizationTrained bool

	metrics *obs.Metrics
}

// NewIndex creates an empty HNSW index.
func NewIndex(config *Config, metrics *obs.Metrics) (*Index, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	distFn, err := util.GetDistanceFunc(config.Metric)
	if err != nil {
		return nil, errs.Wrap(err, "hnsw", "get-distance-func")
	}
	idx := &Index{
		config:           config,
		levelGenerator:   rand.New(rand.NewSource(config.RandomSeed)),
		distance:         distFn,
		idToIndex:        make(map[string]uint32),
		neighborSelector: NewNeighborSelector(config.M, 2.0),
		metrics:          metrics,
	}
	if config.Quantization != nil {
		q, err := quant.NewScalarQuantizer(config.Quantization)
		if err != nil {
			return nil, errs.Wrap(err, "hnsw", "create-quantizer")
		}
		idx.quantizer = q
	}
	return idx, nil
}

// Size returns the number of indexed vectors.
func (h *Index) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Close releases all index state.
func (h *Index) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes = nil
	h.hasEntryPoint = false
	h.size = 0
	return nil
}

func (h *Index) generateLevel() int {
	level := 0
	for h.levelGenerator.Float64() < h.config.ML && level < 16 {
		level++
	}
	return level
}

func (h *Index) getNodeVector(node *Node) ([]float32, error) {
	if node.CompressedVector != nil && h.quantizer != nil {
		return h.quantizer.Decompress(node.CompressedVector)
	}
	return node.Vector, nil
}

func (h *Index) computeDistanceTo(query []float32, node *Node) float32 {
	if node.CompressedVector != nil && h.quantizer != nil {
		d, err := h.quantizer.DistanceToQuery(node.CompressedVector, query)
		if err == nil {
			return d
		}
		vec, decompErr := h.quantizer.Decompress(node.CompressedVector)
		if decompErr != nil {
			return -1
		}
		return h.distance(query, vec)
	}
	if node.Vector != nil {
		return h.distance(query, node.Vector)
	}
	return -1
}

// getTrainingThreshold is the number of accumulated training vectors that
// triggers trainQuantizer: enough samples per dimension for the
// ScalarQuantizer's min/max range to be representative.
func (h *Index) getTrainingThreshold() int {
	if h.config.Quantization == nil {
		return 0
	}
	return maxInt(100, h.config.Dimension*10)
}

func (h *Index) trainQuantizer(ctx context.Context) error {
	if h.quantizer == nil || len(h.trainingVectors) == 0 {
		return errs.Wrap(errs.ErrInvalidArgument, "hnsw", "train-quantizer-no-data")
	}
	trainRatio := h.config.Quantization.TrainRatio
	if trainRatio <= 0 || trainRatio > 1 {
		trainRatio = 0.1
	}
	trainCount := int(float64(len(h.trainingVectors)) * trainRatio)
	if trainCount < 1 {
		trainCount = len(h.trainingVectors)
	}
	if err := h.quantizer.Train(ctx, h.trainingVectors[:trainCount]); err != nil {
		return errs.Wrap(err, "hnsw", "train-quantizer")
	}
	h.quantizationTrained = true
	h.trainingVectors = nil
	return nil
}

// QuantizationTrained reports whether vectors inserted from this point on
// are stored as vector.DTypeInt8-compressed nodes rather than raw
// vector.DTypeFloat32, so a caller mirroring inserts into
// internal/vector.Store can set the matching vector.CompressionType.
func (h *Index) QuantizationTrained() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.quantizationTrained
}

// CompressedDType reports the vector.DType a trained quantizer's
// compressed nodes decode as.
func (h *Index) CompressedDType() (vector.DType, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.quantizer == nil {
		return 0, false
	}
	if sq, ok := h.quantizer.(*quant.ScalarQuantizer); ok {
		return sq.Dtype(), true
	}
	return 0, false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
