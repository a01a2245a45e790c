package quant

import (
	"context"
	"math"
	"sync"

	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/vector"
)

// maxLevel is 2^8 - 1: a ScalarQuantizer always compresses to one
// vector.DTypeInt8 byte per dimension, per spec.md §3's Vector Record
// dtype field. The teacher's ScalarQuantizer supported a configurable bit
// width packed across byte boundaries; nothing in this domain ever stores
// a dtype other than DTypeInt8 for a quantized vector, so that generality
// is dropped in favor of a plain byte-per-dimension layout.
const maxLevel = 255

// ScalarQuantizer implements per-dimension linear (min/max) scalar
// quantization, grounded on the teacher's ScalarQuantizer's Train/Compress
// algorithm but fixed at one byte per dimension and reporting its output
// dtype as vector.DTypeInt8 so callers can set vector.Record.Compression
// accordingly.
type ScalarQuantizer struct {
	mu  sync.RWMutex
	cfg *Config

	trained   bool
	dimension int

	mins   []float32
	scales []float32
}

// NewScalarQuantizer builds a ScalarQuantizer from cfg, or DefaultConfig
// if cfg is nil.
func NewScalarQuantizer(cfg *Config) (*ScalarQuantizer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ScalarQuantizer{cfg: cfg}, nil
}

// Dtype reports the vector.DType a ScalarQuantizer's compressed bytes
// decode as.
func (q *ScalarQuantizer) Dtype() vector.DType {
	return vector.DTypeInt8
}

// Train computes the min/scale pair per dimension from a sample of
// vectors, the same min/max-range approach as the teacher's
// ScalarQuantizer.Train.
func (q *ScalarQuantizer) Train(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return errs.Wrap(errs.ErrInvalidArgument, "quant", "train-empty")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim {
			return errs.Wrap(errs.ErrInvalidArgument, "quant", "train-dimension-mismatch")
		}
	}

	n := int(float64(len(vectors)) * q.cfg.TrainRatio)
	if n < 1 {
		n = len(vectors)
	}
	sample := sampleEvery(vectors, n)

	mins := append([]float32(nil), sample[0]...)
	maxs := append([]float32(nil), sample[0]...)
	for _, v := range sample[1:] {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for d := 0; d < dim; d++ {
			if v[d] < mins[d] {
				mins[d] = v[d]
			}
			if v[d] > maxs[d] {
				maxs[d] = v[d]
			}
		}
	}

	scales := make([]float32, dim)
	for d := 0; d < dim; d++ {
		span := maxs[d] - mins[d]
		if span == 0 {
			scales[d] = 1
		} else {
			scales[d] = span / maxLevel
		}
	}

	q.dimension = dim
	q.mins = mins
	q.scales = scales
	q.trained = true
	return nil
}

// sampleEvery takes every len(vectors)/n-th vector, the same deterministic
// stride sampling the teacher's sampleVectors used.
func sampleEvery(vectors [][]float32, n int) [][]float32 {
	if n >= len(vectors) {
		return vectors
	}
	step := len(vectors) / n
	if step < 1 {
		step = 1
	}
	out := make([][]float32, 0, n)
	for i := 0; i < len(vectors) && len(out) < n; i += step {
		out = append(out, vectors[i])
	}
	return out
}

// Compress maps vec to one byte per dimension via the trained min/scale.
func (q *ScalarQuantizer) Compress(vec []float32) ([]byte, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.trained {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "quant", "compress-not-trained")
	}
	if len(vec) != q.dimension {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "quant", "compress-dimension-mismatch")
	}

	out := make([]byte, q.dimension)
	for d, v := range vec {
		out[d] = q.quantizeDim(d, v)
	}
	return out, nil
}

func (q *ScalarQuantizer) quantizeDim(d int, v float32) byte {
	max := q.mins[d] + q.scales[d]*maxLevel
	if v < q.mins[d] {
		v = q.mins[d]
	} else if v > max {
		v = max
	}
	level := int32((v-q.mins[d])/q.scales[d] + 0.5)
	if level < 0 {
		level = 0
	} else if level > maxLevel {
		level = maxLevel
	}
	return byte(level)
}

// Decompress reconstructs an approximate float32 vector from quantized
// bytes.
func (q *ScalarQuantizer) Decompress(data []byte) ([]float32, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.trained {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "quant", "decompress-not-trained")
	}
	if len(data) != q.dimension {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "quant", "decompress-dimension-mismatch")
	}

	out := make([]float32, q.dimension)
	for d, b := range data {
		out[d] = q.mins[d] + float32(b)*q.scales[d]
	}
	return out, nil
}

// Distance computes Euclidean distance between two compressed vectors in
// the quantized domain, without decompressing either side.
func (q *ScalarQuantizer) Distance(a, b []byte) (float32, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.trained {
		return 0, errs.Wrap(errs.ErrInvalidArgument, "quant", "distance-not-trained")
	}
	if len(a) != q.dimension || len(b) != q.dimension {
		return 0, errs.Wrap(errs.ErrInvalidArgument, "quant", "distance-dimension-mismatch")
	}

	var sum float32
	for d := 0; d < q.dimension; d++ {
		diff := float32(int32(a[d])-int32(b[d])) * q.scales[d]
		sum += diff * diff
	}
	return float32(math.Sqrt(float64(sum))), nil
}

// DistanceToQuery computes asymmetric distance from a compressed vector to
// a raw float32 query, dequantizing one dimension at a time instead of
// materializing a full decompressed vector first.
func (q *ScalarQuantizer) DistanceToQuery(compressed []byte, query []float32) (float32, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.trained {
		return 0, errs.Wrap(errs.ErrInvalidArgument, "quant", "distance-to-query-not-trained")
	}
	if len(compressed) != q.dimension || len(query) != q.dimension {
		return 0, errs.Wrap(errs.ErrInvalidArgument, "quant", "distance-to-query-dimension-mismatch")
	}

	var sum float32
	for d := 0; d < q.dimension; d++ {
		dequantized := q.mins[d] + float32(compressed[d])*q.scales[d]
		diff := query[d] - dequantized
		sum += diff * diff
	}
	return float32(math.Sqrt(float64(sum))), nil
}

// IsTrained reports whether Train has completed.
func (q *ScalarQuantizer) IsTrained() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.trained
}

// CompressionRatio reports uncompressed-to-compressed size: 4 bytes per
// dimension (vector.DTypeFloat32) against 1 byte per dimension
// (vector.DTypeInt8).
func (q *ScalarQuantizer) CompressionRatio() float32 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.trained {
		return 0
	}
	return float32(vector.DTypeFloat32.Size()) / float32(vector.DTypeInt8.Size())
}
