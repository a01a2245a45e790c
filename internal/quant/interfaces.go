// Package quant is the HNSW quantization hook from spec.md §3's Vector
// Record compression field (C5): once an internal/hnsw.Index has seen
// enough vectors to train on, it compresses new vectors to a single
// vector.DTypeInt8 byte per dimension instead of storing the full
// vector.DTypeFloat32 copy, and computes search distance directly in that
// compressed domain. Grounded on the teacher's internal/quant package, cut
// down from a pluggable product/scalar registry to the one quantizer the
// student domain exercises.
package quant

import (
	"context"

	"github.com/lspecian/vexfs-sub008/internal/errs"
)

// Config configures a Quantizer. TrainRatio is the fraction of the vectors
// offered to Train actually sampled to compute per-dimension ranges,
// matching spec.md §6's general knob-per-subsystem config style.
type Config struct {
	TrainRatio float64 `json:"train_ratio"`
}

// Validate checks cfg's fields are in range.
func (c *Config) Validate() error {
	if c.TrainRatio <= 0.0 || c.TrainRatio > 1.0 {
		return errs.Wrap(errs.ErrInvalidArgument, "quant", "validate-train-ratio")
	}
	return nil
}

// DefaultConfig returns a Config sampling 10% of the offered vectors, the
// same default ratio the teacher used for its scalar quantizer.
func DefaultConfig() *Config {
	return &Config{TrainRatio: 0.1}
}

// Quantizer compresses float32 vectors into a smaller byte representation
// and can compute distance without fully decompressing either side.
type Quantizer interface {
	// Train computes this quantizer's per-dimension parameters from a
	// sample of vectors. Compress/Decompress/Distance are unusable before
	// Train succeeds.
	Train(ctx context.Context, vectors [][]float32) error

	// Compress maps a float32 vector to its compressed byte form.
	Compress(vec []float32) ([]byte, error)

	// Decompress reconstructs an approximate float32 vector from
	// compressed bytes.
	Decompress(data []byte) ([]float32, error)

	// Distance computes distance between two compressed vectors.
	Distance(a, b []byte) (float32, error)

	// DistanceToQuery computes distance from a compressed vector to a
	// raw float32 query vector, without decompressing on the hot path.
	DistanceToQuery(compressed []byte, query []float32) (float32, error)

	// IsTrained reports whether Train has completed successfully.
	IsTrained() bool

	// CompressionRatio reports the ratio of uncompressed to compressed
	// size once trained, or 0 before training.
	CompressionRatio() float32
}
