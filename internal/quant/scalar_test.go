package quant

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/lspecian/vexfs-sub008/internal/vector"
)

func randomVectors(r *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = r.Float32()*20 - 10
		}
		out[i] = v
	}
	return out
}

func TestScalarQuantizerTrainCompressDecompressRoundTrip(t *testing.T) {
	q, err := NewScalarQuantizer(DefaultConfig())
	if err != nil {
		t.Fatalf("new quantizer: %v", err)
	}
	if q.IsTrained() {
		t.Fatalf("expected untrained quantizer before Train")
	}

	r := rand.New(rand.NewSource(1))
	vectors := randomVectors(r, 200, 16)
	if err := q.Train(context.Background(), vectors); err != nil {
		t.Fatalf("train: %v", err)
	}
	if !q.IsTrained() {
		t.Fatalf("expected trained quantizer after Train")
	}
	if q.Dtype() != vector.DTypeInt8 {
		t.Fatalf("expected DTypeInt8, got %s", q.Dtype())
	}

	target := vectors[0]
	compressed, err := q.Compress(target)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(compressed) != 16 {
		t.Fatalf("expected 16 compressed bytes, got %d", len(compressed))
	}

	decompressed, err := q.Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	for d := range target {
		if diff := target[d] - decompressed[d]; diff > 0.5 || diff < -0.5 {
			t.Fatalf("dimension %d: original %f decompressed to %f, too lossy", d, target[d], decompressed[d])
		}
	}
}

func TestScalarQuantizerDistanceToQueryApproximatesRawDistance(t *testing.T) {
	q, _ := NewScalarQuantizer(DefaultConfig())
	r := rand.New(rand.NewSource(2))
	vectors := randomVectors(r, 300, 8)
	if err := q.Train(context.Background(), vectors); err != nil {
		t.Fatalf("train: %v", err)
	}

	a := vectors[0]
	b := vectors[1]
	compressedA, _ := q.Compress(a)

	approx, err := q.DistanceToQuery(compressedA, b)
	if err != nil {
		t.Fatalf("distance to query: %v", err)
	}

	var sumSq float32
	for d := range a {
		diff := a[d] - b[d]
		sumSq += diff * diff
	}
	exact := float32(math.Sqrt(float64(sumSq)))

	if diff := approx - exact; diff > 1.0 || diff < -1.0 {
		t.Fatalf("quantized distance %f too far from exact distance %f", approx, exact)
	}
}

func TestScalarQuantizerRejectsUseBeforeTrain(t *testing.T) {
	q, _ := NewScalarQuantizer(DefaultConfig())
	if _, err := q.Compress([]float32{1, 2, 3}); err == nil {
		t.Fatalf("expected compress before train to fail")
	}
	if _, err := q.Decompress([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected decompress before train to fail")
	}
	if _, err := q.DistanceToQuery([]byte{1, 2, 3}, []float32{1, 2, 3}); err == nil {
		t.Fatalf("expected distance-to-query before train to fail")
	}
	if ratio := q.CompressionRatio(); ratio != 0 {
		t.Fatalf("expected compression ratio 0 before train, got %f", ratio)
	}
}

func TestScalarQuantizerRejectsDimensionMismatch(t *testing.T) {
	q, _ := NewScalarQuantizer(DefaultConfig())
	r := rand.New(rand.NewSource(3))
	if err := q.Train(context.Background(), randomVectors(r, 50, 4)); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := q.Compress([]float32{1, 2, 3}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestConfigValidateRejectsOutOfRangeTrainRatio(t *testing.T) {
	for _, ratio := range []float64{0, -0.1, 1.1} {
		cfg := &Config{TrainRatio: ratio}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected train_ratio %f to be rejected", ratio)
		}
	}
}
