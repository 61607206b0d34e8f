package score

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

// gaussianBatch returns n rows of correlated freight-like features
func gaussianBatch(n int, seed uint64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, 7))
	rows := make([][]float64, n)
	for i := range rows {
		miles := 600 + rng.NormFloat64()*150
		weight := 2000 + rng.NormFloat64()*400
		linehaul := weight * 0.32
		rows[i] = []float64{miles, weight, linehaul, linehaul * 0.1, linehaul*1.1 + rng.NormFloat64()*5}
	}
	return rows
}

func TestIsolationForest_ContaminationConverges(t *testing.T) {
	f := NewIsolationForest(100, 256)

	for _, contamination := range []float64{0.02, 0.06, 0.1} {
		rows := gaussianBatch(1200, 1)
		flags, scores, err := f.Score(context.Background(), rows, contamination, 42)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if len(flags) != len(rows) || len(scores) != len(rows) {
			t.Fatalf("expected %d outputs, got %d flags and %d scores", len(rows), len(flags), len(scores))
		}

		flagged := 0
		for _, fl := range flags {
			if fl {
				flagged++
			}
		}
		share := float64(flagged) / float64(len(rows))
		if math.Abs(share-contamination) > 0.02 {
			t.Errorf("contamination %.2f: flagged share %.4f outside ±2pp", contamination, share)
		}
	}
}

func TestIsolationForest_Deterministic(t *testing.T) {
	rows := gaussianBatch(400, 3)

	f1 := NewIsolationForest(50, 128)
	f1.Workers = 1
	f2 := NewIsolationForest(50, 128)
	f2.Workers = 8

	flags1, scores1, err := f1.Score(context.Background(), rows, 0.06, 42)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	flags2, scores2, err := f2.Score(context.Background(), rows, 0.06, 42)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	for i := range rows {
		if scores1[i] != scores2[i] || flags1[i] != flags2[i] {
			t.Fatalf("row %d differs between runs: %v/%v vs %v/%v", i, scores1[i], flags1[i], scores2[i], flags2[i])
		}
	}

	_, scores3, err := f1.Score(context.Background(), rows, 0.06, 7)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	same := true
	for i := range rows {
		if scores1[i] != scores3[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical scores")
	}
}

func TestIsolationForest_OutliersScoreLowest(t *testing.T) {
	rows := gaussianBatch(500, 5)
	outliers := []int{10, 200, 450}
	for _, i := range outliers {
		rows[i] = []float64{5000, 40000, 20, 0, 90000}
	}

	flags, scores, err := NewIsolationForest(100, 256).Score(context.Background(), rows, 0.05, 42)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	for _, i := range outliers {
		if !flags[i] {
			t.Errorf("row %d: injected outlier not flagged (score %.4f)", i, scores[i])
		}
		if scores[i] >= 0 {
			t.Errorf("row %d: expected negative score, got %v", i, scores[i])
		}
	}
	if scores[outliers[0]] >= scores[0] {
		t.Errorf("outlier score %.4f should be below inlier score %.4f", scores[outliers[0]], scores[0])
	}
}

func TestIsolationForest_SmallBatches(t *testing.T) {
	f := NewIsolationForest(10, 256)

	for _, rows := range [][][]float64{nil, {{1, 2}}} {
		flags, scores, err := f.Score(context.Background(), rows, 0.06, 42)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		for i := range flags {
			if flags[i] || scores[i] != 0 {
				t.Errorf("expected unflagged zero score for tiny batch, got %v/%v", flags[i], scores[i])
			}
		}
	}

	// Constant rows cannot be split
	constant := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	_, scores, err := f.Score(context.Background(), constant, 0.25, 42)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] != scores[0] {
			t.Errorf("constant rows should score equally, got %v", scores)
		}
	}
}

func TestIsolationForest_InvalidContamination(t *testing.T) {
	f := NewIsolationForest(10, 16)
	rows := gaussianBatch(20, 1)

	for _, c := range []float64{0, -0.1, 0.51, math.NaN()} {
		_, _, err := f.Score(context.Background(), rows, c, 42)
		if !errors.Is(err, ErrInvalidContamination) {
			t.Errorf("contamination %v: expected ErrInvalidContamination, got %v", c, err)
		}
	}

	if _, _, err := f.Score(context.Background(), rows, 0.5, 42); err != nil {
		t.Errorf("contamination 0.5 should be accepted, got %v", err)
	}
}

func TestIsolationForest_RaggedRows(t *testing.T) {
	_, _, err := NewIsolationForest(10, 16).Score(context.Background(), [][]float64{{1, 2}, {1}}, 0.1, 42)
	if err == nil {
		t.Error("expected error for ragged feature matrix")
	}
}

func TestIsolationForest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewIsolationForest(50, 64).Score(ctx, gaussianBatch(100, 1), 0.1, 42)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{256, 10.2448},
	}
	for _, tt := range tests {
		if got := averagePathLength(tt.n); math.Abs(got-tt.want) > 1e-3 {
			t.Errorf("averagePathLength(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{50, 3},
		{100, 5},
		{10, 1.4},
		{62.5, 3.5},
	}
	for _, tt := range tests {
		if got := percentile(values, tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if values[0] != 4 {
		t.Error("percentile must not reorder its input")
	}
}
