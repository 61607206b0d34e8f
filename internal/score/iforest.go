package score

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

const eulerGamma = 0.5772156649

// IsolationForest isolates rows with random axis-aligned splits. Rows that are
// isolated after few splits get low scores.
type IsolationForest struct {
	Trees      int
	MaxSamples int
	Workers    int
}

// NewIsolationForest creates a forest with the given ensemble and sub-sample size
func NewIsolationForest(trees, maxSamples int) *IsolationForest {
	if trees <= 0 {
		trees = 250
	}
	if maxSamples < 2 {
		maxSamples = 256
	}
	return &IsolationForest{
		Trees:      trees,
		MaxSamples: maxSamples,
		Workers:    runtime.NumCPU(),
	}
}

type node struct {
	feature int
	split   float64
	left    int // -1 for leaves
	right   int
	size    int // rows reaching a leaf
}

type isolationTree struct {
	nodes []node
}

// Score fits the forest on features and scores the same rows. Scores are
// shifted so the contamination share of rows falls below zero.
// Trees are grown in parallel from per-tree seeds drawn from seed, so the
// output does not depend on scheduling.
func (f *IsolationForest) Score(ctx context.Context, features [][]float64, contamination float64, seed int64) ([]bool, []float64, error) {
	if err := ValidateContamination(contamination); err != nil {
		return nil, nil, err
	}

	n := len(features)
	flags := make([]bool, n)
	scores := make([]float64, n)
	if n < 2 {
		return flags, scores, nil
	}

	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return nil, nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}

	psi := f.MaxSamples
	if psi > n {
		psi = n
	}
	limit := int(math.Ceil(math.Log2(float64(psi))))

	master := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	seeds := make([]uint64, f.Trees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	trees := make([]*isolationTree, f.Trees)
	g, gctx := errgroup.WithContext(ctx)
	if f.Workers > 0 {
		g.SetLimit(f.Workers)
	}
	for t := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seeds[t], uint64(t)))
			sample := rng.Perm(n)[:psi]
			tree := &isolationTree{nodes: make([]node, 0, 2*psi)}
			tree.grow(features, sample, 0, limit, rng)
			trees[t] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	norm := averagePathLength(psi)
	for i, x := range features {
		var total float64
		for _, tree := range trees {
			total += tree.pathLength(x)
		}
		mean := total / float64(len(trees))
		scores[i] = -math.Pow(2, -mean/norm)
	}

	// Centre on the contamination percentile so that negative means flagged
	offset := percentile(scores, 100*contamination)
	for i := range scores {
		scores[i] -= offset
		flags[i] = scores[i] < 0
	}

	return flags, scores, nil
}

// grow builds the subtree for rows idx and returns its node index
func (t *isolationTree) grow(x [][]float64, idx []int, depth, limit int, rng *rand.Rand) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, node{left: -1, right: -1, size: len(idx)})

	if depth >= limit || len(idx) <= 1 {
		return id
	}

	// Only features that still vary can split
	width := len(x[idx[0]])
	var candidates []int
	var lows, highs []float64
	for feat := 0; feat < width; feat++ {
		lo, hi := x[idx[0]][feat], x[idx[0]][feat]
		for _, r := range idx[1:] {
			v := x[r][feat]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			candidates = append(candidates, feat)
			lows = append(lows, lo)
			highs = append(highs, hi)
		}
	}
	if len(candidates) == 0 {
		return id
	}

	pick := rng.IntN(len(candidates))
	feat, lo, hi := candidates[pick], lows[pick], highs[pick]
	split := lo + rng.Float64()*(hi-lo)
	if split <= lo {
		split = lo + (hi-lo)/2
	}

	// Partition in place: left rows are below the split
	k := 0
	for i, r := range idx {
		if x[r][feat] < split {
			idx[i], idx[k] = idx[k], idx[i]
			k++
		}
	}

	left := t.grow(x, idx[:k], depth+1, limit, rng)
	right := t.grow(x, idx[k:], depth+1, limit, rng)

	t.nodes[id].feature = feat
	t.nodes[id].split = split
	t.nodes[id].left = left
	t.nodes[id].right = right
	return id
}

func (t *isolationTree) pathLength(x []float64) float64 {
	i, depth := 0, 0
	for {
		nd := t.nodes[i]
		if nd.left < 0 {
			return float64(depth) + averagePathLength(nd.size)
		}
		if x[nd.feature] < nd.split {
			i = nd.left
		} else {
			i = nd.right
		}
		depth++
	}
}

// averagePathLength is the mean unsuccessful-search depth of a binary search
// tree with n nodes, used to normalise path lengths
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// percentile interpolates linearly between the closest ranks
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
