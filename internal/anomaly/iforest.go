package anomaly

import (
	"context"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

const eulerGamma = 0.5772156649015329

// iNode is a node of an isolation tree. Leaves have nil children.
type iNode struct {
	left, right *iNode
	feature     int
	split       float64
	size        int
}

// isolationForest is an ensemble of random isolation trees.
type isolationForest struct {
	trees      []*iNode
	sampleSize int
}

// fitForest grows nTrees trees, each on a subsample of at most maxSamples
// rows drawn without replacement. Per-tree seeds come from one seeded source,
// so the forest is reproducible regardless of build order.
func fitForest(ctx context.Context, x [][]float64, nTrees, maxSamples int, seed uint64, concurrency int) (*isolationForest, error) {
	n := len(x)
	psi := min(maxSamples, n)
	depthLimit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	master := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	seeds := make([]uint64, nTrees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	forest := &isolationForest{trees: make([]*iNode, nTrees), sampleSize: psi}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for t := range nTrees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seeds[t], uint64(t)))
			sample := rng.Perm(n)[:psi]
			forest.trees[t] = growTree(x, sample, 0, depthLimit, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return forest, nil
}

func growTree(x [][]float64, idx []int, depth, limit int, rng *rand.Rand) *iNode {
	if depth >= limit || len(idx) <= 1 {
		return &iNode{size: len(idx)}
	}

	nFeatures := len(x[idx[0]])
	for _, f := range rng.Perm(nFeatures) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := x[i][f]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if lo == hi {
			continue
		}

		split := lo + rng.Float64()*(hi-lo)
		var left, right []int
		for _, i := range idx {
			if x[i][f] < split {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		return &iNode{
			feature: f,
			split:   split,
			left:    growTree(x, left, depth+1, limit, rng),
			right:   growTree(x, right, depth+1, limit, rng),
		}
	}

	// every feature is constant on this node
	return &iNode{size: len(idx)}
}

func pathLength(node *iNode, row []float64) float64 {
	depth := 0.0
	for node.left != nil {
		if row[node.feature] < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + averagePathLength(node.size)
}

// averagePathLength is c(n), the mean depth of an unsuccessful search in a
// binary search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// score returns the anomaly score in (0, 1]; higher is more anomalous.
func (f *isolationForest) score(row []float64) float64 {
	var total float64
	for _, t := range f.trees {
		total += pathLength(t, row)
	}
	mean := total / float64(len(f.trees))
	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}
