package sphinxadapt

// Cluster (C4): partitions Gaussian means into K regression classes by
// Lloyd iteration on Euclidean distance. Grounded on the teacher's
// deterministic, no-randomness construction style (e.g. Vocab's dense id
// assignment order) generalized to numeric k-means; uses gonum/floats for
// the vector arithmetic, the same package other_examples/ audio-adjacent
// Go code (emer-auditory) pulls in for exactly this kind of per-dimension
// vector math.

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// defaultMaxClusterIterations is Lloyd iteration's default cap I.
const defaultMaxClusterIterations = 20

// ClusterMap assigns every Gaussian id in [0, numMeans) to a class in
// [0, K). Invariant: every class has at least one member.
type ClusterMap struct {
	Assignment []int
	K          int
}

// Class returns the regression class gaussianID was assigned to.
func (m *ClusterMap) Class(gaussianID int) int {
	return m.Assignment[gaussianID]
}

// Cluster runs Lloyd iteration over means, assigning each of its N entries
// to one of k classes. k=1 returns the trivial single-class map without
// iterating, the "global MLLR" case.
func Cluster(means *Pool[Gaussian], k int) *ClusterMap {
	n := means.Len()
	assignment := make([]int, n)
	if k <= 1 {
		return &ClusterMap{Assignment: assignment, K: 1}
	}

	d := len(means.Get(0).Mean)
	centroids := initialCentroids(means, n, k, d)

	for iter := 0; iter < defaultMaxClusterIterations; iter++ {
		changed := assignToNearest(means, centroids, assignment)
		centroids = recomputeCentroids(means, assignment, centroids, n, k, d)
		if !changed {
			break
		}
	}
	return &ClusterMap{Assignment: assignment, K: k}
}

// initialCentroids picks every floor(n/k)-th mean as a starting centroid,
// the deterministic initialization the clustering invariant requires.
func initialCentroids(means *Pool[Gaussian], n, k, d int) [][]float64 {
	step := n / k
	if step == 0 {
		step = 1
	}
	centroids := make([][]float64, k)
	for c := 0; c < k; c++ {
		idx := c * step
		if idx >= n {
			idx = n - 1
		}
		centroids[c] = meanToFloat64(means.Get(idx).Mean, d)
	}
	return centroids
}

// assignToNearest assigns each mean to its nearest centroid, ties broken by
// lowest class id, reporting whether any assignment changed.
func assignToNearest(means *Pool[Gaussian], centroids [][]float64, assignment []int) bool {
	changed := false
	for g := range assignment {
		feat := meanToFloat64(means.Get(g).Mean, len(centroids[0]))
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			dist := floats.Distance(feat, centroid, 2)
			if dist < bestDist {
				bestDist, best = dist, c
			}
		}
		if assignment[g] != best {
			assignment[g] = best
			changed = true
		}
	}
	return changed
}

// recomputeCentroids sets each class's centroid to the per-dimension mean
// of its members; an empty class retains its previous centroid.
func recomputeCentroids(means *Pool[Gaussian], assignment []int, prev [][]float64, n, k, d int) [][]float64 {
	next := make([][]float64, k)
	counts := make([]int, k)
	for c := range next {
		next[c] = make([]float64, d)
	}
	for g := 0; g < n; g++ {
		c := assignment[g]
		counts[c]++
		floats.Add(next[c], meanToFloat64(means.Get(g).Mean, d))
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			next[c] = prev[c]
			continue
		}
		floats.Scale(1/float64(counts[c]), next[c])
	}
	return next
}

func meanToFloat64(v []float32, d int) []float64 {
	out := make([]float64, d)
	for i := 0; i < d; i++ {
		out[i] = float64(v[i])
	}
	return out
}
