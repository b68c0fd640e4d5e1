package sphinxadapt

import "testing"

func poolOf(vectors ...[]float32) *Pool[Gaussian] {
	b := NewPoolBuilder[Gaussian](len(vectors))
	for i, v := range vectors {
		b.Set(i, Gaussian{Mean: v, Variance: make([]float32, len(v))})
	}
	return b.Freeze()
}

func TestClusterTrivialSingleClass(t *testing.T) {
	means := poolOf([]float32{0, 0}, []float32{10, 10}, []float32{20, 20})
	cm := Cluster(means, 1)
	if cm.K != 1 {
		t.Fatalf("K = %d, want 1", cm.K)
	}
	for g := 0; g < means.Len(); g++ {
		if cm.Class(g) != 0 {
			t.Errorf("Class(%d) = %d, want 0", g, cm.Class(g))
		}
	}
}

func TestClusterSeparatesDistinctGroups(t *testing.T) {
	means := poolOf(
		[]float32{0, 0}, []float32{0.1, -0.1},
		[]float32{10, 10}, []float32{10.1, 9.9},
	)
	cm := Cluster(means, 2)
	if cm.Class(0) != cm.Class(1) {
		t.Errorf("first pair split across classes: %d, %d", cm.Class(0), cm.Class(1))
	}
	if cm.Class(2) != cm.Class(3) {
		t.Errorf("second pair split across classes: %d, %d", cm.Class(2), cm.Class(3))
	}
	if cm.Class(0) == cm.Class(2) {
		t.Errorf("distinct groups collapsed into one class")
	}
}

func TestClusterEveryClassNonEmpty(t *testing.T) {
	means := poolOf([]float32{0, 0}, []float32{1, 1}, []float32{2, 2}, []float32{3, 3})
	cm := Cluster(means, 4)
	seen := make([]bool, 4)
	for g := 0; g < means.Len(); g++ {
		seen[cm.Class(g)] = true
	}
	for c, ok := range seen {
		if !ok {
			t.Errorf("class %d has no members", c)
		}
	}
}
