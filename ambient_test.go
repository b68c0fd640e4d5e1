package sphinxadapt

import (
	"math"
	"testing"
)

// TestLogAdd exercises the general-purpose log-domain addition primitive
// kept alongside logSumExp per logmath.go's own rationale (future log-domain
// code, not yet on any hot path).
func TestLogAdd(t *testing.T) {
	got := logAdd(math.Log(2), math.Log(3))
	want := math.Log(5)
	if !almostEqual(got, want, 1e-9) {
		t.Errorf("logAdd(log 2, log 3) = %v, want log(5) = %v", got, want)
	}
	if got := logAdd(LogZero, math.Log(4)); !almostEqual(got, math.Log(4), 1e-9) {
		t.Errorf("logAdd(LogZero, log 4) = %v, want log(4)", got)
	}
	if got := logAdd(math.Log(4), LogZero); !almostEqual(got, math.Log(4), 1e-9) {
		t.Errorf("logAdd(log 4, LogZero) = %v, want log(4)", got)
	}
}

// TestPoolBuilderAppend exercises the append-in-order path of PoolBuilder,
// the counterpart to Set's explicit-id path every current loader function
// uses instead.
func TestPoolBuilderAppend(t *testing.T) {
	b := NewPoolBuilder[string](0)
	b.Append("a")
	b.Append("b")
	b.Append("c")
	p := b.Freeze()
	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}
	for i, want := range []string{"a", "b", "c"} {
		if got := p.Get(i); got != want {
			t.Errorf("Get(%d) = %q, want %q", i, got, want)
		}
	}
}

// TestGaussianMixtureScoreAndClone exercises Senone.Score (the mixture log
// likelihood, used by a future decoder-facing scoring path but not by the
// MLLR pipeline itself) and Clone (the independently-mutable-copy
// capability the spec's polymorphism design note requires of every Senone).
func TestGaussianMixtureScoreAndClone(t *testing.T) {
	components := []Gaussian{
		{Mean: []float32{0, 0}, Variance: []float32{1, 1}},
		{Mean: []float32{4, 4}, Variance: []float32{1, 1}},
	}
	logWeights := []float64{math.Log(0.5), math.Log(0.5)}
	m := NewGaussianMixture(7, components, logWeights, 0)

	if got := m.ID(); got != 7 {
		t.Errorf("ID() = %d, want 7", got)
	}

	scoreAtFirst := m.Score([]float64{0, 0})
	scoreAtMidpoint := m.Score([]float64{2, 2})
	if scoreAtFirst <= scoreAtMidpoint {
		t.Errorf("Score at a component mean (%v) should exceed score at the midpoint (%v)", scoreAtFirst, scoreAtMidpoint)
	}

	clone := m.Clone()
	cloneMixture, ok := clone.(*GaussianMixture)
	if !ok {
		t.Fatalf("Clone() returned %T, want *GaussianMixture", clone)
	}
	if cloneMixture.ID() != m.ID() {
		t.Errorf("clone ID = %d, want %d", cloneMixture.ID(), m.ID())
	}
	cloneMixture.Components()[0].Mean[0] = 999
	if m.Components()[0].Mean[0] == 999 {
		t.Errorf("mutating the clone's component mean affected the original; Clone must deep-copy")
	}
}
