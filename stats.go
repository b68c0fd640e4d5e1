package sphinxadapt

// StatsAccumulator (C5) and the lifecycle state machine shared with
// TransformSolver & Applier (C6). The accumulation itself is the
// outer-product pipeline the spec calls out as the hard numerical core;
// grounded on the teacher's accumulate-then-freeze shape (Builder.AddNgram
// feeding into a single DumpHashed) generalized from scalar frequency
// counting to per-dimension matrix/vector accumulation via gonum/mat.

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Frame is one decoded frame's feature vector.
type Frame struct {
	Features []float64
}

// TokenState is one active senone at one frame, carrying the frame-level
// senone posterior gamma_{t,s} an upstream recognizer would have computed
// during alignment.
type TokenState struct {
	SenoneID  int
	Posterior float64
	Frame     Frame
}

// Result is one decoded utterance's token timeline, the unit Collect
// consumes. The core never constructs a Result itself; it is fed one by an
// upstream recognizer (out of scope, per the spec's non-goals).
type Result struct {
	Tokens []TokenState
}

// SolverState is the MLLR session's lifecycle state.
type SolverState int

const (
	StateEmpty SolverState = iota
	StateCollecting
	StateReady
	StateApplied
)

func (s SolverState) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateCollecting:
		return "COLLECTING"
	case StateReady:
		return "READY"
	case StateApplied:
		return "APPLIED"
	default:
		return "UNKNOWN"
	}
}

// posteriorEpsilon is the ulp-scale threshold below which a component
// posterior's contribution is skipped rather than accumulated.
const posteriorEpsilon = 1e-12

// classAccumulator holds one regression class's sufficient statistics: for
// each feature dimension i, a (d+1)x(d+1) symmetric accumulator G[i] and a
// (d+1) vector accumulator z[i].
type classAccumulator struct {
	g []*mat.SymDense
	z [][]float64
}

func newClassAccumulator(d int) *classAccumulator {
	g := make([]*mat.SymDense, d)
	z := make([][]float64, d)
	for i := range g {
		g[i] = mat.NewSymDense(d+1, nil)
		z[i] = make([]float64, d+1)
	}
	return &classAccumulator{g: g, z: z}
}

// Adaptation drives one MLLR session end to end: Collect accumulates
// statistics (StatsAccumulator, C5); Solve and Apply produce and apply
// affine transforms (TransformSolver & Applier, C6). The four states are
// EMPTY, COLLECTING, READY, APPLIED; Apply from anything but READY fails
// with ErrInvalidState.
type Adaptation struct {
	store      *ModelStore
	clusterMap *ClusterMap
	d          int
	classes    []*classAccumulator
	state      SolverState
	transforms []AffineTransform
	report     SolveReport
}

// NewAdaptation starts a fresh EMPTY session over store's senones, grouped
// into clusterMap's regression classes.
func NewAdaptation(store *ModelStore, clusterMap *ClusterMap) *Adaptation {
	return &Adaptation{store: store, clusterMap: clusterMap, d: store.FeatureDim, state: StateEmpty}
}

// State returns the session's current lifecycle state.
func (a *Adaptation) State() SolverState { return a.state }

// Reset zeroes every accumulator and returns to EMPTY.
func (a *Adaptation) Reset() {
	a.classes = nil
	a.transforms = nil
	a.report = SolveReport{}
	a.state = StateEmpty
}

// Collect drives accumulation over one decoded result's token timeline.
// Not reentrant: if an upstream recognizer produces results concurrently,
// the caller must serialize calls itself.
func (a *Adaptation) Collect(result *Result) {
	if a.classes == nil {
		a.classes = make([]*classAccumulator, a.clusterMap.K)
		for c := range a.classes {
			a.classes[c] = newClassAccumulator(a.d)
		}
	}
	if a.state == StateEmpty {
		a.state = StateCollecting
	}

	for _, tok := range result.Tokens {
		a.collectToken(tok)
	}
}

func (a *Adaptation) collectToken(tok TokenState) {
	senone := a.store.Senone(tok.SenoneID)
	componentPosteriors := senone.Posteriors(tok.Frame.Features)
	components := senone.Components()

	xi := make([]float64, a.d+1)
	copy(xi, tok.Frame.Features)
	xi[a.d] = 1
	xiVec := mat.NewVecDense(a.d+1, xi)

	for k, compPosterior := range componentPosteriors {
		gamma := tok.Posterior * compPosterior
		if gamma < posteriorEpsilon {
			continue
		}
		comp := components[k]
		class := a.clusterMap.Class(a.store.GaussianID(senone.ID(), k))
		acc := a.classes[class]
		for i := 0; i < a.d; i++ {
			w := gamma / float64(comp.Variance[i])
			acc.g[i].SymRankOne(acc.g[i], w, xiVec)
			floats.AddScaled(acc.z[i], w*float64(comp.Mean[i]), xi)
		}
	}
}

// Snapshot returns an immutable-by-convention view of the accumulators
// built so far, for Solve. Callers in this package must not mutate it.
func (a *Adaptation) Snapshot() []*classAccumulator {
	return a.classes
}
