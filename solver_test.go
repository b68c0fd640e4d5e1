package sphinxadapt

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestSolveRowIdentityFallbackOnSingular(t *testing.T) {
	g := mat.NewSymDense(2, nil) // all-zero: singular
	z := []float64{1, 2}
	w, singular := solveRow(g, z)
	if !singular {
		t.Fatalf("expected singular=true for all-zero system")
	}
	if w != nil {
		t.Fatalf("expected nil w on singular detection, got %v", w)
	}
}

func TestSolveRowWellConditioned(t *testing.T) {
	g := mat.NewSymDense(2, []float64{2, 0, 0, 2})
	z := []float64{4, 6}
	w, singular := solveRow(g, z)
	if singular {
		t.Fatalf("unexpected singular=true")
	}
	if math.Abs(w[0]-2) > 1e-9 || math.Abs(w[1]-3) > 1e-9 {
		t.Errorf("w = %v, want [2 3]", w)
	}
}

func TestAdaptationStateMachine(t *testing.T) {
	dir := writeTinyModel(t)
	store, err := Load(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cm := Cluster(store.Means, 1)
	a := NewAdaptation(store, cm)
	if a.State() != StateEmpty {
		t.Fatalf("initial state = %v, want EMPTY", a.State())
	}

	if err := a.Apply(filepath.Join(t.TempDir(), "means")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Apply from EMPTY: got %v, want ErrInvalidState", err)
	}

	a.Collect(&Result{Tokens: []TokenState{
		{SenoneID: 0, Posterior: 1.0, Frame: Frame{Features: []float64{0.1, 0.1}}},
		{SenoneID: 1, Posterior: 1.0, Frame: Frame{Features: []float64{1.9, 2.1}}},
	}})
	if a.State() != StateCollecting {
		t.Fatalf("state after Collect = %v, want COLLECTING", a.State())
	}

	if err := a.Solve(); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if a.State() != StateReady {
		t.Fatalf("state after Solve = %v, want READY", a.State())
	}

	outPath := filepath.Join(t.TempDir(), "means")
	if err := a.Apply(outPath); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if a.State() != StateApplied {
		t.Fatalf("state after Apply = %v, want APPLIED", a.State())
	}

	r, err := OpenS3Header(outPath)
	if err != nil {
		t.Fatalf("re-reading adapted means: %v", err)
	}
	defer r.Close()
	numStates, _ := r.ReadInt()
	if numStates != 2 {
		t.Errorf("adapted means numStates = %d, want 2", numStates)
	}
}

func TestAdaptationResetReturnsToEmpty(t *testing.T) {
	dir := writeTinyModel(t)
	store, err := Load(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cm := Cluster(store.Means, 1)
	a := NewAdaptation(store, cm)
	a.Collect(&Result{Tokens: []TokenState{
		{SenoneID: 0, Posterior: 1.0, Frame: Frame{Features: []float64{0, 0}}},
	}})
	a.Reset()
	if a.State() != StateEmpty {
		t.Fatalf("state after Reset = %v, want EMPTY", a.State())
	}
	if a.Snapshot() != nil {
		t.Errorf("Snapshot after Reset = %v, want nil", a.Snapshot())
	}
}
