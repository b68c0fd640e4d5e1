package sphinxadapt

import (
	"math"
	"testing"
)

func TestTransitionMatrixTerminalRow(t *testing.T) {
	tm := NewTransitionMatrixFromLinear([][]float32{
		{0.9, 0.1},
		{0, 0.8},
	})
	if tm.NumStates != 3 {
		t.Fatalf("NumStates = %d, want 3", tm.NumStates)
	}
	for j := 0; j < tm.NumStates; j++ {
		if got := tm.LogProb(2, j); got != LogZero {
			t.Errorf("terminal row [%d] = %v, want LogZero", j, got)
		}
	}
	// Row 0 should sum to ~1 in linear domain.
	sum := math.Exp(tm.LogProb(0, 0)) + math.Exp(tm.LogProb(0, 1))
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("row 0 sums to %v, want 1", sum)
	}
	// Row 1's exact zero is floored, never -Inf.
	if math.IsInf(tm.LogProb(1, 0), -1) {
		t.Errorf("row 1 col 0 is -Inf, want floored nonzero log")
	}
}

func TestHMMManagerSilenceInvariant(t *testing.T) {
	m := NewHMMManager()
	ci := map[string]*Unit{}
	if err := requireSilence(m, ci); err == nil {
		t.Fatalf("expected error for missing SIL")
	}

	sil := &Unit{Name: SILENCE}
	ci[SILENCE] = sil
	if err := requireSilence(m, ci); err == nil {
		t.Fatalf("expected error for unregistered SIL HMM")
	}

	m.Put(&HMM{Unit: sil, Position: PositionUndefined, Senones: &SenoneSequence{}})
	if err := requireSilence(m, ci); err != nil {
		t.Fatalf("requireSilence: %v", err)
	}
}
