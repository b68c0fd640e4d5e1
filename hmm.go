package sphinxadapt

import (
	"fmt"
	"math"
)

// defaultOffDiagonalFloor is the small nonzero value an exactly-zero
// transition-matrix entry is floored to before normalization and the
// log-domain conversion, so that log(0) never appears except in the
// synthetic terminal row.
const defaultOffDiagonalFloor = 1e-8

// TransitionMatrix is a numStates x numStates row-stochastic matrix in the
// log domain. Row numStates-1 (the terminal row) is all LogZero.
type TransitionMatrix struct {
	NumStates int
	log       [][]float64 // log[i][j]
}

// NewTransitionMatrixFromLinear builds a log-domain TransitionMatrix from
// numStates-1 linear-domain rows (the terminal row is synthesized). Each
// row is floored (exact zeros only), normalized to sum to 1, then
// log-converted.
func NewTransitionMatrixFromLinear(rows [][]float32) *TransitionMatrix {
	n := len(rows) + 1
	log := make([][]float64, n)
	for i, row := range rows {
		cp := append([]float32(nil), row...)
		nonZeroFloor(cp, defaultOffDiagonalFloor)
		var sum float32
		for _, v := range cp {
			sum += v
		}
		logRow := make([]float64, len(cp))
		for j, v := range cp {
			logRow[j] = math.Log(float64(v / sum))
		}
		log[i] = logRow
	}
	terminal := make([]float64, n)
	for j := range terminal {
		terminal[j] = LogZero
	}
	log[n-1] = terminal
	return &TransitionMatrix{NumStates: n, log: log}
}

// LogProb returns the log-domain transition probability from to j.
func (t *TransitionMatrix) LogProb(i, j int) float64 {
	return t.log[i][j]
}

// Row returns the log-domain transition row from state i, for read-only use.
func (t *TransitionMatrix) Row(i int) []float64 {
	return t.log[i]
}

// SenoneSequence is an ordered sequence of senone ids, typically length
// numStatePerHMM-1.
type SenoneSequence struct {
	SenoneIDs []int
}

// HMM is (unit, senone sequence, transition matrix, position).
type HMM struct {
	Unit       *Unit
	Senones    *SenoneSequence
	Transition *TransitionMatrix
	Position   Position
}

// hmmKey is the composite key HMMManager indexes by.
type hmmKey struct {
	position Position
	unit     *Unit
}

// HMMManager holds every registered HMM, keyed by (position, unit). Units
// are compared by pointer identity, which is safe because the loader always
// interns Units through UnitPool before registering an HMM.
type HMMManager struct {
	byKey map[hmmKey]*HMM
}

// NewHMMManager returns an empty manager.
func NewHMMManager() *HMMManager {
	return &HMMManager{byKey: make(map[hmmKey]*HMM)}
}

// Put registers hmm under (hmm.Position, hmm.Unit).
func (m *HMMManager) Put(hmm *HMM) {
	m.byKey[hmmKey{hmm.Position, hmm.Unit}] = hmm
}

// Get returns the HMM registered for (position, unit), or nil.
func (m *HMMManager) Get(position Position, unit *Unit) *HMM {
	return m.byKey[hmmKey{position, unit}]
}

// Len returns the number of registered HMMs.
func (m *HMMManager) Len() int {
	return len(m.byKey)
}

// requireSilence validates the "exactly one SIL CI unit, bound to
// UnitManager.SILENCE" invariant: a CI unit named SILENCE must have been
// registered at PositionUndefined.
func requireSilence(m *HMMManager, ciUnits map[string]*Unit) error {
	sil, ok := ciUnits[SILENCE]
	if !ok {
		return fmt.Errorf("no %s CI unit: %w", SILENCE, ErrModelMalformed)
	}
	if m.Get(PositionUndefined, sil) == nil {
		return fmt.Errorf("%s has no registered HMM: %w", SILENCE, ErrModelMalformed)
	}
	return nil
}
