package sphinxadapt

import (
	"os"
	"path/filepath"
	"testing"
)

// tinyTransitions returns a one-matrix transitions pool, sized the same way
// writeTinyModel's does, for tests that exercise mdef parsing directly
// without going through the full Load pipeline.
func tinyTransitions(t *testing.T) *Pool[*TransitionMatrix] {
	t.Helper()
	b := NewPoolBuilder[*TransitionMatrix](1)
	b.Set(0, NewTransitionMatrixFromLinear([][]float32{{0.9, 0.1}}))
	return b.Freeze()
}

// writeTriphoneModel lays out an mdef with two CI phones (SIL, AA) and one
// CD (triphone) row for AA in a B_B context, numStatePerHMM=2 throughout.
func writeTriphoneModel(t *testing.T, dir string) string {
	t.Helper()
	mdef := `MODEL_VERSION="0.3"
2 n_base
1 n_tri
6 n_state_map
3 n_tied_state
2 n_tied_ci_state
1 n_tied_tmat
SIL - - - n/a 0 0 N
AA - - - n/a 0 1 N
AA B B s n/a 0 2 N
`
	path := filepath.Join(dir, "mdef")
	if err := os.WriteFile(path, []byte(mdef), 0o644); err != nil {
		t.Fatalf("writing mdef: %v", err)
	}
	return path
}

func TestLoadMdefRegistersTriphoneWhenCDUnitsEnabled(t *testing.T) {
	dir := t.TempDir()
	path := writeTriphoneModel(t, dir)
	ciUnits, hmms, err := LoadMdef(path, tinyTransitions(t), true)
	if err != nil {
		t.Fatalf("LoadMdef: %v", err)
	}
	if len(ciUnits) != 2 {
		t.Errorf("len(ciUnits) = %d, want 2", len(ciUnits))
	}
	if hmms.Len() != 3 {
		t.Errorf("hmms.Len() = %d, want 3 (2 CI + 1 CD)", hmms.Len())
	}
}

func TestLoadMdefParsesButSkipsTriphoneWhenCDUnitsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := writeTriphoneModel(t, dir)
	ciUnits, hmms, err := LoadMdef(path, tinyTransitions(t), false)
	if err != nil {
		t.Fatalf("LoadMdef: %v", err)
	}
	if len(ciUnits) != 2 {
		t.Errorf("len(ciUnits) = %d, want 2", len(ciUnits))
	}
	if hmms.Len() != 2 {
		t.Errorf("hmms.Len() = %d, want 2 (CD row parsed but not registered)", hmms.Len())
	}
}

func newMdefLoaderForTest(t *testing.T) *mdefLoader {
	t.Helper()
	return &mdefLoader{
		transitions:    tinyTransitions(t),
		useCDUnits:     true,
		numStatePerHMM: 2,
		units:          NewUnitPool(8),
		ciUnits:        map[string]*Unit{},
		hmms:           NewHMMManager(),
	}
}

func TestParseRowDedupReusesUnitOnIdenticalStids(t *testing.T) {
	l := newMdefLoaderForTest(t)
	row := []byte("AA B B s n/a 0 2 N")
	if err := l.parseRow(row, true); err != nil {
		t.Fatalf("parseRow (first): %v", err)
	}
	unit1, _, stids1, found := l.units.Lookup(unitKey{name: "AA", left: "B", right: "B"})
	if !found {
		t.Fatalf("unit not interned after first row")
	}
	if err := l.parseRow(row, true); err != nil {
		t.Fatalf("parseRow (duplicate): %v", err)
	}
	unit2, _, stids2, found := l.units.Lookup(unitKey{name: "AA", left: "B", right: "B"})
	if !found {
		t.Fatalf("unit missing after duplicate row")
	}
	if unit1 != unit2 {
		t.Errorf("duplicate row with identical stids should reuse the same *Unit, got distinct pointers")
	}
	if !sameStids(stids1, stids2) {
		t.Errorf("stids1=%v stids2=%v, want equal", stids1, stids2)
	}
	if l.hmms.Len() != 1 {
		t.Errorf("hmms.Len() = %d, want 1 (duplicate row keys to the same (position,unit))", l.hmms.Len())
	}
}

func TestParseRowReinternsOnDifferentStids(t *testing.T) {
	l := newMdefLoaderForTest(t)
	if err := l.parseRow([]byte("AA B B s n/a 0 2 N"), true); err != nil {
		t.Fatalf("parseRow (first): %v", err)
	}
	unit1, _, _, _ := l.units.Lookup(unitKey{name: "AA", left: "B", right: "B"})

	if err := l.parseRow([]byte("AA B B s n/a 0 1 N"), true); err != nil {
		t.Fatalf("parseRow (different stids): %v", err)
	}
	unit2, _, stids2, _ := l.units.Lookup(unitKey{name: "AA", left: "B", right: "B"})
	if unit1 == unit2 {
		t.Errorf("a row with different stids under the same key should intern a fresh *Unit")
	}
	if !sameStids(stids2, []int{1}) {
		t.Errorf("stids2 = %v, want [1]", stids2)
	}
	if l.hmms.Len() != 2 {
		t.Errorf("hmms.Len() = %d, want 2 (distinct Unit pointers register separately)", l.hmms.Len())
	}
}

func TestParseRowSkipsRegistrationWhenCDUnitsDisabled(t *testing.T) {
	l := newMdefLoaderForTest(t)
	l.useCDUnits = false
	if err := l.parseRow([]byte("AA B B s n/a 0 2 N"), true); err != nil {
		t.Fatalf("parseRow: %v", err)
	}
	if _, _, _, found := l.units.Lookup(unitKey{name: "AA", left: "B", right: "B"}); !found {
		t.Errorf("CD row should still be parsed and interned even when useCDUnits is false")
	}
	if l.hmms.Len() != 0 {
		t.Errorf("hmms.Len() = %d, want 0 (CD row must not be registered)", l.hmms.Len())
	}
}
