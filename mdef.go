package sphinxadapt

// mdef text grammar parsing, using the same iteratee combinators the
// teacher uses for ARPA parsing in arpa.go: a small top-to-bottom chain of
// stream.Iteratee values driven by stream.Run over stream.EnumRead. Unlike
// ARPA's recursive "\N-grams:" sections, mdef's shape (a version line, six
// count pairs, then two fixed-length row blocks) is known entirely up
// front, so the dynamic part is narrower: only the row-block lengths are
// computed from the parsed counts.

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/kho/stream"
)

// mdefLoader accumulates parse state across the whole file and is shared by
// every iteratee in the chain, the same role Builder plays for arpaTop.
type mdefLoader struct {
	transitions    *Pool[*TransitionMatrix]
	useCDUnits     bool
	counts         []int32 // numBase, numTri, numStateMap, numTiedState, numCIState, numTiedTmat, in order
	numStatePerHMM int
	units          *UnitPool
	ciUnits        map[string]*Unit
	hmms           *HMMManager
}

// LoadMdef parses the mdef file at path and populates a fresh HMMManager
// and CI-unit map. transitions must already be loaded (load_transitions
// runs before load_hmms in the loader pipeline).
func LoadMdef(path string, transitions *Pool[*TransitionMatrix], useCDUnits bool) (map[string]*Unit, *HMMManager, error) {
	in, err := openModelFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	defer in.Close()

	loader := &mdefLoader{
		transitions: transitions,
		useCDUnits:  useCDUnits,
		units:       NewUnitPool(1024),
		ciUnits:     map[string]*Unit{},
		hmms:        NewHMMManager(),
	}
	if err := stream.Run(stream.EnumRead(in, mdefLineSplit), mdefTop{loader}); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := requireSilence(loader.hmms, loader.ciUnits); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return loader.ciUnits, loader.hmms, nil
}

const mdefVersionToken = `MODEL_VERSION="0.3"`

// mdefTop expects the version line, then hands off to mdefCounts.
type mdefTop struct {
	loader *mdefLoader
}

func (it mdefTop) Final() error { return stream.ErrExpect(mdefVersionToken) }
func (it mdefTop) Next(line []byte) (stream.Iteratee, bool, error) {
	tok := strings.TrimSpace(string(line))
	if tok != mdefVersionToken {
		return nil, false, fmt.Errorf("%s: got %q: %w", mdefVersionToken, tok, ErrUnsupportedVersion)
	}
	return mdefCounts{it.loader, 0}, true, nil
}

// mdefCounts reads the six "<int> <keyword>" pair lines, in order:
// n_base, n_tri, n_state_map, n_tied_state, n_tied_ci_state, n_tied_tmat.
type mdefCounts struct {
	loader *mdefLoader
	seen   int
}

func (it mdefCounts) Final() error { return stream.ErrExpect("<int> <keyword> count pair") }
func (it mdefCounts) Next(line []byte) (stream.Iteratee, bool, error) {
	fields := strings.Fields(string(line))
	if len(fields) != 2 {
		return nil, false, stream.ErrExpect(`"<int> <keyword>"`)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, false, fmt.Errorf("count %q: %w", fields[0], ErrModelMalformed)
	}
	it.loader.counts = append(it.loader.counts, int32(n))
	it.seen++
	if it.seen < 6 {
		return it, true, nil
	}

	loader := it.loader
	numBase, numTri, numStateMap := loader.counts[0], loader.counts[1], loader.counts[2]
	if numBase+numTri == 0 {
		return nil, false, fmt.Errorf("n_base + n_tri == 0: %w", ErrModelMalformed)
	}
	loader.numStatePerHMM = int(numStateMap) / int(numBase+numTri)
	if loader.numStatePerHMM < 2 {
		return nil, false, fmt.Errorf("numStatePerHMM = %d: %w", loader.numStatePerHMM, ErrModelMalformed)
	}
	return stream.Seq{
		newMdefRows(loader, int(numBase), false),
		newMdefRows(loader, int(numTri), true),
		stream.EOF,
	}, true, nil
}

// mdefRows consumes exactly remaining phone rows, all of the same kind (CI
// or triphone), then yields control back to whatever follows it in the
// enclosing Seq without consuming the line that ends the block.
type mdefRows struct {
	loader    *mdefLoader
	remaining int
	cd        bool
}

func newMdefRows(loader *mdefLoader, n int, cd bool) *mdefRows {
	return &mdefRows{loader: loader, remaining: n, cd: cd}
}

func (it *mdefRows) Final() error {
	if it.remaining == 0 {
		return nil
	}
	return stream.ErrExpect("phone row")
}
func (it *mdefRows) Next(line []byte) (stream.Iteratee, bool, error) {
	if it.remaining == 0 {
		return nil, false, nil
	}
	if err := it.loader.parseRow(line, it.cd); err != nil {
		return nil, false, err
	}
	it.remaining--
	return it, true, nil
}

// parseRow parses one "name left right position attribute tmat stid... N"
// row, interns its Unit (and SenoneSequence) through the loader's UnitPool,
// and registers the resulting HMM. CD rows are parsed even when useCDUnits
// is false, but not registered, matching "parse but do not register".
func (l *mdefLoader) parseRow(line []byte, cd bool) error {
	fields := strings.Fields(string(line))
	want := 6 + (l.numStatePerHMM - 1) + 1
	if len(fields) != want {
		return fmt.Errorf("phone row: got %d fields, want %d: %w", len(fields), want, ErrModelMalformed)
	}
	name, left, right, posTok, attr, tmatTok := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	stidToks := fields[6 : 6+l.numStatePerHMM-1]
	if fields[len(fields)-1] != "N" {
		return fmt.Errorf("phone row: missing terminal N: %w", ErrModelMalformed)
	}
	if !cd && (left != "-" || right != "-") {
		return fmt.Errorf("CI row %s has non-\"-\" context: %w", name, ErrModelMalformed)
	}

	position, err := parsePosition(posTok)
	if err != nil {
		return err
	}
	tmat, err := strconv.Atoi(tmatTok)
	if err != nil {
		return fmt.Errorf("tmat id %q: %w", tmatTok, ErrModelMalformed)
	}
	if tmat < 0 || tmat >= l.transitions.Len() {
		return fmt.Errorf("tmat id %d out of range: %w", tmat, ErrModelMalformed)
	}
	stids := make([]int, len(stidToks))
	for i, tok := range stidToks {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return fmt.Errorf("tied-state id %q: %w", tok, ErrModelMalformed)
		}
		stids[i] = v
	}

	key := unitKey{name: name, left: left, right: right}
	unit, seq, existingStids, found := l.units.Lookup(key)
	if !found || !sameStids(existingStids, stids) {
		var ctx *LeftRightContext
		if cd {
			ctx = &LeftRightContext{Left: left, Right: right}
		}
		unit = &Unit{Name: name, Filler: attr == "filler", Context: ctx}
		seq = &SenoneSequence{SenoneIDs: stids}
		l.units.Intern(key, unit, seq, stids)
	}

	if cd && !l.useCDUnits {
		return nil
	}
	l.hmms.Put(&HMM{
		Unit:       unit,
		Senones:    seq,
		Transition: l.transitions.Get(tmat),
		Position:   position,
	})
	if !cd {
		l.ciUnits[name] = unit
	}
	return nil
}

// mdefLineSplit is a bufio.SplitFunc, the same role arpa.go's lineSplit
// plays, adapted to also strip "# ..." comments and skip the resulting
// blank lines, since mdef (unlike ARPA) allows trailing line comments.
func mdefLineSplit(data []byte, atEOF bool) (int, []byte, error) {
	total := 0
	for {
		n, line, err := rawLineSplit(data[total:], atEOF)
		if err != nil {
			return total + n, nil, err
		}
		if line == nil {
			return total + n, nil, nil
		}
		total += n
		if stripped := stripMdefComment(line); len(stripped) > 0 {
			return total, stripped, nil
		}
		if total >= len(data) {
			return total, nil, nil
		}
	}
}

func stripMdefComment(line []byte) []byte {
	if i := bytes.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	for len(line) > 0 && isMdefSpace(line[len(line)-1]) {
		line = line[:len(line)-1]
	}
	return line
}

func isMdefSpace(b byte) bool {
	switch b {
	case '\t', '\v', '\f', '\r', ' ':
		return true
	default:
		return false
	}
}

// rawLineSplit finds the next newline-delimited, leading/trailing-space
// trimmed line, verbatim in structure to the teacher's arpa.go lineSplit.
func rawLineSplit(data []byte, atEOF bool) (int, []byte, error) {
	l, r, n := -1, -1, 0
	for i, b := range data {
		if !isMdefSpace(b) && b != '\n' {
			l = i
			break
		}
	}
	if l < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return len(data), nil, nil
	}
	for i, b := range data[l+1:] {
		if b == '\n' {
			r, n = l+i, l+i+2
			break
		}
	}
	if r < 0 {
		if !atEOF {
			return l, nil, nil
		}
		r, n = len(data)-1, len(data)
	}
	for r > l && isMdefSpace(data[r]) {
		r--
	}
	return n, data[l : r+1], nil
}
