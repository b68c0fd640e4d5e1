package sphinxadapt

// TransformSolver & Applier (C6): solves each regression class's per-dimension
// linear system by hand-rolled Gaussian elimination with partial pivoting
// (gonum's mat.SymDense stores the accumulators built in stats.go, but the
// solve itself is worked in a plain row-major scratch buffer, the same
// "drop to primitives for the inner loop" style the teacher uses in
// probing_impl.go's open-addressing probe sequence), then applies the
// resulting affine transforms to the means pool and writes the adapted
// means file through the same S3Writer codec.go exposes for any output.

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// singularPivotEpsilon is the minimum acceptable pivot magnitude; below
// this, a class/dimension's system is declared numerically singular.
const singularPivotEpsilon = 1e-12

// AffineTransform is one regression class's (A, b) pair: mu' = A*mu + b.
type AffineTransform struct {
	A *mat.Dense
	B []float64
}

// SolveReport records which classes fell back to the identity transform
// because one or more of their per-dimension systems was singular.
type SolveReport struct {
	Degenerate []bool
}

// ClassError returns an ErrSingularSystem-wrapped error for class c if Solve
// found it degenerate, or nil otherwise. Per spec.md §7's errors.Is
// propagation policy, this is the caller-facing handle on scenario 6
// ("singular class") — degeneracy is reported, not fatal, but must still be
// detectable with errors.Is(err, ErrSingularSystem).
func (r SolveReport) ClassError(c int) error {
	if c < 0 || c >= len(r.Degenerate) || !r.Degenerate[c] {
		return nil
	}
	return fmt.Errorf("class %d: %w", c, ErrSingularSystem)
}

// Solve solves, for each class and each dimension i, G[c][i]*w = z[c][i],
// assembling A_c/b_c row by row from w_{c,i}. Valid only from COLLECTING;
// transitions the session to READY.
func (a *Adaptation) Solve() error {
	if a.state != StateCollecting {
		return fmt.Errorf("solve from %s: %w", a.state, ErrInvalidState)
	}
	k := len(a.classes)
	transforms := make([]AffineTransform, k)
	degenerate := make([]bool, k)

	for c, acc := range a.classes {
		A := mat.NewDense(a.d, a.d, nil)
		b := make([]float64, a.d)
		for i := 0; i < a.d; i++ {
			w, singular := solveRow(acc.g[i], acc.z[i])
			if singular {
				degenerate[c] = true
				w = identityRow(i, a.d)
			}
			A.SetRow(i, w[:a.d])
			b[i] = w[a.d]
		}
		transforms[c] = AffineTransform{A: A, B: b}
	}

	a.transforms = transforms
	a.report = SolveReport{Degenerate: degenerate}
	a.state = StateReady
	return nil
}

// Report returns the most recent Solve's degeneracy report.
func (a *Adaptation) Report() SolveReport { return a.report }

// Transforms returns the session's current per-class affine transforms,
// valid once the state is READY or APPLIED. Exported for callers (e.g. the
// adapt command) that want to persist them via WriteTransformFile in
// addition to calling Apply.
func (a *Adaptation) Transforms() []AffineTransform { return a.transforms }

// solveRow solves g*w = z for the (d+1)-vector w by Gaussian elimination
// with partial pivoting on an augmented [g|z] matrix. Reports singular=true
// (and a nil w) if any pivot column's best available magnitude falls below
// singularPivotEpsilon.
func solveRow(g *mat.SymDense, z []float64) ([]float64, bool) {
	n := g.SymmetricDim()
	aug := make([][]float64, n)
	for r := 0; r < n; r++ {
		row := make([]float64, n+1)
		for c := 0; c < n; c++ {
			row[c] = g.At(r, c)
		}
		row[n] = z[r]
		aug[r] = row
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug[r][col]); v > best {
				best, pivot = v, r
			}
		}
		if best < singularPivotEpsilon {
			return nil, true
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pivotVal := aug[col][col]
		for c := col; c <= n; c++ {
			aug[col][c] /= pivotVal
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	w := make([]float64, n)
	for r := 0; r < n; r++ {
		w[r] = aug[r][n]
	}
	return w, false
}

// identityRow returns e_i (+/- 0 bias), the fallback row for a singular
// dimension i's system, length d+1.
func identityRow(i, d int) []float64 {
	row := make([]float64, d+1)
	row[i] = 1
	return row
}

// Apply computes mu' = A_{class(g)}*mu_g + b_{class(g)} for every Gaussian
// component and writes the result to outPath as an S3 binary file with the
// same header fields and shape as the input means file. Valid only from
// READY; transitions the session to APPLIED.
func (a *Adaptation) Apply(outPath string) error {
	if a.state != StateReady {
		return fmt.Errorf("apply from %s: %w", a.state, ErrInvalidState)
	}
	n := a.store.Means.Len()
	adapted := make([][]float32, n)
	for g := 0; g < n; g++ {
		mean := a.store.Means.Get(g).Mean
		t := a.transforms[a.clusterMap.Class(g)]
		mu := make([]float32, a.d)
		for i := 0; i < a.d; i++ {
			sum := t.B[i]
			for j := 0; j < a.d; j++ {
				sum += t.A.At(i, j) * float64(mean[j])
			}
			mu[i] = float32(sum)
		}
		adapted[g] = mu
	}
	if err := writeMeansFile(outPath, a.store.MeansHeader, adapted, a.d); err != nil {
		return err
	}
	a.state = StateApplied
	return nil
}

// writeMeansFile writes vectors (one per Gaussian id) to path in the same
// load_density shape the loader reads: numStates=len(vectors), numStreams=1,
// numGaussiansPerState=1, a single vectorLength=d, rawLength=len(vectors)*d.
// header's fields (captured from the original means file) are written
// verbatim so a byte-for-byte structural match is preserved.
func writeMeansFile(path string, header []HeaderField, vectors [][]float32, d int) error {
	if len(header) == 0 {
		header = []HeaderField{{Key: "version", Value: "1.0"}, {Key: "chksum0", Value: "yes"}}
	}
	w, err := CreateS3Writer(path, header)
	if err != nil {
		return err
	}
	if err := w.WriteInt(int32(len(vectors))); err != nil {
		return err
	}
	if err := w.WriteInt(1); err != nil {
		return err
	}
	if err := w.WriteInt(1); err != nil {
		return err
	}
	if err := w.WriteInt(int32(d)); err != nil {
		return err
	}
	if err := w.WriteInt(int32(len(vectors) * d)); err != nil {
		return err
	}
	for _, v := range vectors {
		if err := w.WriteFloatArray(v); err != nil {
			return err
		}
	}
	return w.FinishChecksum()
}

// WriteTransformFile writes transforms in the external MLLR file format:
// one int K, then for each class one int d and d*(d+1) floats (A's rows
// followed by b, per row) in row-major order.
func WriteTransformFile(path string, transforms []AffineTransform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, wrapIo(err))
	}
	defer f.Close()
	bw := bufio.NewWriter(f)

	if err := writeBinInt(bw, int32(len(transforms))); err != nil {
		return fmt.Errorf("%s: writing K: %w", path, err)
	}
	for c, t := range transforms {
		d, _ := t.A.Dims()
		if err := writeBinInt(bw, int32(d)); err != nil {
			return fmt.Errorf("%s: class %d: writing d: %w", path, c, err)
		}
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				if err := writeBinFloat(bw, float32(t.A.At(i, j))); err != nil {
					return fmt.Errorf("%s: class %d row %d: %w", path, c, i, err)
				}
			}
			if err := writeBinFloat(bw, float32(t.B[i])); err != nil {
				return fmt.Errorf("%s: class %d bias %d: %w", path, c, i, err)
			}
		}
	}
	return bw.Flush()
}

// LoadTransformFile seeds the session directly from a pre-computed on-disk
// MLLR file, as an alternative to Collect+Solve: one int K, then for each
// class one int d and d*(d+1) floats in row-major order. Transitions EMPTY
// or COLLECTING straight to READY.
func LoadTransformFile(path string) ([]AffineTransform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, wrapIo(err))
	}
	defer f.Close()
	br := bufio.NewReader(f)

	var k int32
	if err := readBinInt(br, &k); err != nil {
		return nil, fmt.Errorf("%s: reading K: %w", path, err)
	}
	transforms := make([]AffineTransform, k)
	for c := int32(0); c < k; c++ {
		var d int32
		if err := readBinInt(br, &d); err != nil {
			return nil, fmt.Errorf("%s: class %d: reading d: %w", path, c, err)
		}
		A := mat.NewDense(int(d), int(d), nil)
		b := make([]float64, d)
		for i := int32(0); i < d; i++ {
			row := make([]float64, d)
			for j := int32(0); j < d; j++ {
				var v float32
				if err := readBinFloat(br, &v); err != nil {
					return nil, fmt.Errorf("%s: class %d row %d: %w", path, c, i, err)
				}
				row[j] = float64(v)
			}
			var bv float32
			if err := readBinFloat(br, &bv); err != nil {
				return nil, fmt.Errorf("%s: class %d bias %d: %w", path, c, i, err)
			}
			A.SetRow(int(i), row)
			b[i] = float64(bv)
		}
		transforms[c] = AffineTransform{A: A, B: b}
	}
	return transforms, nil
}

func readBinInt(r *bufio.Reader, out *int32) error {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return wrapIo(err)
	}
	*out = int32(binary.NativeEndian.Uint32(b[:]))
	return nil
}

func readBinFloat(r *bufio.Reader, out *float32) error {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return wrapIo(err)
	}
	*out = math.Float32frombits(binary.NativeEndian.Uint32(b[:]))
	return nil
}

func writeBinInt(w *bufio.Writer, v int32) error {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], uint32(v))
	if _, err := w.Write(b[:]); err != nil {
		return wrapIo(err)
	}
	return nil
}

func writeBinFloat(w *bufio.Writer, v float32) error {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], math.Float32bits(v))
	if _, err := w.Write(b[:]); err != nil {
		return wrapIo(err)
	}
	return nil
}

// SeedFromTransforms installs externally-solved transforms directly,
// bypassing Collect/Solve. Valid from EMPTY or COLLECTING; transitions to
// READY.
func (a *Adaptation) SeedFromTransforms(transforms []AffineTransform) error {
	if a.state != StateEmpty && a.state != StateCollecting {
		return fmt.Errorf("seed from %s: %w", a.state, ErrInvalidState)
	}
	a.transforms = transforms
	a.report = SolveReport{Degenerate: make([]bool, len(transforms))}
	a.state = StateReady
	return nil
}
