package sphinxadapt

// ModelLoader (C3): orchestrates parsing every on-disk model file into a
// ModelStore, in the fixed order the data dependencies require (transition
// matrices before mdef, since mdef rows reference transition ids).

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/kho/easy"
)

// Load reads every file under cfg.Location/cfg.DataLocation and assembles a
// ModelStore, grounded on the teacher's FromARPAFile/FromGobFile pair in
// io.go: one small function per file format, composed by a single entry
// point that owns file lifetime end to end.
func Load(cfg Config) (*ModelStore, error) {
	means, meansHeader, numStates, numStreams, g, err := loadMeansAndVariances(cfg)
	if err != nil {
		return nil, err
	}
	mixtureWeights, err := loadMixtureWeights(modelPath(cfg, "mixture_weights"), cfg.MixtureWeightFloor)
	if err != nil {
		return nil, err
	}
	if mixtureWeights.Len() != numStates {
		return nil, fmt.Errorf("mixture_weights has %d states, means has %d: %w", mixtureWeights.Len(), numStates, ErrModelMalformed)
	}
	transitions, err := loadTransitions(modelPath(cfg, "transition_matrices"))
	if err != nil {
		return nil, err
	}
	transform, err := loadTransform(modelPath(cfg, "feature_transform"))
	if err != nil {
		return nil, err
	}
	numGaussians := numStreams * g
	senones := buildSenones(means, mixtureWeights, numStates, numGaussians, cfg.MixtureComponentScoreFloor, cfg.VarianceFloor)

	mdefPath := cfg.ModelDefinition
	if !filepath.IsAbs(mdefPath) {
		mdefPath = filepath.Join(cfg.Location, cfg.DataLocation, mdefPath)
	}
	ciUnits, hmms, err := LoadMdef(mdefPath, transitions, cfg.UseCDUnits)
	if err != nil {
		return nil, err
	}

	props, err := loadKV(modelPath(cfg, "feat.params"))
	if err != nil {
		return nil, err
	}

	return &ModelStore{
		Means:          means,
		MixtureWeights: mixtureWeights,
		Transitions:    transitions,
		Senones:        senones,
		CIUnits:        ciUnits,
		HMMs:           hmms,
		Transform:      transform,
		Props:          props,
		NumGaussians:   numGaussians,
		FeatureDim:     featureDim(means),
		MeansHeader:    meansHeader,
	}, nil
}

func modelPath(cfg Config, name string) string {
	return filepath.Join(cfg.Location, cfg.DataLocation, name)
}

func featureDim(means *Pool[Gaussian]) int {
	if means.Len() == 0 {
		return 0
	}
	return len(means.Get(0).Mean)
}

// loadMeansAndVariances runs load_density twice (once per floor) and zips
// the results into one Pool[Gaussian], since the store keeps mean/variance
// paired per component rather than as two parallel pools (see DESIGN.md).
func loadMeansAndVariances(cfg Config) (*Pool[Gaussian], []HeaderField, int, int, int, error) {
	means, numStates, numStreams, g, _, meansHeader, err := loadDensity(modelPath(cfg, "means"), noFloor)
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}
	variances, vNumStates, vNumStreams, vG, _, _, err := loadDensity(modelPath(cfg, "variances"), cfg.VarianceFloor)
	if err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if vNumStates != numStates || vNumStreams != numStreams || vG != g {
		return nil, nil, 0, 0, 0, fmt.Errorf("variances shape (%d,%d,%d) != means shape (%d,%d,%d): %w",
			vNumStates, vNumStreams, vG, numStates, numStreams, g, ErrModelMalformed)
	}
	b := NewPoolBuilder[Gaussian](len(means))
	for i, m := range means {
		b.Set(i, Gaussian{Mean: m, Variance: variances[i]})
	}
	b.SetFeature("NUM_SENONES", numStates)
	b.SetFeature("NUM_STREAMS", numStreams)
	b.SetFeature("NUM_GAUSSIANS_PER_STATE", g)
	return b.Freeze(), meansHeader, numStates, numStreams, g, nil
}

// noFloor is load_density's floor argument for the means file: "floor =
// -FLT_MAX" in the spec, i.e. a floor so low it never actually clamps.
const noFloor = -3.4e38

// loadDensity implements load_density: a header declaring version "1.0",
// then (numStates, numStreams, G), then numStreams per-stream vector
// lengths, then rawLength, then the numStates*numStreams*G vectors
// themselves in row-major (state, stream, component) order.
func loadDensity(path string, floor float32) ([][]float32, int, int, int, []int, []HeaderField, error) {
	r, err := OpenS3Header(path)
	if err != nil {
		return nil, 0, 0, 0, nil, nil, err
	}
	defer r.Close()
	if r.Props["version"] != "1.0" {
		return nil, 0, 0, 0, nil, nil, fmt.Errorf("%s: version %q: %w", path, r.Props["version"], ErrUnsupportedVersion)
	}
	numStates, err := readDim(r, path, "numStates")
	if err != nil {
		return nil, 0, 0, 0, nil, nil, err
	}
	numStreams, err := readDim(r, path, "numStreams")
	if err != nil {
		return nil, 0, 0, 0, nil, nil, err
	}
	g, err := readDim(r, path, "numGaussiansPerState")
	if err != nil {
		return nil, 0, 0, 0, nil, nil, err
	}
	vectorLengths := make([]int, numStreams)
	sumLen := 0
	for j := range vectorLengths {
		l, err := readDim(r, path, "vectorLength")
		if err != nil {
			return nil, 0, 0, 0, nil, nil, err
		}
		vectorLengths[j] = l
		sumLen += l
	}
	rawLength, err := readDim(r, path, "rawLength")
	if err != nil {
		return nil, 0, 0, 0, nil, nil, err
	}
	if want := g * sumLen * numStates; rawLength != want {
		return nil, 0, 0, 0, nil, nil, fmt.Errorf("%s: rawLength %d, want %d: %w", path, rawLength, want, ErrModelMalformed)
	}

	vecs := make([][]float32, numStates*numStreams*g)
	for i := 0; i < numStates; i++ {
		for j := 0; j < numStreams; j++ {
			for k := 0; k < g; k++ {
				v, err := r.ReadFloatArray(vectorLengths[j])
				if err != nil {
					return nil, 0, 0, 0, nil, nil, fmt.Errorf("%s: %w", path, wrapIo(err))
				}
				for n, x := range v {
					v[n] = floorFloat32(x, floor)
				}
				vecs[i*numStreams*g+j*g+k] = v
			}
		}
	}
	if err := r.ValidateChecksum(); err != nil {
		return nil, 0, 0, 0, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	header := make([]HeaderField, len(r.Order))
	for i, key := range r.Order {
		header[i] = HeaderField{Key: key, Value: r.Props[key]}
	}
	return vecs, numStates, numStreams, g, vectorLengths, header, nil
}

func readDim(r *S3Reader, path, what string) (int, error) {
	v, err := r.ReadInt()
	if err != nil {
		return 0, fmt.Errorf("%s: reading %s: %w", path, what, wrapIo(err))
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: negative %s %d: %w", path, what, v, ErrModelMalformed)
	}
	return int(v), nil
}

// loadMixtureWeights implements load_mixture_weights: version "1.0", then
// (numStates, numStreams, G, numValues), then per state G weights per
// stream, normalized, floored, log-converted, and concatenated across
// streams into one length-(G*numStreams) vector per state.
func loadMixtureWeights(path string, floor float32) (*Pool[[]float64], error) {
	r, err := OpenS3Header(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if r.Props["version"] != "1.0" {
		return nil, fmt.Errorf("%s: version %q: %w", path, r.Props["version"], ErrUnsupportedVersion)
	}
	numStates, err := readDim(r, path, "numStates")
	if err != nil {
		return nil, err
	}
	numStreams, err := readDim(r, path, "numStreams")
	if err != nil {
		return nil, err
	}
	g, err := readDim(r, path, "numGaussiansPerState")
	if err != nil {
		return nil, err
	}
	numValues, err := readDim(r, path, "numValues")
	if err != nil {
		return nil, err
	}
	if want := numStates * numStreams * g; numValues != want {
		return nil, fmt.Errorf("%s: numValues %d, want %d: %w", path, numValues, want, ErrModelMalformed)
	}

	b := NewPoolBuilder[[]float64](numStates)
	for i := 0; i < numStates; i++ {
		out := make([]float64, 0, numStreams*g)
		for j := 0; j < numStreams; j++ {
			raw, err := r.ReadFloatArray(g)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, wrapIo(err))
			}
			var sum float32
			for _, w := range raw {
				sum += w
			}
			for _, w := range raw {
				norm := floorFloat32(w/sum, floor)
				out = append(out, floorFloat64(logOf(norm), LogZero))
			}
		}
		b.Set(i, out)
	}
	if err := r.ValidateChecksum(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.SetFeature("NUM_SENONES", numStates)
	return b.Freeze(), nil
}

// loadTransitions implements load_transitions: version "1.0", then
// (numMatrices, numRows, numStates, numValues); for each matrix, numRows
// linear-domain rows of numStates floats, handed to
// NewTransitionMatrixFromLinear for flooring/normalization/log conversion
// and terminal-row synthesis.
func loadTransitions(path string) (*Pool[*TransitionMatrix], error) {
	r, err := OpenS3Header(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if r.Props["version"] != "1.0" {
		return nil, fmt.Errorf("%s: version %q: %w", path, r.Props["version"], ErrUnsupportedVersion)
	}
	numMatrices, err := readDim(r, path, "numMatrices")
	if err != nil {
		return nil, err
	}
	numRows, err := readDim(r, path, "numRows")
	if err != nil {
		return nil, err
	}
	numStates, err := readDim(r, path, "numStates")
	if err != nil {
		return nil, err
	}
	numValues, err := readDim(r, path, "numValues")
	if err != nil {
		return nil, err
	}
	if want := numMatrices * numRows * numStates; numValues != want {
		return nil, fmt.Errorf("%s: numValues %d, want %d: %w", path, numValues, want, ErrModelMalformed)
	}

	b := NewPoolBuilder[*TransitionMatrix](numMatrices)
	for m := 0; m < numMatrices; m++ {
		rows := make([][]float32, numRows)
		for i := range rows {
			row, err := r.ReadFloatArray(numStates)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, wrapIo(err))
			}
			rows[i] = row
		}
		b.Set(m, NewTransitionMatrixFromLinear(rows))
	}
	if err := r.ValidateChecksum(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b.Freeze(), nil
}

// loadTransform implements load_transform: version "0.1", a leading
// (ignored) int, then (numRows, numValues, num), then numRows vectors of
// length numValues. A missing file is not an error: the feature transform
// is optional and absence means the identity.
func loadTransform(path string) (*FeatureTransform, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	r, err := OpenS3Header(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if r.Props["version"] != "0.1" {
		return nil, fmt.Errorf("%s: version %q: %w", path, r.Props["version"], ErrUnsupportedVersion)
	}
	if _, err := r.ReadInt(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, wrapIo(err))
	}
	numRows, err := readDim(r, path, "numRows")
	if err != nil {
		return nil, err
	}
	numValues, err := readDim(r, path, "numValues")
	if err != nil {
		return nil, err
	}
	num, err := readDim(r, path, "num")
	if err != nil {
		return nil, err
	}
	if num != numRows*numValues {
		return nil, fmt.Errorf("%s: num %d != numRows*numValues %d: %w", path, num, numRows*numValues, ErrModelMalformed)
	}
	rows := make([][]float32, numRows)
	for i := range rows {
		row, err := r.ReadFloatArray(numValues)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, wrapIo(err))
		}
		rows[i] = row
	}
	if err := r.ValidateChecksum(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FeatureTransform{NumRows: numRows, NumValues: numValues, Rows: rows}, nil
}

// buildSenones implements build_senones: for each state i, pair G
// components from means[i*numGaussians+k] with the parallel variances
// already folded into the same Gaussian, against mixtureWeights[i].
func buildSenones(means *Pool[Gaussian], mixtureWeights *Pool[[]float64], numSenones, numGaussians int, distFloor, varianceFloor float32) *Pool[Senone] {
	b := NewPoolBuilder[Senone](numSenones)
	for i := 0; i < numSenones; i++ {
		components := make([]Gaussian, numGaussians)
		for k := 0; k < numGaussians; k++ {
			g := means.Get(i*numGaussians + k)
			variance := make([]float32, len(g.Variance))
			for n, v := range g.Variance {
				variance[n] = floorFloat32(v, varianceFloor)
			}
			components[k] = Gaussian{Mean: g.Mean, Variance: variance}
		}
		b.Set(i, NewGaussianMixture(i, components, mixtureWeights.Get(i), distFloor))
	}
	return b.Freeze()
}

// loadKV implements load_kv: feat.params is a plain-text "key value" per
// line file, gzip-transparent like the ARPA files the teacher reads
// through easy.Open, not an S3 binary container.
func loadKV(path string) (map[string]string, error) {
	in, err := easy.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, wrapIo(err))
	}
	defer in.Close()

	props := map[string]string{}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s: %q: %w", path, line, ErrModelMalformed)
		}
		props[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, wrapIo(err))
	}
	return props, nil
}

// openModelFile opens a text model file transparently through gzip, the
// same convenience the teacher's FromARPAFile/FromGobFile give every text
// format via easy.Open.
func openModelFile(path string) (io.ReadCloser, error) {
	return easy.Open(path)
}

// logOf is math.Log with a LogZero floor for a zero argument, so a
// degenerate all-zero weight row never produces -Inf.
func logOf(x float32) float64 {
	if x <= 0 {
		return LogZero
	}
	return math.Log(float64(x))
}
