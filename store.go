package sphinxadapt

// FeatureTransform is the optional numRows x numValues affine front-end
// rotation. A nil *FeatureTransform (the ModelStore field, not this type)
// means the identity transform.
type FeatureTransform struct {
	NumRows   int
	NumValues int
	Rows      [][]float32
}

// ModelStore is the passive, immutable-after-load container of every pool
// and map the loader assembles: means, variances, mixture weights,
// transition matrices, senones, context-independent units, and the HMM
// topology. Every field except Transform is guaranteed non-nil once Load
// returns successfully.
type ModelStore struct {
	Means           *Pool[Gaussian] // means/variances are paired per component, see DESIGN.md
	MixtureWeights  *Pool[[]float64]
	Transitions     *Pool[*TransitionMatrix]
	Senones         *Pool[Senone]
	CIUnits         map[string]*Unit
	HMMs            *HMMManager
	Transform       *FeatureTransform
	Props           map[string]string
	NumGaussians    int // Gaussian components per senone (G * numStreams, flattened)
	FeatureDim      int // d, the stream vector length
	// MeansHeader is the original means file's S3 header fields, in file
	// order, carried so Applier can write the adapted means file back out
	// with the same header fields (version, chksum0, and anything else the
	// host sphinx model carried).
	MeansHeader []HeaderField
}

// NumSenones returns the number of senones loaded.
func (s *ModelStore) NumSenones() int {
	return s.Senones.Len()
}

// Senone returns the Senone registered at id.
func (s *ModelStore) Senone(id int) Senone {
	return s.Senones.Get(id)
}

// GaussianID maps (senone, component) to a flat index into Means, the same
// flattening load_density uses: senone*NumGaussians + component.
func (s *ModelStore) GaussianID(senone, component int) int {
	return senone*s.NumGaussians + component
}
