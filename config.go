package sphinxadapt

// Config enumerates the options the loader and solver accept. This is an
// explicit replacement for a string-keyed property-sheet configuration
// system: every option is a field, defaults are applied in DefaultConfig,
// and there is no reflection-based wiring.
type Config struct {
	// Location is the directory containing the model files.
	Location string
	// ModelDefinition is the filename (relative to Location, or a path of
	// its own) of the text HMM definition. Defaults to "mdef".
	ModelDefinition string
	// DataLocation is a subdirectory of Location holding means, variances,
	// mixture_weights, transition_matrices and feature_transform.
	DataLocation string
	// UseCDUnits controls whether triphones are registered in the
	// HMMManager. When false they are still parsed (for mdef validation)
	// but not registered.
	UseCDUnits bool
	// MixtureComponentScoreFloor floors a single Gaussian component's
	// contribution to a mixture score.
	MixtureComponentScoreFloor float32
	// VarianceFloor is the minimum allowed variance entry.
	VarianceFloor float32
	// MixtureWeightFloor is the minimum allowed (linear-domain) mixture
	// weight entry.
	MixtureWeightFloor float32
}

// DefaultConfig returns a Config with every field set to the default named
// in the external interface: modelDefinition="mdef", dataLocation="",
// useCDUnits=true, mixtureComponentScoreFloor=0.0, varianceFloor=1e-4,
// mixtureWeightFloor=1e-7. Location must still be set by the caller.
func DefaultConfig(location string) Config {
	return Config{
		Location:                   location,
		ModelDefinition:            "mdef",
		DataLocation:               "",
		UseCDUnits:                 true,
		MixtureComponentScoreFloor: 0.0,
		VarianceFloor:              1e-4,
		MixtureWeightFloor:         1e-7,
	}
}
