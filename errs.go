package sphinxadapt

import "errors"

// Sentinel errors for the taxonomy described by the model format and the
// MLLR pipeline. Callers should compare with errors.Is, since all of these
// are wrapped with additional context at the call site (e.g. the path that
// failed to parse).
var (
	// ErrIoError wraps an underlying read/write failure.
	ErrIoError = errors.New("sphinxadapt: io error")
	// ErrCorruptFile means a structural check (magic word, chunk shape)
	// failed.
	ErrCorruptFile = errors.New("sphinxadapt: corrupt file")
	// ErrUnsupportedVersion means a header's version string did not match
	// what the loader expects.
	ErrUnsupportedVersion = errors.New("sphinxadapt: unsupported version")
	// ErrChecksumMismatch means a file declared chksum0=yes but the
	// trailing checksum did not match the computed running checksum.
	ErrChecksumMismatch = errors.New("sphinxadapt: checksum mismatch")
	// ErrModelMalformed means the file parsed but is semantically
	// inconsistent (e.g. no SIL unit, pool size mismatch).
	ErrModelMalformed = errors.New("sphinxadapt: model malformed")
	// ErrSingularSystem reports that a regression class's system was
	// numerically singular; the caller still gets an identity fallback
	// and this is not fatal to the overall solve.
	ErrSingularSystem = errors.New("sphinxadapt: singular system")
	// ErrInvalidState means an operation was called from the wrong solver
	// lifecycle phase.
	ErrInvalidState = errors.New("sphinxadapt: invalid state")
)
