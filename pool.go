package sphinxadapt

// Pool is an indexed, read-only collection mapping a dense integer id
// [0, N) to a value of type T, plus a small string-to-int feature map (e.g.
// NUM_SENONES, NUM_STREAMS). It is built once via a PoolBuilder and frozen;
// nothing in this package mutates a Pool after Freeze, matching the
// "write-once during load, read-only thereafter" invariant in the data
// model. This is the generic, type-parameterized descendant of the
// teacher's Vocab: Vocab is exactly a Pool[string] with a couple of
// reserved ids (Unk/BOS/EOS) that our domain has no use for.
type Pool[T any] struct {
	values   []T
	features map[string]int
}

// Len returns N, the number of elements in the pool.
func (p *Pool[T]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.values)
}

// Get returns the value at id. It panics if id is out of range, the same
// contract a Go slice index gives; callers that load dense ids straight
// from a validated file are expected to never pass an out-of-range id.
func (p *Pool[T]) Get(id int) T {
	return p.values[id]
}

// IntFeature looks up a named integer feature (e.g. "NUM_SENONES"). The
// second return value is false if the feature was never set.
func (p *Pool[T]) IntFeature(name string) (int, bool) {
	if p == nil || p.features == nil {
		return 0, false
	}
	v, ok := p.features[name]
	return v, ok
}

// PoolBuilder accumulates values and features for a Pool[T] under
// construction. The zero value is ready to use.
type PoolBuilder[T any] struct {
	values   []T
	features map[string]int
}

// NewPoolBuilder returns a PoolBuilder with its backing slice pre-sized to
// n, the same "we know the final size up front" shortcut the loader uses
// everywhere (S3 binary headers always declare counts before the body).
func NewPoolBuilder[T any](n int) *PoolBuilder[T] {
	return &PoolBuilder[T]{values: make([]T, 0, n)}
}

// Append adds v as the next dense id.
func (b *PoolBuilder[T]) Append(v T) {
	b.values = append(b.values, v)
}

// Set assigns v at a specific id, growing the backing slice if needed. Used
// by loaders that compute an id from (state, stream, component) rather than
// appending in order.
func (b *PoolBuilder[T]) Set(id int, v T) {
	for len(b.values) <= id {
		var zero T
		b.values = append(b.values, zero)
	}
	b.values[id] = v
}

// SetFeature records a named integer feature to carry onto the frozen Pool.
func (b *PoolBuilder[T]) SetFeature(name string, v int) {
	if b.features == nil {
		b.features = make(map[string]int)
	}
	b.features[name] = v
}

// Freeze returns the immutable Pool built so far. The builder must not be
// used afterwards; ownership of the backing slice transfers to the Pool.
func (b *PoolBuilder[T]) Freeze() *Pool[T] {
	p := &Pool[T]{values: b.values, features: b.features}
	b.values = nil
	b.features = nil
	return p
}
