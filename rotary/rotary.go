// Package rotary precomputes rotary positional embedding (RoPE) tables
// and applies them to query/key projections. Four context-extension
// strategies share one table-assembly pipeline: plain RoPE, linear
// position scaling, dynamic NTK scaling and YaRN.
package rotary

import (
	"fmt"
	"math"

	"nano-rope-go/tensor"
)

// Params are the immutable construction parameters of an Embedding,
// typically assembled from a model config at load time.
type Params struct {
	// HeadSize is the width of one attention head vector.
	HeadSize int
	// RotaryDim is the number of leading head dimensions that rotate.
	// Must be even and at most HeadSize.
	RotaryDim int
	// MaxPositionEmbeddings is the maximum sequence length the base
	// frequencies were trained for, before any scaling.
	MaxPositionEmbeddings int
	// Base is the RoPE frequency base, e.g. 10000.
	Base float64
	// IsNeoxStyle selects split-half channel pairing over interleaved.
	// Consumed by the rotation kernel, not by table construction.
	IsNeoxStyle bool
	// Dtype is the storage precision of the table. Entries are computed
	// in float32 regardless.
	Dtype Dtype
	// Scaling selects and parameterizes the context-extension strategy.
	Scaling Scaling
}

func (p Params) validate() error {
	if p.HeadSize <= 0 {
		return fmt.Errorf("%w: head size must be positive, got %d", ErrConfig, p.HeadSize)
	}
	if p.RotaryDim <= 0 || p.RotaryDim > p.HeadSize {
		return fmt.Errorf("%w: rotary dim %d outside (0, head size %d]", ErrConfig, p.RotaryDim, p.HeadSize)
	}
	if p.RotaryDim%2 != 0 {
		return fmt.Errorf("%w: rotary dim must be even, got %d", ErrConfig, p.RotaryDim)
	}
	if p.MaxPositionEmbeddings <= 0 {
		return fmt.Errorf("%w: max position embeddings must be positive, got %d", ErrConfig, p.MaxPositionEmbeddings)
	}
	if p.Base <= 0 {
		return fmt.Errorf("%w: base must be positive, got %g", ErrConfig, p.Base)
	}
	s := p.Scaling.withDefaults()
	switch s.Type {
	case ScalingNone:
	case ScalingLinear, ScalingDynamic, ScalingYaRN:
		if s.Factor <= 0 {
			return fmt.Errorf("%w: scaling factor must be positive, got %g", ErrConfig, s.Factor)
		}
		if s.Type == ScalingDynamic && p.RotaryDim <= 2 {
			// The adjusted-base exponent divides by rotaryDim-2.
			return fmt.Errorf("%w: dynamic NTK scaling needs rotary dim > 2, got %d", ErrConfig, p.RotaryDim)
		}
	default:
		return fmt.Errorf("%w: unknown scaling type %q", ErrConfig, s.Type)
	}
	return nil
}

// Embedding is a rotary positional embedding layer with its precomputed
// cos/sin table. Immutable after New; safe for unsynchronized concurrent
// use as long as no two Apply calls share a query/key buffer.
type Embedding struct {
	params Params
	cache  *CosSinCache
}

// New validates params, derives the strategy's frequency basis and
// builds the table. A failed construction returns no embedding; an
// invalid table silently degrades generation, so every parameter error
// surfaces here.
func New(p Params) (*Embedding, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	d, err := derive(p)
	if err != nil {
		return nil, err
	}
	return &Embedding{params: p, cache: buildCache(d, p.RotaryDim, p.Dtype)}, nil
}

// buildCache runs the shared assembly: positions × invFreq outer
// product, then cos/sin of every angle scaled by mscale. Angles are
// formed in float32 before the narrowing to the storage dtype.
func buildCache(d derivation, rotaryDim int, dtype Dtype) *CosSinCache {
	half := rotaryDim / 2
	cache := newCosSinCache(d.maxPositions, rotaryDim, dtype)
	for pos := 0; pos < d.maxPositions; pos++ {
		t := float32(pos) / d.posScale
		for j := 0; j < half; j++ {
			angle := t * d.invFreq[j]
			cache.set(pos, j, float32(math.Cos(float64(angle)))*d.mscale)
			cache.set(pos, half+j, float32(math.Sin(float64(angle)))*d.mscale)
		}
	}
	return cache
}

// Params returns the construction parameters.
func (e *Embedding) Params() Params { return e.params }

// Cache returns the read-only cos/sin table. Callers must not retain it
// past the embedding's lifetime or attempt to modify it.
func (e *Embedding) Cache() *CosSinCache { return e.cache }

// MaxPositions returns the effective maximum context length: the
// original maximum times the scaling factor for scaled variants.
func (e *Embedding) MaxPositions() int { return e.cache.Positions() }

// Apply rotates the first RotaryDim dimensions of every head of query
// and key in place, one table row per position, and returns both buffers
// for chaining. Each position must be below MaxPositions and both
// buffers must be [len(positions), numHeads*HeadSize]; violations return
// an error wrapping ErrPrecondition.
func (e *Embedding) Apply(positions []int, query, key *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	q, k, err := tensor.RotaryEmbedding(positions, query, key, e.params.HeadSize, e.cache, e.params.IsNeoxStyle)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	return q, k, nil
}

// ApplyInverse rotates with negated sine, undoing Apply at the same
// positions up to round-off for magnitude-preserving variants (YaRN's
// mscale rescales the round trip by mscale squared). Diagnostic; the
// serving path only ever rotates forward.
func (e *Embedding) ApplyInverse(positions []int, query, key *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	q, k, err := tensor.RotaryEmbeddingConjugate(positions, query, key, e.params.HeadSize, e.cache, e.params.IsNeoxStyle)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	return q, k, nil
}
