package rotary

import (
	"fmt"

	"github.com/x448/float16"
)

// Dtype selects the storage precision of a cos/sin cache. Table entries
// are always computed in float32 and then narrowed to the storage dtype,
// matching the precision the rest of the model runs at.
type Dtype int

const (
	Float32 Dtype = iota
	Float16
)

func (d Dtype) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return fmt.Sprintf("Dtype(%d)", int(d))
	}
}

// ParseDtype maps a model-config dtype string to a Dtype. "auto" follows
// the common serving default of half precision.
func ParseDtype(s string) (Dtype, error) {
	switch s {
	case "auto", "half", "float16":
		return Float16, nil
	case "float", "float32":
		return Float32, nil
	default:
		return 0, fmt.Errorf("%w: unknown dtype %q", ErrConfig, s)
	}
}

// CosSinCache is a dense (positions, rotaryDim) table where row p holds
// cos values for half-channels [0, rotaryDim/2) followed by sin values
// for the same channels. Built once at construction and never written
// afterwards, so any number of goroutines may read it concurrently.
type CosSinCache struct {
	positions int
	rotaryDim int
	dtype     Dtype

	f32 []float32
	f16 []float16.Float16
}

func newCosSinCache(positions, rotaryDim int, dtype Dtype) *CosSinCache {
	c := &CosSinCache{
		positions: positions,
		rotaryDim: rotaryDim,
		dtype:     dtype,
	}
	switch dtype {
	case Float16:
		c.f16 = make([]float16.Float16, positions*rotaryDim)
	default:
		c.f32 = make([]float32, positions*rotaryDim)
	}
	return c
}

// set narrows a float32 entry to the storage dtype. Only called during
// construction; the table is immutable afterwards.
func (c *CosSinCache) set(pos, col int, v float32) {
	idx := pos*c.rotaryDim + col
	if c.dtype == Float16 {
		c.f16[idx] = float16.Fromfloat32(v)
		return
	}
	c.f32[idx] = v
}

func (c *CosSinCache) at(pos, col int) float32 {
	idx := pos*c.rotaryDim + col
	if c.dtype == Float16 {
		return c.f16[idx].Float32()
	}
	return c.f32[idx]
}

// Positions returns the number of table rows, one per representable
// position. This is the effective maximum context length of the variant
// that built the cache.
func (c *CosSinCache) Positions() int { return c.positions }

// RotaryDim returns the table width.
func (c *CosSinCache) RotaryDim() int { return c.rotaryDim }

// Dtype returns the storage precision.
func (c *CosSinCache) Dtype() Dtype { return c.dtype }

// Cos returns the cosine entry for a position and half-channel.
func (c *CosSinCache) Cos(pos, channel int) float32 {
	return c.at(pos, channel)
}

// Sin returns the sine entry for a position and half-channel.
func (c *CosSinCache) Sin(pos, channel int) float32 {
	return c.at(pos, c.rotaryDim/2+channel)
}
