package rotary

import (
	"fmt"
	"math"
)

// ScalingType selects the context-length extension strategy.
type ScalingType string

const (
	// ScalingNone is plain RoPE over the original position range.
	ScalingNone ScalingType = "none"
	// ScalingLinear compresses positions by the factor before the outer
	// product, stretching the original frequency range over a longer
	// context.
	ScalingLinear ScalingType = "linear"
	// ScalingDynamic is dynamic NTK scaling: the frequency base is
	// adjusted so high-frequency channels keep their resolution while
	// low-frequency channels stretch.
	ScalingDynamic ScalingType = "dynamic"
	// ScalingYaRN blends interpolated and extrapolated frequencies per
	// channel and compensates attention magnitude for the longer context.
	ScalingYaRN ScalingType = "yarn"
)

// Scaling bundles a strategy with its parameters. The zero value means
// plain RoPE. ExtrapolationFactor, AttnFactor, BetaFast and BetaSlow are
// YaRN-only; zero values take the usual defaults (1, 1, 32, 1).
type Scaling struct {
	Type   ScalingType
	Factor float64

	ExtrapolationFactor float64
	AttnFactor          float64
	BetaFast            float64
	BetaSlow            float64
}

func (s Scaling) withDefaults() Scaling {
	if s.Type == "" {
		s.Type = ScalingNone
	}
	if s.ExtrapolationFactor == 0 {
		s.ExtrapolationFactor = 1
	}
	if s.AttnFactor == 0 {
		s.AttnFactor = 1
	}
	if s.BetaFast == 0 {
		s.BetaFast = 32
	}
	if s.BetaSlow == 0 {
		s.BetaSlow = 1
	}
	return s
}

// derivation is what a strategy feeds the shared table assembly: the
// per-channel angular velocities, the row count, the position compression
// divisor and the magnitude correction applied to every entry.
type derivation struct {
	invFreq      []float32
	maxPositions int
	posScale     float32
	mscale       float32
}

// derive computes the strategy-specific frequency basis. p must have
// passed validate.
func derive(p Params) (derivation, error) {
	s := p.Scaling.withDefaults()
	switch s.Type {
	case ScalingNone:
		return derivation{
			invFreq:      baseInvFreq(p.Base, p.RotaryDim),
			maxPositions: p.MaxPositionEmbeddings,
			posScale:     1,
			mscale:       1,
		}, nil

	case ScalingLinear:
		// MaxPositionEmbeddings is the pre-scaling maximum; the table
		// covers factor times as many rows with compressed positions.
		return derivation{
			invFreq:      baseInvFreq(p.Base, p.RotaryDim),
			maxPositions: scaledPositions(p.MaxPositionEmbeddings, s.Factor),
			posScale:     float32(s.Factor),
			mscale:       1,
		}, nil

	case ScalingDynamic:
		maxLen := float64(p.MaxPositionEmbeddings) * s.Factor
		adjusted := p.Base * math.Pow(
			s.Factor*maxLen/float64(p.MaxPositionEmbeddings)-(s.Factor-1),
			float64(p.RotaryDim)/float64(p.RotaryDim-2))
		return derivation{
			invFreq:      baseInvFreq(adjusted, p.RotaryDim),
			maxPositions: scaledPositions(p.MaxPositionEmbeddings, s.Factor),
			posScale:     1,
			mscale:       1,
		}, nil

	case ScalingYaRN:
		return derivation{
			invFreq:      yarnInvFreq(p, s),
			maxPositions: scaledPositions(p.MaxPositionEmbeddings, s.Factor),
			posScale:     1,
			mscale:       float32(s.AttnFactor * yarnMscale(s.Factor)),
		}, nil

	default:
		return derivation{}, fmt.Errorf("%w: unknown scaling type %q", ErrConfig, s.Type)
	}
}

// baseInvFreq computes inv_freq[i] = base^(-2i/rotaryDim) for the
// rotaryDim/2 half-channels. The exponent is formed in float32: with
// large bases (10M and up) a float64-derived table drifts from the
// tables the trained weights expect.
func baseInvFreq(base float64, rotaryDim int) []float32 {
	half := rotaryDim / 2
	inv := make([]float32, half)
	for i := 0; i < half; i++ {
		exp := float32(2*i) / float32(rotaryDim)
		inv[i] = 1 / float32(math.Pow(base, float64(exp)))
	}
	return inv
}

// scaledPositions is the row count of a scaled table. Ceil matches
// counting positions 0, 1, ... strictly below maxPositions*factor.
func scaledPositions(maxPositions int, factor float64) int {
	return int(math.Ceil(float64(maxPositions) * factor))
}
