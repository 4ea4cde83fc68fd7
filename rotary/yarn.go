package rotary

import "math"

// YaRN frequency blending (Peng et al.). Channels whose wavelength fits
// the original context many times over are extrapolated unchanged,
// channels with few full rotations are interpolated, and a linear ramp
// blends the band in between.

// yarnCorrectionDim returns the fractional channel index at which a
// frequency completes numRotations rotations over the original context.
func yarnCorrectionDim(numRotations float64, rotaryDim int, base float64, maxPositions int) float64 {
	return float64(rotaryDim) *
		math.Log(float64(maxPositions)/(numRotations*2*math.Pi)) /
		(2 * math.Log(base))
}

// yarnCorrectionRange bounds the blend band. lowRot is the fast rotation
// count and highRot the slow one; lowRot > highRot yields low < high
// because more rotations happen at lower channel indices.
func yarnCorrectionRange(lowRot, highRot float64, rotaryDim int, base float64, maxPositions int) (float64, float64) {
	low := math.Floor(yarnCorrectionDim(lowRot, rotaryDim, base, maxPositions))
	high := math.Ceil(yarnCorrectionDim(highRot, rotaryDim, base, maxPositions))
	return math.Max(low, 0), math.Min(high, float64(rotaryDim-1))
}

// yarnRampMask is the linear ramp over half-channels, clamped to [0, 1].
// A degenerate band (low == high) is widened by 0.001 instead of
// erroring out.
func yarnRampMask(low, high float64, halfDim int) []float32 {
	if low == high {
		high += 0.001
	}
	ramp := make([]float32, halfDim)
	for i := range ramp {
		v := (float64(i) - low) / (high - low)
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		ramp[i] = float32(v)
	}
	return ramp
}

// yarnMscale is the attention-magnitude compensation for the stretched
// context. Identity at scale 1 and below.
func yarnMscale(scale float64) float64 {
	if scale <= 1 {
		return 1.0
	}
	return 0.1*math.Log(scale) + 1.0
}

// yarnInvFreq blends interpolated and extrapolated inverse frequencies
// per half-channel. s must already carry its defaults.
func yarnInvFreq(p Params, s Scaling) []float32 {
	half := p.RotaryDim / 2
	low, high := yarnCorrectionRange(s.BetaFast, s.BetaSlow, p.RotaryDim, p.Base, p.MaxPositionEmbeddings)
	ramp := yarnRampMask(low, high, half)

	inv := make([]float32, half)
	for j := 0; j < half; j++ {
		exp := float32(2*j) / float32(p.RotaryDim)
		posFreq := float32(math.Pow(p.Base, float64(exp)))
		extrap := 1 / posFreq
		interp := 1 / (float32(s.Factor) * posFreq)
		mask := (1 - ramp[j]) * float32(s.ExtrapolationFactor)
		inv[j] = interp*(1-mask) + extrap*mask
	}
	return inv
}
