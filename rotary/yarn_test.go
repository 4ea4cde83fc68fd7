package rotary

import (
	"math"
	"testing"
)

func TestYarnFactorOneReducesToBase(t *testing.T) {
	p := baseParams()
	p.Scaling = Scaling{Type: ScalingYaRN, Factor: 1, AttnFactor: 0.75}

	d, err := derive(p)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	// At factor 1 the magnitude correction is attn_factor alone.
	if math.Abs(float64(d.mscale)-0.75) > 1e-7 {
		t.Errorf("mscale = %g, want 0.75", d.mscale)
	}

	// Interpolated and extrapolated frequencies coincide at factor 1, so
	// the blend collapses to the plain inverse-frequency vector.
	want := baseInvFreq(p.Base, p.RotaryDim)
	if len(d.invFreq) != len(want) {
		t.Fatalf("invFreq length %d, want %d", len(d.invFreq), len(want))
	}
	for j := range want {
		if math.Abs(float64(d.invFreq[j]-want[j])) > 1e-7 {
			t.Errorf("invFreq[%d] = %g, want %g", j, d.invFreq[j], want[j])
		}
	}
}

func TestYarnMscale(t *testing.T) {
	if got := yarnMscale(1); got != 1.0 {
		t.Errorf("yarnMscale(1) = %g, want 1", got)
	}
	if got := yarnMscale(0.5); got != 1.0 {
		t.Errorf("yarnMscale(0.5) = %g, want 1", got)
	}
	want := 0.1*math.Log(16) + 1.0
	if got := yarnMscale(16); math.Abs(got-want) > 1e-12 {
		t.Errorf("yarnMscale(16) = %g, want %g", got, want)
	}
}

func TestYarnMscaleScalesCache(t *testing.T) {
	p := baseParams()
	p.MaxPositionEmbeddings = 4
	p.Scaling = Scaling{Type: ScalingYaRN, Factor: 16, AttnFactor: 2}
	emb, err := New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// At position zero every angle is zero, so the cosine row is exactly
	// the magnitude correction and the sine row is zero.
	want := 2 * (0.1*math.Log(16) + 1.0)
	for j := 0; j < p.RotaryDim/2; j++ {
		if got := float64(emb.Cache().Cos(0, j)); math.Abs(got-want) > 1e-6 {
			t.Errorf("cos(0) channel %d = %g, want %g", j, got, want)
		}
		if got := emb.Cache().Sin(0, j); got != 0 {
			t.Errorf("sin(0) channel %d = %g, want 0", j, got)
		}
	}
}

func TestYarnCorrectionRange(t *testing.T) {
	// Defaults for a Llama-style layer: the blend band sits strictly
	// inside the channel range.
	low, high := yarnCorrectionRange(32, 1, 128, 10000, 4096)
	if low < 0 || high > 127 || low >= high {
		t.Fatalf("band [%g, %g] not a proper in-range interval", low, high)
	}

	// Extreme rotation counts clamp to the channel range.
	low, high = yarnCorrectionRange(1e6, 0.01, 8, 100, 2048)
	if low != 0 {
		t.Errorf("low = %g, want clamp to 0", low)
	}
	if high != 7 {
		t.Errorf("high = %g, want clamp to rotaryDim-1", high)
	}
}

func TestYarnRampMaskDegenerateBand(t *testing.T) {
	ramp := yarnRampMask(3, 3, 8)
	for i, v := range ramp {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("ramp[%d] = %g after degenerate band", i, v)
		}
		if v < 0 || v > 1 {
			t.Fatalf("ramp[%d] = %g outside [0, 1]", i, v)
		}
	}
	// Below the band the ramp is zero, above it saturates at one.
	if ramp[0] != 0 {
		t.Errorf("ramp[0] = %g, want 0", ramp[0])
	}
	if ramp[7] != 1 {
		t.Errorf("ramp[7] = %g, want 1", ramp[7])
	}
}

func TestYarnBlendEndpoints(t *testing.T) {
	p := baseParams()
	p.RotaryDim = 128
	p.HeadSize = 128
	p.MaxPositionEmbeddings = 4096
	p.Scaling = Scaling{Type: ScalingYaRN, Factor: 8}
	s := p.Scaling.withDefaults()

	inv := yarnInvFreq(p, s)
	plain := baseInvFreq(p.Base, p.RotaryDim)
	low, high := yarnCorrectionRange(s.BetaFast, s.BetaSlow, p.RotaryDim, p.Base, p.MaxPositionEmbeddings)

	for j := range inv {
		switch {
		case float64(j) <= low:
			// Fully extrapolated: unchanged frequency.
			if math.Abs(float64(inv[j]-plain[j])) > 1e-9 {
				t.Errorf("channel %d below band not extrapolated: %g vs %g", j, inv[j], plain[j])
			}
		case float64(j) >= high:
			// Fully interpolated: frequency divided by the factor.
			want := plain[j] / float32(s.Factor)
			if math.Abs(float64(inv[j]-want)) > 1e-9 {
				t.Errorf("channel %d above band not interpolated: %g vs %g", j, inv[j], want)
			}
		default:
			if inv[j] > plain[j] || inv[j] < plain[j]/float32(s.Factor) {
				t.Errorf("channel %d blend %g outside [%g, %g]", j, inv[j], plain[j]/float32(s.Factor), plain[j])
			}
		}
	}
}
