package tensor

import (
	"math"
	"testing"
)

// stubTable is a fixed two-row table for kernel tests. Row 0 is the
// identity rotation; row 1 uses cos=[0,1], sin=[1,0] so rotated values
// land on recognizable integers.
type stubTable struct{}

func (stubTable) Positions() int { return 2 }
func (stubTable) RotaryDim() int { return 4 }

func (stubTable) Cos(pos, channel int) float32 {
	if pos == 0 {
		return 1
	}
	return float32(channel) // [0, 1]
}

func (stubTable) Sin(pos, channel int) float32 {
	if pos == 0 {
		return 0
	}
	return float32(1 - channel) // [1, 0]
}

func TestRotaryEmbeddingNeoxPairing(t *testing.T) {
	q := &Tensor{Data: []float32{1, 2, 3, 4}, Shape: []int{1, 4}}
	k := &Tensor{Data: []float32{1, 2, 3, 4}, Shape: []int{1, 4}}

	if _, _, err := RotaryEmbedding([]int{1}, q, k, 4, stubTable{}, true); err != nil {
		t.Fatalf("kernel failed: %v", err)
	}

	// NeoX pairs (0,2) and (1,3): channel 0 rotates by 90 degrees,
	// channel 1 is identity.
	want := []float32{-3, 2, 1, 4}
	for i := range want {
		if q.Data[i] != want[i] {
			t.Errorf("query[%d] = %g, want %g", i, q.Data[i], want[i])
		}
		if k.Data[i] != want[i] {
			t.Errorf("key[%d] = %g, want %g", i, k.Data[i], want[i])
		}
	}
}

func TestRotaryEmbeddingInterleavedPairing(t *testing.T) {
	q := &Tensor{Data: []float32{1, 2, 3, 4}, Shape: []int{1, 4}}
	k := &Tensor{Data: []float32{1, 2, 3, 4}, Shape: []int{1, 4}}

	if _, _, err := RotaryEmbedding([]int{1}, q, k, 4, stubTable{}, false); err != nil {
		t.Fatalf("kernel failed: %v", err)
	}

	// Interleaved pairs (0,1) and (2,3).
	want := []float32{-2, 1, 3, 4}
	for i := range want {
		if q.Data[i] != want[i] {
			t.Errorf("query[%d] = %g, want %g", i, q.Data[i], want[i])
		}
	}
}

func TestRotaryEmbeddingIdentityRow(t *testing.T) {
	q := &Tensor{Data: []float32{1, 2, 3, 4}, Shape: []int{1, 4}}
	k := &Tensor{Data: []float32{5, 6, 7, 8}, Shape: []int{1, 4}}

	if _, _, err := RotaryEmbedding([]int{0}, q, k, 4, stubTable{}, true); err != nil {
		t.Fatalf("kernel failed: %v", err)
	}
	for i, want := range []float32{1, 2, 3, 4} {
		if q.Data[i] != want {
			t.Errorf("query[%d] = %g, want %g", i, q.Data[i], want)
		}
	}
	for i, want := range []float32{5, 6, 7, 8} {
		if k.Data[i] != want {
			t.Errorf("key[%d] = %g, want %g", i, k.Data[i], want)
		}
	}
}

func TestRotaryEmbeddingGroupedKV(t *testing.T) {
	// Two query heads, one key head, two tokens.
	q := NewTensor(2, 8)
	k := NewTensor(2, 4)
	for i := range q.Data {
		q.Data[i] = float32(i + 1)
	}
	for i := range k.Data {
		k.Data[i] = float32(i + 1)
	}

	if _, _, err := RotaryEmbedding([]int{1, 1}, q, k, 4, stubTable{}, true); err != nil {
		t.Fatalf("kernel failed: %v", err)
	}

	// Every head of every token sees the same row-1 rotation:
	// [a, b, c, d] -> [-c, b, a, d].
	checkHead := func(name string, got []float32, a, b, c, d float32) {
		t.Helper()
		want := []float32{-c, b, a, d}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s[%d] = %g, want %g", name, i, got[i], want[i])
			}
		}
	}
	checkHead("q tok0 head0", q.Data[0:4], 1, 2, 3, 4)
	checkHead("q tok0 head1", q.Data[4:8], 5, 6, 7, 8)
	checkHead("q tok1 head0", q.Data[8:12], 9, 10, 11, 12)
	checkHead("k tok0", k.Data[0:4], 1, 2, 3, 4)
	checkHead("k tok1", k.Data[4:8], 5, 6, 7, 8)
}

func TestRotaryEmbeddingConjugateInverts(t *testing.T) {
	q := &Tensor{Data: []float32{0.3, -1.2, 0.8, 2.5}, Shape: []int{1, 4}}
	k := &Tensor{Data: []float32{-0.4, 0.9, 1.1, -2.0}, Shape: []int{1, 4}}
	origQ := q.Clone()
	origK := k.Clone()

	if _, _, err := RotaryEmbedding([]int{1}, q, k, 4, stubTable{}, true); err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if _, _, err := RotaryEmbeddingConjugate([]int{1}, q, k, 4, stubTable{}, true); err != nil {
		t.Fatalf("conjugate failed: %v", err)
	}

	const tol = 1e-6
	for i := range q.Data {
		if math.Abs(float64(q.Data[i]-origQ.Data[i])) > tol {
			t.Errorf("query[%d] not restored: %g vs %g", i, q.Data[i], origQ.Data[i])
		}
		if math.Abs(float64(k.Data[i]-origK.Data[i])) > tol {
			t.Errorf("key[%d] not restored: %g vs %g", i, k.Data[i], origK.Data[i])
		}
	}
}

func TestRotaryEmbeddingRejectsBadLayout(t *testing.T) {
	good := NewTensor(1, 4)

	if _, _, err := RotaryEmbedding([]int{2}, good.Clone(), good.Clone(), 4, stubTable{}, true); err == nil {
		t.Error("position beyond table accepted")
	}
	if _, _, err := RotaryEmbedding([]int{0}, NewTensor(1, 6), good.Clone(), 4, stubTable{}, true); err == nil {
		t.Error("width not a multiple of head size accepted")
	}
	if _, _, err := RotaryEmbedding([]int{0}, NewTensor(2, 4), good.Clone(), 4, stubTable{}, true); err == nil {
		t.Error("row count mismatch accepted")
	}
	if _, _, err := RotaryEmbedding([]int{0}, NewTensor(4), good.Clone(), 4, stubTable{}, true); err == nil {
		t.Error("1D query accepted")
	}
	if _, _, err := RotaryEmbedding([]int{0}, good.Clone(), good.Clone(), 2, stubTable{}, true); err == nil {
		t.Error("rotary dim above head size accepted")
	}
}
