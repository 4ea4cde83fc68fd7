package tensor

import "fmt"

// Batched rotary position embedding kernel.
// Used by Llama, Falcon, Mistral and friends; consumes a precomputed
// cos/sin table rather than recomputing angles per token.

// CosSinTable is the read-only lookup table the kernel rotates with.
// Row p holds cosine values for half-channels [0, RotaryDim()/2) followed
// by sine values for the same channels. Tables are immutable once built,
// so concurrent kernel calls may share one table without locking.
type CosSinTable interface {
	// Positions returns the number of rows (maximum position + 1).
	Positions() int
	// RotaryDim returns the number of rotated dimensions per head (even).
	RotaryDim() int
	// Cos returns the cosine entry for a position and half-channel.
	Cos(pos, channel int) float32
	// Sin returns the sine entry for a position and half-channel.
	Sin(pos, channel int) float32
}

// RotaryEmbedding rotates the first RotaryDim dimensions of every head of
// query and key in place and returns them. Both tensors must be 2D
// [numTokens, numHeads*headSize]; query and key may have different head
// counts (grouped KV). positions holds one table row index per token.
//
// isNeoxStyle selects the channel pairing: NeoX pairs channel j with
// j+rotaryDim/2 (two contiguous halves), GPT-J style pairs 2j with 2j+1
// (interleaved). Dimensions beyond RotaryDim are left untouched.
func RotaryEmbedding(positions []int, query, key *Tensor, headSize int, table CosSinTable, isNeoxStyle bool) (*Tensor, *Tensor, error) {
	return rotate(positions, query, key, headSize, table, isNeoxStyle, 1)
}

// RotaryEmbeddingConjugate applies the inverse rotation (negated sine).
// Rotating a buffer with RotaryEmbedding and then with
// RotaryEmbeddingConjugate at the same positions restores it up to
// floating-point round-off.
func RotaryEmbeddingConjugate(positions []int, query, key *Tensor, headSize int, table CosSinTable, isNeoxStyle bool) (*Tensor, *Tensor, error) {
	return rotate(positions, query, key, headSize, table, isNeoxStyle, -1)
}

func rotate(positions []int, query, key *Tensor, headSize int, table CosSinTable, isNeoxStyle bool, sinSign float32) (*Tensor, *Tensor, error) {
	rotaryDim := table.RotaryDim()
	if rotaryDim > headSize {
		return nil, nil, fmt.Errorf("rotary dim %d exceeds head size %d", rotaryDim, headSize)
	}
	if err := checkLayout("query", query, headSize, len(positions)); err != nil {
		return nil, nil, err
	}
	if err := checkLayout("key", key, headSize, len(positions)); err != nil {
		return nil, nil, err
	}
	maxPos := table.Positions()
	for _, pos := range positions {
		if pos < 0 || pos >= maxPos {
			return nil, nil, fmt.Errorf("position %d outside table range [0, %d)", pos, maxPos)
		}
	}

	for tok, pos := range positions {
		rotateToken(query.Row(tok), pos, headSize, rotaryDim, table, isNeoxStyle, sinSign)
		rotateToken(key.Row(tok), pos, headSize, rotaryDim, table, isNeoxStyle, sinSign)
	}
	return query, key, nil
}

// rotateToken rotates every head slice within one token row.
func rotateToken(row []float32, pos, headSize, rotaryDim int, table CosSinTable, isNeoxStyle bool, sinSign float32) {
	half := rotaryDim / 2
	for off := 0; off < len(row); off += headSize {
		head := row[off : off+headSize]
		for j := 0; j < half; j++ {
			var i1, i2 int
			if isNeoxStyle {
				i1, i2 = j, j+half
			} else {
				i1, i2 = 2*j, 2*j+1
			}
			cos := table.Cos(pos, j)
			sin := table.Sin(pos, j) * sinSign
			x1 := head[i1]
			x2 := head[i2]
			head[i1] = x1*cos - x2*sin
			head[i2] = x2*cos + x1*sin
		}
	}
}

func checkLayout(name string, t *Tensor, headSize, numTokens int) error {
	if len(t.Shape) != 2 {
		return fmt.Errorf("%s must be 2D [numTokens, numHeads*headSize], got %dD", name, len(t.Shape))
	}
	if t.Shape[0] != numTokens {
		return fmt.Errorf("%s has %d rows, want one per position (%d)", name, t.Shape[0], numTokens)
	}
	if t.Shape[1] == 0 || t.Shape[1]%headSize != 0 {
		return fmt.Errorf("%s width %d is not a multiple of head size %d", name, t.Shape[1], headSize)
	}
	return nil
}
