package rotary

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Attention layers across a model share identical RoPE parameters, and
// the table is the expensive part of the layer. Get memoizes embeddings
// by parameter hash so every layer reads the same immutable table.

type registryEntry struct {
	params    Params
	embedding *Embedding
}

var (
	registryMu sync.Mutex
	registry   = make(map[uint64]*registryEntry)
)

// Get returns a shared embedding for the given parameters, building it
// on first use. Safe to call concurrently during model load.
func Get(p Params) (*Embedding, error) {
	key := p.hashKey()

	registryMu.Lock()
	defer registryMu.Unlock()
	if e, ok := registry[key]; ok && e.params == p {
		return e.embedding, nil
	}
	emb, err := New(p)
	if err != nil {
		return nil, err
	}
	registry[key] = &registryEntry{params: p, embedding: emb}
	return emb, nil
}

// hashKey folds every construction parameter into a 64-bit key.
func (p Params) hashKey() uint64 {
	s := p.Scaling.withDefaults()
	d := xxhash.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		d.Write(buf[:])
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		d.Write(buf[:])
	}

	writeInt(p.HeadSize)
	writeInt(p.RotaryDim)
	writeInt(p.MaxPositionEmbeddings)
	writeFloat(p.Base)
	if p.IsNeoxStyle {
		writeInt(1)
	} else {
		writeInt(0)
	}
	writeInt(int(p.Dtype))
	d.WriteString(string(s.Type))
	writeFloat(s.Factor)
	writeFloat(s.ExtrapolationFactor)
	writeFloat(s.AttnFactor)
	writeFloat(s.BetaFast)
	writeFloat(s.BetaSlow)
	return d.Sum64()
}
