// rope-check sweeps every scaling variant over its full position range,
// rotates random query/key batches forward and back, and reports the
// worst round-trip error. A drift above tolerance means a broken table.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/schollz/progressbar/v3"

	"nano-rope-go/rotary"
	"nano-rope-go/tensor"
)

func main() {
	var (
		headSize = flag.Int("head-size", 64, "attention head size")
		maxPos   = flag.Int("max-pos", 2048, "original max position embeddings")
		base     = flag.Float64("base", 10000, "RoPE frequency base")
		factor   = flag.Float64("factor", 4, "scaling factor for the scaled variants")
		batch    = flag.Int("batch", 64, "positions checked per step")
		seed     = flag.Int64("seed", 0, "rng seed")
		tol      = flag.Float64("tol", 1e-4, "max allowed round-trip error")
	)
	flag.Parse()

	variants := []rotary.Scaling{
		{Type: rotary.ScalingNone},
		{Type: rotary.ScalingLinear, Factor: *factor},
		{Type: rotary.ScalingDynamic, Factor: *factor},
		// YaRN's magnitude correction breaks the round trip, so check it
		// at the boundary scale where mscale is exactly one.
		{Type: rotary.ScalingYaRN, Factor: 1},
	}

	rng := rand.New(rand.NewSource(*seed))
	failed := false
	for _, scaling := range variants {
		emb, err := rotary.Get(rotary.Params{
			HeadSize:              *headSize,
			RotaryDim:             *headSize,
			MaxPositionEmbeddings: *maxPos,
			Base:                  *base,
			IsNeoxStyle:           true,
			Dtype:                 rotary.Float32,
			Scaling:               scaling,
		})
		if err != nil {
			log.Fatalf("%s: %v", scaling.Type, err)
		}

		bar := progressbar.NewOptions(emb.MaxPositions(),
			progressbar.OptionSetDescription(fmt.Sprintf("%-8s", scaling.Type)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
		)

		worst := 0.0
		for start := 0; start < emb.MaxPositions(); start += *batch {
			n := min(*batch, emb.MaxPositions()-start)
			positions := make([]int, n)
			for i := range positions {
				positions[i] = start + i
			}

			query := tensor.NewTensor(n, *headSize)
			key := tensor.NewTensor(n, *headSize)
			for i := range query.Data {
				query.Data[i] = rng.Float32()*2 - 1
			}
			for i := range key.Data {
				key.Data[i] = rng.Float32()*2 - 1
			}
			origQ := query.Clone()
			origK := key.Clone()

			if _, _, err := emb.Apply(positions, query, key); err != nil {
				log.Fatalf("%s: apply at %d: %v", scaling.Type, start, err)
			}
			if _, _, err := emb.ApplyInverse(positions, query, key); err != nil {
				log.Fatalf("%s: inverse at %d: %v", scaling.Type, start, err)
			}

			for i := range query.Data {
				worst = math.Max(worst, math.Abs(float64(query.Data[i]-origQ.Data[i])))
			}
			for i := range key.Data {
				worst = math.Max(worst, math.Abs(float64(key.Data[i]-origK.Data[i])))
			}
			bar.Add(n)
		}
		fmt.Println()

		status := "ok"
		if worst > *tol {
			status = "FAIL"
			failed = true
		}
		fmt.Printf("%-8s rows=%-7d max round-trip error %.2e  %s\n",
			scaling.Type, emb.MaxPositions(), worst, status)
	}

	if failed {
		log.Fatal("round-trip check failed")
	}
}
