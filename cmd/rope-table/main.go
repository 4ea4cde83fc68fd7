package main

import (
	"flag"
	"fmt"
	"log"

	"nano-rope-go/rotary"
)

func main() {
	var (
		headSize  = flag.Int("head-size", 128, "attention head size")
		rotaryDim = flag.Int("rotary-dim", 0, "rotated dimensions per head (0 = head size)")
		maxPos    = flag.Int("max-pos", 4096, "original max position embeddings")
		base      = flag.Float64("base", 10000, "RoPE frequency base")
		dtype     = flag.String("dtype", "float32", "table storage dtype (float32, float16)")
		scaling   = flag.String("scaling", "none", "scaling strategy: none, linear, dynamic, yarn")
		factor    = flag.Float64("factor", 1, "context scaling factor")
		rows      = flag.Int("rows", 4, "number of table rows to print")
		cols      = flag.Int("cols", 4, "number of half-channels to print per row")
	)
	flag.Parse()

	dt, err := rotary.ParseDtype(*dtype)
	if err != nil {
		log.Fatalf("invalid dtype: %v", err)
	}

	p := rotary.Params{
		HeadSize:              *headSize,
		RotaryDim:             *rotaryDim,
		MaxPositionEmbeddings: *maxPos,
		Base:                  *base,
		IsNeoxStyle:           true,
		Dtype:                 dt,
		Scaling: rotary.Scaling{
			Type:   rotary.ScalingType(*scaling),
			Factor: *factor,
		},
	}
	if p.RotaryDim == 0 {
		p.RotaryDim = p.HeadSize
	}

	emb, err := rotary.New(p)
	if err != nil {
		log.Fatalf("failed to build table: %v", err)
	}

	cache := emb.Cache()
	fmt.Printf("scaling=%s factor=%g base=%g dtype=%s\n", *scaling, *factor, *base, dt)
	fmt.Printf("table: %d positions x %d channels\n\n", cache.Positions(), cache.RotaryDim())

	nRows := min(*rows, cache.Positions())
	nCols := min(*cols, cache.RotaryDim()/2)
	for pos := 0; pos < nRows; pos++ {
		fmt.Printf("pos %5d  cos", pos)
		for j := 0; j < nCols; j++ {
			fmt.Printf(" %+.6f", cache.Cos(pos, j))
		}
		fmt.Printf("  sin")
		for j := 0; j < nCols; j++ {
			fmt.Printf(" %+.6f", cache.Sin(pos, j))
		}
		fmt.Println()
	}
}
