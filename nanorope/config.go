// Package nanorope holds the engine-facing configuration layer that
// turns a model config into rotary embedding parameters.
package nanorope

import (
	"fmt"

	"nano-rope-go/rotary"
)

// Config holds the configuration the positional-encoding subsystem needs
// from the serving engine: the model's attention geometry, RoPE
// parameters, and the engine limits they are validated against.
type Config struct {
	Model                 string
	Dtype                 string
	NumAttentionHeads     int
	HeadSize              int
	RotaryDim             int
	MaxPositionEmbeddings int
	RopeBase              float64
	NeoxStyle             bool
	RopeScaling           rotary.Scaling

	// MaxModelLen of 0 derives the limit from the position embeddings
	// and the scaling factor.
	MaxModelLen          int
	TensorParallelSize   int
	PipelineParallelSize int
	MaxNumBatchedTokens  int
	MaxNumSeqs           int
	KVCacheBlockSize     int
	GPUMemoryUtilization float64
}

// ConfigOption is a functional option for Config
type ConfigOption func(*Config)

// NewConfig creates a Config with default values, applies the options
// and validates the result. Validation failures return an error rather
// than a partially usable config.
func NewConfig(model string, opts ...ConfigOption) (*Config, error) {
	c := &Config{
		Model:                 model,
		Dtype:                 "auto",
		NumAttentionHeads:     32,
		HeadSize:              128,
		MaxPositionEmbeddings: 4096,
		RopeBase:              10000,
		NeoxStyle:             true,
		TensorParallelSize:    1,
		PipelineParallelSize:  1,
		MaxNumBatchedTokens:   16384,
		MaxNumSeqs:            512,
		KVCacheBlockSize:      256,
		GPUMemoryUtilization:  0.9,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.RotaryDim == 0 {
		c.RotaryDim = c.HeadSize
	}
	derivedMaxLen := c.MaxPositionEmbeddings
	if c.RopeScaling.Type != "" && c.RopeScaling.Type != rotary.ScalingNone {
		derivedMaxLen = int(float64(c.MaxPositionEmbeddings) * c.RopeScaling.Factor)
	}
	if c.MaxModelLen == 0 {
		c.MaxModelLen = derivedMaxLen
	}

	if err := c.validate(derivedMaxLen); err != nil {
		return nil, err
	}
	return c, nil
}

// validate checks if the configuration is valid
func (c *Config) validate(derivedMaxLen int) error {
	if _, err := rotary.ParseDtype(c.Dtype); err != nil {
		return err
	}

	if c.NumAttentionHeads <= 0 {
		return fmt.Errorf("num_attention_heads must be positive, got %d", c.NumAttentionHeads)
	}

	if c.PipelineParallelSize > 1 {
		return fmt.Errorf("pipeline parallelism is not supported yet")
	}

	if c.TensorParallelSize < 1 || c.TensorParallelSize > 8 {
		return fmt.Errorf("tensor_parallel_size must be between 1 and 8")
	}

	if c.NumAttentionHeads%c.TensorParallelSize != 0 {
		return fmt.Errorf("num_attention_heads (%d) must be divisible by tensor_parallel_size (%d)",
			c.NumAttentionHeads, c.TensorParallelSize)
	}

	if c.KVCacheBlockSize%256 != 0 {
		return fmt.Errorf("kvcache_block_size must be divisible by 256")
	}

	if c.GPUMemoryUtilization <= 0 || c.GPUMemoryUtilization > 1.0 {
		return fmt.Errorf("gpu_memory_utilization must be in (0, 1], got %g", c.GPUMemoryUtilization)
	}

	if c.MaxModelLen > derivedMaxLen {
		return fmt.Errorf("max_model_len (%d) exceeds the derived maximum (%d); longer sequences would "+
			"read past the position table", c.MaxModelLen, derivedMaxLen)
	}

	if c.MaxNumBatchedTokens < c.MaxModelLen {
		return fmt.Errorf("max_num_batched_tokens must be >= max_model_len")
	}

	if c.MaxNumBatchedTokens < c.MaxNumSeqs {
		return fmt.Errorf("max_num_batched_tokens (%d) must be >= max_num_seqs (%d)",
			c.MaxNumBatchedTokens, c.MaxNumSeqs)
	}

	return nil
}

// RopeParams assembles the rotary embedding construction parameters.
func (c *Config) RopeParams() rotary.Params {
	dtype, _ := rotary.ParseDtype(c.Dtype) // validated in NewConfig
	return rotary.Params{
		HeadSize:              c.HeadSize,
		RotaryDim:             c.RotaryDim,
		MaxPositionEmbeddings: c.MaxPositionEmbeddings,
		Base:                  c.RopeBase,
		IsNeoxStyle:           c.NeoxStyle,
		Dtype:                 dtype,
		Scaling:               c.RopeScaling,
	}
}

// RotaryEmbedding returns the shared rotary embedding for this config,
// building it on first use.
func (c *Config) RotaryEmbedding() (*rotary.Embedding, error) {
	return rotary.Get(c.RopeParams())
}

// WithDtype sets the model compute dtype ("auto", "float16", "float32")
func WithDtype(dtype string) ConfigOption {
	return func(c *Config) {
		c.Dtype = dtype
	}
}

// WithNumAttentionHeads sets the number of attention heads
func WithNumAttentionHeads(n int) ConfigOption {
	return func(c *Config) {
		c.NumAttentionHeads = n
	}
}

// WithHeadSize sets the per-head vector width
func WithHeadSize(n int) ConfigOption {
	return func(c *Config) {
		c.HeadSize = n
	}
}

// WithRotaryDim sets how many leading head dimensions rotate
func WithRotaryDim(n int) ConfigOption {
	return func(c *Config) {
		c.RotaryDim = n
	}
}

// WithMaxPositionEmbeddings sets the pre-scaling maximum sequence length
func WithMaxPositionEmbeddings(n int) ConfigOption {
	return func(c *Config) {
		c.MaxPositionEmbeddings = n
	}
}

// WithRopeBase sets the RoPE frequency base
func WithRopeBase(base float64) ConfigOption {
	return func(c *Config) {
		c.RopeBase = base
	}
}

// WithNeoxStyle sets the rotation channel layout
func WithNeoxStyle(b bool) ConfigOption {
	return func(c *Config) {
		c.NeoxStyle = b
	}
}

// WithRopeScaling sets the context-extension strategy
func WithRopeScaling(s rotary.Scaling) ConfigOption {
	return func(c *Config) {
		c.RopeScaling = s
	}
}

// WithMaxModelLen sets the maximum model length
func WithMaxModelLen(n int) ConfigOption {
	return func(c *Config) {
		c.MaxModelLen = n
	}
}

// WithTensorParallelSize sets the tensor parallel size
func WithTensorParallelSize(n int) ConfigOption {
	return func(c *Config) {
		c.TensorParallelSize = n
	}
}

// WithPipelineParallelSize sets the pipeline parallel size
func WithPipelineParallelSize(n int) ConfigOption {
	return func(c *Config) {
		c.PipelineParallelSize = n
	}
}

// WithMaxNumBatchedTokens sets the maximum number of batched tokens
func WithMaxNumBatchedTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxNumBatchedTokens = n
	}
}

// WithMaxNumSeqs sets the maximum number of sequences
func WithMaxNumSeqs(n int) ConfigOption {
	return func(c *Config) {
		c.MaxNumSeqs = n
	}
}

// WithKVCacheBlockSize sets the KV cache block size
func WithKVCacheBlockSize(n int) ConfigOption {
	return func(c *Config) {
		c.KVCacheBlockSize = n
	}
}

// WithGPUMemoryUtilization sets the GPU memory utilization
func WithGPUMemoryUtilization(f float64) ConfigOption {
	return func(c *Config) {
		c.GPUMemoryUtilization = f
	}
}
