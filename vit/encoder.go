package vit

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
)

// EncoderConfig holds the hyperparameters of a transformer encoder stack.
type EncoderConfig struct {
	NumLayers int
	EmbedDim  int
	NumHeads  int
	MLPDim    int
	Dropout   float64
}

// Validate panics if the configuration is inconsistent.
func (cfg EncoderConfig) Validate() {
	if cfg.NumLayers <= 0 {
		Panicf("EncoderConfig: NumLayers must be >= 1, got %d", cfg.NumLayers)
	}
	if cfg.EmbedDim <= 0 || cfg.NumHeads <= 0 || cfg.EmbedDim%cfg.NumHeads != 0 {
		Panicf("EncoderConfig: EmbedDim (%d) must be positive and divisible by NumHeads (%d)",
			cfg.EmbedDim, cfg.NumHeads)
	}
	if cfg.MLPDim <= 0 {
		Panicf("EncoderConfig: MLPDim must be positive, got %d", cfg.MLPDim)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		Panicf("EncoderConfig: Dropout must be in [0, 1), got %g", cfg.Dropout)
	}
}

// EncoderLayer applies one pre-norm transformer block to x, shaped
// [batch, seqLen, embedDim]:
//
//	x = x + SelfAttention(LayerNorm(x))
//	x = x + MLP(LayerNorm(x))
//
// where MLP is Dense(mlpDim) -> Gelu -> dropout -> Dense(embedDim) -> dropout.
// mask, if not nil, is the [batch, seqLen] key-validity mask forwarded to the
// attention.
func EncoderLayer(ctx *context.Context, x, mask *Node, cfg EncoderConfig) *Node {
	if x.Rank() != 3 || x.Shape().Dimensions[2] != cfg.EmbedDim {
		Panicf("EncoderLayer: input must be [batch, seqLen, %d], got %s", cfg.EmbedDim, x.Shape())
	}

	attnIn := layers.LayerNormalization(ctx.In("attention_norm"), x, -1).Done()
	attn := SelfAttention(ctx, attnIn, cfg.NumHeads).
		KeyMask(mask).
		Dropout(cfg.Dropout).
		Done()
	x = Add(x, attn)

	mlpIn := layers.LayerNormalization(ctx.In("mlp_norm"), x, -1).Done()
	hidden := layers.Dense(ctx.In("mlp_hidden"), mlpIn, true, cfg.MLPDim)
	hidden = activations.Gelu(hidden)
	hidden = layers.DropoutStatic(ctx.In("mlp_hidden_dropout"), hidden, cfg.Dropout)
	out := layers.Dense(ctx.In("mlp_output"), hidden, true, cfg.EmbedDim)
	out = layers.DropoutStatic(ctx.In("mlp_output_dropout"), out, cfg.Dropout)
	return Add(x, out)
}

// Encoder stacks cfg.NumLayers EncoderLayer blocks followed by a final
// LayerNorm. The same mask (which may be nil) is forwarded to every layer.
func Encoder(ctx *context.Context, x, mask *Node, cfg EncoderConfig) *Node {
	cfg.Validate()
	for layerIdx := range cfg.NumLayers {
		x = EncoderLayer(ctx.In(fmt.Sprintf("layer_%d", layerIdx)), x, mask, cfg)
	}
	return layers.LayerNormalization(ctx.In("output_norm"), x, -1).Done()
}
