package vit

import (
	"math"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gopjrt/dtypes"
)

// SelfAttentionBuilder is a helper to build a multi-head self-attention
// computation. Create it with SelfAttention, set the desired options and
// call Done (or DoneWithCoefficients).
type SelfAttentionBuilder struct {
	ctx *context.Context
	x   *Node

	numHeads, headDim, embedDim int
	keyMask                     *Node
	dropoutRate                 float64
	useProjectionBias           bool
}

// SelfAttention performs multi-head self-attention over x, shaped
// [batch, seqLen, embedDim]: queries, keys and values are all projected from
// x with a single fused Dense layer, attention logits are scaled by
// 1/sqrt(headDim), and the concatenated head outputs go through a final
// linear projection back to embedDim.
//
// It panics if embedDim is not divisible by numHeads.
//
// The output has the same shape as x. Optional configuration:
// KeyMask, Dropout, UseProjectionBias.
func SelfAttention(ctx *context.Context, x *Node, numHeads int) *SelfAttentionBuilder {
	if x.Rank() != 3 {
		Panicf("SelfAttention: input must be rank-3 [batch, seqLen, embedDim], got %s", x.Shape())
	}
	embedDim := x.Shape().Dimensions[2]
	if numHeads <= 0 || embedDim%numHeads != 0 {
		Panicf("SelfAttention: embedDim (%d) must be divisible by numHeads (%d)", embedDim, numHeads)
	}
	return &SelfAttentionBuilder{
		ctx:               ctx.In("self_attention"),
		x:                 x,
		numHeads:          numHeads,
		headDim:           embedDim / numHeads,
		embedDim:          embedDim,
		useProjectionBias: true,
	}
}

// KeyMask sets a per-key validity mask, shaped [batch, seqLen]: true (or
// non-zero) entries are attended to, the rest get zero attention weight.
// Queries whose keys are all masked out produce all-zero coefficients rather
// than NaN. A nil mask is a no-op.
func (b *SelfAttentionBuilder) KeyMask(mask *Node) *SelfAttentionBuilder {
	if mask == nil {
		return b
	}
	if mask.Rank() != 2 ||
		mask.Shape().Dimensions[0] != b.x.Shape().Dimensions[0] ||
		mask.Shape().Dimensions[1] != b.x.Shape().Dimensions[1] {
		Panicf("SelfAttention.KeyMask: mask must be [batch, seqLen]=%v, got %s",
			b.x.Shape().Dimensions[:2], mask.Shape())
	}
	b.keyMask = mask
	return b
}

// Dropout sets the rate applied to the attention coefficients and to the
// output projection, active only during training. Default is 0 (disabled).
func (b *SelfAttentionBuilder) Dropout(rate float64) *SelfAttentionBuilder {
	if rate < 0 || rate >= 1 {
		Panicf("SelfAttention.Dropout: rate must be in [0, 1), got %g", rate)
	}
	b.dropoutRate = rate
	return b
}

// UseProjectionBias sets whether the output projection has a bias term.
// Default is true.
func (b *SelfAttentionBuilder) UseProjectionBias(useBias bool) *SelfAttentionBuilder {
	b.useProjectionBias = useBias
	return b
}

// Done builds the attention computation and returns the output, shaped like
// the input.
func (b *SelfAttentionBuilder) Done() *Node {
	output, _ := b.DoneWithCoefficients()
	return output
}

// DoneWithCoefficients builds the attention computation and returns both the
// output [batch, seqLen, embedDim] and the attention coefficients
// [batch, query, head, key].
func (b *SelfAttentionBuilder) DoneWithCoefficients() (output, coefficients *Node) {
	batchSize := b.x.Shape().Dimensions[0]
	seqLen := b.x.Shape().Dimensions[1]

	// Fused Q/K/V projection: [batch, seqLen, 3, numHeads, headDim].
	qkv := layers.Dense(b.ctx.In("qkv"), b.x, true, 3, b.numHeads, b.headDim)
	query := Squeeze(Slice(qkv, AxisRange(), AxisRange(), AxisElem(0)), 2)
	key := Squeeze(Slice(qkv, AxisRange(), AxisRange(), AxisElem(1)), 2)
	value := Squeeze(Slice(qkv, AxisRange(), AxisRange(), AxisElem(2)), 2)

	query = MulScalar(query, 1.0/math.Sqrt(float64(b.headDim)))
	logits := Einsum("bqhd,bkhd->bqhk", query, key)

	if b.keyMask != nil {
		mask := b.keyMask
		if mask.DType() != dtypes.Bool {
			mask = NotEqual(mask, ZerosLike(mask))
		}
		mask = InsertAxes(mask, 1, 1) // [batch, 1, 1, key]
		mask = BroadcastToDims(mask, batchSize, seqLen, b.numHeads, seqLen)
		coefficients = MaskedSoftmax(logits, mask, -1)
	} else {
		coefficients = Softmax(logits, -1)
	}
	if b.dropoutRate > 0 {
		coefficients = layers.DropoutStatic(b.ctx.In("coefficients_dropout"), coefficients, b.dropoutRate)
	}

	output = Einsum("bqhk,bkhd->bqhd", coefficients, value)
	output = Reshape(output, batchSize, seqLen, b.embedDim)
	output = layers.Dense(b.ctx.In("output"), output, b.useProjectionBias, b.embedDim)
	if b.dropoutRate > 0 {
		output = layers.DropoutStatic(b.ctx.In("output_dropout"), output, b.dropoutRate)
	}
	return
}
