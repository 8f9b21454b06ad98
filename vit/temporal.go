package vit

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
)

// TemporalEncoder aggregates per-frame features x, shaped
// [batch, numFrames, embedDim], into one vector per clip, shaped
// [batch, embedDim]: a transformer Encoder over the frame axis, a final
// LayerNorm, then mask-aware mean pooling.
//
// mask, if not nil, is [batch, numFrames] with true (or non-zero) marking
// valid frames; it is used both to mask attention keys and to exclude padded
// frames from the pooled mean.
func TemporalEncoder(ctx *context.Context, x, mask *Node, cfg EncoderConfig) *Node {
	if x.Rank() != 3 {
		Panicf("TemporalEncoder: input must be rank-3 [batch, numFrames, embedDim], got %s", x.Shape())
	}
	x = Encoder(ctx.In("encoder"), x, mask, cfg)
	x = layers.LayerNormalization(ctx.In("pool_norm"), x, -1).Done()
	return MaskedMeanPooling(x, mask)
}

// MaskedMeanPooling averages x, shaped [batch, seqLen, featureDim], over the
// sequence axis, counting only positions where mask is true (or non-zero).
// The divisor is clamped to at least 1, so fully-masked rows pool to zeros
// instead of NaN. A nil mask gives the plain mean.
func MaskedMeanPooling(x, mask *Node) *Node {
	if x.Rank() != 3 {
		Panicf("MaskedMeanPooling: input must be rank-3 [batch, seqLen, featureDim], got %s", x.Shape())
	}
	if mask == nil {
		return ReduceMean(x, 1)
	}
	if mask.Rank() != 2 ||
		mask.Shape().Dimensions[0] != x.Shape().Dimensions[0] ||
		mask.Shape().Dimensions[1] != x.Shape().Dimensions[1] {
		Panicf("MaskedMeanPooling: mask must be [batch, seqLen]=%v, got %s",
			x.Shape().Dimensions[:2], mask.Shape())
	}
	weights := ConvertDType(mask, x.DType()) // 1.0 for valid positions, 0.0 otherwise.
	sum := ReduceSum(Mul(x, InsertAxes(weights, -1)), 1)
	count := MaxScalar(ReduceSum(weights, 1), 1)
	return Div(sum, InsertAxes(count, -1))
}
