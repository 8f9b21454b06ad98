package vit

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	timage "github.com/gomlx/gomlx/types/tensors/images"
)

// PatchEmbedding splits square images into non-overlapping patchSize×patchSize
// patches and projects each to embedDim, implemented as a single convolution
// with kernel size and stride equal to the patch size.
type PatchEmbedding struct {
	imgSize, patchSize   int
	inChannels, embedDim int
}

// NewPatchEmbedding creates a PatchEmbedding for channels-first images of
// shape [batch, inChannels, imgSize, imgSize]. It panics if imgSize is not
// divisible by patchSize.
func NewPatchEmbedding(imgSize, patchSize, inChannels, embedDim int) *PatchEmbedding {
	if imgSize <= 0 || patchSize <= 0 || inChannels <= 0 || embedDim <= 0 {
		Panicf("NewPatchEmbedding: all dimensions must be positive, got imgSize=%d, patchSize=%d, inChannels=%d, embedDim=%d",
			imgSize, patchSize, inChannels, embedDim)
	}
	if imgSize%patchSize != 0 {
		Panicf("NewPatchEmbedding: imgSize (%d) must be divisible by patchSize (%d)", imgSize, patchSize)
	}
	return &PatchEmbedding{imgSize: imgSize, patchSize: patchSize, inChannels: inChannels, embedDim: embedDim}
}

// NumPatches per image.
func (pe *PatchEmbedding) NumPatches() int {
	perAxis := pe.imgSize / pe.patchSize
	return perAxis * perAxis
}

// EmbedDim of the output tokens.
func (pe *PatchEmbedding) EmbedDim() int { return pe.embedDim }

// Apply embeds x, shaped [batch, inChannels, imgSize, imgSize], into patch
// tokens shaped [batch, NumPatches(), embedDim]. It panics if the channels or
// spatial dimensions don't match the construction parameters.
func (pe *PatchEmbedding) Apply(ctx *context.Context, x *Node) *Node {
	if x.Rank() != 4 {
		Panicf("PatchEmbedding: input must be rank-4 [batch, channels, height, width], got %s", x.Shape())
	}
	dims := x.Shape().Dimensions
	if dims[1] != pe.inChannels || dims[2] != pe.imgSize || dims[3] != pe.imgSize {
		Panicf("PatchEmbedding: input %s doesn't match configured [batch, %d, %d, %d]",
			x.Shape(), pe.inChannels, pe.imgSize, pe.imgSize)
	}
	batchSize := dims[0]
	ctx = ctx.In("patch_embedding")
	x = layers.Convolution(ctx, x).
		Filters(pe.embedDim).
		KernelSize(pe.patchSize).
		Strides(pe.patchSize).
		NoPadding().
		ChannelsAxis(timage.ChannelsFirst).
		Done()
	// [batch, embedDim, imgSize/patchSize, imgSize/patchSize] -> [batch, numPatches, embedDim]
	x = Reshape(x, batchSize, pe.embedDim, pe.NumPatches())
	return Transpose(x, 1, 2)
}
