package vit

import (
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/xla"
)

func TestPatchEmbedding(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	g := NewGraph(backend, "patch_embedding")
	pe := NewPatchEmbedding(32, 8, 3, 24)
	require.Equal(t, 16, pe.NumPatches())
	x := IotaFull(g, shapes.Make(dtypes.Float32, 5, 3, 32, 32))
	y := pe.Apply(ctx, x)
	assert.EqualValues(t, []int{5, 16, 24}, y.Shape().Dimensions)
}

func TestPatchEmbeddingConstruction(t *testing.T) {
	// Non-divisible image/patch sizes must fail before any graph is built.
	require.Panics(t, func() { NewPatchEmbedding(224, 15, 3, 768) })
	require.Panics(t, func() { NewPatchEmbedding(0, 16, 3, 768) })
	require.Panics(t, func() { NewPatchEmbedding(224, 16, 3, 0) })
	require.NotPanics(t, func() { NewPatchEmbedding(224, 16, 3, 768) })
}

func TestPatchEmbeddingShapeMismatch(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	g := NewGraph(backend, "patch_embedding_mismatch")
	pe := NewPatchEmbedding(32, 8, 3, 24)
	wrongChannels := IotaFull(g, shapes.Make(dtypes.Float32, 5, 1, 32, 32))
	require.Panics(t, func() { pe.Apply(ctx, wrongChannels) })
	wrongSpatial := IotaFull(g, shapes.Make(dtypes.Float32, 5, 3, 64, 64))
	require.Panics(t, func() { pe.Apply(ctx, wrongSpatial) })
}
