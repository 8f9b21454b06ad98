package backbone

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

func TestFunc(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	g := NewGraph(backend, "func_backbone")
	bb := &Func{
		BackboneName: "channel_means",
		OutputDim:    3,
		Fn: func(ctx *context.Context, images *Node) *Node {
			return ReduceMean(images, 2, 3)
		},
	}
	assert.Equal(t, "channel_means", bb.Name())
	assert.Equal(t, 3, bb.FeatureDim())
	images := IotaFull(g, shapes.Make(dtypes.Float32, 4, 3, 8, 8))
	features := bb.BuildGraph(ctx, images)
	assert.EqualValues(t, []int{4, 3}, features.Shape().Dimensions)

	var empty Func
	require.Panics(t, func() { empty.BuildGraph(ctx, images) })
}

// TestInceptionV3 only builds the graph (randomly initialized, no checkpoint
// download) and checks the feature contract.
func TestInceptionV3(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	g := NewGraph(backend, "inceptionv3_backbone")
	bb := NewInceptionV3("")
	assert.Equal(t, 2048, bb.FeatureDim())
	images := Zeros(g, shapes.Make(dtypes.Float32, 2, 3, 96, 96))
	features := bb.BuildGraph(ctx, images)
	assert.EqualValues(t, []int{2, 2048}, features.Shape().Dimensions)

	require.Panics(t, func() {
		bb.BuildGraph(ctx, Zeros(g, shapes.Make(dtypes.Float32, 2, 96, 96)))
	})
}
