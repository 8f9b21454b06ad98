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

func TestPrependClassToken(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	g := NewGraph(backend, "class_token")
	x := IotaFull(g, shapes.Make(dtypes.Float32, 2, 4, 8))
	y := PrependClassToken(ctx, x)
	assert.EqualValues(t, []int{2, 5, 8}, y.Shape().Dimensions)

	require.Panics(t, func() {
		PrependClassToken(ctx, IotaFull(g, shapes.Make(dtypes.Float32, 2, 8)))
	})
}

func TestTruncatedNormalFn(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.RngStateFromSeed(42)
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
		v := ctx.WithInitializer(TruncatedNormalFn(ctx, 0.02)).
			VariableWithShape("values", shapes.Make(dtypes.Float32, 1000))
		return v.ValueGraph(g)
	})
	values := exec.Call()[0].Value().([]float32)
	require.Len(t, values, 1000)
	var nonZero bool
	for _, v := range values {
		assert.LessOrEqual(t, v, float32(0.04))
		assert.GreaterOrEqual(t, v, float32(-0.04))
		nonZero = nonZero || v != 0
	}
	assert.True(t, nonZero)

	require.Panics(t, func() { TruncatedNormalFn(ctx, 0) })
}
