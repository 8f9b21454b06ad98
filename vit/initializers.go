package vit

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
)

// TruncatedNormalFn returns a variable initializer that draws from a normal
// distribution with the given standard deviation and clips the values at
// ±2 standard deviations. Used for the class token and the classification
// head weights.
func TruncatedNormalFn(ctx *context.Context, stddev float64) context.VariableInitializer {
	if stddev <= 0 {
		Panicf("TruncatedNormalFn requires stddev > 0, got %g", stddev)
	}
	return func(g *Graph, shape shapes.Shape) *Node {
		values := ctx.RandomNormal(g, shape)
		values = MulScalar(values, stddev)
		return ClipScalar(values, -2*stddev, 2*stddev)
	}
}
