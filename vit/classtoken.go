package vit

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
)

// PrependClassToken prepends a learned classification token to every sequence
// of x, shaped [batch, seqLen, embedDim], returning [batch, seqLen+1, embedDim].
//
// The token is a variable of shape [1, 1, embedDim] initialized with a
// truncated normal (stddev 0.02), created under the "class_token" scope of ctx.
func PrependClassToken(ctx *context.Context, x *Node) *Node {
	g := x.Graph()
	if x.Rank() != 3 {
		Panicf("PrependClassToken: input must be rank-3 [batch, seqLen, embedDim], got %s", x.Shape())
	}
	batchSize := x.Shape().Dimensions[0]
	embedDim := x.Shape().Dimensions[2]
	ctx = ctx.In("class_token")
	tokenVar := ctx.WithInitializer(TruncatedNormalFn(ctx, 0.02)).
		VariableWithShape("token", shapes.Make(x.DType(), 1, 1, embedDim))
	token := tokenVar.ValueGraph(g)
	if token.Shape().Dimensions[2] != embedDim {
		Panicf("PrependClassToken: token width %d doesn't match input width %d (variable reused across different embedding sizes?)",
			token.Shape().Dimensions[2], embedDim)
	}
	token = BroadcastToDims(token, batchSize, 1, embedDim)
	return Concatenate([]*Node{token, x}, 1)
}
