// Package backbone defines the SpatialBackbone interface, the contract for
// per-frame feature extractors used by the clip classifiers, along with a
// pretrained InceptionV3 implementation and a Func adapter.
package backbone

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
)

// SpatialBackbone extracts one feature vector per image.
//
// BuildGraph takes channels-first images shaped [numImages, 3, height, width]
// and returns features shaped [numImages, FeatureDim()]. Implementations
// panic (graph-building convention) on invalid input shapes.
type SpatialBackbone interface {
	BuildGraph(ctx *context.Context, images *graph.Node) *graph.Node
	FeatureDim() int
	Name() string
}

// Func adapts a plain graph-building function into a SpatialBackbone.
// Useful for tests and for composing ad-hoc feature extractors.
type Func struct {
	BackboneName string
	OutputDim    int
	Fn           func(ctx *context.Context, images *graph.Node) *graph.Node
}

// BuildGraph implements SpatialBackbone.
func (f *Func) BuildGraph(ctx *context.Context, images *graph.Node) *graph.Node {
	if f.Fn == nil {
		Panicf("backbone.Func %q has a nil Fn", f.BackboneName)
	}
	return f.Fn(ctx, images)
}

// FeatureDim implements SpatialBackbone.
func (f *Func) FeatureDim() int { return f.OutputDim }

// Name implements SpatialBackbone.
func (f *Func) Name() string { return f.BackboneName }
