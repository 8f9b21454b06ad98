// Package vit implements a video classifier for driver drowsiness detection:
// a Vision Transformer runs over each frame of a clip, and a second
// transformer aggregates the per-frame features over time.
//
// The package is organized as graph-building components in the usual GoMLX
// style: each takes a *context.Context for its variables and *graph.Node
// inputs, and panics (with an informative message) on invalid configuration
// or shapes. The top-level Model ties them together; see Model.BuildGraph.
//
// NaN detection is opt-in: graphs cannot raise mid-execution, so a NaN in the
// encoder activations is only surfaced if the caller creates a
// nanlogger.NanLogger, passes it to Model.WithNanLogger and attaches it to the
// Exec running the graph. Without one, NaNs propagate silently into the
// logits.
package vit
