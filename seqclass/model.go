// Package seqclass classifies video clips with a pretrained spatial backbone:
// each frame goes through a backbone.SpatialBackbone, and the per-frame
// features are aggregated over time either by masked mean pooling or by a
// (possibly stacked, possibly bidirectional) LSTM.
package seqclass

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/lstm"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/drowsivit/drowsivit/backbone"
	"github.com/drowsivit/drowsivit/vit"
)

// Config for the backbone-based clip classifier.
type Config struct {
	Backbone   backbone.SpatialBackbone
	NumClasses int

	// UseTemporalModel selects the aggregation over frames: an LSTM when
	// true, masked mean pooling otherwise.
	UseTemporalModel bool

	// LSTM settings, used only when UseTemporalModel is set.
	HiddenSize    int
	NumLayers     int
	Bidirectional bool

	// Dropout before the classification head (and between stacked LSTM
	// layers), active during training only.
	Dropout float64
}

// DefaultConfig returns the reference settings: a single forward LSTM of 128
// units over the frame features, two classes, dropout 0.5.
func DefaultConfig(bb backbone.SpatialBackbone) Config {
	return Config{
		Backbone:         bb,
		NumClasses:       2,
		UseTemporalModel: true,
		HiddenSize:       128,
		NumLayers:        1,
		Dropout:          0.5,
	}
}

// Model classifies clips from backbone frame features. Create with New.
type Model struct {
	cfg Config
}

// New validates cfg and creates the Model.
func New(cfg Config) *Model {
	if cfg.Backbone == nil {
		Panicf("seqclass.New: Config.Backbone must be set")
	}
	if cfg.NumClasses <= 0 {
		Panicf("seqclass.New: NumClasses must be positive, got %d", cfg.NumClasses)
	}
	if cfg.UseTemporalModel && (cfg.HiddenSize <= 0 || cfg.NumLayers <= 0) {
		Panicf("seqclass.New: temporal model requires HiddenSize (%d) and NumLayers (%d) >= 1",
			cfg.HiddenSize, cfg.NumLayers)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		Panicf("seqclass.New: Dropout must be in [0, 1), got %g", cfg.Dropout)
	}
	return &Model{cfg: cfg}
}

// Config returns a copy of the model's configuration.
func (m *Model) Config() Config { return m.cfg }

// BuildGraph builds the classification graph for clips, shaped
// [batch, numFrames, channels, height, width], returning logits shaped
// [batch, NumClasses].
//
// seqMask, if not nil, is [batch, numFrames] with true (or non-zero) marking
// valid frames. Padded frames are excluded from the pooled mean, or,
// in the LSTM path, from the recurrence: the clip feature is the hidden
// state at the last valid frame, whatever the padding contains. The frame
// images themselves all go through the backbone; there is no image-level
// masking.
func (m *Model) BuildGraph(ctx *context.Context, clips, seqMask *Node) *Node {
	if clips.Rank() != 5 {
		Panicf("seqclass.Model: clips must be rank-5 [batch, numFrames, channels, height, width], got %s",
			clips.Shape())
	}
	dims := clips.Shape().Dimensions
	batchSize, numFrames := dims[0], dims[1]
	if seqMask != nil &&
		(seqMask.Rank() != 2 ||
			seqMask.Shape().Dimensions[0] != batchSize ||
			seqMask.Shape().Dimensions[1] != numFrames) {
		Panicf("seqclass.Model: seqMask must be [batch, numFrames]=[%d, %d], got %s",
			batchSize, numFrames, seqMask.Shape())
	}

	frames := Reshape(clips, batchSize*numFrames, dims[2], dims[3], dims[4])
	features := m.cfg.Backbone.BuildGraph(ctx.In("backbone"), frames)
	featureDim := m.cfg.Backbone.FeatureDim()
	if features.Rank() != 2 || features.Shape().Dimensions[1] != featureDim {
		Panicf("seqclass.Model: backbone %q returned %s, expected [%d, %d]",
			m.cfg.Backbone.Name(), features.Shape(), batchSize*numFrames, featureDim)
	}
	x := Reshape(features, batchSize, numFrames, featureDim)

	var clipFeatures *Node
	if m.cfg.UseTemporalModel {
		clipFeatures = m.recurrentFeatures(ctx, x, seqMask)
	} else {
		clipFeatures = vit.MaskedMeanPooling(x, seqMask)
	}
	clipFeatures = layers.DropoutStatic(ctx.In("head_dropout"), clipFeatures, m.cfg.Dropout)
	return layers.DenseWithBias(ctx.In("head"), clipFeatures, m.cfg.NumClasses)
}

// recurrentFeatures runs the stacked LSTM over the frame features x, shaped
// [batch, numFrames, featureDim], and returns the states at each clip's last
// valid frame, shaped [batch, numDirections*HiddenSize].
func (m *Model) recurrentFeatures(ctx *context.Context, x, seqMask *Node) *Node {
	batchSize := x.Shape().Dimensions[0]
	numFrames := x.Shape().Dimensions[1]

	// Lengths from the mask; clamped to >= 1 so a fully-padded clip still
	// yields a (zero-input) state instead of an out-of-range index.
	var lengths *Node
	if seqMask != nil {
		lengths = ReduceSum(ConvertDType(seqMask, dtypes.Int32), 1)
		lengths = MaxScalar(lengths, 1)
	}

	direction := lstm.DirForward
	if m.cfg.Bidirectional {
		direction = lstm.DirBidirectional
	}
	numDirections := 1
	if m.cfg.Bidirectional {
		numDirections = 2
	}

	hidden := x
	var features *Node
	for layerIdx := range m.cfg.NumLayers {
		layerCtx := ctx.In(fmt.Sprintf("lstm_%d", layerIdx))
		layer := lstm.New(layerCtx, hidden, m.cfg.HiddenSize).Direction(direction)
		if lengths != nil {
			layer = layer.Ragged(lengths)
		}
		allStates, _, _ := layer.Done()
		// [seq, numDir, batch, hidden] -> [batch, seq, numDir, hidden].
		seqStates := TransposeAllDims(allStates, 2, 0, 1, 3)
		if layerIdx < m.cfg.NumLayers-1 {
			// Full sequence feeds the next layer.
			next := Reshape(seqStates, batchSize, numFrames, numDirections*m.cfg.HiddenSize)
			hidden = layers.DropoutStatic(layerCtx.In("inter_layer_dropout"), next, m.cfg.Dropout)
			continue
		}
		features = lastValidStep(seqStates, lengths)
		features = Reshape(features, batchSize, numDirections*m.cfg.HiddenSize)
	}
	return features
}

// lastValidStep selects, per clip, the step at index length-1 from states
// shaped [batch, seq, numDirections, hidden]. Both directions are read at
// that same index: the reverse direction contributes its output at the last
// valid frame (having consumed only that frame), not its full-sequence final
// state. nil lengths selects the last step of every clip.
func lastValidStep(states, lengths *Node) *Node {
	g := states.Graph()
	seqLen := states.Shape().Dimensions[1]
	if lengths == nil {
		return Squeeze(Slice(states, AxisRange(), AxisElem(seqLen-1)), 1)
	}
	// One-hot over the time axis at length-1; lengths are already clamped
	// to >= 1, so the index is always in range.
	lastIdx := InsertAxes(AddScalar(lengths, -1), -1)
	positions := Iota(g, shapes.Make(lengths.DType(), 1, seqLen), 1)
	onehot := ConvertDType(Equal(lastIdx, positions), states.DType())
	return Einsum("bsdh,bs->bdh", states, onehot)
}
