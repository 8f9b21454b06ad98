package vit

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/nanlogger"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/types/shapes"
)

// Config holds the hyperparameters of the from-scratch spatio-temporal Model.
// Zero value is not usable; start from DefaultConfig and adjust.
type Config struct {
	// Spatial (per-frame) transformer.
	ImgSize    int // Square input frames, in pixels.
	PatchSize  int // Must divide ImgSize.
	InChannels int
	EmbedDim   int // Must be even and divisible by NumHeads.
	Depth      int // Number of spatial encoder layers.
	NumHeads   int
	MLPDim     int
	Dropout    float64 // Used inside attention and MLP blocks.
	EmbDropout float64 // Applied right after the positional encoding.

	// UseClassToken selects the per-frame feature: the learned class token
	// when true, the mean of all patch tokens otherwise.
	UseClassToken bool

	// Temporal transformer over the frame axis.
	TemporalDepth    int
	TemporalNumHeads int
	TemporalMLPDim   int
	TemporalDropout  float64

	NumClasses int
}

// DefaultConfig returns the ViT-Base configuration used by the reference
// training runs: 224×224 frames, 16×16 patches, 768-dim embeddings, 12+6
// encoder layers.
func DefaultConfig() Config {
	return Config{
		ImgSize:          224,
		PatchSize:        16,
		InChannels:       3,
		EmbedDim:         768,
		Depth:            12,
		NumHeads:         12,
		MLPDim:           3072,
		Dropout:          0.1,
		EmbDropout:       0.1,
		UseClassToken:    true,
		TemporalDepth:    6,
		TemporalNumHeads: 12,
		TemporalMLPDim:   3072,
		TemporalDropout:  0.1,
		NumClasses:       2,
	}
}

// Model is a video classifier built from scratch: a Vision Transformer
// encodes each frame independently and a second transformer aggregates the
// per-frame features over time. Create it with New; the graph is built with
// BuildGraph.
type Model struct {
	cfg        Config
	patchEmbed *PatchEmbedding
	posEnc     *PositionalEncoding
	nanLogger  *nanlogger.NanLogger
}

// New validates cfg and creates the Model. All configuration errors panic
// here, before any graph is built.
func New(cfg Config) *Model {
	if cfg.NumClasses <= 0 {
		Panicf("vit.New: NumClasses must be positive, got %d", cfg.NumClasses)
	}
	if cfg.EmbDropout < 0 || cfg.EmbDropout >= 1 {
		Panicf("vit.New: EmbDropout must be in [0, 1), got %g", cfg.EmbDropout)
	}
	// NewPatchEmbedding panics on invalid image/patch/channel/embed sizes.
	patchEmbed := NewPatchEmbedding(cfg.ImgSize, cfg.PatchSize, cfg.InChannels, cfg.EmbedDim)
	m := &Model{cfg: cfg, patchEmbed: patchEmbed}
	m.spatialEncoderConfig().Validate()
	m.temporalEncoderConfig().Validate()

	maxLen := patchEmbed.NumPatches()
	if cfg.UseClassToken {
		maxLen++
	}
	// NewPositionalEncoding panics if EmbedDim is odd.
	m.posEnc = NewPositionalEncoding(cfg.EmbedDim, maxLen)
	return m
}

// WithNanLogger attaches l to the model: the post-encoder activations are
// traced so that a NaN produced during execution is reported with its scope
// instead of silently propagating into the logits. The same l must also be
// attached to the Exec that runs the graph, with l.Attach(exec). A nil l
// disables tracing.
func (m *Model) WithNanLogger(l *nanlogger.NanLogger) *Model {
	m.nanLogger = l
	return m
}

// Config returns a copy of the model's configuration.
func (m *Model) Config() Config { return m.cfg }

func (m *Model) spatialEncoderConfig() EncoderConfig {
	return EncoderConfig{
		NumLayers: m.cfg.Depth,
		EmbedDim:  m.cfg.EmbedDim,
		NumHeads:  m.cfg.NumHeads,
		MLPDim:    m.cfg.MLPDim,
		Dropout:   m.cfg.Dropout,
	}
}

func (m *Model) temporalEncoderConfig() EncoderConfig {
	return EncoderConfig{
		NumLayers: m.cfg.TemporalDepth,
		EmbedDim:  m.cfg.EmbedDim,
		NumHeads:  m.cfg.TemporalNumHeads,
		MLPDim:    m.cfg.TemporalMLPDim,
		Dropout:   m.cfg.TemporalDropout,
	}
}

// BuildGraph builds the classification graph for clips, shaped
// [batch, numFrames, InChannels, ImgSize, ImgSize], and returns the logits,
// shaped [batch, NumClasses].
//
// seqMask, if not nil, is [batch, numFrames] with true (or non-zero) marking
// valid frames; padded frames get no attention weight in the temporal encoder
// and are excluded from the pooled mean.
//
// imgMask is accepted for compatibility with existing trained checkpoints
// but is not applied inside the spatial encoder: every patch token,
// including those from padded frames, participates in spatial attention.
// Masking happens at the temporal stage only.
func (m *Model) BuildGraph(ctx *context.Context, clips, imgMask, seqMask *Node) *Node {
	_ = imgMask
	if clips.Rank() != 5 {
		Panicf("Model.BuildGraph: clips must be rank-5 [batch, numFrames, channels, height, width], got %s",
			clips.Shape())
	}
	dims := clips.Shape().Dimensions
	if dims[2] != m.cfg.InChannels || dims[3] != m.cfg.ImgSize || dims[4] != m.cfg.ImgSize {
		Panicf("Model.BuildGraph: clips %s don't match configured [batch, numFrames, %d, %d, %d]",
			clips.Shape(), m.cfg.InChannels, m.cfg.ImgSize, m.cfg.ImgSize)
	}
	batchSize, numFrames := dims[0], dims[1]

	// Per-frame spatial encoding: frames from all clips form one big batch.
	x := Reshape(clips, batchSize*numFrames, m.cfg.InChannels, m.cfg.ImgSize, m.cfg.ImgSize)
	x = m.patchEmbed.Apply(ctx, x)
	if m.cfg.UseClassToken {
		x = PrependClassToken(ctx, x)
	}
	x = m.posEnc.AddTo(x)
	x = layers.DropoutStatic(ctx.In("embedding_dropout"), x, m.cfg.EmbDropout)
	x = Encoder(ctx.In("spatial"), x, nil, m.spatialEncoderConfig())
	// A separately-parameterized model-level normalization, on top of the
	// encoder's own final norm.
	x = layers.LayerNormalization(ctx.In("spatial_norm"), x, -1).Done()
	if m.nanLogger != nil {
		m.nanLogger.Trace(x, "spatial_encoder")
	}

	// One feature vector per frame.
	var frames *Node
	if m.cfg.UseClassToken {
		frames = Squeeze(Slice(x, AxisRange(), AxisElem(0)), 1)
	} else {
		frames = ReduceMean(x, 1)
	}
	frames = Reshape(frames, batchSize, numFrames, m.cfg.EmbedDim)

	// Temporal aggregation and classification head.
	clipFeatures := TemporalEncoder(ctx.In("temporal"), frames, seqMask, m.temporalEncoderConfig())
	if m.nanLogger != nil {
		m.nanLogger.Trace(clipFeatures, "temporal_encoder")
	}
	return m.head(ctx.In("head"), clipFeatures)
}

// head is a linear classifier with truncated-normal weights and zero bias.
func (m *Model) head(ctx *context.Context, x *Node) *Node {
	g := x.Graph()
	weightsVar := ctx.WithInitializer(TruncatedNormalFn(ctx, 0.02)).
		VariableWithShape("weights", shapes.Make(x.DType(), m.cfg.EmbedDim, m.cfg.NumClasses))
	biasVar := ctx.WithInitializer(initializers.Zero).
		VariableWithShape("biases", shapes.Make(x.DType(), m.cfg.NumClasses))
	logits := Einsum("bd,dc->bc", x, weightsVar.ValueGraph(g))
	return Add(logits, InsertAxes(biasVar.ValueGraph(g), 0))
}
