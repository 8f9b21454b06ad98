package backbone

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/models/inceptionv3"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	timage "github.com/gomlx/gomlx/types/tensors/images"
)

// inceptionV3FeatureDim is the width of the InceptionV3 feature vector after
// global pooling, with the classification top removed.
const inceptionV3FeatureDim = 2048

// InceptionV3 is a SpatialBackbone backed by the InceptionV3 model, optionally
// initialized from its pretrained ImageNet checkpoint. Frames must be at
// least 75×75 pixels and scaled to [0, 1].
//
// The backbone is frozen by default; use Trainable(true) for fine-tuning.
type InceptionV3 struct {
	dataDir   string
	trainable bool
}

// NewInceptionV3 creates the backbone. dataDir is where the pretrained
// weights live (see DownloadWeights); if empty, the model is randomly
// initialized instead.
func NewInceptionV3(dataDir string) *InceptionV3 {
	return &InceptionV3{dataDir: dataDir}
}

// Trainable sets whether the backbone weights are updated during training.
// Default is false (frozen).
func (b *InceptionV3) Trainable(trainable bool) *InceptionV3 {
	b.trainable = trainable
	return b
}

// DownloadWeights fetches and unpacks the pretrained checkpoint into the
// configured data directory, if not already there.
func (b *InceptionV3) DownloadWeights() error {
	return inceptionv3.DownloadAndUnpackWeights(b.dataDir)
}

// FeatureDim implements SpatialBackbone.
func (b *InceptionV3) FeatureDim() int { return inceptionV3FeatureDim }

// Name implements SpatialBackbone.
func (b *InceptionV3) Name() string { return "inceptionv3" }

// BuildGraph implements SpatialBackbone: channels-first images
// [numImages, 3, height, width] in [0, 1] to features [numImages, 2048].
func (b *InceptionV3) BuildGraph(ctx *context.Context, images *Node) *Node {
	if images.Rank() != 4 || images.Shape().Dimensions[1] != 3 {
		Panicf("InceptionV3: images must be [numImages, 3, height, width], got %s", images.Shape())
	}
	// InceptionV3 takes channels-last.
	images = TransposeAllDims(images, 0, 2, 3, 1)
	images = inceptionv3.PreprocessImage(images, 1.0, timage.ChannelsLast)
	return inceptionv3.BuildGraph(ctx, images).
		PreTrained(b.dataDir).
		SetPooling(inceptionv3.MeanPooling).
		ClassificationTop(false).
		ChannelsAxis(timage.ChannelsLast).
		Trainable(b.trainable).
		Done()
}
