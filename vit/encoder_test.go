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

func TestEncoder(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	g := NewGraph(backend, "encoder")
	cfg := EncoderConfig{NumLayers: 3, EmbedDim: 8, NumHeads: 2, MLPDim: 16, Dropout: 0.1}
	x := IotaFull(g, shapes.Make(dtypes.Float32, 2, 5, 8))
	mask := ConvertDType(Ones(g, shapes.Make(dtypes.Float32, 2, 5)), dtypes.Bool)
	y := Encoder(ctx, x, mask, cfg)
	assert.EqualValues(t, []int{2, 5, 8}, y.Shape().Dimensions)
}

func TestEncoderConfigValidate(t *testing.T) {
	valid := EncoderConfig{NumLayers: 1, EmbedDim: 8, NumHeads: 2, MLPDim: 16}
	require.NotPanics(t, valid.Validate)

	for _, bad := range []EncoderConfig{
		{NumLayers: 0, EmbedDim: 8, NumHeads: 2, MLPDim: 16},
		{NumLayers: 1, EmbedDim: 8, NumHeads: 3, MLPDim: 16},
		{NumLayers: 1, EmbedDim: 0, NumHeads: 2, MLPDim: 16},
		{NumLayers: 1, EmbedDim: 8, NumHeads: 2, MLPDim: 0},
		{NumLayers: 1, EmbedDim: 8, NumHeads: 2, MLPDim: 16, Dropout: 1.0},
	} {
		require.Panics(t, bad.Validate, "config %+v should not validate", bad)
	}
}

func TestEncoderLayerShapeMismatch(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	g := NewGraph(backend, "encoder_mismatch")
	cfg := EncoderConfig{NumLayers: 1, EmbedDim: 8, NumHeads: 2, MLPDim: 16}
	x := IotaFull(g, shapes.Make(dtypes.Float32, 2, 5, 6))
	require.Panics(t, func() { EncoderLayer(ctx, x, nil, cfg) })
}
