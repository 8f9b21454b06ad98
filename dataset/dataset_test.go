package dataset

import (
	"bytes"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ train.Dataset = (*Dataset)(nil)

// makeTestTree writes a tiny split tree:
//
//	train/pos/seqA: 5 red frames
//	train/neg/seqB: 6 blue frames
//
// With seqLen=4 (stride 2) that's 3 windows per sequence.
func makeTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFrames(t, filepath.Join(root, "train", "pos", "seqA"), 5, color.NRGBA{R: 255, A: 255})
	writeFrames(t, filepath.Join(root, "train", "neg", "seqB"), 6, color.NRGBA{B: 255, A: 255})
	return root
}

func writeFrames(t *testing.T, dir string, count int, c color.NRGBA) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for ii := 0; ii < count; ii++ {
		img := imaging.New(10, 10, c)
		require.NoError(t, imaging.Save(img, filepath.Join(dir, frameName(ii))))
	}
}

func frameName(ii int) string {
	return string(rune('a'+ii)) + ".png"
}

func TestNew(t *testing.T) {
	root := makeTestTree(t)
	ds, err := New(root, "train", 4, 8)
	require.NoError(t, err)
	assert.Equal(t, "drowsiness-train", ds.Name())
	assert.Equal(t, 6, ds.NumWindows())
	assert.Equal(t, 4, ds.SeqLen())
	assert.Equal(t, 8, ds.ImgSize())

	_, err = New(root, "training", 4, 8)
	require.Error(t, err)
	_, err = New(root, "val", 4, 8) // Split directory doesn't exist.
	require.Error(t, err)
	_, err = New(root, "train", 0, 8)
	require.Error(t, err)
}

func TestSample(t *testing.T) {
	root := makeTestTree(t)
	ds, err := New(root, "train", 4, 8)
	require.NoError(t, err)

	// Windows are listed class-first: neg/seqB first. Its last window
	// (index 2) starts at frame 4 of 6, so 2 valid + 2 padded frames.
	flat, mask, label, err := ds.Sample(2)
	require.NoError(t, err)
	assert.Equal(t, LabelAlert, label)
	assert.Equal(t, []bool{true, true, false, false}, mask)
	require.Len(t, flat, 4*3*8*8)

	plane := 8 * 8
	frameSize := 3 * plane
	// Valid frames are solid blue: R=G=0, B=1.
	assert.InDelta(t, 0.0, flat[0], 1e-3)
	assert.InDelta(t, 1.0, flat[2*plane], 1e-3)
	// Padded frames are black.
	for ii := 2 * frameSize; ii < 4*frameSize; ii++ {
		assert.Zero(t, flat[ii])
	}

	// First pos window: full, drowsy.
	_, mask, label, err = ds.Sample(3)
	require.NoError(t, err)
	assert.Equal(t, LabelDrowsy, label)
	assert.Equal(t, []bool{true, true, true, true}, mask)

	_, _, _, err = ds.Sample(99)
	require.Error(t, err)
}

func TestSampleDeterministicAugmentation(t *testing.T) {
	root := makeTestTree(t)
	ds, err := New(root, "train", 4, 8)
	require.NoError(t, err)
	ds.WithAugmentation(RandomFlipRotate(15, true), 7)

	first, _, _, err := ds.Sample(1)
	require.NoError(t, err)
	second, _, _, err := ds.Sample(1)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same window index must produce the same augmentation")
}

func TestYield(t *testing.T) {
	root := makeTestTree(t)
	ds, err := New(root, "train", 4, 8)
	require.NoError(t, err)
	ds.BatchSize(3)

	spec, inputs, labels, err := ds.Yield()
	require.NoError(t, err)
	assert.Same(t, ds, spec)
	require.Len(t, inputs, 2)
	require.Len(t, labels, 1)
	assert.EqualValues(t, []int{3, 4, 3, 8, 8}, inputs[0].Shape().Dimensions)
	assert.EqualValues(t, []int{3, 4}, inputs[1].Shape().Dimensions)
	assert.EqualValues(t, []int{3}, labels[0].Shape().Dimensions)
	assert.Equal(t, []int32{LabelAlert, LabelAlert, LabelAlert}, labels[0].Value().([]int32))

	_, _, labels, err = ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int32{LabelDrowsy, LabelDrowsy, LabelDrowsy}, labels[0].Value().([]int32))

	_, _, _, err = ds.Yield()
	require.ErrorIs(t, err, io.EOF)

	ds.Reset()
	_, _, _, err = ds.Yield()
	require.NoError(t, err)
}

func TestYieldInfiniteAndShuffle(t *testing.T) {
	root := makeTestTree(t)
	ds, err := New(root, "train", 4, 8)
	require.NoError(t, err)
	ds.BatchSize(4).Infinite(true).Shuffle(rand.New(rand.NewSource(42)))

	// 6 windows, batch 4: the second batch wraps around the epoch.
	for ii := 0; ii < 3; ii++ {
		_, inputs, _, err := ds.Yield()
		require.NoError(t, err)
		assert.EqualValues(t, []int{4, 4, 3, 8, 8}, inputs[0].Shape().Dimensions)
	}
}

func TestResizeWithPadding(t *testing.T) {
	// A 2:1 frame scales to 8×4 and is centered: black bands above and below.
	wide := imaging.New(20, 10, color.NRGBA{G: 255, A: 255})
	out := resizeWithPadding(wide, 8)
	require.Equal(t, 8, out.Bounds().Dx())
	require.Equal(t, 8, out.Bounds().Dy())
	for _, y := range []int{0, 1, 6, 7} {
		r, g, b, _ := out.At(4, y).RGBA()
		assert.Zero(t, r|g|b, "row %d must be black padding", y)
	}
	_, g, _, _ := out.At(4, 4).RGBA()
	assert.Greater(t, g, uint32(0xf000))

	// Frames smaller than the target are upscaled; squares get no padding.
	small := imaging.New(4, 4, color.NRGBA{R: 255, A: 255})
	out = resizeWithPadding(small, 8)
	require.Equal(t, 8, out.Bounds().Dx())
	require.Equal(t, 8, out.Bounds().Dy())
	r, _, _, _ := out.At(0, 0).RGBA()
	assert.Greater(t, r, uint32(0xf000))
}

func TestVisualizeSequence(t *testing.T) {
	root := makeTestTree(t)
	ds, err := New(root, "train", 4, 8)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, VisualizeSequence(ds, 2, 2, &buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	cell := 8 + 2*4
	assert.Equal(t, 2*cell, img.Bounds().Dx())
	assert.Equal(t, 2*cell, img.Bounds().Dy())
}
