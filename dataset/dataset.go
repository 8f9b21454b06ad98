// Package dataset loads driver-drowsiness video clips from a directory tree
// and serves them as fixed-length frame windows, implementing gomlx's
// train.Dataset.
//
// The expected layout is:
//
//	root/{train,val,test}/{pos,neg}/<sequence>/<frame files>
//
// where "pos" holds drowsy sequences and "neg" alert ones. Each sequence is
// cut into windows of seqLen frames with a stride of seqLen/2; a window
// shorter than seqLen is padded with black frames, marked invalid in the
// accompanying mask.
package dataset

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Labels used by the directory layout.
const (
	LabelAlert  int32 = 0 // "neg" class directory.
	LabelDrowsy int32 = 1 // "pos" class directory.
)

// Splits recognized by New.
var Splits = []string{"train", "val", "test"}

// AugmentFn transforms one frame. The given rng is deterministically seeded
// per window, so the same window index always sees the same random draws.
type AugmentFn func(rng *rand.Rand, img image.Image) image.Image

// window is one sample: seqLen frame paths (empty string marks padding) and
// the class label.
type window struct {
	paths []string
	label int32
}

// Dataset implements train.Dataset over the windows of one split.
// It is safe for concurrent Yield calls.
type Dataset struct {
	name    string
	seqLen  int
	imgSize int
	windows []window

	batchSize   int
	augment     AugmentFn
	augmentSeed int64
	shuffle     *rand.Rand
	infinite    bool

	mu    sync.Mutex
	next  int
	order []int
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tiff": true,
}

// New scans baseDir/split and builds the window list. Frames are decoded
// lazily, at Yield time. It returns an error for an unknown split, an
// unreadable sequence directory or an empty split; a missing class directory
// only logs a warning, matching partially-labeled data drops.
func New(baseDir, split string, seqLen, imgSize int) (*Dataset, error) {
	if seqLen <= 0 || imgSize <= 0 {
		return nil, errors.Errorf("dataset.New: seqLen (%d) and imgSize (%d) must be positive", seqLen, imgSize)
	}
	var valid bool
	for _, s := range Splits {
		valid = valid || s == split
	}
	if !valid {
		return nil, errors.Errorf("dataset.New: unknown split %q, must be one of %v", split, Splits)
	}

	ds := &Dataset{
		name:      fmt.Sprintf("drowsiness-%s", split),
		seqLen:    seqLen,
		imgSize:   imgSize,
		batchSize: 1,
	}
	stride := seqLen / 2
	if stride == 0 {
		stride = 1
	}
	splitDir := filepath.Join(baseDir, split)
	for _, class := range []struct {
		dir   string
		label int32
	}{{"neg", LabelAlert}, {"pos", LabelDrowsy}} {
		classDir := filepath.Join(splitDir, class.dir)
		entries, err := os.ReadDir(classDir)
		if err != nil {
			klog.Warningf("dataset: skipping class directory %s: %v", classDir, err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			seqDir := filepath.Join(classDir, entry.Name())
			frames, err := listFrames(seqDir)
			if err != nil {
				return nil, err
			}
			if len(frames) == 0 {
				klog.Warningf("dataset: sequence %s has no image frames", seqDir)
				continue
			}
			for start := 0; start < len(frames); start += stride {
				end := min(start+seqLen, len(frames))
				paths := make([]string, seqLen)
				copy(paths, frames[start:end])
				ds.windows = append(ds.windows, window{paths: paths, label: class.label})
			}
		}
	}
	if len(ds.windows) == 0 {
		return nil, errors.Errorf("dataset.New: no sequences found under %s", splitDir)
	}
	ds.order = make([]int, len(ds.windows))
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	return ds, nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list frames in %s", dir)
	}
	var frames []string
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		frames = append(frames, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}

// BatchSize sets how many windows Yield returns per call. Default is 1.
func (ds *Dataset) BatchSize(n int) *Dataset {
	if n <= 0 {
		klog.Fatalf("dataset: batch size must be positive, got %d", n)
	}
	ds.batchSize = n
	return ds
}

// WithAugmentation sets a per-frame transform. The seed makes sampling
// deterministic: the same window index always gets the same augmentation.
func (ds *Dataset) WithAugmentation(fn AugmentFn, seed int64) *Dataset {
	ds.augment = fn
	ds.augmentSeed = seed
	return ds
}

// Shuffle randomizes the window order using rng, and reshuffles at every
// Reset (and epoch boundary when infinite).
func (ds *Dataset) Shuffle(rng *rand.Rand) *Dataset {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.shuffle = rng
	ds.resetLocked()
	return ds
}

// Infinite makes Yield restart automatically at the end of an epoch instead
// of returning io.EOF.
func (ds *Dataset) Infinite(infinite bool) *Dataset {
	ds.infinite = infinite
	return ds
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// NumWindows in this split.
func (ds *Dataset) NumWindows() int { return len(ds.windows) }

// SeqLen is the window length in frames.
func (ds *Dataset) SeqLen() int { return ds.seqLen }

// ImgSize frames are resized to (square).
func (ds *Dataset) ImgSize() int { return ds.imgSize }

// Label of window idx.
func (ds *Dataset) Label(idx int) int32 { return ds.windows[idx].label }

// Reset implements train.Dataset: restarts the epoch, reshuffling if a
// shuffle rng was configured.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.resetLocked()
}

func (ds *Dataset) resetLocked() {
	ds.next = 0
	if ds.shuffle != nil {
		ds.shuffle.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
}

// SampleImages decodes window idx: seqLen images resized (with padding) to
// imgSize×imgSize, the frame validity mask and the label. Padding entries and
// frames that fail to decode become black frames with mask false.
func (ds *Dataset) SampleImages(idx int) (frames []image.Image, mask []bool, label int32, err error) {
	if idx < 0 || idx >= len(ds.windows) {
		err = errors.Errorf("dataset: window index %d out of range [0, %d)", idx, len(ds.windows))
		return
	}
	w := ds.windows[idx]
	frames = make([]image.Image, ds.seqLen)
	mask = make([]bool, ds.seqLen)
	for ii, path := range w.paths {
		if path == "" {
			frames[ii] = blackFrame(ds.imgSize)
			continue
		}
		img, openErr := imaging.Open(path)
		if openErr != nil {
			klog.Warningf("dataset: failed to decode %s, substituting a black frame: %v", path, openErr)
			frames[ii] = blackFrame(ds.imgSize)
			continue
		}
		mask[ii] = true
		if ds.augment != nil {
			// A fresh generator with the same per-window seed for every
			// frame: all frames of a window get the same transform, and
			// the same index always yields the same augmentation.
			rng := rand.New(rand.NewSource(ds.augmentSeed ^ int64(idx)))
			img = ds.augment(rng, img)
		}
		frames[ii] = resizeWithPadding(img, ds.imgSize)
	}
	return frames, mask, w.label, nil
}

// Sample converts window idx to flat float32 data, channels-first
// ([seqLen, 3, imgSize, imgSize] row-major), values scaled to [0, 1].
func (ds *Dataset) Sample(idx int) (flat []float32, mask []bool, label int32, err error) {
	frames, mask, label, err := ds.SampleImages(idx)
	if err != nil {
		return nil, nil, 0, err
	}
	frameSize := 3 * ds.imgSize * ds.imgSize
	flat = make([]float32, ds.seqLen*frameSize)
	for ii, frame := range frames {
		frameToFlat(flat[ii*frameSize:(ii+1)*frameSize], frame, ds.imgSize)
	}
	for _, v := range flat {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, nil, 0, errors.Errorf("dataset: non-finite pixel value in window %d", idx)
		}
	}
	return flat, mask, label, nil
}

// frameToFlat writes img into dst in channels-first order, scaled to [0, 1].
func frameToFlat(dst []float32, img image.Image, size int) {
	bounds := img.Bounds()
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			dst[0*plane+y*size+x] = float32(r) / 0xffff
			dst[1*plane+y*size+x] = float32(g) / 0xffff
			dst[2*plane+y*size+x] = float32(b) / 0xffff
		}
	}
}

func blackFrame(size int) image.Image {
	return imaging.New(size, size, color.NRGBA{A: 255})
}

// Yield implements train.Dataset. It returns:
//
//   - spec: the Dataset itself.
//   - inputs: two tensors, the clips batch shaped
//     [batchSize, seqLen, 3, imgSize, imgSize] (Float32) and the frame
//     validity mask shaped [batchSize, seqLen] (Bool).
//   - labels: one tensor shaped [batchSize] (Int32).
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	ds.mu.Lock()
	indices := make([]int, 0, ds.batchSize)
	for len(indices) < ds.batchSize {
		if ds.next >= len(ds.order) {
			if !ds.infinite {
				ds.mu.Unlock()
				return nil, nil, nil, io.EOF
			}
			ds.resetLocked()
		}
		indices = append(indices, ds.order[ds.next])
		ds.next++
	}
	ds.mu.Unlock()

	frameSize := 3 * ds.imgSize * ds.imgSize
	sampleSize := ds.seqLen * frameSize
	clipsData := make([]float32, ds.batchSize*sampleSize)
	maskData := make([]bool, ds.batchSize*ds.seqLen)
	labelsData := make([]int32, ds.batchSize)
	for ii, idx := range indices {
		flat, mask, label, sampleErr := ds.Sample(idx)
		if sampleErr != nil {
			return nil, nil, nil, sampleErr
		}
		copy(clipsData[ii*sampleSize:], flat)
		copy(maskData[ii*ds.seqLen:], mask)
		labelsData[ii] = label
	}

	spec = ds
	inputs = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(clipsData, ds.batchSize, ds.seqLen, 3, ds.imgSize, ds.imgSize),
		tensors.FromFlatDataAndDimensions(maskData, ds.batchSize, ds.seqLen),
	}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(labelsData, ds.batchSize)}
	return
}

// resizeWithPadding scales img so its longer side becomes size, preserving
// the aspect ratio, and centers it on a black size×size frame. Frames smaller
// than size are upscaled, unlike imaging.Fit.
func resizeWithPadding(img image.Image, size int) image.Image {
	bounds := img.Bounds().Size()
	scaledW, scaledH := size, size
	if bounds.X > bounds.Y {
		scaledH = max(1, bounds.Y*size/bounds.X)
	} else if bounds.Y > bounds.X {
		scaledW = max(1, bounds.X*size/bounds.Y)
	}
	img = imaging.Resize(img, scaledW, scaledH, imaging.Lanczos)
	if scaledW == size && scaledH == size {
		return img
	}
	return imaging.PasteCenter(blackFrame(size), img)
}
