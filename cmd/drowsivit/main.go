// drowsivit scans a driver-drowsiness video dataset, prints its stats and
// runs one (untrained) forward pass of the selected model variant on a batch,
// printing the logits next to the labels. It can also write a PNG
// visualization of one window, with green borders on valid frames and red on
// padding.
//
// The dataset layout is root/{train,val,test}/{pos,neg}/<sequence>/<frames>.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/nanlogger"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"

	"github.com/drowsivit/drowsivit/backbone"
	"github.com/drowsivit/drowsivit/dataset"
	"github.com/drowsivit/drowsivit/seqclass"
	"github.com/drowsivit/drowsivit/vit"
)

var (
	flagDataDir = flag.String("data", "", "Dataset root directory, with {train,val,test}/{pos,neg}/<sequence>/. Required.")
	flagSplit   = flag.String("split", "train", "Dataset split to load.")
	flagSeqLen  = flag.Int("seq_len", 16, "Frames per window.")
	flagImgSize = flag.Int("img_size", 224, "Frames are resized (with padding) to this square size.")
	flagBatch   = flag.Int("batch_size", 2, "Windows per forward pass.")
	flagSeed    = flag.Int64("seed", 42, "Seed for parameter initialization and shuffling.")

	flagModel = flag.String("model", "vit",
		"Model variant: \"vit\" (from-scratch spatio-temporal transformer) or "+
			"\"backbone\" (InceptionV3 features + LSTM).")
	flagPretrained = flag.String("pretrained", "",
		"Directory with the InceptionV3 checkpoint for -model=backbone; downloaded if missing. "+
			"Empty uses random weights.")

	flagStats     = flag.Bool("stats", false, "Scan every window and report valid-frame counts.")
	flagVisualize = flag.String("visualize", "", "Write a PNG visualization of one window to this path.")
	flagIndex     = flag.Int("index", 0, "Window index used by -visualize.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagDataDir == "" {
		_, _ = fmt.Fprintln(os.Stderr, "Flag -data is required.")
		flag.Usage()
		os.Exit(1)
	}

	ds := must.M1(dataset.New(*flagDataDir, *flagSplit, *flagSeqLen, *flagImgSize))
	fmt.Printf("%s: %s windows of %d frames at %dx%d\n",
		ds.Name(), humanize.Comma(int64(ds.NumWindows())), ds.SeqLen(), ds.ImgSize(), ds.ImgSize())

	if *flagStats {
		printStats(ds)
	}
	if *flagVisualize != "" {
		f := must.M1(os.Create(*flagVisualize))
		must.M(dataset.VisualizeSequence(ds, *flagIndex, 8, f))
		must.M(f.Close())
		fmt.Printf("Wrote visualization of window %d to %s\n", *flagIndex, *flagVisualize)
	}

	ds.BatchSize(*flagBatch).Shuffle(rand.New(rand.NewSource(*flagSeed)))
	_, inputs, labels, err := ds.Yield()
	must.M(err)

	backend := backends.MustNew()
	fmt.Printf("Backend: %s\n", backend.Name())
	switch *flagModel {
	case "vit":
		runViT(backend, inputs, labels)
	case "backbone":
		runBackbone(backend, inputs, labels)
	default:
		klog.Exitf("Unknown -model=%q, must be \"vit\" or \"backbone\".", *flagModel)
	}
}

// printStats decodes every window, counting valid frames per class.
func printStats(ds *dataset.Dataset) {
	bar := progressbar.Default(int64(ds.NumWindows()), "scanning")
	validFrames := map[int32]int{}
	windows := map[int32]int{}
	for idx := 0; idx < ds.NumWindows(); idx++ {
		_, mask, label, err := ds.SampleImages(idx)
		must.M(err)
		windows[label]++
		for _, valid := range mask {
			if valid {
				validFrames[label]++
			}
		}
		must.M(bar.Add(1))
	}
	must.M(bar.Finish())
	fmt.Printf("\talert (neg): %s windows, %s valid frames\n",
		humanize.Comma(int64(windows[dataset.LabelAlert])), humanize.Comma(int64(validFrames[dataset.LabelAlert])))
	fmt.Printf("\tdrowsy (pos): %s windows, %s valid frames\n",
		humanize.Comma(int64(windows[dataset.LabelDrowsy])), humanize.Comma(int64(validFrames[dataset.LabelDrowsy])))
}

func runViT(backend backends.Backend, inputs, labels []*tensors.Tensor) {
	cfg := vit.DefaultConfig()
	cfg.ImgSize = *flagImgSize
	model := vit.New(cfg)
	nanLogger := nanlogger.New()
	model.WithNanLogger(nanLogger)

	ctx := context.New()
	ctx.RngStateFromSeed(*flagSeed)
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, clips, seqMask *graph.Node) *graph.Node {
		return model.BuildGraph(ctx, clips, nil, seqMask)
	})
	nanLogger.AttachToExec(exec)

	fmt.Println("Running the from-scratch spatio-temporal transformer:")
	logits := exec.Call(inputs[0], inputs[1])[0]
	printLogits(logits, labels[0])
}

func runBackbone(backend backends.Backend, inputs, labels []*tensors.Tensor) {
	bb := backbone.NewInceptionV3(*flagPretrained)
	if *flagPretrained != "" {
		must.M(bb.DownloadWeights())
	}
	model := seqclass.New(seqclass.DefaultConfig(bb))

	ctx := context.New()
	ctx.RngStateFromSeed(*flagSeed)
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, clips, seqMask *graph.Node) *graph.Node {
		return model.BuildGraph(ctx, clips, seqMask)
	})

	fmt.Printf("Running InceptionV3 (%s weights) + LSTM:\n", backboneWeights())
	logits := exec.Call(inputs[0], inputs[1])[0]
	printLogits(logits, labels[0])
}

func backboneWeights() string {
	if *flagPretrained != "" {
		return "pretrained"
	}
	return "random"
}

func printLogits(logits, labels *tensors.Tensor) {
	values := logits.Value().([][]float32)
	labelValues := labels.Value().([]int32)
	names := map[int32]string{dataset.LabelAlert: "alert", dataset.LabelDrowsy: "drowsy"}
	for ii, row := range values {
		fmt.Printf("\twindow %d (%s): logits=%v\n", ii, names[labelValues[ii]], row)
	}
}
