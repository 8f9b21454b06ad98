package dataset

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/disintegration/imaging"
)

// RandomFlipRotate returns an AugmentFn that rotates by a normal-distributed
// angle (stddev angleStdDev degrees, skipped when 0) over a black background
// and flips horizontally with probability 1/2 when flipRandomly is set.
//
// Because the Dataset seeds the rng per window, all frames of a window get
// the same rotation and flip.
func RandomFlipRotate(angleStdDev float64, flipRandomly bool) AugmentFn {
	return func(rng *rand.Rand, img image.Image) image.Image {
		if angleStdDev > 0 {
			img = imaging.Rotate(img, rng.NormFloat64()*angleStdDev, color.NRGBA{A: 255})
		}
		if flipRandomly && rng.Intn(2) == 1 {
			img = imaging.FlipH(img)
		}
		return img
	}
}
