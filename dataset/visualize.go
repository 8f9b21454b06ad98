package dataset

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// VisualizeSequence renders window idx as a PNG grid with the given number of
// columns (defaults to the full window on one row when <= 0). Valid frames
// get a green border, padded or unreadable ones a red border.
func VisualizeSequence(ds *Dataset, idx, columns int, w io.Writer) error {
	if columns <= 0 || columns > ds.seqLen {
		columns = ds.seqLen
	}
	frames, mask, _, err := ds.SampleImages(idx)
	if err != nil {
		return err
	}

	const border = 4
	cell := ds.imgSize + 2*border
	rows := (ds.seqLen + columns - 1) / columns
	valid := color.NRGBA{G: 200, A: 255}
	invalid := color.NRGBA{R: 200, A: 255}

	grid := imaging.New(columns*cell, rows*cell, color.NRGBA{A: 255})
	for ii, frame := range frames {
		borderColor := invalid
		if mask[ii] {
			borderColor = valid
		}
		framed := imaging.New(cell, cell, borderColor)
		framed = imaging.Paste(framed, frame, image.Pt(border, border))
		grid = imaging.Paste(grid, framed, image.Pt((ii%columns)*cell, (ii/columns)*cell))
	}
	if err := png.Encode(w, grid); err != nil {
		return errors.Wrapf(err, "failed to encode visualization of window %d", idx)
	}
	return nil
}
