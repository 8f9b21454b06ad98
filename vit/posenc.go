package vit

import (
	"math"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/types/tensors"
)

// PositionalEncoding holds a fixed (non-learned) sinusoidal position table,
// precomputed once on the host at construction time.
//
// Position pos, even dimension i gets sin(pos / 10000^(i/embedDim)) and the
// following odd dimension gets the matching cosine.
type PositionalEncoding struct {
	embedDim, maxLen int
	table            *tensors.Tensor // shape [1, maxLen, embedDim], float64
}

// NewPositionalEncoding precomputes the sinusoidal table for sequences of up
// to maxLen positions. It panics if embedDim is odd, since the sin/cos pairs
// require an even width.
func NewPositionalEncoding(embedDim, maxLen int) *PositionalEncoding {
	if embedDim <= 0 || embedDim%2 != 0 {
		Panicf("NewPositionalEncoding: embedDim must be positive and even, got %d", embedDim)
	}
	if maxLen <= 0 {
		Panicf("NewPositionalEncoding: maxLen must be positive, got %d", maxLen)
	}
	data := make([]float64, maxLen*embedDim)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < embedDim; i += 2 {
			angle := float64(pos) / math.Pow(10000, float64(i)/float64(embedDim))
			data[pos*embedDim+i] = math.Sin(angle)
			data[pos*embedDim+i+1] = math.Cos(angle)
		}
	}
	return &PositionalEncoding{
		embedDim: embedDim,
		maxLen:   maxLen,
		table:    tensors.FromFlatDataAndDimensions(data, 1, maxLen, embedDim),
	}
}

// MaxLen supported by the precomputed table.
func (pe *PositionalEncoding) MaxLen() int { return pe.maxLen }

// AddTo adds the first seqLen rows of the table to x, shaped
// [batch, seqLen, embedDim], broadcasting over the batch. It panics if the
// embedding width doesn't match or if seqLen exceeds the precomputed maxLen.
func (pe *PositionalEncoding) AddTo(x *Node) *Node {
	g := x.Graph()
	if x.Rank() != 3 || x.Shape().Dimensions[2] != pe.embedDim {
		Panicf("PositionalEncoding: input must be [batch, seqLen, %d], got %s", pe.embedDim, x.Shape())
	}
	seqLen := x.Shape().Dimensions[1]
	if seqLen > pe.maxLen {
		Panicf("PositionalEncoding: sequence length %d exceeds precomputed maxLen %d", seqLen, pe.maxLen)
	}
	table := ConvertDType(ConstTensor(g, pe.table), x.DType())
	table = Slice(table, AxisRange(), AxisRangeFromStart(seqLen))
	return Add(x, table)
}
