// Package kvcache implements the per-layer key/value cache an
// ExecutionContext uses across a decode sequence: one flat,
// preallocated []float32 ring per layer per key/value, a single
// current_len cursor shared across all layers (since every layer
// advances together, one token at a time), and append/clear/reset
// operations with a CapacityExceeded failure mode on overflow.
//
// Grounded on kvcache/constructors.go's Init (config defaults,
// roundUp-to-padding, preallocated cell storage) and
// kvcache/tensor_ops.go's Get/Put contract; both are reworked here
// against flat []float32 buffers instead of ml.Context/ml.Tensor graph
// nodes, since this module has no backing compute graph.
package kvcache

import "github.com/nanoforge/qmfrt/qerr"

// Cache holds preallocated key/value storage for every layer of one
// sequence.
type Cache struct {
	maxSeq    int
	numLayers int
	numHeads  int
	headDim   int

	currentLen int
	layers     []layerBuf
}

type layerBuf struct {
	keys   []float32 // len = maxSeq * numHeads * headDim
	values []float32
}

// New allocates a cache for numLayers layers, each holding up to
// maxSeq positions of numHeads*headDim key/value vectors.
func New(maxSeq, numLayers, numHeads, headDim int) (*Cache, error) {
	if maxSeq <= 0 || numLayers <= 0 || numHeads <= 0 || headDim <= 0 {
		return nil, qerr.ErrInvalidInput
	}
	perPosition := numHeads * headDim
	layers := make([]layerBuf, numLayers)
	for i := range layers {
		layers[i] = layerBuf{
			keys:   make([]float32, maxSeq*perPosition),
			values: make([]float32, maxSeq*perPosition),
		}
	}
	return &Cache{
		maxSeq:    maxSeq,
		numLayers: numLayers,
		numHeads:  numHeads,
		headDim:   headDim,
		layers:    layers,
	}, nil
}

// MaxSeq is the cache's fixed capacity in positions.
func (c *Cache) MaxSeq() int { return c.maxSeq }

// NumLayers is the number of layers this cache holds state for.
func (c *Cache) NumLayers() int { return c.numLayers }

// HeadDim and NumHeads describe the per-position vector shape.
func (c *Cache) HeadDim() int  { return c.headDim }
func (c *Cache) NumHeads() int { return c.numHeads }

func (c *Cache) perPosition() int { return c.numHeads * c.headDim }
