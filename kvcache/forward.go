package kvcache

import "github.com/nanoforge/qmfrt/qerr"

// HeadView extracts one attention head's key/value history for layer as
// contiguous [CurrentLen()*HeadDim] slices, suitable for
// kernel.FusedAttention. Storage is position-major (every head's
// vector for a position stored together), so this copies a strided
// view rather than returning it in place.
func (c *Cache) HeadView(layer, head int) (keys, values []float32, err error) {
	if layer < 0 || layer >= c.numLayers {
		return nil, nil, qerr.ErrInvalidInput
	}
	if head < 0 || head >= c.numHeads {
		return nil, nil, qerr.ErrInvalidInput
	}
	lb := &c.layers[layer]
	keys = make([]float32, c.currentLen*c.headDim)
	values = make([]float32, c.currentLen*c.headDim)
	perPos := c.perPosition()
	headOffset := head * c.headDim
	for pos := 0; pos < c.currentLen; pos++ {
		posBase := pos * perPos
		copy(keys[pos*c.headDim:(pos+1)*c.headDim], lb.keys[posBase+headOffset:posBase+headOffset+c.headDim])
		copy(values[pos*c.headDim:(pos+1)*c.headDim], lb.values[posBase+headOffset:posBase+headOffset+c.headDim])
	}
	return keys, values, nil
}
