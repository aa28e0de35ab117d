package kvcache

import "github.com/nanoforge/qmfrt/qerr"

// Put writes one position's key/value vectors (each length
// numHeads*headDim) for layer into the slot at the cache's current
// cursor position. It does not advance the cursor; call Advance once
// after Put has been called for every layer at this position.
func (c *Cache) Put(layer int, key, value []float32) error {
	if layer < 0 || layer >= c.numLayers {
		return qerr.ErrInvalidInput
	}
	perPos := c.perPosition()
	if len(key) != perPos || len(value) != perPos {
		return qerr.ErrDimensionMismatch
	}
	if c.currentLen >= c.maxSeq {
		return &qerr.CapacityError{
			Layer: layer, MaxSeq: c.maxSeq, CurrentLen: c.currentLen, Requested: c.currentLen + 1,
		}
	}
	start := c.currentLen * perPos
	lb := &c.layers[layer]
	copy(lb.keys[start:start+perPos], key)
	copy(lb.values[start:start+perPos], value)
	return nil
}

// AppendMany writes newTokens consecutive positions' worth of key/value
// vectors for layer, starting at the cache's current cursor position,
// in one atomic call. keys and values must each hold exactly
// newTokens*numHeads*headDim elements. If there isn't room for all
// newTokens positions before MaxSeq, it returns a CapacityError and
// writes nothing — unlike calling Put newTokens times, a rejected
// AppendMany never partially writes the batch. AppendMany does not
// move the cursor; call AdvanceBy once every layer has been appended
// to for this batch.
func (c *Cache) AppendMany(layer int, keys, values []float32, newTokens int) error {
	if layer < 0 || layer >= c.numLayers {
		return qerr.ErrInvalidInput
	}
	if newTokens <= 0 {
		return qerr.ErrInvalidInput
	}
	perPos := c.perPosition()
	want := newTokens * perPos
	if len(keys) != want || len(values) != want {
		return qerr.ErrDimensionMismatch
	}
	if c.currentLen+newTokens > c.maxSeq {
		return &qerr.CapacityError{
			Layer: layer, MaxSeq: c.maxSeq, CurrentLen: c.currentLen, Requested: c.currentLen + newTokens,
		}
	}
	start := c.currentLen * perPos
	lb := &c.layers[layer]
	copy(lb.keys[start:start+want], keys)
	copy(lb.values[start:start+want], values)
	return nil
}

// Get returns views (not copies) over the filled portion of layer's
// key and value storage, i.e. positions [0, CurrentLen()).
func (c *Cache) Get(layer int) (keys, values []float32, length int, err error) {
	if layer < 0 || layer >= c.numLayers {
		return nil, nil, 0, qerr.ErrInvalidInput
	}
	perPos := c.perPosition()
	n := c.currentLen * perPos
	lb := &c.layers[layer]
	return lb.keys[:n], lb.values[:n], c.currentLen, nil
}
