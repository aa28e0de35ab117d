package kvcache

import "github.com/nanoforge/qmfrt/qerr"

// CurrentLen is the number of positions filled so far.
func (c *Cache) CurrentLen() int { return c.currentLen }

// Advance moves the cursor forward by one position, to be called once
// every layer has been written via Put for the current step.
func (c *Cache) Advance() error {
	if c.currentLen >= c.maxSeq {
		return &qerr.CapacityError{
			MaxSeq: c.maxSeq, CurrentLen: c.currentLen, Requested: c.currentLen + 1,
		}
	}
	c.currentLen++
	return nil
}

// AdvanceBy moves the cursor forward by newTokens positions in one
// atomic step, to be called once every layer has been written via
// AppendMany for the current batch. If newTokens would carry the
// cursor past MaxSeq, it returns a CapacityError and leaves the cursor
// untouched rather than advancing partway.
func (c *Cache) AdvanceBy(newTokens int) error {
	if newTokens <= 0 {
		return qerr.ErrInvalidInput
	}
	if c.currentLen+newTokens > c.maxSeq {
		return &qerr.CapacityError{
			MaxSeq: c.maxSeq, CurrentLen: c.currentLen, Requested: c.currentLen + newTokens,
		}
	}
	c.currentLen += newTokens
	return nil
}

// Reset rewinds the cursor to zero for all layers, equivalent to
// Clear. The underlying storage is left untouched; the next Put or
// AppendMany call simply overwrites stale positions.
func (c *Cache) Reset() {
	c.currentLen = 0
}

// Clear rewinds the cursor to zero without clearing the underlying
// storage; the next append overwrites whatever a previous sequence
// left behind rather than reading zeros.
func (c *Cache) Clear() {
	c.currentLen = 0
}

// Remaining reports how many more positions can be appended before
// CapacityExceeded.
func (c *Cache) Remaining() int { return c.maxSeq - c.currentLen }
