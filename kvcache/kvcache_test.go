package kvcache

import (
	"errors"
	"testing"

	"github.com/nanoforge/qmfrt/qerr"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(4, 2, 2, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := []float32{1, 2, 3, 4, 5, 6}
	value := []float32{7, 8, 9, 10, 11, 12}
	if err := c.Put(0, key, value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if c.CurrentLen() != 1 {
		t.Fatalf("CurrentLen() = %d, want 1", c.CurrentLen())
	}
	gotKeys, gotValues, length, err := c.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if length != 1 {
		t.Errorf("length = %d, want 1", length)
	}
	for i, v := range key {
		if gotKeys[i] != v {
			t.Errorf("keys[%d] = %v, want %v", i, gotKeys[i], v)
		}
	}
	for i, v := range value {
		if gotValues[i] != v {
			t.Errorf("values[%d] = %v, want %v", i, gotValues[i], v)
		}
	}
}

func TestCapacityExceeded(t *testing.T) {
	c, _ := New(1, 1, 1, 2)
	if err := c.Put(0, []float32{1, 2}, []float32{3, 4}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	err := c.Put(0, []float32{5, 6}, []float32{7, 8})
	if err == nil {
		t.Fatal("expected capacity error")
	}
	if !errors.Is(err, qerr.ErrCapacityExceeded) {
		t.Errorf("error = %v, want errors.Is ErrCapacityExceeded", err)
	}
	var capErr *qerr.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *qerr.CapacityError, got %T", err)
	}
	if capErr.MaxSeq != 1 {
		t.Errorf("MaxSeq = %d, want 1", capErr.MaxSeq)
	}
}

// Clear rewinds the cursor without zeroing storage: Get right after
// Clear reports zero length (nothing is "filled"), and a subsequent
// Put simply overwrites the stale position rather than reading zeros.
func TestClearRewindsCursorWithoutZeroingStorage(t *testing.T) {
	c, _ := New(2, 1, 1, 2)
	c.Put(0, []float32{1, 2}, []float32{3, 4})
	c.Advance()
	c.Clear()
	if c.CurrentLen() != 0 {
		t.Errorf("CurrentLen() after Clear = %d, want 0", c.CurrentLen())
	}
	keys, _, length, _ := c.Get(0)
	if length != 0 || len(keys) != 0 {
		t.Errorf("Get after Clear = (%v, len=%d), want empty", keys, length)
	}
	c.Put(0, []float32{5, 6}, []float32{7, 8})
	c.Advance()
	gotKeys, _, _, _ := c.Get(0)
	if gotKeys[0] != 5 || gotKeys[1] != 6 {
		t.Errorf("keys after post-Clear Put = %v, want [5 6]", gotKeys)
	}
}

// Reset behaves identically to Clear: equivalent for all layers, per
// spec.
func TestResetSameAsClear(t *testing.T) {
	c, _ := New(2, 1, 1, 2)
	c.Put(0, []float32{1, 2}, []float32{3, 4})
	c.Advance()
	c.Reset()
	if c.CurrentLen() != 0 {
		t.Errorf("CurrentLen() after Reset = %d, want 0", c.CurrentLen())
	}
}

// §8 boundary property: appending 2 new tokens when only 1 slot
// remains fails with CapacityExceeded and leaves the cache's state
// unchanged — no partial write, no cursor movement.
func TestAppendManyAtCapacityBoundaryLeavesStateUnchanged(t *testing.T) {
	c, _ := New(2, 1, 1, 2)
	if err := c.Put(0, []float32{1, 2}, []float32{3, 4}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	// One slot remains (maxSeq=2, currentLen=1); appending 2 new tokens
	// must fail without writing or advancing.
	err := c.AppendMany(0, []float32{5, 6, 7, 8}, []float32{9, 10, 11, 12}, 2)
	if err == nil {
		t.Fatal("expected capacity error")
	}
	var capErr *qerr.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *qerr.CapacityError, got %T", err)
	}
	if c.CurrentLen() != 1 {
		t.Errorf("CurrentLen() after rejected AppendMany = %d, want unchanged 1", c.CurrentLen())
	}
	gotKeys, _, length, _ := c.Get(0)
	if length != 1 || gotKeys[0] != 1 || gotKeys[1] != 2 {
		t.Errorf("storage mutated by rejected AppendMany: keys=%v length=%d", gotKeys, length)
	}

	if err := c.AdvanceBy(2); err == nil {
		t.Fatal("expected capacity error from AdvanceBy")
	}
	if c.CurrentLen() != 1 {
		t.Errorf("CurrentLen() after rejected AdvanceBy = %d, want unchanged 1", c.CurrentLen())
	}
}

// A multi-token append that fits writes every position atomically and
// AdvanceBy moves the shared cursor forward by the whole batch.
func TestAppendManyWritesWholeBatch(t *testing.T) {
	c, _ := New(4, 1, 1, 2)
	keys := []float32{1, 2, 3, 4}
	values := []float32{5, 6, 7, 8}
	if err := c.AppendMany(0, keys, values, 2); err != nil {
		t.Fatalf("AppendMany: %v", err)
	}
	if c.CurrentLen() != 0 {
		t.Errorf("CurrentLen() before AdvanceBy = %d, want 0 (AppendMany must not move the cursor)", c.CurrentLen())
	}
	if err := c.AdvanceBy(2); err != nil {
		t.Fatalf("AdvanceBy: %v", err)
	}
	if c.CurrentLen() != 2 {
		t.Errorf("CurrentLen() after AdvanceBy(2) = %d, want 2", c.CurrentLen())
	}
	gotKeys, gotValues, length, _ := c.Get(0)
	if length != 2 {
		t.Fatalf("length = %d, want 2", length)
	}
	for i, v := range keys {
		if gotKeys[i] != v {
			t.Errorf("keys[%d] = %v, want %v", i, gotKeys[i], v)
		}
	}
	for i, v := range values {
		if gotValues[i] != v {
			t.Errorf("values[%d] = %v, want %v", i, gotValues[i], v)
		}
	}
}

func TestHeadViewExtractsStridedHead(t *testing.T) {
	c, _ := New(2, 1, 2, 2) // 2 heads, headDim=2
	// position 0: head0=[1,2], head1=[3,4]
	c.Put(0, []float32{1, 2, 3, 4}, []float32{10, 20, 30, 40})
	c.Advance()
	keys, values, err := c.HeadView(0, 1)
	if err != nil {
		t.Fatalf("HeadView: %v", err)
	}
	if len(keys) != 2 || keys[0] != 3 || keys[1] != 4 {
		t.Errorf("head1 keys = %v, want [3 4]", keys)
	}
	if values[0] != 30 || values[1] != 40 {
		t.Errorf("head1 values = %v, want [30 40]", values)
	}
}

func TestNewRejectsBadDimensions(t *testing.T) {
	if _, err := New(0, 1, 1, 1); err == nil {
		t.Fatal("expected error for zero maxSeq")
	}
}
