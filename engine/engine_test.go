package engine

import (
	"errors"
	"testing"

	"github.com/nanoforge/qmfrt/kvcache"
	"github.com/nanoforge/qmfrt/qerr"
)

func TestModeDerivedFromCacheState(t *testing.T) {
	cache, err := kvcache.New(8, 1, 1, 2)
	if err != nil {
		t.Fatalf("kvcache.New: %v", err)
	}
	ec := NewExecutionContext(cache)
	if ec.Mode() != Prefill {
		t.Errorf("Mode() = %v, want Prefill on empty cache", ec.Mode())
	}
	cache.Put(0, []float32{1, 2}, []float32{3, 4})
	cache.Advance()
	if ec.Mode() != Decode {
		t.Errorf("Mode() = %v, want Decode after one position", ec.Mode())
	}
	if ec.Position() != 1 {
		t.Errorf("Position() = %d, want 1", ec.Position())
	}
}

func TestAttendUsesPooledScratch(t *testing.T) {
	cache, err := kvcache.New(8, 1, 2, 4)
	if err != nil {
		t.Fatalf("kvcache.New: %v", err)
	}
	ec := NewExecutionContext(cache)
	if err := cache.Put(0, []float32{1, 0, 0, 0, 1, 0, 0, 0}, []float32{1, 1, 1, 1, 2, 2, 2, 2}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	cache.Advance()

	query := []float32{1, 0, 0, 0}
	out := make([]float32, 4)
	if err := ec.Attend(0, 0, query, 1.0, -1, out); err != nil {
		t.Fatalf("Attend: %v", err)
	}
	for i, v := range out {
		if v != 1 {
			t.Errorf("out[%d] = %v, want 1 (single cached position, query matches head 0's key exactly)", i, v)
		}
	}
}

func TestCancelSignalIdempotent(t *testing.T) {
	cs := NewCancelSignal()
	if cs.Cancelled() {
		t.Fatal("expected not cancelled initially")
	}
	cs.Cancel(qerr.ErrCancelledByCaller)
	cs.Cancel(qerr.ErrCancelledByTimeout) // second call must be a no-op
	if !cs.Cancelled() {
		t.Fatal("expected cancelled")
	}
	if !errors.Is(cs.Reason(), qerr.ErrCancelledByCaller) {
		t.Errorf("Reason() = %v, want first cancel's reason preserved", cs.Reason())
	}
	select {
	case <-cs.Done():
	default:
		t.Fatal("expected Done() channel closed")
	}
}

func TestNewSequenceNoTruncationNeeded(t *testing.T) {
	tokens := []int32{1, 2, 3}
	seq, err := NewSequence(tokens, 10, 0)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	if seq.Len() != 3 {
		t.Errorf("Len() = %d, want 3", seq.Len())
	}
}

func TestNewSequenceTruncatesMiddle(t *testing.T) {
	tokens := []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	seq, err := NewSequence(tokens, 5, 2)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	want := []int32{1, 2, 8, 9, 10}
	if seq.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", seq.Len(), len(want))
	}
	for i, v := range want {
		if seq.Tokens[i] != v {
			t.Errorf("Tokens[%d] = %d, want %d", i, seq.Tokens[i], v)
		}
	}
}

func TestNewSequenceRejectsEmpty(t *testing.T) {
	if _, err := NewSequence(nil, 10, 0); err == nil {
		t.Fatal("expected error for empty tokens")
	}
}
