package engine

import "github.com/nanoforge/qmfrt/qerr"

// Sequence holds the prompt token IDs a request will prefill, after
// truncation to fit the cache's capacity.
type Sequence struct {
	Tokens  []int32
	NumKeep int // how many leading tokens (e.g. a system prompt) are never dropped
}

// NewSequence builds a Sequence from prompt tokens, truncating from the
// middle when the prompt is longer than maxSeq: the first numKeep
// tokens and the most recent tokens are kept, and the interior is
// dropped, mirroring the teacher's NewSequence truncation shape.
// Returns qerr.ErrInvalidInput for an empty prompt or a numKeep that
// itself exceeds maxSeq.
func NewSequence(tokens []int32, maxSeq, numKeep int) (*Sequence, error) {
	if len(tokens) == 0 {
		return nil, qerr.ErrInvalidInput
	}
	if numKeep < 0 || numKeep > maxSeq {
		return nil, qerr.ErrInvalidInput
	}
	if len(tokens) <= maxSeq {
		return &Sequence{Tokens: tokens, NumKeep: numKeep}, nil
	}

	tailLen := maxSeq - numKeep
	truncated := make([]int32, 0, maxSeq)
	truncated = append(truncated, tokens[:numKeep]...)
	truncated = append(truncated, tokens[len(tokens)-tailLen:]...)
	return &Sequence{Tokens: truncated, NumKeep: numKeep}, nil
}

// Len is the number of tokens that will be prefilled.
func (s *Sequence) Len() int { return len(s.Tokens) }
