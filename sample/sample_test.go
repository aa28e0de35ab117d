package sample

import (
	"errors"
	"testing"

	"github.com/nanoforge/qmfrt/constraint"
	"github.com/nanoforge/qmfrt/qerr"
)

func identityTokenText(id int) string { return string(rune('a' + id)) }

func TestSampleGreedyAtZeroTemperature(t *testing.T) {
	s := New(Options{Temperature: 0, Mode: Deterministic, Seed: 1})
	logits := []float32{0.1, 0.9, 0.2, 0.05}
	id, err := s.Sample(logits, nil, "", identityTokenText)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if id != 1 {
		t.Errorf("Sample() = %d, want 1 (arg-max) at temperature 0", id)
	}
}

func TestSampleDeterministicReproducible(t *testing.T) {
	logits := []float32{1, 2, 3, 4, 5}
	opts := Options{Temperature: 1.0, TopK: 0, TopP: 1.0, Mode: Deterministic, Seed: 42}

	first, err := New(opts).Sample(logits, nil, "", identityTokenText)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	for i := 0; i < 5; i++ {
		got, err := New(opts).Sample(logits, nil, "", identityTokenText)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if got != first {
			t.Errorf("Sample() with identical seed/opts = %d, want %d (reproducible draw)", got, first)
		}
	}
}

func TestSampleTopKRestrictsToHighestLogit(t *testing.T) {
	logits := []float32{10, 0, 0, 0, 0}
	s := New(Options{Temperature: 1.0, TopK: 1, TopP: 1.0, Mode: Deterministic, Seed: 1})
	id, err := s.Sample(logits, nil, "", identityTokenText)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if id != 0 {
		t.Errorf("Sample() with TopK=1 = %d, want 0 (the dominant logit)", id)
	}
}

type alwaysRejectEnforcer struct{}

func (alwaysRejectEnforcer) Allowed(generated, token string) bool { return false }
func (alwaysRejectEnforcer) Complete(generated string) bool       { return false }

func TestSampleConstraintViolationWhenNothingAdmissible(t *testing.T) {
	s := New(DefaultOptions())
	logits := []float32{1, 2, 3}
	_, err := s.Sample(logits, alwaysRejectEnforcer{}, "", identityTokenText)
	if !errors.Is(err, qerr.ErrConstraintViolation) {
		t.Errorf("err = %v, want qerr.ErrConstraintViolation", err)
	}
}

type onlyAllowEnforcer struct{ token string }

func (e onlyAllowEnforcer) Allowed(generated, token string) bool { return token == e.token }
func (onlyAllowEnforcer) Complete(generated string) bool         { return true }

func TestSampleFallsBackToFullVocabularyAfterTopKPrune(t *testing.T) {
	// TopK=1 would normally restrict to token 0 (highest logit), but the
	// enforcer only admits token "c" (id 2); the sampler must fall back
	// to scanning the full distribution rather than reporting a
	// constraint violation.
	logits := []float32{10, 1, 1}
	s := New(Options{Temperature: 1.0, TopK: 1, TopP: 1.0, Mode: Deterministic, Seed: 7})
	id, err := s.Sample(logits, onlyAllowEnforcer{token: "c"}, "", identityTokenText)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if id != 2 {
		t.Errorf("Sample() = %d, want 2 (the only enforcer-admissible token)", id)
	}
}

func TestSampleRejectsEmptyLogits(t *testing.T) {
	s := New(DefaultOptions())
	if _, err := s.Sample(nil, nil, "", identityTokenText); !errors.Is(err, qerr.ErrInvalidInput) {
		t.Errorf("err = %v, want qerr.ErrInvalidInput", err)
	}
}

func TestSampleNilEnforcerDefaultsToUnconstrained(t *testing.T) {
	s := New(Options{Temperature: 0, Mode: Deterministic})
	logits := []float32{0.1, 0.2, 0.9}
	id, err := s.Sample(logits, nil, "", identityTokenText)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if id != 2 {
		t.Errorf("Sample() = %d, want 2", id)
	}
	_ = constraint.Unconstrained{} // default used internally when enforcer is nil
}

func TestRegexTimeoutMatchesConfig(t *testing.T) {
	if got := RegexTimeout(); got <= 0 {
		t.Errorf("RegexTimeout() = %v, want a positive default", got)
	}
}
