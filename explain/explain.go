// Package explain implements the explainability collector (spec.md
// §4.13): per decoded token it records the selected token's id and
// probability, its top-k alternatives, the step's entropy, and elapsed
// time; on completion it derives average/minimum selected-token
// probability, a perplexity estimate, and a windowed perplexity over
// the last 32 tokens.
//
// Grounded on runner/ollamarunner/runner_batch.go's calculateLogprobs
// (deriving top-k alternatives from a logits vector), generalized here
// into a capped, per-request recorder rather than a per-call helper.
package explain

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultTopK is the number of alternatives captured per step when
	// the caller doesn't specify one.
	DefaultTopK = 5
	// MaxTopK bounds how many alternatives a caller may request.
	MaxTopK = 50
	// DefaultMaxSteps caps how many decode steps are retained.
	DefaultMaxSteps = 256
	// windowSize is the trailing window used for Summary.Perplexity's
	// windowed estimate.
	windowSize = 32
	// LowConfidenceThreshold triggers the LOW_CONFIDENCE warning when
	// the minimum selected-token probability falls below it.
	LowConfidenceThreshold = 0.15
)

// Warning names a non-fatal condition raised during collection.
type Warning string

const (
	WarnLowConfidence     Warning = "LOW_CONFIDENCE"
	WarnMaxStepsExceeded  Warning = "MAX_STEPS_EXCEEDED"
)

// Alternative is one candidate token considered but not selected (or
// the selected one, included at index 0 of Step.Alternatives in some
// callers' conventions — this package always keeps Selected separate).
type Alternative struct {
	TokenID int
	Prob    float32
}

// Step is one decode step's recorded explanation.
type Step struct {
	SelectedTokenID int
	SelectedProb    float32
	Alternatives    []Alternative
	Entropy         float64
	Elapsed         time.Duration
}

// Redactor transforms token text before it is retained, e.g. to mask
// PII. A Redactor failure must never abort generation: Collector
// substitutes the literal string "[REDACTED]" when Redact returns an
// error.
type Redactor interface {
	Redact(text string) (string, error)
}

// Collector accumulates Steps for one request, capped at maxSteps.
// Not safe for concurrent use; one Collector belongs to one in-flight
// request, mirroring telemetry.Recorder's ownership.
type Collector struct {
	topK     int
	maxSteps int
	redactor Redactor

	steps    []Step
	warnings []Warning
	capped   bool
}

// NewCollector returns a Collector with the given topK/maxSteps
// (<=0 falls back to the package defaults); topK above MaxTopK is
// clamped.
func NewCollector(topK, maxSteps int, redactor Redactor) *Collector {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Collector{topK: topK, maxSteps: maxSteps, redactor: redactor}
}

// TopKFromLogits extracts the selected token's probability and its
// top-k alternatives from a raw logits vector (already exponentiated
// and normalized into a probability distribution by the sampler), the
// same derivation runner_batch.go's calculateLogprobs performs against
// a softmax'd vector.
func TopKFromLogits(probs []float32, selected int, k int) (selectedProb float32, alts []Alternative) {
	if selected >= 0 && selected < len(probs) {
		selectedProb = probs[selected]
	}
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	alts = make([]Alternative, 0, k)
	for _, i := range idx[:k] {
		alts = append(alts, Alternative{TokenID: i, Prob: probs[i]})
	}
	return selectedProb, alts
}

// Entropy computes the Shannon entropy (natural log, nats) of a
// probability distribution, skipping zero-probability entries.
func Entropy(probs []float32) float64 {
	var h float64
	for _, p := range probs {
		if p <= 0 {
			continue
		}
		pf := float64(p)
		h -= pf * math.Log(pf)
	}
	return h
}

// Record appends one decode step's explanation, applying the
// configured top-k cap, and emits WarnMaxStepsExceeded exactly once
// when the cap is first reached. Record stores token ids and
// probabilities only and does not call the redactor; token text is
// redacted separately through RedactText. Steps recorded after the cap is hit
// are silently dropped (the warning already told the caller coverage
// stopped).
func (c *Collector) Record(selectedTokenID int, selectedProb float32, probs []float32, elapsed time.Duration) {
	if len(c.steps) >= c.maxSteps {
		if !c.capped {
			c.capped = true
			c.warnings = append(c.warnings, WarnMaxStepsExceeded)
		}
		return
	}
	_, alts := TopKFromLogits(probs, selectedTokenID, c.topK)
	c.steps = append(c.steps, Step{
		SelectedTokenID: selectedTokenID,
		SelectedProb:    selectedProb,
		Alternatives:    alts,
		Entropy:         Entropy(probs),
		Elapsed:         elapsed,
	})
}

// RedactText applies the configured Redactor to token text, returning
// "[REDACTED]" (never an error) if the redactor itself fails.
func (c *Collector) RedactText(text string) string {
	if c.redactor == nil {
		return text
	}
	redacted, err := c.redactor.Redact(text)
	if err != nil {
		return "[REDACTED]"
	}
	return redacted
}

// Steps returns the recorded steps, oldest first.
func (c *Collector) Steps() []Step { return append([]Step(nil), c.steps...) }

// Warnings returns every warning raised during collection.
func (c *Collector) Warnings() []Warning { return append([]Warning(nil), c.warnings...) }

// Summary is the derived, end-of-generation report.
type Summary struct {
	AverageSelectedProb float64
	MinSelectedProb     float64
	Perplexity          float64
	WindowedPerplexity  float64
	Warnings            []Warning
}

// Summarize computes the average/minimum selected-token probability,
// the whole-sequence perplexity estimate exp(mean(-log p_selected)),
// and a windowed perplexity over the trailing windowSize tokens
// (spec.md §4.13 EXPANDED addition), raising WarnLowConfidence if the
// minimum selected probability fell below LowConfidenceThreshold.
func (c *Collector) Summarize() Summary {
	if len(c.steps) == 0 {
		return Summary{Warnings: c.Warnings()}
	}

	negLogs := make([]float64, len(c.steps))
	minProb := float64(c.steps[0].SelectedProb)
	sumProb := 0.0
	for i, s := range c.steps {
		p := float64(s.SelectedProb)
		if p < minProb {
			minProb = p
		}
		sumProb += p
		negLogs[i] = -math.Log(clampProb(p))
	}

	avgProb := sumProb / float64(len(c.steps))
	meanNegLog := floats.Sum(negLogs) / float64(len(negLogs))
	perplexity := math.Exp(meanNegLog)

	windowed := negLogs
	if len(windowed) > windowSize {
		windowed = windowed[len(windowed)-windowSize:]
	}
	windowedMean := floats.Sum(windowed) / float64(len(windowed))
	windowedPerplexity := math.Exp(windowedMean)

	warnings := c.Warnings()
	if minProb < LowConfidenceThreshold {
		warnings = append(warnings, WarnLowConfidence)
	}

	return Summary{
		AverageSelectedProb: avgProb,
		MinSelectedProb:     minProb,
		Perplexity:          perplexity,
		WindowedPerplexity:  windowedPerplexity,
		Warnings:            warnings,
	}
}

func clampProb(p float64) float64 {
	const eps = 1e-12
	if p < eps {
		return eps
	}
	return p
}
