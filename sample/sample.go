// Package sample implements a minimal token sampler satisfying
// InferenceRequest's generation options (temperature, top-k, top-p,
// seed, mode) and the active output-constraint Enforcer: it filters
// logits to the admissible set under the enforcer's Allowed check,
// then draws from the filtered distribution, failing with
// qerr.ErrConstraintViolation if nothing is admissible.
//
// Grounded on llama/llama_sampling.go's SamplingParams field set
// (temperature/top-k/top-p/seed), re-implemented in pure Go since the
// core has no cgo sampler to bind to (§1 Non-goals: GPU execution, and
// §9 notes the cgo sampler's *shape* is grounded-from here, not its
// code).
package sample

import (
	"math"
	"math/rand"
	"sort"

	"github.com/nanoforge/qmfrt/config"
	"github.com/nanoforge/qmfrt/constraint"
	"github.com/nanoforge/qmfrt/qerr"
)

// Mode selects how randomness is sourced during sampling.
type Mode int

const (
	// Stochastic draws from a process-global, unseeded source.
	Stochastic Mode = iota
	// Deterministic draws from a source seeded by Options.Seed, making
	// two runs with identical (prompt, options, seed) reproduce
	// identical token sequences (spec.md §8 property 6).
	Deterministic
)

// Options mirrors InferenceRequest's generation knobs (spec.md §3).
type Options struct {
	Temperature float32
	TopK        int
	TopP        float32
	Seed        int64
	Mode        Mode
}

// DefaultOptions returns unrestricted sampling defaults: temperature 1.0, top-k
// disabled (0 means "no limit"), top-p disabled (1.0 means "no
// limit"), stochastic mode.
func DefaultOptions() Options {
	return Options{Temperature: 1.0, TopK: 0, TopP: 1.0, Mode: Stochastic}
}

// candidate pairs a token id with its probability mass after
// temperature scaling and softmax, carried through the top-k/top-p
// filter and the constraint filter together.
type candidate struct {
	id   int
	prob float64
}

// TokenText resolves a candidate token id to the text fragment the
// constraint enforcer should evaluate; supplied by the caller since
// this package has no tokenizer dependency (tokenizer implementations
// are an external collaborator per spec.md §1).
type TokenText func(tokenID int) string

// Sampler draws one token at a time from a logits vector, gating
// candidates through an Enforcer's prefix-admissibility check.
type Sampler struct {
	opts Options
	rng  *rand.Rand
}

// New returns a Sampler. In Deterministic mode the internal RNG is
// seeded from opts.Seed so repeated Sample calls with fresh Samplers
// built from the same seed reproduce the same draws (top-k tie
// breaking included, since ties are broken by stable sort order over
// token id, not RNG, so they're reproducible even in Stochastic mode).
func New(opts Options) *Sampler {
	var rng *rand.Rand
	if opts.Mode == Deterministic {
		rng = rand.New(rand.NewSource(opts.Seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Sampler{opts: opts, rng: rng}
}

// Sample draws one token id from logits, restricted to tokens the
// enforcer admits as a continuation of generatedSoFar. tokenText
// resolves a candidate id to text for the enforcer check. Returns
// qerr.ErrConstraintViolation if every candidate is rejected by the
// enforcer (an empty admissible set after temperature/top-k/top-p
// filtering still consults the enforcer over the full vocabulary
// before giving up, so a very aggressive top-k/top-p never masks a
// real constraint violation as a sampler bug).
func (s *Sampler) Sample(logits []float32, enforcer constraint.Enforcer, generatedSoFar string, tokenText TokenText) (int, error) {
	if len(logits) == 0 {
		return 0, qerr.ErrInvalidInput
	}
	if enforcer == nil {
		enforcer = constraint.Unconstrained{}
	}

	probs := softmaxWithTemperature(logits, s.opts.Temperature)
	cands := topKTopP(probs, s.opts.TopK, s.opts.TopP)

	admissible := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if enforcer.Allowed(generatedSoFar, tokenText(c.id)) {
			admissible = append(admissible, c)
		}
	}
	if len(admissible) == 0 {
		// Fall back to scanning the full vocabulary before declaring a
		// constraint violation: top-k/top-p may have pruned every
		// enforcer-admissible token even though one exists elsewhere
		// in the distribution.
		for id, p := range probs {
			if enforcer.Allowed(generatedSoFar, tokenText(id)) {
				admissible = append(admissible, candidate{id: id, prob: p})
			}
		}
	}
	if len(admissible) == 0 {
		return 0, qerr.ErrConstraintViolation
	}

	return s.draw(admissible), nil
}

// draw performs a weighted draw over admissible, renormalizing their
// probabilities to sum to 1 first. Candidates are sorted by id before
// the cumulative-distribution walk so that, for identical inputs and
// an identical RNG draw, the selected token is reproducible regardless
// of map iteration order upstream.
func (s *Sampler) draw(admissible []candidate) int {
	sort.Slice(admissible, func(i, j int) bool { return admissible[i].id < admissible[j].id })

	var total float64
	for _, c := range admissible {
		total += c.prob
	}
	if total <= 0 {
		return admissible[0].id
	}

	r := s.rng.Float64() * total
	var cum float64
	for _, c := range admissible {
		cum += c.prob
		if r <= cum {
			return c.id
		}
	}
	return admissible[len(admissible)-1].id
}

// softmaxWithTemperature applies temperature scaling (dividing logits
// by temperature before exponentiating; a temperature of 0 is treated
// as greedy and handled by collapsing to the arg-max before softmax)
// and returns a float64 probability distribution.
func softmaxWithTemperature(logits []float32, temperature float32) []float64 {
	if temperature <= 0 {
		probs := make([]float64, len(logits))
		best := 0
		for i, l := range logits {
			if l > logits[best] {
				best = i
			}
		}
		probs[best] = 1
		return probs
	}

	scaled := make([]float64, len(logits))
	maxV := float64(logits[0]) / float64(temperature)
	for i, l := range logits {
		v := float64(l) / float64(temperature)
		scaled[i] = v
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range scaled {
		e := math.Exp(v - maxV)
		scaled[i] = e
		sum += e
	}
	if sum == 0 {
		sum = 1
	}
	for i := range scaled {
		scaled[i] /= sum
	}
	return scaled
}

// topKTopP restricts probs to the top-k highest-probability tokens
// (k<=0 means no limit) then further restricts to the smallest
// nucleus whose cumulative probability reaches topP (topP<=0 or >=1
// means no limit). Ties at the top-k boundary are broken by ascending
// token id for reproducibility.
func topKTopP(probs []float64, k int, topP float32) []candidate {
	cands := make([]candidate, len(probs))
	for i, p := range probs {
		cands[i] = candidate{id: i, prob: p}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].prob != cands[j].prob {
			return cands[i].prob > cands[j].prob
		}
		return cands[i].id < cands[j].id
	})

	if k > 0 && k < len(cands) {
		cands = cands[:k]
	}

	if topP > 0 && topP < 1 {
		var cum float64
		cut := len(cands)
		for i, c := range cands {
			cum += c.prob
			if cum >= float64(topP) {
				cut = i + 1
				break
			}
		}
		cands = cands[:cut]
	}
	return cands
}

// RegexTimeout exposes config.RegexMatchTimeout for callers assembling
// a RegexEnforcer alongside a Sampler, keeping both configured from
// the same knob without sample importing constraint's internals.
func RegexTimeout() (seconds float64) {
	return config.RegexMatchTimeout().Seconds()
}
