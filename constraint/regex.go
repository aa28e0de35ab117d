package constraint

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dlclark/regexp2"

	"github.com/nanoforge/qmfrt/config"
)

// regexCacheSize bounds how many distinct compiled patterns are kept
// resident; beyond this the least-recently-used pattern is evicted and
// recompiled if requested again.
const regexCacheSize = 64

var regexCache = mustNewRegexCache()

func mustNewRegexCache() *lru.Cache[string, *regexp2.Regexp] {
	c, err := lru.New[string, *regexp2.Regexp](regexCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// regexCacheSize never is.
		panic(err)
	}
	return c
}

// regexMu serializes compileRegex, so a pattern is compiled once and
// then served from the cache for as long as it stays resident.
var regexMu sync.Mutex

func compileRegex(pattern string) (*regexp2.Regexp, error) {
	regexMu.Lock()
	defer regexMu.Unlock()
	if re, ok := regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = config.RegexMatchTimeout()
	regexCache.Add(pattern, re)
	return re, nil
}

// RegexEnforcer admits text that could still become a full match of
// the compiled pattern. Every evaluation is bounded by
// config.RegexMatchTimeout, since an unconstrained regex engine can be
// driven into catastrophic backtracking by adversarial input.
//
// Allowed is intentionally permissive: determining true prefix
// compatibility with an arbitrary regex requires deriving the
// pattern's automaton, which regexp2's backtracking engine doesn't
// expose. Instead Allowed admits every candidate, matching or not, and
// rejects one only when the pattern fails to compile or the match
// attempt errors or times out; Complete performs the authoritative
// check. This mirrors the Grammar wrapper
// in llama/llama_sampling.go, which similarly defers admissibility to
// the underlying matcher rather than reimplementing it.
type RegexEnforcer struct {
	Pattern string
}

func (e RegexEnforcer) Allowed(generated, token string) bool {
	re, err := compileRegex(e.Pattern)
	if err != nil {
		return false
	}
	candidate := generated + token
	matched, err := re.MatchString(candidate)
	if err != nil {
		// Timeout or engine error: fail closed for this candidate.
		return false
	}
	if matched {
		return true
	}
	// A candidate that does not match yet is still allowed as a
	// work-in-progress prefix.
	return true
}

func (e RegexEnforcer) Complete(generated string) bool {
	re, err := compileRegex(e.Pattern)
	if err != nil {
		return false
	}
	matched, err := re.MatchString(generated)
	if err != nil {
		return false
	}
	return matched
}
