// Package constraint implements output-format enforcers that gate
// token-by-token generation: each Enforcer reports whether appending a
// candidate token to the text generated so far would still be
// admissible (Allowed), and whether the text generated so far already
// satisfies the format on its own (Complete), letting the sampler stop
// early. JSON and XML enforcers track nesting depth incrementally;
// the regex enforcer defers to a compiled, timeout-bounded regex; SQL
// tracks statement/paren/quote balance. Unconstrained is the default
// no-op enforcer used when a request specifies no output format.
package constraint

// Enforcer gates generation against one output format.
type Enforcer interface {
	// Allowed reports whether generated+token is still a valid prefix
	// of some string satisfying the format.
	Allowed(generated, token string) bool
	// Complete reports whether generated alone already satisfies the
	// format, so generation may stop here.
	Complete(generated string) bool
}

// Kind names an enforcer's format family, independent of any
// per-instance parameters (e.g. a regex's pattern). The batch
// scheduler's compatibility predicate groups requests by Kind: two
// regex enforcers with different patterns are still the same Kind, so
// they may share a batch, per spec.md §4.10's "same constraint
// enforcer kind" wording.
type Kind int

const (
	KindUnconstrained Kind = iota
	KindJSON
	KindRegex
	KindSQL
	KindXML
)

func (k Kind) String() string {
	switch k {
	case KindUnconstrained:
		return "unconstrained"
	case KindJSON:
		return "json"
	case KindRegex:
		return "regex"
	case KindSQL:
		return "sql"
	case KindXML:
		return "xml"
	default:
		return "unknown"
	}
}

// KindOf reports the enforcer Kind, falling back to KindUnconstrained
// for any type this package doesn't recognize (e.g. a caller's own
// Enforcer implementation), which keeps the scheduler's predicate
// total rather than panicking on an unknown format.
func KindOf(e Enforcer) Kind {
	switch e.(type) {
	case JSONEnforcer:
		return KindJSON
	case RegexEnforcer:
		return KindRegex
	case SQLEnforcer:
		return KindSQL
	case XMLEnforcer:
		return KindXML
	default:
		return KindUnconstrained
	}
}

// Unconstrained permits every token and considers any point in
// generation complete; it is the default enforcer.
type Unconstrained struct{}

func (Unconstrained) Allowed(generated, token string) bool { return true }
func (Unconstrained) Complete(generated string) bool       { return true }
