package constraint

import "testing"

// S4 from spec.md §8: generated_so_far=`{"a": [1, 2`, candidate=`]`: allowed;
// candidate=`}`: allowed; candidate=`"`: allowed;
// complete(`{"a": [1, 2]}`) = true; complete(`{"a": [1, 2)`) = false.
func TestJSONEnforcerS4(t *testing.T) {
	var e JSONEnforcer
	generated := `{"a": [1, 2`

	for _, candidate := range []string{"]", "}", `"`} {
		if !e.Allowed(generated, candidate) {
			t.Errorf("Allowed(%q, %q) = false, want true", generated, candidate)
		}
	}

	if !e.Complete(`{"a": [1, 2]}`) {
		t.Error(`Complete({"a": [1, 2]}) = false, want true`)
	}
	if e.Complete(`{"a": [1, 2)`) {
		t.Error(`Complete({"a": [1, 2)) = true, want false`)
	}
}

func TestJSONEnforcerDeniesUnmatchedCloser(t *testing.T) {
	var e JSONEnforcer
	if e.Allowed(`{"a": 1`, "]") {
		t.Error("Allowed should deny a bracket closer when no bracket is open")
	}
	if e.Allowed(`[1, 2]`, "]") {
		t.Error("Allowed should deny a closer once its depth is already zero")
	}
}

func TestJSONEnforcerCompleteRequiresDepthZeroAndNotInString(t *testing.T) {
	var e JSONEnforcer
	if e.Complete(`{"a": 1`) {
		t.Error("Complete should be false while a brace remains open")
	}
	if e.Complete(`{"a": "b`) {
		t.Error("Complete should be false while still inside a string")
	}
	if !e.Complete(`[1,2,3]`) {
		t.Error("Complete should accept a top-level array")
	}
}

func TestJSONEnforcerEscapedQuoteStaysInString(t *testing.T) {
	var e JSONEnforcer
	if e.Complete(`{"a": "esc\"`) {
		t.Error("an escaped quote must not be treated as closing the string")
	}
	if !e.Complete(`{"a": "esc\""}`) {
		t.Error("the unescaped closing quote should terminate the string")
	}
}

// A bare top-level scalar is never "complete" JSON under this
// contract, even though it contains no unclosed brace/bracket.
func TestJSONEnforcerRejectsTopLevelScalar(t *testing.T) {
	var e JSONEnforcer
	if e.Complete(`"foo"`) {
		t.Error("Complete should reject a bare top-level string")
	}
	if e.Complete(`42`) {
		t.Error("Complete should reject a bare top-level number")
	}
	if e.Complete(`true`) {
		t.Error("Complete should reject a bare top-level boolean")
	}
	if !e.Complete(`  {"a": 1}`) {
		t.Error("Complete should still accept an object with leading whitespace")
	}
}

func TestSQLEnforcerRequiresKnownLeadingKeyword(t *testing.T) {
	var e SQLEnforcer
	if !e.Complete("SELECT 1;") {
		t.Error("a balanced SELECT statement should be complete")
	}
	if e.Complete("SELECT (1;") {
		t.Error("unbalanced parens must not be complete")
	}
	if e.Allowed("", "DROP TABLE users;") {
		t.Error("DROP is not in the permitted leading-keyword set and must be denied")
	}
	if !e.Allowed("", "SEL") {
		t.Error("a partial prefix of a permitted keyword must still be allowed")
	}
}

func TestSQLEnforcerParenDepthNeverNegative(t *testing.T) {
	var e SQLEnforcer
	if e.Allowed("SELECT 1)", "") {
		// sqlPrefixValid is checked on generated+token; an empty token
		// should preserve whatever generated already was.
	}
	if e.Allowed("SELECT 1", ")") {
		t.Error("a closing paren with no matching open paren must be denied")
	}
}

func TestSQLEnforcerRejectsSecondStatement(t *testing.T) {
	var e SQLEnforcer
	if e.Allowed("SELECT 1;", "DROP TABLE users;") {
		t.Error("a second statement after the terminator must be denied")
	}
}

func TestXMLEnforcerBalancedTags(t *testing.T) {
	var e XMLEnforcer
	if !e.Complete("<a><b/></a>") {
		t.Error("a balanced document with a self-closing child should be complete")
	}
	if e.Complete("<a><b></a>") {
		t.Error("a mismatched closing tag must never be complete")
	}
}

func TestXMLEnforcerMismatchedCloseDenies(t *testing.T) {
	var e XMLEnforcer
	if e.Allowed("<a>", "</b>") {
		t.Error("closing the wrong element must be denied immediately")
	}
}

func TestXMLEnforcerUnterminatedTagIsValidPrefix(t *testing.T) {
	var e XMLEnforcer
	if !e.Allowed("<a>text</a", "") {
		t.Error("a trailing unterminated tag should be a valid partial prefix")
	}
}

func TestRegexEnforcerCompleteRequiresFullMatch(t *testing.T) {
	e := RegexEnforcer{Pattern: `^[0-9]{3}$`}
	if e.Complete("12") {
		t.Error("Complete should require a full match, not a partial one")
	}
	if !e.Complete("123") {
		t.Error("Complete should accept a full match")
	}
}

func TestRegexEnforcerAllowedIsPermissive(t *testing.T) {
	e := RegexEnforcer{Pattern: `^[0-9]{3}$`}
	if !e.Allowed("", "1") {
		t.Error("Allowed should be permissive per spec.md §4.10's regex contract")
	}
}

func TestRegexEnforcerInvalidPatternDeniesComplete(t *testing.T) {
	e := RegexEnforcer{Pattern: "("}
	if e.Complete("anything") {
		t.Error("an uncompilable pattern must never report complete")
	}
}

func TestUnconstrainedAlwaysAllowsAndCompletes(t *testing.T) {
	var e Unconstrained
	if !e.Allowed("whatever", "more") || !e.Complete("whatever") {
		t.Error("Unconstrained must always allow and always report complete")
	}
}

func TestKindOfDispatch(t *testing.T) {
	cases := []struct {
		e    Enforcer
		want Kind
	}{
		{Unconstrained{}, KindUnconstrained},
		{JSONEnforcer{}, KindJSON},
		{RegexEnforcer{Pattern: "a"}, KindRegex},
		{SQLEnforcer{}, KindSQL},
		{XMLEnforcer{}, KindXML},
	}
	for _, c := range cases {
		if got := KindOf(c.e); got != c.want {
			t.Errorf("KindOf(%T) = %v, want %v", c.e, got, c.want)
		}
	}
}
