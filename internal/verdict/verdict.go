// Package verdict defines the outcome vocabulary of a verification engine run
// and the classifier that derives it from raw tool output.
package verdict

import "strings"

// Verdict is the classified outcome of one engine invocation.
type Verdict string

// Verdict constants.
const (
	SAT     Verdict = "SAT"
	UNSAT   Verdict = "UNSAT"
	Unknown Verdict = "UNKNOWN"
	Timeout Verdict = "TIMEOUT"
	Fail    Verdict = "FAIL"
)

// All lists every verdict in a stable order.
var All = []Verdict{SAT, UNSAT, Unknown, Timeout, Fail}

// unsatMarkers are checked before satMarkers: "unsat" contains "sat".
var (
	unsatMarkers = []string{"unsat", "property proved"}
	satMarkers   = []string{"sat", "counterexample"}
)

// Conclusive reports whether v settles the property (SAT or UNSAT).
func (v Verdict) Conclusive() bool {
	return v == SAT || v == UNSAT
}

func (v Verdict) String() string {
	return string(v)
}

// Classify maps the combined output of one engine invocation to a verdict.
// Matching is case-insensitive and the first matching group wins.
func Classify(output string) Verdict {
	lower := strings.ToLower(output)
	if containsAny(lower, unsatMarkers) {
		return UNSAT
	}
	if containsAny(lower, satMarkers) {
		return SAT
	}
	return Unknown
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
