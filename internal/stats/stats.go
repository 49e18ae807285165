// Package stats reports circuit size figures for AIG artifacts: primary
// inputs, outputs, flip-flops and AND gates. Figures come either from the
// tool's print_stats summary line or from reading the AIGER file directly.
package stats

import (
	"regexp"
	"strconv"
)

// Stats holds the size of one circuit.
type Stats struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
	Latches int `json:"latches"`
	Ands    int `json:"ands"`
}

// summaryRe matches the print_stats summary, e.g.
// "i/o =    5/    3  lat =    2  and =     17".
var summaryRe = regexp.MustCompile(`i/o\s*=\s*(\d+)\s*/\s*(\d+)\s+lat\s*=\s*(\d+)\s+and\s*=\s*(\d+)`)

// Extract parses the first summary line in output. It reports false when no
// line matches, in which case every figure is missing.
func Extract(output string) (Stats, bool) {
	m := summaryRe.FindStringSubmatch(output)
	if m == nil {
		return Stats{}, false
	}
	var n [4]int
	for i := range n {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Stats{}, false
		}
		n[i] = v
	}
	return Stats{Inputs: n[0], Outputs: n[1], Latches: n[2], Ands: n[3]}, true
}
