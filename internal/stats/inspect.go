package stats

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/logic/aiger"
)

// Inspect reads an AIGER file (binary "aig" or ASCII "aag") and counts its
// components. AND gates are counted after structural hashing, so redundant
// gates in the file are not counted twice.
func Inspect(path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open circuit: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, err := br.Peek(3)
	if err != nil {
		return Stats{}, fmt.Errorf("read circuit header %s: %w", path, err)
	}

	var t *aiger.T
	switch {
	case bytes.Equal(magic, []byte("aig")):
		t, err = aiger.ReadBinary(br)
	case bytes.Equal(magic, []byte("aag")):
		t, err = aiger.ReadAscii(br)
	default:
		return Stats{}, fmt.Errorf("%s: not an AIGER file (header %q)", path, magic)
	}
	if err != nil {
		return Stats{}, fmt.Errorf("parse circuit %s: %w", path, err)
	}

	s := t.S
	ands := 0
	for i := 0; i < s.Len(); i++ {
		if s.Type(s.At(i)) == logic.SAnd {
			ands++
		}
	}
	return Stats{
		Inputs:  len(t.Inputs),
		Outputs: len(t.Outputs),
		Latches: len(s.Latches),
		Ands:    ands,
	}, nil
}
