package pipeline

import (
	"fmt"
	"strings"
)

// Stage is one named transformation script applied to a circuit.
type Stage struct {
	Name string `json:"name" yaml:"name"`
	// Commands are tool commands separated by semicolons.
	Commands string `json:"commands" yaml:"commands"`
}

// DefaultStages is the simplification applied before every race unless the
// caller chooses otherwise.
var DefaultStages = []Stage{
	{Name: "simplify", Commands: "dc2; rewrite; retime -o; strash"},
}

// ParseStage parses "name=commands".
func ParseStage(s string) (Stage, error) {
	name, cmds, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	cmds = strings.TrimSpace(cmds)
	if !ok || name == "" || cmds == "" {
		return Stage{}, fmt.Errorf("invalid stage %q: want name=commands", s)
	}
	if err := validName(name); err != nil {
		return Stage{}, err
	}
	return Stage{Name: name, Commands: cmds}, nil
}

// Validate reports whether st can be run.
func (st Stage) Validate() error {
	if err := validName(st.Name); err != nil {
		return err
	}
	if strings.TrimSpace(st.Commands) == "" {
		return fmt.Errorf("stage %q has no commands", st.Name)
	}
	return nil
}

// Stage names become file name prefixes.
func validName(name string) error {
	if name == "" {
		return fmt.Errorf("stage name is required")
	}
	if strings.ContainsAny(name, `/\; `) {
		return fmt.Errorf("invalid stage name %q", name)
	}
	return nil
}
