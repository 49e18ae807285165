package model

import (
	"fmt"
	"strings"
)

// Engine identifies one verification strategy of the external tool.
// The set is closed; use ParseEngine to convert user input.
type Engine uint8

// Engine constants. EngineNone marks results with no engine attached.
const (
	EngineNone Engine = iota
	EnginePDR
	EngineBMC
	EngineInt
	EngineDProve
	EngineSim
)

// engineCommands maps each engine to the tool command that runs it.
var engineCommands = map[Engine]string{
	EnginePDR:    "pdr",
	EngineBMC:    "bmc",
	EngineInt:    "int",
	EngineDProve: "dprove",
	EngineSim:    "sim",
}

// AllEngines lists every runnable engine in launch order.
var AllEngines = []Engine{EnginePDR, EngineBMC, EngineInt, EngineDProve, EngineSim}

// String returns the engine name, or the empty string for EngineNone.
func (e Engine) String() string {
	return engineCommands[e]
}

// Command returns the tool command that runs e.
func (e Engine) Command() string {
	return engineCommands[e]
}

// Valid reports whether e is a runnable engine.
func (e Engine) Valid() bool {
	_, ok := engineCommands[e]
	return ok
}

// ParseEngine converts an engine name (case-insensitive) to an Engine.
func ParseEngine(s string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, e := range AllEngines {
		if engineCommands[e] == name {
			return e, nil
		}
	}
	return EngineNone, fmt.Errorf("unknown engine %q: must be one of %v", s, AllEngines)
}

// ParseEngines parses a list of engine names, rejecting duplicates.
func ParseEngines(names []string) ([]Engine, error) {
	engines := make([]Engine, 0, len(names))
	seen := make(map[Engine]bool, len(names))
	for _, n := range names {
		e, err := ParseEngine(n)
		if err != nil {
			return nil, err
		}
		if seen[e] {
			return nil, fmt.Errorf("engine %q listed twice", n)
		}
		seen[e] = true
		engines = append(engines, e)
	}
	return engines, nil
}

// MarshalText implements encoding.TextMarshaler.
func (e Engine) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The empty string
// decodes to EngineNone.
func (e *Engine) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*e = EngineNone
		return nil
	}
	parsed, err := ParseEngine(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
