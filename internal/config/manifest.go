package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/aigrace/internal/pipeline"
)

// Manifest describes a batch in YAML:
//
//	datasets:
//	  - dataset/139442p0.aig
//	engines: [pdr, bmc, int, dprove, sim]
//	timeout: 120s
//	stages:
//	  - name: simplify
//	    commands: "dc2; rewrite; retime -o; strash"
//	output: dataset_results.csv
//
// Unset fields fall back to the environment configuration. Relative dataset
// and output paths are resolved against the manifest's directory.
type Manifest struct {
	Datasets    []string         `yaml:"datasets"`
	Engines     []string         `yaml:"engines,omitempty"`
	Timeout     time.Duration    `yaml:"timeout,omitempty"`
	Stages      []pipeline.Stage `yaml:"stages,omitempty"`
	Parallel    int              `yaml:"parallel,omitempty"`
	StatsSource string           `yaml:"stats_source,omitempty"`
	WorkDir     string           `yaml:"work_dir,omitempty"`
	Output      string           `yaml:"output,omitempty"`
	Format      string           `yaml:"format,omitempty"`
}

// LoadManifest reads and validates a batch manifest. Unknown keys are errors.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if len(m.Datasets) == 0 {
		return nil, errors.New("manifest lists no datasets")
	}
	if m.Timeout < 0 {
		return nil, fmt.Errorf("manifest timeout %v is negative", m.Timeout)
	}
	if m.Parallel < 0 {
		return nil, fmt.Errorf("manifest parallel %d is negative", m.Parallel)
	}
	for _, st := range m.Stages {
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("manifest stage: %w", err)
		}
	}

	base := filepath.Dir(path)
	for i, ds := range m.Datasets {
		m.Datasets[i] = resolve(base, ds)
	}
	if m.Output != "" {
		m.Output = resolve(base, m.Output)
	}
	if m.WorkDir != "" {
		m.WorkDir = resolve(base, m.WorkDir)
	}
	return &m, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
