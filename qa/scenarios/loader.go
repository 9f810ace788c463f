// Package scenarios runs the YAML regression scenarios in this directory
// against the configured solvers.
package scenarios

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/obsched/core/solver"
	"github.com/kilianp07/obsched/internal/dataset"
)

// Scenario is one regression case: a dataset, either inline or a built-in
// example, solved by each listed solver.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Example names a built-in dataset. It excludes Dataset.
	Example string        `yaml:"example,omitempty"`
	Dataset *dataset.File `yaml:"dataset,omitempty"`
	// Solvers defaults to the exact solver. Heuristic solvers are only held
	// to a feasible plan no better than the expected score.
	Solvers []string `yaml:"solvers,omitempty"`
	// Expected overrides the expectation carried by the dataset.
	Expected *dataset.Expectation `yaml:"expected,omitempty"`
}

// File returns the dataset of the scenario and its expectation.
func (sc *Scenario) File() (*dataset.File, error) {
	var f *dataset.File
	switch {
	case sc.Example != "" && sc.Dataset != nil:
		return nil, errors.New("example and dataset are exclusive")
	case sc.Example != "":
		var err error
		if f, err = dataset.Example(sc.Example); err != nil {
			return nil, err
		}
	case sc.Dataset != nil:
		f = sc.Dataset
	default:
		return nil, errors.New("no dataset")
	}
	if sc.Expected != nil {
		f.Expect = sc.Expected
	}
	if f.Expect == nil {
		return nil, fmt.Errorf("scenario %s has no expectation", sc.Name)
	}
	return f, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(sc.Solvers) == 0 {
		sc.Solvers = []string{solver.TypeBranchAndBound}
	}
	return &sc, nil
}
