// Package testutil provides shared test helpers for oscript Go tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thomasrohde/oscript/pkg/ledger"
)

// ScenariosDir is the relative path from the module root to the scenarios.
const ScenariosDir = "testdata/scenarios"

// Scenario is one YAML conformance case: a program, the ledger and state it
// runs against, and the expected outcome.
type Scenario struct {
	// Name is the file name without extension.
	Name string `yaml:"-"`
	// Cmd is "run" or "check".
	Cmd     string `yaml:"cmd"`
	Mode    string `yaml:"mode"`
	Address string `yaml:"address"`
	Source  string `yaml:"source"`
	// MaxComplexity overrides the default ceiling when positive.
	MaxComplexity int             `yaml:"max_complexity"`
	Ledger        *ledger.Fixture `yaml:"ledger"`
	// State seeds state vars: address -> key -> JSON value.
	State  map[string]map[string]string `yaml:"state"`
	Expect Expect                       `yaml:"expect"`
	Tags   []string                     `yaml:"tags"`
}

// Expect describes the expected outcome of a scenario. JSON-valued fields
// are compared after normalization; empty fields are not checked.
type Expect struct {
	ExitCode     int    `yaml:"exit_code"`
	Outcome      string `yaml:"outcome"`
	Value        string `yaml:"value"`
	ResponseVars string `yaml:"response_vars"`
	// State is the expected committed state: address -> key -> JSON value,
	// "null" for a key that must be absent.
	State      map[string]map[string]string `yaml:"state"`
	Complexity *int                         `yaml:"complexity"`
	CountOps   *int                         `yaml:"count_ops"`
	ErrorCode  string                       `yaml:"error_code"`
	// Diagnostics lists codes that must all be reported.
	Diagnostics []string `yaml:"diagnostics"`
}

// LoadScenario loads one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if s.Cmd == "" {
		s.Cmd = "run"
	}
	if s.Source == "" {
		return nil, fmt.Errorf("%s: scenario has no source", path)
	}
	return &s, nil
}

// ListScenarios returns the scenario files under root, sorted by name.
func ListScenarios(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".yaml" {
			files = append(files, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// NormalizeJSON re-encodes raw so that equal documents compare equal as
// strings. Object keys come out sorted.
func NormalizeJSON(raw string) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", fmt.Errorf("invalid JSON %q: %w", raw, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
