package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is one entry in a scenario's ordered step list.
type Step struct {
	Action      string `yaml:"action" json:"action"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// AdvanceOn optionally overrides the global step-advancement rule for
	// this step: when set, only a successful call to this action advances.
	AdvanceOn string `yaml:"advance_on,omitempty" json:"advance_on,omitempty"`
}

// Scenario is an external, read-only test definition. The engine never
// mutates a Scenario after loading; per-run progress lives on the Session.
type Scenario struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step `yaml:"steps" json:"steps"`
	// TimeoutHint is a soft total-duration hint in seconds.
	TimeoutHint int `yaml:"timeout_hint,omitempty" json:"timeout_hint,omitempty"`
}

// InvalidScenarioError reports a definition that failed the shape check.
// Callers must not create a session for a scenario that fails to load.
type InvalidScenarioError struct {
	Name   string
	Reason string
}

func (e *InvalidScenarioError) Error() string {
	return fmt.Sprintf("invalid scenario %q: %s", e.Name, e.Reason)
}

// Loader resolves scenario names to definitions stored as YAML files
// in a single directory (<dir>/<name>.yaml).
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Path returns the definition file path for a scenario name.
func (l *Loader) Path(name string) string {
	return filepath.Join(l.dir, name+".yaml")
}

// Load resolves a scenario by name. It returns *InvalidScenarioError if the
// definition is missing, unparseable, or structurally incomplete; it never
// returns a partial Scenario.
func (l *Loader) Load(name string) (*Scenario, error) {
	if name == "" {
		return nil, &InvalidScenarioError{Name: name, Reason: "empty name"}
	}

	data, err := os.ReadFile(l.Path(name))
	if err != nil {
		return nil, &InvalidScenarioError{Name: name, Reason: fmt.Sprintf("definition not readable: %v", err)}
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, &InvalidScenarioError{Name: name, Reason: fmt.Sprintf("definition not parseable: %v", err)}
	}

	if sc.Name == "" {
		sc.Name = name
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}

	return &sc, nil
}

// List returns the names of all loadable scenarios, sorted. Definitions
// that fail the shape check are skipped, not reported.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list scenario directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		if _, err := l.Load(name); err != nil {
			continue // Skip invalid definitions
		}
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

// validate applies the shape check: a usable definition has a name and a
// non-empty step list where every step carries an action tag.
func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return &InvalidScenarioError{Name: sc.Name, Reason: "missing name"}
	}
	if len(sc.Steps) == 0 {
		return &InvalidScenarioError{Name: sc.Name, Reason: "empty step list"}
	}
	for i, step := range sc.Steps {
		if step.Action == "" {
			return &InvalidScenarioError{Name: sc.Name, Reason: fmt.Sprintf("step %d missing action", i+1)}
		}
	}
	return nil
}

// stopwords are common filler words that carry no scenario-identifying
// signal and must not count toward keyword-overlap scores.
var stopwords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "into": true,
	"then": true, "when": true, "each": true, "have": true, "will": true,
	"should": true, "after": true, "before": true, "your": true, "been": true,
}

// Keywords returns the lowercase vocabulary of a scenario (name fragments,
// description words, step descriptions) used for keyword-overlap matching.
// Short tokens and stopwords are dropped so matching keys on meaningful
// vocabulary only.
func (sc *Scenario) Keywords() []string {
	seen := make(map[string]bool)
	var words []string

	add := func(text string) {
		for _, w := range tokenize(text) {
			if len(w) < 4 || stopwords[w] || seen[w] {
				continue
			}
			seen[w] = true
			words = append(words, w)
		}
	}

	add(strings.ReplaceAll(sc.Name, "-", " "))
	add(sc.Description)
	for _, step := range sc.Steps {
		add(step.Description)
	}
	return words
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
