// Package clinical holds the static tables the service is built around: the
// fallback question bank and the demo scenario table with its canned
// simulation reports. Both are embedded YAML, parsed once at startup and
// read-only afterwards.
package clinical

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// DefaultScenarioID is selected when no scenario cue matches.
const DefaultScenarioID = "general"

// NoAlertReport is returned for scenario ids without a canned report.
const NoAlertReport = "No simulated alert available for this scenario."

var ErrScenarioNotFound = errors.New("scenario not found")

// Scenario is a demo case: patient survey, clinician notes, the ten
// scenario questions and the report simulation mode returns for it.
type Scenario struct {
	Key        string   `json:"key" yaml:"key"`
	Title      string   `json:"title" yaml:"title"`
	Department string   `json:"department" yaml:"department"`
	Age        string   `json:"age" yaml:"age"`
	VisitType  string   `json:"visitType" yaml:"visit_type"`
	Survey     string   `json:"survey" yaml:"survey"`
	Notes      string   `json:"notes" yaml:"notes"`
	Cues       []string `json:"-" yaml:"cues"`
	Prompts    []string `json:"-" yaml:"questions"`
	Report     string   `json:"-" yaml:"report"`
}

// Questions returns the scenario prompts as survey questions with the fixed
// demo option set.
func (s Scenario) Questions() []Question {
	out := make([]Question, 0, len(s.Prompts))
	for _, p := range s.Prompts {
		opts := make([]string, len(ScenarioOptions))
		copy(opts, ScenarioOptions)
		out = append(out, Question{Text: p, Options: opts})
	}
	return out
}

type scenarioFile struct {
	DefaultScenario string     `yaml:"default_scenario"`
	DefaultReport   string     `yaml:"default_report"`
	Scenarios       []Scenario `yaml:"scenarios"`
}

type bankFile struct {
	Questions []BankQuestion `yaml:"questions"`
}

// Catalog is the loaded scenario table plus the fallback bank.
type Catalog struct {
	scenarios     []Scenario
	byKey         map[string]int
	defaultID     string
	defaultReport string
	bank          []BankQuestion
}

// Load parses the embedded tables.
func Load() (*Catalog, error) {
	rawScenarios, err := dataFS.ReadFile("data/scenarios.yaml")
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	rawBank, err := dataFS.ReadFile("data/question_bank.yaml")
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(rawScenarios, rawBank)
}

// MustLoad is Load for package-level wiring and tests.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a Catalog from YAML documents and validates them.
func Parse(scenariosYAML, bankYAML []byte) (*Catalog, error) {
	var sf scenarioFile
	if err := yaml.Unmarshal(scenariosYAML, &sf); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	var bf bankFile
	if err := yaml.Unmarshal(bankYAML, &bf); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	c := &Catalog{
		scenarios:     sf.Scenarios,
		byKey:         make(map[string]int, len(sf.Scenarios)),
		defaultID:     sf.DefaultScenario,
		defaultReport: sf.DefaultReport,
		bank:          bf.Questions,
	}
	if c.defaultID == "" {
		c.defaultID = DefaultScenarioID
	}

	for i, s := range c.scenarios {
		if s.Key == "" {
			return nil, fmt.Errorf("scenario %d: key is required", i)
		}
		if _, dup := c.byKey[s.Key]; dup {
			return nil, fmt.Errorf("scenario %q: duplicate key", s.Key)
		}
		c.byKey[s.Key] = i
	}
	for i, q := range c.bank {
		if strings.TrimSpace(q.Text) == "" || len(q.Options) < 2 {
			return nil, fmt.Errorf("question bank entry %d (%s): needs text and at least 2 options", i, q.ID)
		}
	}
	return c, nil
}

// Scenarios returns the table in match order.
func (c *Catalog) Scenarios() []Scenario {
	out := make([]Scenario, len(c.scenarios))
	copy(out, c.scenarios)
	return out
}

// Scenario looks up a record by key.
func (c *Catalog) Scenario(key string) (Scenario, error) {
	i, ok := c.byKey[key]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %s", ErrScenarioNotFound, key)
	}
	return c.scenarios[i], nil
}

// DefaultScenarioID is the id chosen when nothing matches.
func (c *Catalog) DefaultScenarioID() string { return c.defaultID }

// Report returns the canned simulation report for a scenario id.
func (c *Catalog) Report(id string) string {
	if id == c.defaultID && c.defaultReport != "" {
		return c.defaultReport
	}
	if i, ok := c.byKey[id]; ok && c.scenarios[i].Report != "" {
		return c.scenarios[i].Report
	}
	return NoAlertReport
}

// Bank returns the fallback questions in bank order.
func (c *Catalog) Bank() []BankQuestion {
	out := make([]BankQuestion, len(c.bank))
	copy(out, c.bank)
	return out
}

// BankQuestionAt returns the i-th bank question, if any.
func (c *Catalog) BankQuestionAt(i int) (BankQuestion, bool) {
	if i < 0 || i >= len(c.bank) {
		return BankQuestion{}, false
	}
	return c.bank[i], true
}

// Match picks the scenario whose cues occur in survey+notes. Matching is
// case-insensitive; a scenario matches on its key, its key with underscores
// as spaces, its title, or one of its signature cue phrases. The first
// matching scenario in table order wins, otherwise the default id.
func (c *Catalog) Match(survey, notes string) string {
	blob := strings.ToLower(survey + " " + notes)
	for _, s := range c.scenarios {
		if s.matches(blob) {
			return s.Key
		}
	}
	return c.defaultID
}

func (s Scenario) matches(blob string) bool {
	key := strings.ToLower(s.Key)
	if strings.Contains(blob, key) || strings.Contains(blob, strings.ReplaceAll(key, "_", " ")) {
		return true
	}
	if s.Title != "" && strings.Contains(blob, strings.ToLower(s.Title)) {
		return true
	}
	for _, cue := range s.Cues {
		if cue != "" && strings.Contains(blob, strings.ToLower(cue)) {
			return true
		}
	}
	return false
}
