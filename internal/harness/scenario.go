package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/pipeline"
	"github.com/roach88/saga/internal/seed"
)

// Scenario defines a scripted play session and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// CampaignID fixes the campaign id. Defaults to "campaign-test".
	CampaignID string `yaml:"campaign_id,omitempty"`

	// Title is the campaign title. Defaults to Name.
	Title string `yaml:"title,omitempty"`

	// Seed is a seed file path, relative to the scenario file.
	// Mutually exclusive with Genesis.
	Seed string `yaml:"seed,omitempty"`

	// Genesis lists the turn-0 events.
	Genesis []EventSpec `yaml:"genesis,omitempty"`

	// Turns are played in order.
	Turns []TurnStep `yaml:"turns"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// baseDir resolves Seed; set by LoadScenario.
	baseDir string
}

// EventSpec is an event written as {type, payload}.
type EventSpec struct {
	Type    string         `yaml:"type"`
	Payload map[string]any `yaml:"payload"`
	Hidden  bool           `yaml:"hidden,omitempty"`
	Rumor   bool           `yaml:"rumor,omitempty"`
}

// Event decodes the YAML event. Kinds this build does not know become
// event.Unknown payloads.
func (s EventSpec) Event() (event.Event, error) {
	p, err := event.FromFields(event.Kind(s.Type), s.Payload)
	if err != nil {
		return event.Event{}, err
	}
	return event.Event{Payload: p, Hidden: s.Hidden, PublicRumor: s.Rumor}, nil
}

func toEvents(specs []EventSpec) ([]event.Event, error) {
	out := make([]event.Event, 0, len(specs))
	for i, s := range specs {
		ev, err := s.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", i, s.Type, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Script is the scripted output of one collaborator for one turn.
type Script struct {
	Events   []EventSpec `yaml:"events,omitempty"`
	TimeCost int         `yaml:"time_cost,omitempty"`
}

// NarrationScript is the scripted narrator output for one turn.
type NarrationScript struct {
	Text      string            `yaml:"text"`
	Citations []domain.Citation `yaml:"citations,omitempty"`
	Choices   []domain.Choice   `yaml:"choices,omitempty"`
	Events    []EventSpec       `yaml:"events,omitempty"`
}

// TurnStep is one player input plus its scripted collaborators.
type TurnStep struct {
	Input     string           `yaml:"input"`
	Seed      uint64           `yaml:"seed,omitempty"`
	Mechanic  *Script          `yaml:"mechanic,omitempty"`
	Encounter *Script          `yaml:"encounter,omitempty"`
	World     *Script          `yaml:"world,omitempty"`
	Narration *NarrationScript `yaml:"narration,omitempty"`
	Expect    *ExpectClause    `yaml:"expect,omitempty"`
}

// ExpectClause checks one step's outcome. Unset fields are not checked.
type ExpectClause struct {
	Route       string `yaml:"route,omitempty"`
	ActionClass string `yaml:"action_class,omitempty"`
	TurnNumber  *int   `yaml:"turn_number,omitempty"`
	Committed   *bool  `yaml:"committed,omitempty"`
	// Error is the stage the turn is expected to fail in.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Step limits trace assertions to one step (1-based). Zero means any.
	Step int `yaml:"step,omitempty"`

	// Stage is used by trace_contains and trace_count.
	Stage string `yaml:"stage,omitempty"`

	// Stages is the expected order (trace_order).
	Stages []string `yaml:"stages,omitempty"`

	// Count is the expected number of visits (trace_count).
	Count int `yaml:"count,omitempty"`

	// Character is the character id (character).
	Character string `yaml:"character,omitempty"`

	// Table is the projection table (final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters final_state rows. The campaign is always filtered.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected field values. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertCharacter     = "character"
	AssertWorld         = "world"
	AssertVerify        = "verify"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.baseDir = filepath.Dir(path)
	if s.Seed != "" {
		if _, err := os.Stat(s.seedPath()); err != nil {
			return nil, fmt.Errorf("invalid scenario: seed file not found: %s", s.seedPath())
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML. Seed paths are resolved against the
// working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func (s *Scenario) seedPath() string {
	if filepath.IsAbs(s.Seed) || s.baseDir == "" {
		return s.Seed
	}
	return filepath.Join(s.baseDir, s.Seed)
}

// genesis returns the turn-0 events and the campaign title.
func (s *Scenario) genesis() ([]event.Event, string, error) {
	title := s.Title
	if title == "" {
		title = s.Name
	}
	if s.Seed == "" {
		events, err := toEvents(s.Genesis)
		return events, title, err
	}
	sd, err := seed.Load(s.seedPath())
	if err != nil {
		return nil, "", err
	}
	if s.Title == "" {
		title = sd.Title
	}
	return sd.Genesis(), title, nil
}

var knownStages = map[string]bool{
	string(pipeline.StageRouter):        true,
	string(pipeline.StageMeta):          true,
	string(pipeline.StageMechanic):      true,
	string(pipeline.StageEncounter):     true,
	string(pipeline.StageWorldReaction): true,
	string(pipeline.StageNarrative):     true,
	string(pipeline.StageCommit):        true,
}

// validateScenario checks that all required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Seed != "" && len(s.Genesis) > 0 {
		return fmt.Errorf("seed and genesis are mutually exclusive")
	}
	if s.Seed == "" && len(s.Genesis) == 0 {
		return fmt.Errorf("one of seed or genesis is required")
	}
	if len(s.Turns) == 0 {
		return fmt.Errorf("turns list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := toEvents(s.Genesis); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	for i, step := range s.Turns {
		for name, script := range map[string]*Script{"mechanic": step.Mechanic, "encounter": step.Encounter, "world": step.World} {
			if script == nil {
				continue
			}
			if _, err := toEvents(script.Events); err != nil {
				return fmt.Errorf("turns[%d].%s: %w", i, name, err)
			}
			if script.TimeCost < 0 {
				return fmt.Errorf("turns[%d].%s: time_cost must be non-negative", i, name)
			}
		}
		if step.Narration != nil {
			if _, err := toEvents(step.Narration.Events); err != nil {
				return fmt.Errorf("turns[%d].narration: %w", i, err)
			}
		}
		if step.Expect != nil && step.Expect.Error != "" && !knownStages[step.Expect.Error] {
			return fmt.Errorf("turns[%d].expect: unknown stage %q", i, step.Expect.Error)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Turns)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, turns int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Step < 0 || a.Step > turns {
		return fmt.Errorf("assertions[%d]: step %d out of range 1..%d", index, a.Step, turns)
	}

	switch a.Type {
	case AssertTraceContains:
		if !knownStages[a.Stage] {
			return fmt.Errorf("assertions[%d]: known stage is required for trace_contains, got %q", index, a.Stage)
		}
	case AssertTraceOrder:
		if len(a.Stages) == 0 {
			return fmt.Errorf("assertions[%d]: stages list is required for trace_order", index)
		}
	case AssertTraceCount:
		if !knownStages[a.Stage] {
			return fmt.Errorf("assertions[%d]: known stage is required for trace_count, got %q", index, a.Stage)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertCharacter:
		if a.Character == "" {
			return fmt.Errorf("assertions[%d]: character is required for character", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for character", index)
		}
	case AssertWorld:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for world", index)
		}
	case AssertVerify:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
