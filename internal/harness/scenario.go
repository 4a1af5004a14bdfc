package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/polygene/internal/uow"
)

// Scenario defines one unit-of-work conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Types registers entity types and their supertypes.
	Types []TypeDecl `yaml:"types,omitempty"`

	// Setup entities are persisted before the flow and kept out of the trace.
	Setup []SetupEntity `yaml:"setup,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// TypeDecl declares an entity type.
type TypeDecl struct {
	Name    string   `yaml:"name"`
	Extends []string `yaml:"extends,omitempty"`
}

// SetupEntity is persisted at version 1 before the flow runs.
type SetupEntity struct {
	Type       string         `yaml:"type"`
	Ref        string         `yaml:"ref"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// Step is one operation of the flow.
type Step struct {
	Op string `yaml:"op"`

	// Unit names the unit of work the step acts on.
	Unit string `yaml:"unit,omitempty"`

	// Context names the execution context for open and current.
	Context string `yaml:"context,omitempty"`

	// Usecase overrides the usecase name on open; it defaults to Unit.
	Usecase string `yaml:"usecase,omitempty"`

	PruneOnPause bool `yaml:"prune_on_pause,omitempty"`

	Type       string         `yaml:"type,omitempty"`
	Ref        string         `yaml:"ref,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`

	// Count is the number of conflicts to inject.
	Count int `yaml:"count,omitempty"`

	// Expect is the expected error code; empty expects success.
	Expect string `yaml:"expect,omitempty"`
}

// Flow operations.
const (
	OpOpen     = "open"
	OpNew      = "new"
	OpGet      = "get"
	OpSet      = "set"
	OpRemove   = "remove"
	OpComplete = "complete"
	OpDiscard  = "discard"
	OpPause    = "pause"
	OpResume   = "resume"
	OpConflict = "conflict"
	OpCurrent  = "current"
)

// DefaultContext is the execution context used when a step names none.
const DefaultContext = "main"

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type is one of unit_state, entity, absent and store_count.
	Type string `yaml:"type"`

	Unit  string `yaml:"unit,omitempty"`
	State string `yaml:"state,omitempty"`

	Ref     string `yaml:"ref,omitempty"`
	Version *int64 `yaml:"version,omitempty"`

	// Properties is a subset match against the persisted entity.
	Properties map[string]any `yaml:"properties,omitempty"`

	// Op and Count are used by store_count.
	Op    string `yaml:"op,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertUnitState  = "unit_state"
	AssertEntity     = "entity"
	AssertAbsent     = "absent"
	AssertStoreCount = "store_count"
)

var storeOps = map[string]bool{"new": true, "load": true, "prepare": true, "commit": true, "cancel": true}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

// validateScenario checks required fields and that every step names a unit
// opened by an earlier step.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Flow) == 0 {
		return errors.New("flow list is required and must be non-empty")
	}

	for i, t := range s.Types {
		if t.Name == "" {
			return fmt.Errorf("types[%d]: name is required", i)
		}
	}
	for i, e := range s.Setup {
		if e.Type == "" || e.Ref == "" {
			return fmt.Errorf("setup[%d]: type and ref are required", i)
		}
	}

	opened := make(map[string]bool)
	for i, step := range s.Flow {
		if err := validateStep(step, opened); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, opened); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, opened map[string]bool) error {
	switch step.Op {
	case OpOpen:
		if step.Unit == "" {
			return errors.New("unit is required for open")
		}
		if opened[step.Unit] {
			return fmt.Errorf("unit %q opened twice", step.Unit)
		}
		opened[step.Unit] = true
		return nil
	case OpConflict:
		if step.Count < 1 {
			return errors.New("count must be positive for conflict")
		}
		return nil
	case OpCurrent:
		if step.Unit != "" && !opened[step.Unit] {
			return fmt.Errorf("unit %q is not opened", step.Unit)
		}
		return nil
	case OpNew, OpGet, OpSet, OpRemove, OpComplete, OpDiscard, OpPause, OpResume:
	case "":
		return errors.New("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if step.Unit == "" {
		return fmt.Errorf("unit is required for %s", step.Op)
	}
	if !opened[step.Unit] {
		return fmt.Errorf("unit %q is not opened", step.Unit)
	}
	switch step.Op {
	case OpNew:
		if step.Type == "" {
			return errors.New("type is required for new")
		}
	case OpGet:
		if step.Type == "" || step.Ref == "" {
			return errors.New("type and ref are required for get")
		}
	case OpSet:
		if step.Ref == "" || len(step.Properties) == 0 {
			return errors.New("ref and properties are required for set")
		}
	case OpRemove:
		if step.Ref == "" {
			return errors.New("ref is required for remove")
		}
	}
	return nil
}

func validateAssertion(a Assertion, opened map[string]bool) error {
	switch a.Type {
	case AssertUnitState:
		if !opened[a.Unit] {
			return fmt.Errorf("unit %q is not opened", a.Unit)
		}
		switch uow.State(a.State) {
		case uow.StateActive, uow.StateCompleted, uow.StateFailed, uow.StateDiscarded:
		default:
			return fmt.Errorf("unknown unit state %q", a.State)
		}
	case AssertEntity:
		if a.Ref == "" {
			return errors.New("ref is required for entity")
		}
	case AssertAbsent:
		if a.Ref == "" {
			return errors.New("ref is required for absent")
		}
	case AssertStoreCount:
		if !storeOps[a.Op] {
			return fmt.Errorf("unknown store op %q", a.Op)
		}
		if a.Count < 0 {
			return errors.New("count must be non-negative for store_count")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
