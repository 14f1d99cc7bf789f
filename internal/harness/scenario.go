package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crate/internal/entity"
)

// Scenario is a replication test case loaded from YAML.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Peers are the replicas taking part, in order.
	Peers []PeerSpec `yaml:"peers"`

	// Flow is the sequence of steps to run.
	Flow []FlowStep `yaml:"flow"`

	// Assertions are checked after the flow completes.
	Assertions []Assertion `yaml:"assertions"`
}

// PeerSpec configures one replica.
type PeerSpec struct {
	Actor string `yaml:"actor"`
	// Skew moves the peer's wall clock ahead of the others.
	Skew time.Duration `yaml:"skew,omitempty"`
}

// FlowStep is one action taken by one peer. Exactly one of Save, Edit,
// Link and Sync is set.
type FlowStep struct {
	Peer string    `yaml:"peer"`
	Save *SaveStep `yaml:"save,omitempty"`
	Edit *EditStep `yaml:"edit,omitempty"`
	Link *LinkStep `yaml:"link,omitempty"`
	Sync bool      `yaml:"sync,omitempty"`

	// Expect checks the report of a sync step. Unset counts are not
	// checked.
	Expect *SyncExpect `yaml:"expect,omitempty"`
}

// SaveStep saves an entity through the peer's library.
type SaveStep struct {
	Kind   string         `yaml:"kind"`
	As     string         `yaml:"as"`
	Entity map[string]any `yaml:"entity"`
}

// EditStep overwrites one field. A missing value clears the field.
type EditStep struct {
	Ref   string `yaml:"ref"`
	Field string `yaml:"field"`
	Value any    `yaml:"value,omitempty"`
}

// LinkStep records a relationship.
type LinkStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SyncExpect lists expected sync report counts.
type SyncExpect struct {
	Peers     *int `yaml:"peers,omitempty"`
	Applied   *int `yaml:"applied,omitempty"`
	Stale     *int `yaml:"stale,omitempty"`
	Duplicate *int `yaml:"duplicate,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "converged": every peer holds the same state
	// - "field": Ref's Field has Value (absent when Value is unset)
	// - "count": Peer stores Count entities of Kind
	// - "linked": Peer stores a relationship From -> To
	// - "log_length": Peer's log has Count events
	Type string `yaml:"type"`

	// Peer restricts the assertion to one replica. Empty means all.
	Peer string `yaml:"peer,omitempty"`

	Ref   string `yaml:"ref,omitempty"`
	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	Kind  string `yaml:"kind,omitempty"`
	Count int    `yaml:"count,omitempty"`

	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged = "converged"
	AssertField     = "field"
	AssertCount     = "count"
	AssertLinked    = "linked"
	AssertLogLength = "log_length"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
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

// validateScenario checks that required fields are present and that every
// peer and alias a step names exists by the time it is used.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Peers) == 0 {
		return fmt.Errorf("peers list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	peers := make(map[string]bool, len(s.Peers))
	for i, p := range s.Peers {
		if p.Actor == "" {
			return fmt.Errorf("peers[%d]: actor is required", i)
		}
		if peers[p.Actor] {
			return fmt.Errorf("peers[%d]: duplicate actor %q", i, p.Actor)
		}
		peers[p.Actor] = true
	}

	aliases := make(map[string]bool)
	for i, step := range s.Flow {
		if err := validateStep(step, peers, aliases); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, peers, aliases); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step FlowStep, peers, aliases map[string]bool) error {
	if !peers[step.Peer] {
		return fmt.Errorf("unknown peer %q", step.Peer)
	}

	actions := 0
	for _, set := range []bool{step.Save != nil, step.Edit != nil, step.Link != nil, step.Sync} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("exactly one of save, edit, link or sync is required")
	}
	if step.Expect != nil && !step.Sync {
		return fmt.Errorf("expect is only valid on sync steps")
	}

	switch {
	case step.Save != nil:
		if _, err := entity.ParseKind(step.Save.Kind); err != nil {
			return err
		}
		if step.Save.As == "" {
			return fmt.Errorf("save: as is required")
		}
		if step.Save.Entity == nil {
			return fmt.Errorf("save: entity is required")
		}
		aliases[step.Save.As] = true
	case step.Edit != nil:
		if !aliases[step.Edit.Ref] {
			return fmt.Errorf("edit: unknown ref %q", step.Edit.Ref)
		}
		if step.Edit.Field == "" {
			return fmt.Errorf("edit: field is required")
		}
	case step.Link != nil:
		for _, ref := range []string{step.Link.From, step.Link.To} {
			if !aliases[ref] {
				return fmt.Errorf("link: unknown ref %q", ref)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(a Assertion, peers, aliases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("type is required")
	}
	if a.Peer != "" && !peers[a.Peer] {
		return fmt.Errorf("unknown peer %q", a.Peer)
	}

	switch a.Type {
	case AssertConverged:
		if a.Peer != "" {
			return fmt.Errorf("converged takes no peer")
		}
	case AssertField:
		if !aliases[a.Ref] {
			return fmt.Errorf("unknown ref %q for field", a.Ref)
		}
		if a.Field == "" {
			return fmt.Errorf("field is required for field")
		}
	case AssertCount:
		if _, err := entity.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("count: %w", err)
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for count")
		}
	case AssertLinked:
		if !aliases[a.From] || !aliases[a.To] {
			return fmt.Errorf("linked needs known from and to refs")
		}
	case AssertLogLength:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for log_length")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
