package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end tournament test. Participants are
// scripted: fixed choices, optional delays, optional failure modes. The
// harness runs the real engine - registry, transport, conductors,
// coordinator, ledger, archive - against them and checks the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Participants lists the scripted players in registration order.
	Participants []Participant `yaml:"participants"`

	// Conductors is how many conductor instances share the fixtures.
	// Defaults to 1.
	Conductors int `yaml:"conductors,omitempty"`

	// Unit is the time-unit all deadlines scale from. Defaults to 10ms.
	Unit Duration `yaml:"unit,omitempty"`

	// Draw is the drawn value every resolution uses, keeping outcomes a
	// pure function of the scripted choices. Defaults to 8.
	Draw int `yaml:"draw,omitempty"`

	// ReportFailures makes the archive reject that many outcome writes
	// before accepting, exercising the report retry path.
	ReportFailures int `yaml:"report_failures,omitempty"`

	// Assertions validate the final standings, outcomes, and stalls.
	Assertions []Assertion `yaml:"assertions"`

	// Golden compares the rendered final standings table against
	// testdata/golden/{name}.golden.
	Golden bool `yaml:"golden,omitempty"`
}

// Participant scripts one player.
type Participant struct {
	// Name is the player's identifier.
	Name string `yaml:"name"`

	// Choice is the parity this player always declares: "even" or "odd".
	Choice string `yaml:"choice"`

	// Behavior selects a failure mode:
	//   ""               - play normally
	//   "silent_invite"  - never acknowledge invites
	//   "silent_choice"  - acknowledge, then never answer choice requests
	//   "invalid_choice" - answer choice requests with a terminal error
	Behavior string `yaml:"behavior,omitempty"`

	// Delay pauses before every reply.
	Delay Duration `yaml:"delay,omitempty"`
}

// Duration parses YAML strings like "10ms" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Behavior constants.
const (
	BehaviorSilentInvite  = "silent_invite"
	BehaviorSilentChoice  = "silent_choice"
	BehaviorInvalidChoice = "invalid_choice"
)

// Assertion validates one aspect of the finished tournament.
type Assertion struct {
	// Type specifies the assertion:
	//   "outcome"   - an archived outcome's kind (and winner)
	//   "standings" - one participant's final table line
	//   "champions" - the exact champion set, in rank order
	//   "processed" - how many fixtures reached the ledger
	//   "stalled"   - the exact stalled fixture list
	//   "notices"   - how many error notices a participant received
	Type string `yaml:"type"`

	// Fixture is the fixture ID (outcome).
	Fixture string `yaml:"fixture,omitempty"`

	// Kind is the expected outcome kind name (outcome).
	Kind string `yaml:"kind,omitempty"`

	// Winner is the expected credited winner (outcome, optional).
	Winner string `yaml:"winner,omitempty"`

	// Participant names the table line or notice target.
	Participant string `yaml:"participant,omitempty"`

	// Expected table line (standings).
	Rank   int `yaml:"rank,omitempty"`
	Played int `yaml:"played,omitempty"`
	Wins   int `yaml:"wins,omitempty"`
	Draws  int `yaml:"draws,omitempty"`
	Losses int `yaml:"losses,omitempty"`
	Points int `yaml:"points,omitempty"`

	// Champions is the expected champion set (champions).
	Champions []string `yaml:"champions,omitempty"`

	// Count is the expected number (processed, notices).
	Count int `yaml:"count,omitempty"`

	// Fixtures is the expected stalled list (stalled).
	Fixtures []string `yaml:"fixtures,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome   = "outcome"
	AssertStandings = "standings"
	AssertChampions = "champions"
	AssertProcessed = "processed"
	AssertStalled   = "stalled"
	AssertNotices   = "notices"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected to catch typos like "assertion:" vs "assertions:".
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

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

// validateScenario checks required fields and fills defaults.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Participants) < 2 {
		return fmt.Errorf("at least 2 participants are required, got %d", len(s.Participants))
	}
	seen := make(map[string]bool, len(s.Participants))
	for i, p := range s.Participants {
		if p.Name == "" {
			return fmt.Errorf("participants[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("participants[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.Choice != "even" && p.Choice != "odd" {
			return fmt.Errorf("participants[%d]: choice must be even or odd, got %q", i, p.Choice)
		}
		switch p.Behavior {
		case "", BehaviorSilentInvite, BehaviorSilentChoice, BehaviorInvalidChoice:
		default:
			return fmt.Errorf("participants[%d]: unknown behavior %q", i, p.Behavior)
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	if s.Conductors <= 0 {
		s.Conductors = 1
	}
	if s.Unit <= 0 {
		s.Unit = Duration(10 * time.Millisecond)
	}
	if s.Draw == 0 {
		s.Draw = 8
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcome:
		if a.Fixture == "" {
			return fmt.Errorf("assertions[%d]: fixture is required for outcome", index)
		}
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for outcome", index)
		}
	case AssertStandings:
		if a.Participant == "" {
			return fmt.Errorf("assertions[%d]: participant is required for standings", index)
		}
		if a.Rank < 1 {
			return fmt.Errorf("assertions[%d]: rank is required for standings", index)
		}
	case AssertChampions:
		if len(a.Champions) == 0 {
			return fmt.Errorf("assertions[%d]: champions list is required for champions", index)
		}
	case AssertProcessed:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for processed", index)
		}
	case AssertStalled:
		// An empty fixtures list asserts nothing stalled; always valid.
	case AssertNotices:
		if a.Participant == "" {
			return fmt.Errorf("assertions[%d]: participant is required for notices", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
