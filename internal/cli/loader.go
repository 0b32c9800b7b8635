package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Config is a tournament definition decoded from CUE.
type Config struct {
	Participants []string
	Conductors   int
	Capacity     int
	// Unit is the time-unit every timeout and delay is expressed in.
	Unit     time.Duration
	Timeouts TimeoutConfig
	Retry    RetryConfig
}

// TimeoutConfig holds per-phase deadlines in time-units.
type TimeoutConfig struct {
	Ack      int `json:"ack"`
	Decision int `json:"decision"`
	Request  int `json:"request"`
}

// RetryConfig holds the retry/backoff policy in time-units.
type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts"`
	BaseDelay   int     `json:"base_delay"`
	MaxDelay    int     `json:"max_delay"`
	Multiplier  float64 `json:"multiplier"`
}

// rawConfig mirrors the CUE shape before validation.
type rawConfig struct {
	Participants []string      `json:"participants"`
	Conductors   int           `json:"conductors"`
	Capacity     int           `json:"capacity"`
	Unit         string        `json:"unit"`
	Timeouts     TimeoutConfig `json:"timeouts"`
	Retry        RetryConfig   `json:"retry"`
}

// LoadError represents an error that occurred during config loading.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Config validation errors
	ErrCodeParticipants = "E101" // Too few or duplicate participants
	ErrCodeConductors   = "E102" // No conductors
	ErrCodeUnit         = "E103" // Unparseable time-unit
	ErrCodePolicy       = "E104" // Invalid timeout/retry values
)

// LoadConfig loads and validates a tournament definition from a CUE
// file or a directory of CUE files. Missing optional fields fall back
// to the standard policy: capacity 4, unit 1s, ack 5, decision 30,
// request 10, three attempts backing off 2 units doubling up to 10.
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config: %v", err)}
	}

	// Package "_" selects CUE files without a package clause, which
	// would otherwise be excluded when loading a directory.
	cfg := &load.Config{Package: "_"}
	args := []string{path}
	if info.IsDir() {
		cfg.Dir = path
		args = []string{"."}
	} else {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	tournamentVal := value.LookupPath(cue.ParsePath("tournament"))
	if !tournamentVal.Exists() {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: "no tournament definition found"}
	}

	var raw rawConfig
	if err := tournamentVal.Decode(&raw); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("decoding tournament: %v", err)}
	}

	return validateConfig(raw)
}

func validateConfig(raw rawConfig) (*Config, error) {
	if len(raw.Participants) < 2 {
		return nil, &LoadError{Code: ErrCodeParticipants,
			Message: fmt.Sprintf("need at least 2 participants, got %d", len(raw.Participants))}
	}
	seen := make(map[string]bool, len(raw.Participants))
	for _, p := range raw.Participants {
		if p == "" {
			return nil, &LoadError{Code: ErrCodeParticipants, Message: "empty participant name"}
		}
		if seen[p] {
			return nil, &LoadError{Code: ErrCodeParticipants,
				Message: fmt.Sprintf("duplicate participant %q", p)}
		}
		seen[p] = true
	}
	if raw.Conductors < 1 {
		return nil, &LoadError{Code: ErrCodeConductors,
			Message: fmt.Sprintf("need at least 1 conductor, got %d", raw.Conductors)}
	}

	unit := time.Second
	if raw.Unit != "" {
		parsed, err := time.ParseDuration(raw.Unit)
		if err != nil || parsed <= 0 {
			return nil, &LoadError{Code: ErrCodeUnit,
				Message: fmt.Sprintf("invalid time-unit %q", raw.Unit)}
		}
		unit = parsed
	}

	c := &Config{
		Participants: raw.Participants,
		Conductors:   raw.Conductors,
		Capacity:     raw.Capacity,
		Unit:         unit,
		Timeouts:     raw.Timeouts,
		Retry:        raw.Retry,
	}
	if c.Capacity <= 0 {
		c.Capacity = 4
	}
	if c.Timeouts.Ack <= 0 {
		c.Timeouts.Ack = 5
	}
	if c.Timeouts.Decision <= 0 {
		c.Timeouts.Decision = 30
	}
	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = 10
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 2
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 10
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.Timeouts.Decision < c.Timeouts.Ack {
		return nil, &LoadError{Code: ErrCodePolicy,
			Message: "decision timeout shorter than ack timeout"}
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return nil, &LoadError{Code: ErrCodePolicy,
			Message: "max delay shorter than base delay"}
	}

	return c, nil
}
