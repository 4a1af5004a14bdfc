package concern

import (
	"fmt"
	"time"

	"github.com/roach88/polygene/internal/uow"
)

// Propagation decides which unit of work an operation runs in.
type Propagation string

const (
	// PropagationRequired reuses the current unit of work, or opens, completes
	// and retries one when there is none (default).
	PropagationRequired Propagation = "required"

	// PropagationMandatory runs in the current unit of work and fails with
	// ILLEGAL_STATE when there is none.
	PropagationMandatory Propagation = "mandatory"

	// PropagationRequiresNew always opens a nested unit of work on top of the
	// current one, then completes and retries it.
	PropagationRequiresNew Propagation = "requires_new"
)

// ValidatePropagation checks if mode is a valid propagation mode.
// Empty is valid and defaults to required.
func ValidatePropagation(mode string) error {
	switch Propagation(mode) {
	case PropagationRequired, PropagationMandatory, PropagationRequiresNew, "":
		return nil
	default:
		return fmt.Errorf("invalid propagation %q: must be required, mandatory, or requires_new", mode)
	}
}

// Retry bounds the re-runs after a concurrent modification.
type Retry struct {
	// MaxRetries is the number of re-runs after the first attempt.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// InitialDelay is slept before the first re-run.
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// Backoff is added to the delay for every further re-run.
	Backoff time.Duration `yaml:"backoff" json:"backoff"`
}

// Delay returns the pause before re-run attempt (0-based).
func (r Retry) Delay(attempt int) time.Duration {
	return r.InitialDelay + time.Duration(attempt)*r.Backoff
}

// ErrorMatcher selects errors.
type ErrorMatcher func(error) bool

// Policy configures Run.
type Policy struct {
	Usecase     uow.Usecase
	Propagation Propagation
	Retry       Retry

	// DiscardOn selects the operation errors after which the unit of work
	// opened by Run is discarded. Empty matches every error. A unit left
	// open stays current; the caller must complete or discard it.
	DiscardOn []ErrorMatcher

	// Sleep waits between attempts (default SleepContext).
	Sleep Sleeper
}

// DefaultPolicy returns a required-propagation policy for usecase with no
// retries.
func DefaultPolicy(usecase string) Policy {
	return Policy{
		Usecase:     uow.NewUsecase(usecase),
		Propagation: PropagationRequired,
	}
}

// Validate checks the propagation mode and retry bounds.
func (p Policy) Validate() error {
	if err := ValidatePropagation(string(p.Propagation)); err != nil {
		return err
	}
	if p.Retry.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries %d: must not be negative", p.Retry.MaxRetries)
	}
	if p.Retry.InitialDelay < 0 || p.Retry.Backoff < 0 {
		return fmt.Errorf("invalid retry delay: must not be negative")
	}
	return nil
}

// Normalize returns p with an empty propagation defaulted to required.
func (p Policy) Normalize() Policy {
	if p.Propagation == "" {
		p.Propagation = PropagationRequired
	}
	return p
}

func (p Policy) discards(err error) bool {
	if len(p.DiscardOn) == 0 {
		return true
	}
	for _, match := range p.DiscardOn {
		if match(err) {
			return true
		}
	}
	return false
}
