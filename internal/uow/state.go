package uow

// State is the lifecycle position of a unit of work.
type State string

const (
	// StateActive accepts entity operations, Complete and Discard.
	StateActive State = "ACTIVE"

	// StateCompleting is held while callbacks run and stores prepare/commit.
	StateCompleting State = "COMPLETING"

	// StateCompleted is terminal: every store committed.
	StateCompleted State = "COMPLETED"

	// StateFailed follows a failed completion. The unit stays on the
	// execution context until discarded; it is never reused.
	StateFailed State = "FAILED"

	// StateDiscarded is terminal: nothing was written.
	StateDiscarded State = "DISCARDED"
)

// IsTerminal reports whether no further transition can follow, other than
// FAILED→DISCARDED.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateDiscarded
}

// Options tune a unit of work.
type Options struct {
	// PruneOnPause evicts unmodified LOADED entities from the cache when the
	// unit is paused, so a long-paused unit reloads them on resume.
	PruneOnPause bool `yaml:"prune_on_pause" json:"prune_on_pause"`
}

// Usecase names the work a unit of work performs. It is carried into errors,
// logs and metrics, and may override the factory's default options.
type Usecase struct {
	Name    string
	Options *Options
}

// DefaultUsecaseName is used when a usecase has no name.
const DefaultUsecaseName = "default"

// NewUsecase returns a usecase with the factory's default options.
func NewUsecase(name string) Usecase {
	return Usecase{Name: name}
}

// WithOptions returns a copy of u overriding the factory options.
func (u Usecase) WithOptions(opts Options) Usecase {
	u.Options = &opts
	return u
}

func (u Usecase) name() string {
	if u.Name == "" {
		return DefaultUsecaseName
	}
	return u.Name
}
