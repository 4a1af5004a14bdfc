package harness

// TraceEvent is one entry of a scenario trace: either a flow step or a store
// call the step caused.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Kind string `json:"kind"` // "step" or "store"
	Op   string `json:"op"`

	// Unit and Ref are set on steps.
	Unit string `json:"unit,omitempty"`
	Ref  string `json:"ref,omitempty"`

	// Refs, New, Loaded and Removed are set on store calls.
	Refs    []string `json:"refs,omitempty"`
	New     []string `json:"new,omitempty"`
	Loaded  []string `json:"loaded,omitempty"`
	Removed []string `json:"removed,omitempty"`

	// Outcome is "ok" or an error code.
	Outcome string `json:"outcome"`
}

// Trace event kinds.
const (
	KindStep  = "step"
	KindStore = "store"
)

// OutcomeOK marks a step or store call that returned no error.
const OutcomeOK = "ok"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step met its expectation and every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors describes each failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
