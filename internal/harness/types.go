package harness

import "encoding/json"

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Peer string `json:"peer"`
	Op   string `json:"op"` // "save" | "edit" | "link" | "sync"
	// Ref is the entity the step wrote, as kind:key.
	Ref string `json:"ref,omitempty"`
	// Events are the log entries the step appended locally.
	Events []string `json:"events,omitempty"`
	// Report is set for sync steps.
	Report *SyncCounts `json:"report,omitempty"`
}

// SyncCounts is the part of a sync report a scenario can observe.
type SyncCounts struct {
	Peers     int `json:"peers" yaml:"peers"`
	Applied   int `json:"applied" yaml:"applied"`
	Stale     int `json:"stale" yaml:"stale"`
	Duplicate int `json:"duplicate" yaml:"duplicate"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds each peer's entities in canonical JSON, in storage
	// order, keyed by actor.
	State map[string][]json.RawMessage `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]json.RawMessage),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace, numbering it.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
