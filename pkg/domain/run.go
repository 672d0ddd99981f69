package domain

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	StatusReady      RunStatus = "ready"
	StatusRunning    RunStatus = "running"
	StatusSuspended  RunStatus = "suspended"
	StatusTerminated RunStatus = "terminated"
	StatusFailed     RunStatus = "failed"
)

// IsFinal reports whether no further execution is possible.
func (s RunStatus) IsFinal() bool {
	return s == StatusTerminated || s == StatusFailed
}

// Checkpoint is the persisted snapshot of a run.
// It holds everything needed to re-enter the scheduler.
type Checkpoint struct {
	RunID   string    `json:"run_id"`
	GraphID string    `json:"graph_id"`
	Status  RunStatus `json:"status"`
	Step    int       `json:"step"`
	// Frontier lists the nodes to execute in the current super-step.
	Frontier []string `json:"frontier"`
	// Completed lists frontier nodes that already ran in the suspended step.
	Completed []string `json:"completed,omitempty"`
	// Interrupted lists frontier nodes that requested suspension.
	Interrupted []string `json:"interrupted,omitempty"`
	// Held lists the interrupted nodes stopped by an interrupt-before gate.
	// They have not run yet, so they are not re-entered as resuming.
	Held []string `json:"held,omitempty"`
	// Payloads holds the values passed to Interrupt, keyed by node ID.
	Payloads map[string]any `json:"payloads,omitempty"`
	// Redirects maps failed nodes of the current step to their error handler.
	Redirects map[string]string `json:"redirects,omitempty"`
	State     State          `json:"state"`
	// Trace accumulates every node invocation of the run, across resumes.
	Trace     Trace          `json:"trace,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a copy safe to hand to another goroutine or store.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Frontier = append([]string(nil), c.Frontier...)
	out.Completed = append([]string(nil), c.Completed...)
	out.Interrupted = append([]string(nil), c.Interrupted...)
	out.Held = append([]string(nil), c.Held...)
	if c.Payloads != nil {
		out.Payloads = make(map[string]any, len(c.Payloads))
		for k, v := range c.Payloads {
			out.Payloads[k] = v
		}
	}
	if c.Redirects != nil {
		out.Redirects = make(map[string]string, len(c.Redirects))
		for k, v := range c.Redirects {
			out.Redirects[k] = v
		}
	}
	out.State = c.State.Clone()
	out.Trace = append(Trace(nil), c.Trace...)
	return &out
}

// TraceEntry records one node invocation.
type TraceEntry struct {
	Step      int           `json:"step"`
	NodeID    string        `json:"node_id"`
	Diff      *StateDiff    `json:"diff,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Trace is the ordered log of node invocations of one execution.
type Trace []TraceEntry

// Visits counts how many times nodeID was invoked.
func (t Trace) Visits(nodeID string) int {
	n := 0
	for _, e := range t {
		if e.NodeID == nodeID {
			n++
		}
	}
	return n
}

// Path returns the visited node IDs in order.
func (t Trace) Path() []string {
	out := make([]string, len(t))
	for i, e := range t {
		out[i] = e.NodeID
	}
	return out
}

// Result is what a run, resume or failure hands back to the caller.
type Result struct {
	RunID      string      `json:"run_id"`
	Status     RunStatus   `json:"status"`
	State      State       `json:"state"`
	Trace      Trace       `json:"trace"`
	Steps      int         `json:"steps"`
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`
}

// Suspended reports whether the run is waiting for external input.
func (r *Result) Suspended() bool {
	return r != nil && r.Status == StatusSuspended
}
