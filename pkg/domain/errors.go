package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCheckpointNotFound is returned when a run ID cannot be found in the store.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrNotSuspended is returned when resuming a checkpoint that is not suspended.
var ErrNotSuspended = errors.New("run is not suspended")

// ErrRunFailed is returned when resuming a run that previously failed.
var ErrRunFailed = errors.New("run has failed")

// DefinitionError reports an invalid graph definition detected at compile time.
type DefinitionError struct {
	Problems []string
}

func (e *DefinitionError) Error() string {
	return "invalid graph definition: " + strings.Join(e.Problems, "; ")
}

// DuplicateNodeError is returned when a node ID is registered twice.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q already registered", e.NodeID)
}

// ReducerMismatchError is returned when an update value cannot be combined by the field reducer.
type ReducerMismatchError struct {
	Field   string
	Reducer string
	Value   any
	Reason  string
}

func (e *ReducerMismatchError) Error() string {
	return fmt.Sprintf("reducer %s cannot merge field %q with %T: %s", e.Reducer, e.Field, e.Value, e.Reason)
}

// InvalidRoutingTargetError is returned when a router selects a node outside its candidate set.
type InvalidRoutingTargetError struct {
	From       string
	Target     string
	Candidates []string
}

func (e *InvalidRoutingTargetError) Error() string {
	return fmt.Sprintf("router of %q selected %q, expected one of [%s]", e.From, e.Target, strings.Join(e.Candidates, ", "))
}

// NodeExecutionError wraps a failure (error or panic) raised inside a node.
type NodeExecutionError struct {
	NodeID string
	Cause  error
	Panic  bool
}

func (e *NodeExecutionError) Error() string {
	if e.Panic {
		return fmt.Sprintf("node %q panicked: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("node %q failed: %v", e.NodeID, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

// ToolNotFoundError is reported when a model requests an unregistered tool.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// ToolExecutionError wraps a failure raised by a tool.
type ToolExecutionError struct {
	Name  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Name, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// RecursionLimitError is returned when a run exceeds its step budget.
// The trace of the run so far is attached for diagnosis.
type RecursionLimitError struct {
	Limit int
	Trace Trace
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("recursion limit of %d steps exceeded", e.Limit)
}
