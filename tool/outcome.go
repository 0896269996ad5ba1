package tool

import (
	"time"
)

// State is a step of the per-invocation state machine:
// pending -> validating -> executing -> succeeded | failed.
type State string

const (
	StatePending    State = "pending"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ArtifactKind classifies something a tool produced.
type ArtifactKind string

const (
	ArtifactFile    ArtifactKind = "file"
	ArtifactGrid    ArtifactKind = "grid"
	ArtifactDataset ArtifactKind = "dataset"
	ArtifactValue   ArtifactKind = "value"
)

// Artifact is a file path, an in-memory handle reference, or a parsed value.
type Artifact struct {
	Kind  ArtifactKind `json:"kind"`
	Name  string       `json:"name"`
	Path  string       `json:"path,omitempty"`
	Ref   string       `json:"ref,omitempty"`
	Value any          `json:"value,omitempty"`
}

// Result is what a strategy produces on success.
type Result struct {
	Artifacts []Artifact
	Messages  []string
}

// Outcome is the structured result of one invocation.
type Outcome struct {
	InvocationID string            `json:"invocation_id"`
	ToolID       string            `json:"tool_id"`
	State        State             `json:"state"`
	Artifacts    []Artifact        `json:"artifacts,omitempty"`
	Messages     []string          `json:"messages,omitempty"`
	Reason       ErrorKind         `json:"reason,omitempty"`
	Detail       string            `json:"detail,omitempty"`
	ParamErrors  map[string]string `json:"param_errors,omitempty"`
	Duration     time.Duration     `json:"duration_ns"`
}

// Succeeded reports whether the invocation finished without failure.
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Rejected reports whether the invocation failed before execution because of
// its parameters, so the user can correct them and retry.
func (o Outcome) Rejected() bool {
	switch o.Reason {
	case KindMissingParameter, KindValidation:
		return true
	case KindNotFound:
		return len(o.ParamErrors) > 0
	default:
		return false
	}
}

// Artifact returns the first artifact named name.
func (o Outcome) Artifact(name string) (Artifact, bool) {
	for _, a := range o.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}
