package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnboundSchema is returned when a measurement set is mutated before a schema is bound.
	ErrUnboundSchema = errors.New("domain: measurement set has no schema bound")
	// ErrNoWeightCandidate is returned when a weight value must be stored but the
	// active schema declares no weight-bearing parameter.
	ErrNoWeightCandidate = errors.New("domain: no weight candidate parameter")
	// ErrWeightProvenance is returned when a weight is flagged both estimated and calculated.
	ErrWeightProvenance = errors.New("domain: weight cannot be both estimated and calculated")
	// ErrRatioOutOfRange is returned when a sampling ratio falls outside its allowed range.
	ErrRatioOutOfRange = errors.New("domain: sampling ratio out of range")
)

// UnknownParameterError reports a measurement key absent from the active schema.
type UnknownParameterError struct {
	ID ParameterID
}

func (e UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter %d", e.ID)
}

// InvalidValueError reports a raw value that cannot be coerced to the declared parameter type.
type InvalidValueError struct {
	ParameterID ParameterID
	Raw         string
	Err         error
}

func (e InvalidValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid value %q for parameter %d: %v", e.Raw, e.ParameterID, e.Err)
	}
	return fmt.Sprintf("invalid value %q for parameter %d", e.Raw, e.ParameterID)
}

func (e InvalidValueError) Unwrap() error { return e.Err }

// DuplicateParameterError is returned when a schema declares the same parameter twice.
type DuplicateParameterError struct {
	ID ParameterID
}

func (e DuplicateParameterError) Error() string {
	return fmt.Sprintf("parameter %d declared more than once", e.ID)
}

// OrphanChildError is returned when a flattened child cannot be attached to any parent.
type OrphanChildError struct {
	Label string
}

func (e OrphanChildError) Error() string {
	return fmt.Sprintf("child %q matches no parent", e.Label)
}

// AmbiguousMatchError flags a reconciliation where several persisted nodes were
// structurally equal to one fresh node. The first candidate is used.
type AmbiguousMatchError struct {
	Label      string
	Chosen     NodeID
	Candidates []NodeID
}

func (e AmbiguousMatchError) Error() string {
	ids := make([]string, 0, len(e.Candidates))
	for _, id := range e.Candidates {
		ids = append(ids, fmt.Sprint(id))
	}
	return fmt.Sprintf("node %q matched %d persisted nodes [%s], kept %d", e.Label, len(e.Candidates), strings.Join(ids, ","), e.Chosen)
}

// InvalidTransitionError reports an illegal node lifecycle move.
type InvalidTransitionError struct {
	Label string
	From  NodeState
	To    NodeState
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("node %q cannot move from %s to %s", e.Label, e.From, e.To)
}
