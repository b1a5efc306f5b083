package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrContractViolation marks provider output that does not satisfy its structural contract.
	ErrContractViolation = errors.New("provider contract violation")
	// ErrDuplicateTerminal is returned when an entity already carries a terminal status record.
	ErrDuplicateTerminal = errors.New("terminal status already recorded")
	// ErrInvalidTransition is returned for a (state, event) pair missing from a transition table.
	ErrInvalidTransition = errors.New("invalid state transition")
)
