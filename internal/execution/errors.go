package execution

import "errors"

// Scheduler errors.
var (
	// ErrSliceQuantityOverflow means a slicing plan's quantities did not
	// sum exactly to the parent total. This is an assertion failure, not
	// a recoverable condition; the plan is discarded.
	ErrSliceQuantityOverflow = errors.New("slice quantities do not sum to parent total")

	// ErrUnknownParent is returned for operations on an unsubmitted order id.
	ErrUnknownParent = errors.New("unknown parent order")

	// ErrParentTerminal is returned when acting on a completed or
	// cancelled parent.
	ErrParentTerminal = errors.New("parent order already terminal")

	// ErrInvalidParams is returned when algorithm parameters are unusable.
	ErrInvalidParams = errors.New("invalid algorithm parameters")
)
