package api

import (
	"github.com/go-sif/dataflow/errors"
)

// NodeState is the lifecycle stage of an operator on one worker
type NodeState int

const (
	// StateCreated nodes have opened their Channel, but have not yet received records
	StateCreated NodeState = iota
	// StatePreOp nodes are receiving records from their parent
	StatePreOp
	// StateMainOp nodes have shuffled, sorted and merged their records
	StateMainOp
	// StatePushData nodes have pushed their results downstream at least once
	StatePushData
	// StateDisposed nodes have released their storage
	StateDisposed
	// StateFailed nodes could not complete Execute, and hold no usable results
	StateFailed
)

func (s NodeState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StatePreOp:
		return "PreOp"
	case StateMainOp:
		return "MainOp"
	case StatePushData:
		return "PushData"
	case StateDisposed:
		return "Disposed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// transition moves a node to next if op is permitted in its current state
func transition(current *NodeState, next NodeState, op string, allowed ...NodeState) error {
	for _, s := range allowed {
		if *current == s {
			*current = next
			return nil
		}
	}
	return errors.InvalidStateError{Operation: op, State: current.String()}
}
