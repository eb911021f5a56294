/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package policy

import "github.com/yiiyama/ddm/inventory"

// Verb is the kind of decision a policy line or the default decision
// produces for a dataset replica (or a subset of its block replicas).
type Verb int

const (
	Keep Verb = iota
	Protect
	Dismiss
	Delete
	ProtectBlock
	DeleteBlock
)

func (v Verb) String() string {
	switch v {
	case Keep:
		return "Keep"
	case Protect:
		return "Protect"
	case Dismiss:
		return "Dismiss"
	case Delete:
		return "Delete"
	case ProtectBlock:
		return "ProtectBlock"
	case DeleteBlock:
		return "DeleteBlock"
	default:
		return "Unknown"
	}
}

// isBlockVerb reports whether v names a block-scoped action.
func (v Verb) isBlockVerb() bool {
	return v == ProtectBlock || v == DeleteBlock
}

// datasetLevel returns the dataset-scoped verb a block-scoped verb
// collapses to when its condition matched every block replica of the
// dataset replica.
func (v Verb) datasetLevel() Verb {
	switch v {
	case ProtectBlock:
		return Protect
	case DeleteBlock:
		return Delete
	default:
		return v
	}
}

// Decision is the outcome of evaluating a policy line against one
// DatasetReplica: the verb to apply, the line whose condition produced
// it (0 meaning "no line matched, default decision"), and, for a
// surviving block-scoped verb, the subset of block replicas it covers.
type Decision struct {
	Replica       *inventory.DatasetReplica
	Verb          Verb
	ConditionID   int
	BlockReplicas []*inventory.BlockReplica
}
