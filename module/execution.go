package module

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// ExecutionEngine applies block payloads to the execution state. It is an
// external collaborator: consensus drives it but never interprets
// transaction semantics.
type ExecutionEngine interface {
	// SpeculativelyExecute applies the block's transactions on top of the
	// parent's state and returns the resulting state commitment. The result
	// is tentative: nothing becomes durable until Commit. An execution error
	// means this validator cannot vote for the block; it does not affect
	// other branches.
	SpeculativelyExecute(block *model.Block, payload *nimbus.Payload, parentState nimbus.StateCommitment) (nimbus.StateCommitment, error)

	// Commit makes the speculative result for the given block durable.
	// Called only by the commit rule path, in strict round order. Any error
	// is fatal for consensus participation.
	Commit(blockID nimbus.Identifier, state nimbus.StateCommitment) error
}
