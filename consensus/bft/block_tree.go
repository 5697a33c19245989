package bft

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// BlockTree is the in-memory DAG of speculative blocks rooted at the last
// committed block. It tracks, per block, the certifying QC (once one is
// known) and the state commitment from speculative execution. The tree may
// hold multiple competing branches per round; certificates resolve the fork.
//
// Not safe for concurrent use; all mutations are serialized by the event loop.
type BlockTree interface {
	// AddBlock inserts the block with its speculative execution result.
	// The block's embedded QC certifies the parent and is incorporated as
	// the parent's certifying QC. Adding the same block twice is a no-op.
	// Expected errors during normal operation:
	//  - model.MissingParentError if the parent is not in the tree
	//  - model.InvalidQCError if the embedded QC does not match the parent's
	//    identity or round, or the block's round is not above the QC's
	// Blocks below the committed root are ignored without error.
	AddBlock(block *model.Block, stateCommitment nimbus.StateCommitment) error

	// AddQC incorporates a certificate for a block already in the tree and
	// runs the commit rule. It returns the blocks that became committed as
	// a consequence, in ascending round order, each paired with its state
	// commitment and certifying QC; the slice is empty if nothing committed.
	// Expected errors during normal operation:
	//  - model.MissingBlockError (as MissingParentError) is avoided by
	//    callers only passing QCs for known blocks; a QC for a pruned block
	//    is ignored without error.
	// A QC conflicting with a different QC for the same round is proof of a
	// Byzantine supermajority and yields model.ByzantineThresholdExceededError.
	AddQC(qc *nimbus.QuorumCertificate) ([]*model.CommittedBlock, error)

	// GetBlock returns the block with the given id, if it is in the tree.
	GetBlock(blockID nimbus.Identifier) (*model.Block, bool)

	// GetStateCommitment returns the speculative execution result of the
	// block with the given id, if it is in the tree.
	GetStateCommitment(blockID nimbus.Identifier) (nimbus.StateCommitment, bool)

	// GetBlocksForRound returns all blocks proposed for the given round.
	GetBlocksForRound(round uint64) []*model.Block

	// PathFromRoot returns the blocks on the path from the committed root
	// (exclusive) to the given block (inclusive), in ascending round order.
	PathFromRoot(blockID nimbus.Identifier) ([]*model.Block, error)

	// Prune makes the given block the new root and discards every block not
	// on the path from it. The new root must carry a QC (a known-committed
	// block is a safe pruning point). Pruned ids become irrecoverable.
	Prune(newRootID nimbus.Identifier) error

	// Reanchor re-roots the tree at a committed block obtained outside of
	// consensus, typically from state sync. The new root must carry its
	// certifying QC and must not be below the current root's round. If the
	// block is already in the tree this is equivalent to Prune; otherwise
	// all current blocks are discarded and the tree restarts at the new
	// root, as if freshly constructed over it.
	Reanchor(root *model.CommittedBlock) error

	// CommittedRound returns the round of the current root.
	CommittedRound() uint64

	// CommittedBlockID returns the identifier of the current root.
	CommittedBlockID() nimbus.Identifier

	// NewestQC returns the QC with the highest round incorporated so far.
	NewestQC() *nimbus.QuorumCertificate
}
