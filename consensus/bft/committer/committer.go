// Package committer applies commit decisions. Once the commit rule marks
// blocks as final, the committer makes them durable: ledger write, execution
// state commit, safety state update, tree pruning and notifications, in
// strict round order.
package committer

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/module"
	"github.com/nimbuschain/nimbus-go/storage"
)

// Committer finalizes blocks handed over by the block tree's commit rule.
// Commits are irreversible, so any inconsistency between the incoming chain
// segment and the already committed prefix is a fatal error: the node halts
// rather than diverge.
//
// Not safe for concurrent use; driven by the event loop only.
type Committer struct {
	log         zerolog.Logger
	blocks      storage.Blocks
	execution   module.ExecutionEngine
	safetyRules bft.SafetyRules
	blockTree   bft.BlockTree
	notifier    bft.Consumer
}

func New(
	log zerolog.Logger,
	blocks storage.Blocks,
	execution module.ExecutionEngine,
	safetyRules bft.SafetyRules,
	blockTree bft.BlockTree,
	notifier bft.Consumer,
) *Committer {
	return &Committer{
		log:         log.With().Str("component", "committer").Logger(),
		blocks:      blocks,
		execution:   execution,
		safetyRules: safetyRules,
		blockTree:   blockTree,
		notifier:    notifier,
	}
}

// CommitChain finalizes the given blocks, which must form a contiguous chain
// segment in ascending round order extending the committed prefix. After the
// last block is durable, the block tree is pruned to it.
//
// All errors are fatal: a half-applied commit means the node must stop.
func (c *Committer) CommitChain(committed []*model.CommittedBlock) error {
	if len(committed) == 0 {
		return nil
	}

	lastCommittedID := c.blockTree.CommittedBlockID()
	lastCommittedRound := c.blockTree.CommittedRound()
	for _, next := range committed {
		block := next.Block
		if block.Round <= lastCommittedRound {
			return fmt.Errorf("commit for round %d at or below committed round %d", block.Round, lastCommittedRound)
		}
		// each committed block must extend the previously committed one; a
		// gap here means the commit rule and the tree disagree
		if block.QC != nil && block.QC.BlockID != lastCommittedID {
			return fmt.Errorf("commit chain broken: block %v at round %d extends %v, expected %v",
				block.BlockID, block.Round, block.QC.BlockID, lastCommittedID)
		}

		err := c.blocks.Store(next)
		if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("could not store committed block %v: %w", block.BlockID, err)
		}
		err = c.execution.Commit(block.BlockID, next.StateCommitment)
		if err != nil {
			return fmt.Errorf("could not commit execution state for block %v: %w", block.BlockID, err)
		}
		err = c.safetyRules.CommitRound(block.Round)
		if err != nil {
			return fmt.Errorf("could not record committed round %d: %w", block.Round, err)
		}

		c.log.Info().
			Uint64("round", block.Round).
			Hex("block_id", block.BlockID[:]).
			Hex("state_commitment", next.StateCommitment[:]).
			Msg("block committed")
		c.notifier.OnBlockCommitted(next)

		lastCommittedID = block.BlockID
		lastCommittedRound = block.Round
	}

	err := c.blockTree.Prune(lastCommittedID)
	if err != nil {
		return fmt.Errorf("could not prune block tree to %v: %w", lastCommittedID, err)
	}
	return nil
}
