// Package storage defines the interfaces to the durable stores consumed by
// the consensus engine, together with the sentinel errors they return.
// Implementations live in the badger subpackage.
package storage

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Blocks is the durable ledger of committed blocks. Writes happen only
// through the commit rule; the store enforces nothing about commit ordering
// itself, it provides the atomic persistence primitive the committer builds on.
type Blocks interface {
	// Store persists the committed block together with its execution state
	// commitment and the round index, in one atomic transaction.
	// Returns storage.ErrAlreadyExists if the block was stored before.
	Store(block *model.CommittedBlock) error

	// ByID retrieves the committed block with the given identifier.
	// Returns storage.ErrNotFound if no such block was committed.
	ByID(blockID nimbus.Identifier) (*model.CommittedBlock, error)

	// ByRound retrieves the committed block for the given round.
	// Returns storage.ErrNotFound if no block was committed at that round.
	ByRound(round uint64) (*model.CommittedBlock, error)

	// BoundaryRound returns the round of the last committed block.
	// Returns storage.ErrNotFound on a fresh database.
	BoundaryRound() (uint64, error)
}
