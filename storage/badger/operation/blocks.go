package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// InsertBlock inserts a committed block keyed by block ID.
// Returns storage.ErrAlreadyExists if the block was stored before.
func InsertBlock(block *model.Block) func(*badger.Txn) error {
	return insert(makePrefix(codeBlock, block.BlockID), block)
}

// RetrieveBlock retrieves a committed block by block ID.
// Returns storage.ErrNotFound if no such block was committed.
func RetrieveBlock(blockID nimbus.Identifier, block *model.Block) func(*badger.Txn) error {
	return retrieve(makePrefix(codeBlock, blockID), block)
}

// IndexBlockRound indexes the committed block ID by its round. Committed
// rounds form a contiguous sequence, so the index doubles as the commit log.
func IndexBlockRound(round uint64, blockID nimbus.Identifier) func(*badger.Txn) error {
	return insert(makePrefix(codeIndexRound, round), blockID)
}

// LookupBlockRound retrieves the committed block ID for the given round.
func LookupBlockRound(round uint64, blockID *nimbus.Identifier) func(*badger.Txn) error {
	return retrieve(makePrefix(codeIndexRound, round), blockID)
}

// InsertBoundary inserts the round of the last committed block.
func InsertBoundary(round uint64) func(*badger.Txn) error {
	return insert(makePrefix(codeBoundary), round)
}

// UpdateBoundary updates the round of the last committed block.
func UpdateBoundary(round uint64) func(*badger.Txn) error {
	return update(makePrefix(codeBoundary), round)
}

// RetrieveBoundary retrieves the round of the last committed block.
func RetrieveBoundary(round *uint64) func(*badger.Txn) error {
	return retrieve(makePrefix(codeBoundary), round)
}

// IndexStateCommitment indexes the execution state commitment by block ID.
func IndexStateCommitment(blockID nimbus.Identifier, commit nimbus.StateCommitment) func(*badger.Txn) error {
	return insert(makePrefix(codeStateCommit, blockID), commit)
}

// LookupStateCommitment retrieves the execution state commitment by block ID.
func LookupStateCommitment(blockID nimbus.Identifier, commit *nimbus.StateCommitment) func(*badger.Txn) error {
	return retrieve(makePrefix(codeStateCommit, blockID), commit)
}

// InsertQuorumCertificate inserts the QC that committed a block, keyed by the
// certified block ID.
func InsertQuorumCertificate(qc *nimbus.QuorumCertificate) func(*badger.Txn) error {
	return insert(makePrefix(codeQuorumCert, qc.BlockID), qc)
}

// RetrieveQuorumCertificate retrieves a committing QC by certified block ID.
func RetrieveQuorumCertificate(blockID nimbus.Identifier, qc *nimbus.QuorumCertificate) func(*badger.Txn) error {
	return retrieve(makePrefix(codeQuorumCert, blockID), qc)
}

// InsertEpochSetup inserts the epoch setup keyed by epoch counter.
func InsertEpochSetup(counter uint64, setup *nimbus.EpochSetup) func(*badger.Txn) error {
	return insert(makePrefix(codeEpochSetup, counter), setup)
}

// RetrieveEpochSetup retrieves the epoch setup for the given counter.
func RetrieveEpochSetup(counter uint64, setup *nimbus.EpochSetup) func(*badger.Txn) error {
	return retrieve(makePrefix(codeEpochSetup, counter), setup)
}
