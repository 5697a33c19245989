// Package badger implements the storage interfaces on top of badger.
package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
	"github.com/nimbuschain/nimbus-go/storage"
	"github.com/nimbuschain/nimbus-go/storage/badger/operation"
)

// Blocks is the badger-backed ledger of committed blocks. Each commit writes
// the block, its certifying QC, the state commitment, the round index and the
// boundary in a single transaction.
type Blocks struct {
	db *badger.DB
}

var _ storage.Blocks = (*Blocks)(nil)

func NewBlocks(db *badger.DB) *Blocks {
	return &Blocks{db: db}
}

func (b *Blocks) Store(committed *model.CommittedBlock) error {
	block := committed.Block
	err := operation.RetryOnConflict(b.db.Update, func(tx *badger.Txn) error {
		err := operation.InsertBlock(block)(tx)
		if err != nil {
			return fmt.Errorf("could not insert block: %w", err)
		}
		err = operation.InsertQuorumCertificate(committed.CertifyingQC)(tx)
		if err != nil {
			return fmt.Errorf("could not insert certifying QC: %w", err)
		}
		err = operation.IndexStateCommitment(block.BlockID, committed.StateCommitment)(tx)
		if err != nil {
			return fmt.Errorf("could not index state commitment: %w", err)
		}
		err = operation.IndexBlockRound(block.Round, block.BlockID)(tx)
		if err != nil {
			return fmt.Errorf("could not index block round: %w", err)
		}
		err = operation.UpdateBoundary(block.Round)(tx)
		if errors.Is(err, storage.ErrNotFound) {
			err = operation.InsertBoundary(block.Round)(tx)
		}
		if err != nil {
			return fmt.Errorf("could not advance boundary: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("could not store committed block %v: %w", block.BlockID, err)
	}
	return nil
}

func (b *Blocks) ByID(blockID nimbus.Identifier) (*model.CommittedBlock, error) {
	var committed model.CommittedBlock
	err := b.db.View(func(tx *badger.Txn) error {
		var block model.Block
		err := operation.RetrieveBlock(blockID, &block)(tx)
		if err != nil {
			return err
		}
		var qc nimbus.QuorumCertificate
		err = operation.RetrieveQuorumCertificate(blockID, &qc)(tx)
		if err != nil {
			return fmt.Errorf("could not retrieve certifying QC: %w", err)
		}
		var commit nimbus.StateCommitment
		err = operation.LookupStateCommitment(blockID, &commit)(tx)
		if err != nil {
			return fmt.Errorf("could not look up state commitment: %w", err)
		}
		committed.Block = &block
		committed.CertifyingQC = &qc
		committed.StateCommitment = commit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &committed, nil
}

func (b *Blocks) ByRound(round uint64) (*model.CommittedBlock, error) {
	var blockID nimbus.Identifier
	err := b.db.View(operation.LookupBlockRound(round, &blockID))
	if err != nil {
		return nil, err
	}
	return b.ByID(blockID)
}

func (b *Blocks) BoundaryRound() (uint64, error) {
	var round uint64
	err := b.db.View(operation.RetrieveBoundary(&round))
	if err != nil {
		return 0, err
	}
	return round, nil
}
