package model

import (
	"fmt"
	"time"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// Block is the consensus engine's concept of a block: the header-level data
// the protocol agrees on. The payload itself is opaque to consensus and
// referenced by hash. A block extends the block certified by its QC, hence
// Block.Round > Block.QC.Round.
type Block struct {
	BlockID     nimbus.Identifier
	Round       uint64
	Epoch       uint64
	ProposerID  nimbus.Identifier
	QC          *nimbus.QuorumCertificate
	PayloadHash nimbus.Identifier
	Timestamp   time.Time
}

// hashableBlock is the canonical form of the block fed into content hashing.
// The block ID itself is obviously excluded.
type hashableBlock struct {
	Round       uint64
	Epoch       uint64
	ProposerID  nimbus.Identifier
	QC          *nimbus.QuorumCertificate
	PayloadHash nimbus.Identifier
	Timestamp   time.Time
}

// NewBlock constructs a block and derives its content identifier. The QC must
// certify the parent the block extends; it is nil only for the genesis block.
func NewBlock(
	round uint64,
	epoch uint64,
	proposerID nimbus.Identifier,
	qc *nimbus.QuorumCertificate,
	payloadHash nimbus.Identifier,
	timestamp time.Time,
) *Block {
	block := Block{
		Round:       round,
		Epoch:       epoch,
		ProposerID:  proposerID,
		QC:          qc,
		PayloadHash: payloadHash,
		Timestamp:   timestamp,
	}
	block.BlockID = nimbus.MakeID(hashableBlock{
		Round:       block.Round,
		Epoch:       block.Epoch,
		ProposerID:  block.ProposerID,
		QC:          block.QC,
		PayloadHash: block.PayloadHash,
		Timestamp:   block.Timestamp,
	})
	return &block
}

// GenesisBlock returns the root block for an epoch. It carries no QC and no
// proposer; it anchors the block tree and is committed by definition.
func GenesisBlock(epoch uint64, round uint64, timestamp time.Time) *Block {
	return NewBlock(round, epoch, nimbus.ZeroID, nil, nimbus.ZeroID, timestamp)
}

// ParentID returns the identifier of the block this block extends.
func (b *Block) ParentID() nimbus.Identifier {
	if b.QC == nil {
		return nimbus.ZeroID
	}
	return b.QC.BlockID
}

// CertifiedBlock holds a block together with a QC pointing to it. A QC is the
// aggregated form of votes from a supermajority of stake and therefore proves
// validity of the block. A certified block satisfies:
//
//	Block.Round == QC.Round and Block.BlockID == QC.BlockID
type CertifiedBlock struct {
	Block        *Block
	CertifyingQC *nimbus.QuorumCertificate
}

// NewCertifiedBlock constructs a new certified block. It checks the
// consistency requirements and returns an exception otherwise.
func NewCertifiedBlock(block *Block, qc *nimbus.QuorumCertificate) (CertifiedBlock, error) {
	if block.Round != qc.Round {
		return CertifiedBlock{}, fmt.Errorf("block's round (%d) should equal the qc's round (%d)", block.Round, qc.Round)
	}
	if block.BlockID != qc.BlockID {
		return CertifiedBlock{}, fmt.Errorf("block's ID (%v) should equal the block referenced by the qc (%v)", block.BlockID, qc.BlockID)
	}
	return CertifiedBlock{Block: block, CertifyingQC: qc}, nil
}

// ID returns the unique identifier for the certified block.
// To avoid repeated computation, we use the value from the QC.
func (b *CertifiedBlock) ID() nimbus.Identifier {
	return b.CertifyingQC.BlockID
}

// Round returns the round in which the block was proposed.
func (b *CertifiedBlock) Round() uint64 {
	return b.Block.Round
}

// CommittedBlock pairs a finalized block with the execution state commitment
// produced by its speculative execution. This is the unit the committer
// persists to the durable ledger.
type CommittedBlock struct {
	Block           *Block
	CertifyingQC    *nimbus.QuorumCertificate
	StateCommitment nimbus.StateCommitment
}
