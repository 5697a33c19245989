// Package helper supplies fixtures for consensus tests.
package helper

import (
	"crypto/rand"
	"time"

	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// MakeIdentifier returns a random identifier.
func MakeIdentifier() nimbus.Identifier {
	var id nimbus.Identifier
	_, _ = rand.Read(id[:])
	return id
}

// MakeSigData returns random bytes standing in for a signature.
func MakeSigData() []byte {
	sig := make([]byte, 48)
	_, _ = rand.Read(sig)
	return sig
}

// MakeStateCommitment returns a random execution state commitment.
func MakeStateCommitment() nimbus.StateCommitment {
	var commit nimbus.StateCommitment
	_, _ = rand.Read(commit[:])
	return commit
}

func MakeBlock(options ...func(*model.Block)) *model.Block {
	round := rand64()%1000000 + 1
	block := model.Block{
		Round:       round,
		Epoch:       1,
		BlockID:     MakeIdentifier(),
		ProposerID:  MakeIdentifier(),
		QC:          MakeQC(WithQCRound(round - 1)),
		PayloadHash: MakeIdentifier(),
		Timestamp:   time.Now().UTC(),
	}
	for _, option := range options {
		option(&block)
	}
	return &block
}

func WithBlockRound(round uint64) func(*model.Block) {
	return func(block *model.Block) {
		block.Round = round
	}
}

func WithBlockEpoch(epoch uint64) func(*model.Block) {
	return func(block *model.Block) {
		block.Epoch = epoch
		if block.QC != nil {
			block.QC.Epoch = epoch
		}
	}
}

func WithBlockProposer(proposerID nimbus.Identifier) func(*model.Block) {
	return func(block *model.Block) {
		block.ProposerID = proposerID
	}
}

func WithParentBlock(parent *model.Block) func(*model.Block) {
	return func(block *model.Block) {
		block.QC.BlockID = parent.BlockID
		block.QC.Round = parent.Round
		block.QC.Epoch = parent.Epoch
	}
}

func WithBlockQC(qc *nimbus.QuorumCertificate) func(*model.Block) {
	return func(block *model.Block) {
		block.QC = qc
	}
}

func MakeQC(options ...func(*nimbus.QuorumCertificate)) *nimbus.QuorumCertificate {
	qc := nimbus.QuorumCertificate{
		Epoch:     1,
		Round:     rand64() % 1000000,
		BlockID:   MakeIdentifier(),
		SignerIDs: nimbus.IdentifierList{MakeIdentifier(), MakeIdentifier(), MakeIdentifier()},
		SigData:   MakeSigData(),
	}
	for _, option := range options {
		option(&qc)
	}
	return &qc
}

func WithQCRound(round uint64) func(*nimbus.QuorumCertificate) {
	return func(qc *nimbus.QuorumCertificate) {
		qc.Round = round
	}
}

func WithQCBlock(block *model.Block) func(*nimbus.QuorumCertificate) {
	return func(qc *nimbus.QuorumCertificate) {
		qc.Round = block.Round
		qc.Epoch = block.Epoch
		qc.BlockID = block.BlockID
	}
}

func WithQCSigners(signerIDs nimbus.IdentifierList) func(*nimbus.QuorumCertificate) {
	return func(qc *nimbus.QuorumCertificate) {
		qc.SignerIDs = signerIDs
	}
}

// MakeCertifiedBlock returns a block with a QC pointing to it.
func MakeCertifiedBlock(options ...func(*model.Block)) model.CertifiedBlock {
	block := MakeBlock(options...)
	qc := MakeQC(WithQCBlock(block))
	return model.CertifiedBlock{Block: block, CertifyingQC: qc}
}

func rand64() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	// keep headroom so fixtures can add to rounds without overflow
	return v % (1 << 40)
}
